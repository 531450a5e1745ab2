// Package daemon implements the watch process: it holds the live
// in-memory roster, reloads it when the vault file changes on disk,
// recovers corrupted files, and feeds the audit log.
package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/hmaeda/crewvault/internal/events"
	"github.com/hmaeda/crewvault/internal/lock"
	"github.com/hmaeda/crewvault/internal/model"
	"github.com/hmaeda/crewvault/internal/persist"
	"github.com/hmaeda/crewvault/internal/roster"
	"github.com/hmaeda/crewvault/internal/status"
	"github.com/hmaeda/crewvault/internal/uds"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func parseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

const rosterGuardKey = "roster"

// Daemon is the crewvault watch process.
type Daemon struct {
	vaultDir   string
	config     model.Config
	rosterPath string
	logLevel   LogLevel
	logger     *log.Logger
	logFile    io.Closer

	fileLock *lock.FileLock
	lockMap  *lock.MutexMap
	watcher  *fsnotify.Watcher
	ticker   *time.Ticker
	server   *uds.Server

	store *roster.Store
	snap  *persist.Snapshotter
	bus   *events.Bus
	audit *events.AuditLogger

	reloadMu    sync.Mutex
	reloadTimer *time.Timer
	lastLoaded  time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	shutdown sync.Once
}

// New creates a watch daemon rooted at the given vault directory.
func New(vaultDir string, cfg model.Config) (*Daemon, error) {
	logPath := filepath.Join(vaultDir, "logs", "watch.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open watch log: %w", err)
	}

	return newDaemon(vaultDir, cfg, logFile, logFile)
}

// newDaemon is the internal constructor for testing.
func newDaemon(vaultDir string, cfg model.Config, w io.Writer, closer io.Closer) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	scanInterval := cfg.Watcher.ScanIntervalSec
	if scanInterval <= 0 {
		scanInterval = 10
	}

	d := &Daemon{
		vaultDir:   vaultDir,
		config:     cfg,
		rosterPath: filepath.Join(vaultDir, cfg.Vault.RosterFile),
		logLevel:   parseLogLevel(cfg.Logging.Level),
		logger:     log.New(w, "", 0),
		logFile:    closer,
		fileLock:   lock.NewFileLock(filepath.Join(vaultDir, "locks", model.LockFileName)),
		lockMap:    lock.NewMutexMap(),
		server:     uds.NewServer(filepath.Join(vaultDir, uds.DefaultSocketName)),
		ticker:     time.NewTicker(time.Duration(scanInterval) * time.Second),
		store:      roster.NewStore(),
		bus:        events.NewBus(64),
		ctx:        ctx,
		cancel:     cancel,
	}

	return d, nil
}

// Store returns the live in-memory roster.
func (d *Daemon) Store() *roster.Store {
	return d.store
}

// Bus returns the daemon's event bus.
func (d *Daemon) Bus() *events.Bus {
	return d.bus
}

// Run starts the daemon and blocks until shutdown completes.
func (d *Daemon) Run() error {
	if err := d.fileLock.TryLock(); err != nil {
		return fmt.Errorf("watch lock: %w", err)
	}
	d.log(LogLevelInfo, "watch starting pid=%d roster=%s", os.Getpid(), d.rosterPath)

	if d.config.Logging.Enabled {
		auditPath := filepath.Join(d.vaultDir, "logs", "audit.jsonl")
		audit, err := events.NewAuditLogger(auditPath, d.config.Logging.AuditMaxBytes)
		if err != nil {
			d.cleanup()
			return fmt.Errorf("open audit log: %w", err)
		}
		d.audit = audit
		d.subscribeAudit()
	}

	if err := d.loadWithRecovery(); err != nil {
		d.cleanup()
		return err
	}

	debounce := time.Duration(d.config.Snapshot.DebounceSec * float64(time.Second))
	guard := d.lockMap.Get(rosterGuardKey)
	d.snap = persist.NewSnapshotter(d.store, d.rosterPath, debounce, guard, d.logger)
	d.store.SetLogger(d.logger)
	d.store.SetNotifier(roster.NotifierFunc(d.recordChanged))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.cleanup()
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	d.watcher = watcher
	// Watch the directory, not the file: atomic renames replace the
	// inode the file watch would be bound to.
	if err := watcher.Add(d.vaultDir); err != nil {
		d.cleanup()
		return fmt.Errorf("watch %s: %w", d.vaultDir, err)
	}

	d.registerHandlers()
	d.server.SetLogger(d.logger)
	if err := d.server.Start(); err != nil {
		d.cleanup()
		return fmt.Errorf("start control socket: %w", err)
	}
	d.log(LogLevelInfo, "control socket listening on %s", filepath.Join(d.vaultDir, uds.DefaultSocketName))

	g, ctx := errgroup.WithContext(d.ctx)
	g.Go(func() error { return d.fsnotifyLoop(ctx) })
	g.Go(func() error { return d.tickerLoop(ctx) })
	g.Go(func() error { return d.waitSignals(ctx) })

	d.log(LogLevelInfo, "watch ready crew=%d", d.store.Len())

	err = g.Wait()
	d.Shutdown()
	return err
}

// registerHandlers registers the control socket commands.
func (d *Daemon) registerHandlers() {
	d.server.Handle("ping", func(req *uds.Request) *uds.Response {
		return uds.SuccessResponse(map[string]any{"status": "ok", "crew_count": d.store.Len()})
	})

	d.server.Handle("status", func(req *uds.Request) *uds.Response {
		guard := d.lockMap.Get(rosterGuardKey)
		guard.Lock()
		st := status.Collect(d.store)
		guard.Unlock()
		st.RosterFile = d.rosterPath
		return uds.SuccessResponse(st)
	})

	d.server.Handle("reload", func(req *uds.Request) *uds.Response {
		d.reload()
		return uds.SuccessResponse(map[string]any{"crew_count": d.store.Len()})
	})

	d.server.Handle("shutdown", func(req *uds.Request) *uds.Response {
		d.log(LogLevelInfo, "shutdown requested via control socket")
		d.cancel()
		return uds.SuccessResponse(map[string]string{"status": "shutdown_accepted"})
	})
}

// subscribeAudit feeds bus events into the JSONL audit log.
func (d *Daemon) subscribeAudit() {
	types := []events.EventType{
		events.EventRecordChanged,
		events.EventRecordAdded,
		events.EventRecordRemoved,
		events.EventRosterLoaded,
		events.EventRosterRecovered,
	}
	for _, et := range types {
		d.bus.Subscribe(et, func(e events.Event) {
			if err := d.audit.LogEvent(e); err != nil {
				d.log(LogLevelError, "audit write failed: %v", err)
			}
		})
	}
}

// recordChanged fans an in-process mutation out to the snapshotter and
// the event bus.
func (d *Daemon) recordChanged(name string) {
	d.snap.Mark()
	d.bus.Publish(events.EventRecordChanged, map[string]any{"crew": name})
}

// loadWithRecovery reads the roster, walking the recovery ladder when
// the file does not parse.
func (d *Daemon) loadWithRecovery() error {
	guard := d.lockMap.Get(rosterGuardKey)
	guard.Lock()
	defer guard.Unlock()

	if _, serr := os.Stat(d.rosterPath); os.IsNotExist(serr) {
		d.log(LogLevelWarn, "roster missing, writing empty roster")
		if werr := persist.WriteSkeleton(d.rosterPath); werr != nil {
			return werr
		}
	}

	err := persist.LoadRoster(d.rosterPath, d.config.Limits.MaxRosterBytes, d.store)
	if err == nil {
		d.lastLoaded = time.Now()
		d.bus.Publish(events.EventRosterLoaded, map[string]any{"crew_count": d.store.Len()})
		return nil
	}

	d.log(LogLevelWarn, "roster load failed, attempting recovery: %v", err)
	if rerr := persist.RecoverCorruptedFile(d.vaultDir, d.rosterPath); rerr != nil {
		return fmt.Errorf("recover roster: %w", rerr)
	}
	if err := persist.LoadRoster(d.rosterPath, d.config.Limits.MaxRosterBytes, d.store); err != nil {
		return fmt.Errorf("load recovered roster: %w", err)
	}
	d.lastLoaded = time.Now()
	d.bus.Publish(events.EventRosterRecovered, map[string]any{"crew_count": d.store.Len()})
	return nil
}

// fsnotifyLoop reacts to external edits of the roster file.
func (d *Daemon) fsnotifyLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-d.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(d.rosterPath) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				d.log(LogLevelDebug, "fsnotify event=%s file=%s", event.Op, event.Name)
				d.scheduleReload()
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return nil
			}
			d.log(LogLevelError, "fsnotify error=%v", err)
		}
	}
}

// tickerLoop is the safety net for missed fsnotify events: it rescans
// the roster's mtime at the configured interval.
func (d *Daemon) tickerLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.ticker.C:
			info, err := os.Stat(d.rosterPath)
			if err != nil {
				d.log(LogLevelWarn, "roster stat failed: %v", err)
				continue
			}
			d.reloadMu.Lock()
			stale := info.ModTime().After(d.lastLoaded)
			d.reloadMu.Unlock()
			if stale {
				d.log(LogLevelDebug, "periodic scan found newer roster")
				d.scheduleReload()
			}
		}
	}
}

// scheduleReload arms a debounced reload. Bursts of events within the
// debounce window collapse into one reload.
func (d *Daemon) scheduleReload() {
	debounce := time.Duration(d.config.Watcher.DebounceSec * float64(time.Second))
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()
	if d.reloadTimer != nil {
		d.reloadTimer.Stop()
	}
	d.reloadTimer = time.AfterFunc(debounce, d.reload)
}

// reload re-reads the roster from disk and syncs the live store to it.
// Notifications are suppressed during the sync so an external edit does
// not bounce back out through the snapshotter.
func (d *Daemon) reload() {
	guard := d.lockMap.Get(rosterGuardKey)
	guard.Lock()
	defer guard.Unlock()

	fresh := roster.NewStore()
	fresh.SetLogger(d.logger)
	if err := persist.LoadRoster(d.rosterPath, d.config.Limits.MaxRosterBytes, fresh); err != nil {
		d.log(LogLevelError, "reload failed: %v", err)
		if rerr := persist.RecoverCorruptedFile(d.vaultDir, d.rosterPath); rerr != nil {
			d.log(LogLevelError, "recovery failed: %v", rerr)
			return
		}
		fresh = roster.NewStore()
		if err := persist.LoadRoster(d.rosterPath, d.config.Limits.MaxRosterBytes, fresh); err != nil {
			d.log(LogLevelError, "reload after recovery failed: %v", err)
			return
		}
		d.bus.Publish(events.EventRosterRecovered, map[string]any{"crew_count": fresh.Len()})
	}

	d.store.SetNotifier(nil)
	var added, removed []string
	for _, name := range d.store.Names() {
		if _, ok := fresh.Get(name); !ok {
			d.store.Remove(name)
			removed = append(removed, name)
		}
	}
	for _, name := range fresh.Names() {
		if _, ok := d.store.Get(name); !ok {
			added = append(added, name)
		}
		if rec, ok := fresh.Get(name); ok {
			d.store.Add(rec)
		}
	}
	d.store.SetNotifier(roster.NotifierFunc(d.recordChanged))

	for _, name := range removed {
		d.bus.Publish(events.EventRecordRemoved, map[string]any{"crew": name})
	}
	for _, name := range added {
		d.bus.Publish(events.EventRecordAdded, map[string]any{"crew": name})
	}

	d.reloadMu.Lock()
	d.lastLoaded = time.Now()
	d.reloadMu.Unlock()

	d.log(LogLevelInfo, "roster reloaded crew=%d", d.store.Len())
	d.bus.Publish(events.EventRosterLoaded, map[string]any{"crew_count": d.store.Len()})
}

// waitSignals blocks until a shutdown signal or context cancellation.
func (d *Daemon) waitSignals(ctx context.Context) error {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		return nil
	case sig := <-sigCh:
		d.log(LogLevelInfo, "received signal=%s, initiating graceful shutdown", sig)
		// Second signal forces exit.
		go func() {
			<-sigCh
			d.log(LogLevelWarn, "received second signal, forcing exit")
			os.Exit(1)
		}()
		d.cancel()
		return nil
	}
}

// Shutdown performs graceful shutdown (idempotent via sync.Once).
func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		d.log(LogLevelInfo, "shutdown started")

		d.cancel()
		d.ticker.Stop()
		d.reloadMu.Lock()
		if d.reloadTimer != nil {
			d.reloadTimer.Stop()
		}
		d.reloadMu.Unlock()
		if d.watcher != nil {
			d.watcher.Close()
		}
		d.server.Stop()

		if d.snap != nil {
			if err := d.snap.Close(); err != nil {
				d.log(LogLevelError, "final snapshot failed: %v", err)
			}
		}

		d.cleanup()
		d.log(LogLevelInfo, "watch stopped")
	})
}

// cleanup releases resources.
func (d *Daemon) cleanup() {
	d.bus.Close()
	if d.audit != nil {
		d.audit.Close()
	}
	d.fileLock.Unlock()
	if d.logFile != nil {
		d.logFile.Close()
	}
}

func (d *Daemon) log(level LogLevel, format string, args ...any) {
	if level < d.logLevel {
		return
	}
	levelStr := "INFO"
	switch level {
	case LogLevelDebug:
		levelStr = "DEBUG"
	case LogLevelWarn:
		levelStr = "WARN"
	case LogLevelError:
		levelStr = "ERROR"
	}
	msg := fmt.Sprintf(format, args...)
	d.logger.Printf("%s %s watch: %s", time.Now().Format(time.RFC3339), levelStr, msg)
}
