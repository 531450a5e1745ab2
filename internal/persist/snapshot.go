package persist

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/hmaeda/crewvault/internal/confignode"
	"github.com/hmaeda/crewvault/internal/roster"
)

// LoadRoster reads the roster document at path into the store. The
// document must stay under maxBytes (0 disables the limit). An
// unparsable document is returned as an error so the caller can run the
// recovery ladder; individual broken records inside a parsable document
// are the store's skip-and-log concern, not ours.
func LoadRoster(path string, maxBytes int64, store *roster.Store) error {
	if maxBytes > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat roster: %w", err)
		}
		if info.Size() > maxBytes {
			return fmt.Errorf("roster file %s is %d bytes, limit %d", path, info.Size(), maxBytes)
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read roster: %w", err)
	}
	root, err := confignode.Parse(content)
	if err != nil {
		return fmt.Errorf("parse roster: %w", err)
	}

	// Records live under a ROSTER container; documents without one are
	// treated as empty rather than corrupt.
	if container, ok := root.FirstNode(RosterRootTag); ok {
		store.LoadNode(container)
	}
	return nil
}

// SaveRoster writes the store as a roster document, atomically.
func SaveRoster(path string, store *roster.Store) error {
	root := confignode.NewDocument()
	store.SaveNode(root.NewChild(RosterRootTag))
	return AtomicWriteNode(path, root)
}

// Snapshotter persists the store after mutations, batching bursts into
// a single write per debounce window. It implements roster.Notifier so
// it can be attached directly as the store's persistence hook.
type Snapshotter struct {
	store    *roster.Store
	path     string
	debounce time.Duration
	guard    sync.Locker
	logger   *log.Logger

	mu    sync.Mutex
	timer *time.Timer
	dirty bool
}

// NewSnapshotter creates a snapshotter writing to path. The optional
// guard is held while reading the store, for callers whose store is
// also mutated off the timer goroutine. A nil logger sends write
// failures to the default logger.
func NewSnapshotter(store *roster.Store, path string, debounce time.Duration, guard sync.Locker, logger *log.Logger) *Snapshotter {
	if logger == nil {
		logger = log.Default()
	}
	return &Snapshotter{store: store, path: path, debounce: debounce, guard: guard, logger: logger}
}

// RecordChanged implements roster.Notifier: marks the roster dirty and
// arms the debounce timer.
func (s *Snapshotter) RecordChanged(string) {
	s.Mark()
}

// Mark schedules a snapshot after the debounce window. Further marks
// within the window coalesce into the same write.
func (s *Snapshotter) Mark() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = true
	if s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.Flush(); err != nil {
			s.logger.Printf("snapshot write failed: %v", err)
		}
	})
}

// Flush writes the snapshot now if the roster is dirty.
func (s *Snapshotter) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	dirty := s.dirty
	s.dirty = false
	s.mu.Unlock()

	if !dirty {
		return nil
	}
	if s.guard != nil {
		s.guard.Lock()
		defer s.guard.Unlock()
	}
	return SaveRoster(s.path, s.store)
}

// Close cancels any pending timer and flushes outstanding changes.
func (s *Snapshotter) Close() error {
	return s.Flush()
}
