// Package model defines the configuration structures for a crew vault.
package model

import "fmt"

// DirName is the vault directory created inside a project.
const DirName = ".crewvault"

// Well-known file names inside the vault directory.
const (
	ConfigFileName = "config.yaml"
	RosterFileName = "roster.cfg"
	LockFileName   = "watch.lock"
)

type Config struct {
	Vault    VaultConfig    `yaml:"vault"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Logging  LoggingConfig  `yaml:"logging"`
	Watcher  WatcherConfig  `yaml:"watcher"`
	Limits   LimitsConfig   `yaml:"limits"`
}

type VaultConfig struct {
	// RosterFile is the roster document path relative to the vault dir.
	RosterFile string `yaml:"roster_file"`
}

type SnapshotConfig struct {
	// DebounceSec batches bursts of mutations into one disk write.
	DebounceSec float64 `yaml:"debounce_sec"`
}

type LoggingConfig struct {
	// Enabled gates the warning log and the audit trail as a whole.
	Enabled       bool   `yaml:"enabled"`
	Level         string `yaml:"level"`
	AuditMaxBytes int64  `yaml:"audit_max_bytes"`
}

type WatcherConfig struct {
	DebounceSec     float64 `yaml:"debounce_sec"`
	ScanIntervalSec int     `yaml:"scan_interval_sec"`
}

type LimitsConfig struct {
	MaxRosterBytes int64 `yaml:"max_roster_bytes"`
}

// Default returns the configuration written by `crewvault init`.
func Default() Config {
	return Config{
		Vault: VaultConfig{
			RosterFile: RosterFileName,
		},
		Snapshot: SnapshotConfig{
			DebounceSec: 0.5,
		},
		Logging: LoggingConfig{
			Enabled:       true,
			Level:         "info",
			AuditMaxBytes: 10 * 1024 * 1024,
		},
		Watcher: WatcherConfig{
			DebounceSec:     0.3,
			ScanIntervalSec: 60,
		},
		Limits: LimitsConfig{
			MaxRosterBytes: 5 * 1024 * 1024,
		},
	}
}

// Validate rejects configurations the daemon cannot run with and fills
// zero values with defaults.
func (c *Config) Validate() error {
	def := Default()
	if c.Vault.RosterFile == "" {
		c.Vault.RosterFile = def.Vault.RosterFile
	}
	if c.Snapshot.DebounceSec < 0 {
		return fmt.Errorf("snapshot.debounce_sec must not be negative, got %v", c.Snapshot.DebounceSec)
	}
	if c.Snapshot.DebounceSec == 0 {
		c.Snapshot.DebounceSec = def.Snapshot.DebounceSec
	}
	if c.Watcher.DebounceSec <= 0 {
		c.Watcher.DebounceSec = def.Watcher.DebounceSec
	}
	if c.Watcher.ScanIntervalSec <= 0 {
		c.Watcher.ScanIntervalSec = def.Watcher.ScanIntervalSec
	}
	if c.Logging.AuditMaxBytes <= 0 {
		c.Logging.AuditMaxBytes = def.Logging.AuditMaxBytes
	}
	if c.Limits.MaxRosterBytes <= 0 {
		c.Limits.MaxRosterBytes = def.Limits.MaxRosterBytes
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug|info|warn|error", c.Logging.Level)
	}
	return nil
}
