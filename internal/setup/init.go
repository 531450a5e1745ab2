// Package setup handles crew vault initialization.
package setup

import (
	"fmt"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/hmaeda/crewvault/internal/model"
	"github.com/hmaeda/crewvault/internal/persist"
)

// Run creates the .crewvault/ directory inside projectDir: config.yaml,
// an empty roster document, and the working directories for logs,
// quarantined files, and the watch lock. Refuses to touch an existing
// vault.
func Run(projectDir string) error {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("resolve project dir: %w", err)
	}

	base := filepath.Join(absDir, model.DirName)
	if _, err := os.Stat(base); err == nil {
		return fmt.Errorf("%s already exists", base)
	}

	dirs := []string{
		"logs",
		"quarantine",
		"locks",
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	cfg := model.Default()
	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(base, model.ConfigFileName), data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", model.ConfigFileName, err)
	}

	if err := persist.WriteSkeleton(filepath.Join(base, cfg.Vault.RosterFile)); err != nil {
		return fmt.Errorf("write roster skeleton: %w", err)
	}

	if err := os.WriteFile(filepath.Join(base, "locks", model.LockFileName), nil, 0600); err != nil {
		return fmt.Errorf("create %s: %w", model.LockFileName, err)
	}

	return nil
}

// Find walks upward from the working directory looking for a vault.
// Returns "" when no ancestor contains one.
func Find() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, model.DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadConfig reads and validates the vault's config.yaml.
func LoadConfig(vaultDir string) (model.Config, error) {
	data, err := os.ReadFile(filepath.Join(vaultDir, model.ConfigFileName))
	if err != nil {
		return model.Config{}, fmt.Errorf("read %s: %w", model.ConfigFileName, err)
	}
	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, fmt.Errorf("parse %s: %w", model.ConfigFileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return model.Config{}, err
	}
	return cfg, nil
}
