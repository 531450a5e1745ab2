package persist

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/hmaeda/crewvault/internal/confignode"
)

// RosterRootTag is the container node holding ASTRONAUT records in the
// roster document.
const RosterRootTag = "ROSTER"

// Quarantine moves an unreadable roster file into vaultDir/quarantine
// with a timestamp suffix so nothing is ever silently destroyed.
func Quarantine(vaultDir, filePath string) error {
	quarantineDir := filepath.Join(vaultDir, "quarantine")
	if err := os.MkdirAll(quarantineDir, 0755); err != nil {
		return fmt.Errorf("create quarantine dir: %w", err)
	}

	baseName := filepath.Base(filePath)
	timestamp := time.Now().Format("20060102T150405")
	quarantinePath := filepath.Join(quarantineDir, fmt.Sprintf("%s.%s.corrupt", baseName, timestamp))

	if err := os.Rename(filePath, quarantinePath); err != nil {
		return fmt.Errorf("move to quarantine: %w", err)
	}

	log.Printf("quarantined corrupted file: %s → %s", filePath, quarantinePath)
	return nil
}

// RestoreFromBackup replaces filePath with its .bak sibling after
// checking the backup still parses.
func RestoreFromBackup(filePath string) error {
	bakPath := filePath + ".bak"
	if _, err := os.Stat(bakPath); os.IsNotExist(err) {
		return fmt.Errorf("no backup file: %s", bakPath)
	}

	content, err := os.ReadFile(bakPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if _, err := confignode.Parse(content); err != nil {
		return fmt.Errorf("backup is also corrupted: %w", err)
	}

	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}

	log.Printf("restored from backup: %s → %s", bakPath, filePath)
	return nil
}

// WriteSkeleton creates an empty roster document at filePath.
func WriteSkeleton(filePath string) error {
	root := confignode.NewDocument()
	root.NewChild(RosterRootTag)
	if err := os.WriteFile(filePath, confignode.Format(root), 0644); err != nil {
		return fmt.Errorf("write skeleton: %w", err)
	}
	log.Printf("generated empty roster: %s", filePath)
	return nil
}

// RecoverCorruptedFile runs the recovery ladder for an unparsable
// roster file: quarantine it, restore the backup, and fall back to an
// empty skeleton when the backup is gone or equally corrupt.
func RecoverCorruptedFile(vaultDir, filePath string) error {
	if err := Quarantine(vaultDir, filePath); err != nil {
		return fmt.Errorf("quarantine failed: %w", err)
	}

	if err := RestoreFromBackup(filePath); err != nil {
		log.Printf("backup restore failed for %s: %v — falling back to empty roster", filePath, err)
	} else {
		return nil
	}

	if err := WriteSkeleton(filePath); err != nil {
		return fmt.Errorf("skeleton generation failed: %w", err)
	}
	return nil
}
