// Package persist provides durable roster document I/O: atomic replace
// with backup, corruption quarantine, and debounced snapshots.
package persist

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hmaeda/crewvault/internal/confignode"
)

// AtomicWriteNode renders the document and replaces path atomically.
func AtomicWriteNode(path string, root *confignode.Node) error {
	return AtomicWriteRaw(path, confignode.Format(root))
}

// AtomicWriteRaw writes content to a temp file in the target directory,
// validates the written bytes parse as a config-node document, keeps a
// .bak of the previous file, and renames into place.
func AtomicWriteRaw(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".crewvault-tmp-*.cfg")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		// Clean up temp file on any failure
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	// Validate by re-reading what actually hit the disk.
	written, err := os.ReadFile(tmpName)
	if err != nil {
		return fmt.Errorf("read temp file for validation: %w", err)
	}
	if _, err := confignode.Parse(written); err != nil {
		return fmt.Errorf("document validation failed: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		bakPath := path + ".bak"
		if err := copyFile(path, bakPath); err != nil {
			return fmt.Errorf("create backup: %w", err)
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
