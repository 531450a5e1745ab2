package persist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hmaeda/crewvault/internal/confignode"
)

func TestAtomicWriteNode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.cfg")

	root := confignode.NewDocument()
	roster := root.NewChild(RosterRootTag)
	roster.AddValue("version", "1")

	if err := AtomicWriteNode(path, root); err != nil {
		t.Fatalf("AtomicWriteNode failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	parsed, err := confignode.Parse(content)
	if err != nil {
		t.Fatalf("written document does not parse: %v", err)
	}
	node, ok := parsed.FirstNode(RosterRootTag)
	if !ok || node.Value("version") != "1" {
		t.Errorf("content wrong: %s", content)
	}
}

func TestAtomicWriteCreatesBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.cfg")

	if err := AtomicWriteRaw(path, []byte("version = 1\n")); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := AtomicWriteRaw(path, []byte("version = 2\n")); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	bak, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("ReadFile .bak failed: %v", err)
	}
	if string(bak) != "version = 1\n" {
		t.Errorf("backup content: got %q", bak)
	}

	cur, _ := os.ReadFile(path)
	if string(cur) != "version = 2\n" {
		t.Errorf("current content: got %q", cur)
	}
}

func TestAtomicWriteRejectsInvalidDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.cfg")

	if err := AtomicWriteRaw(path, []byte("version = 1\n")); err != nil {
		t.Fatalf("seed write failed: %v", err)
	}

	err := AtomicWriteRaw(path, []byte("BROKEN\n{\n"))
	if err == nil {
		t.Fatal("invalid document must be rejected")
	}
	if !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("unexpected error: %v", err)
	}

	// The original file must be untouched after a rejected write.
	cur, _ := os.ReadFile(path)
	if string(cur) != "version = 1\n" {
		t.Errorf("original clobbered: got %q", cur)
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, ".crewvault-tmp-*"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}
