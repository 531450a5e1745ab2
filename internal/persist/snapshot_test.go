package persist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmaeda/crewvault/internal/roster"
)

func TestLoadSaveRoster(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.cfg")

	src := roster.NewStore()
	jeb := roster.NewRecord("Jeb")
	jeb.SetTrait("Pilot")
	jeb.Touch(100)
	jeb.SetCondition("Stressed")
	src.Add(jeb)

	require.NoError(t, SaveRoster(path, src))

	dst := roster.NewStore()
	require.NoError(t, LoadRoster(path, 0, dst))
	assert.Equal(t, 1, dst.Len())

	got, ok := dst.Get("Jeb")
	require.True(t, ok)
	assert.Equal(t, "Pilot", got.Trait())
	assert.Equal(t, "Stressed", got.ConditionSummary())
}

func TestLoadRosterEnforcesSizeLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.cfg")
	require.NoError(t, os.WriteFile(path, []byte("ROSTER\n{\n}\n"), 0644))

	err := LoadRoster(path, 4, roster.NewStore())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")
}

func TestLoadRosterWithoutContainerIsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.cfg")
	require.NoError(t, os.WriteFile(path, []byte("version = 1\n"), 0644))

	s := roster.NewStore()
	require.NoError(t, LoadRoster(path, 0, s))
	assert.Equal(t, 0, s.Len())
}

func TestSnapshotterDebounces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.cfg")

	store := roster.NewStore()
	snap := NewSnapshotter(store, path, 20*time.Millisecond, nil, nil)
	store.SetNotifier(snap)

	rec := roster.NewRecord("Val")
	store.Add(rec)
	rec.SetCondition("Hungry")
	rec.SetCondition("Tired")

	// Nothing on disk until the debounce window closes.
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "write must wait for the debounce window")

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	dst := roster.NewStore()
	require.NoError(t, LoadRoster(path, 0, dst))
	got, ok := dst.Get("Val")
	require.True(t, ok)
	assert.Equal(t, "Hungry, Tired", got.ConditionSummary())
}

func TestSnapshotterFlushIsImmediate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.cfg")

	store := roster.NewStore()
	snap := NewSnapshotter(store, path, time.Hour, nil, nil)
	store.SetNotifier(snap)

	store.Add(roster.NewRecord("Bob"))
	require.NoError(t, snap.Flush())

	dst := roster.NewStore()
	require.NoError(t, LoadRoster(path, 0, dst))
	assert.Equal(t, 1, dst.Len())

	// A clean flush with no further mutations must not rewrite.
	info1, _ := os.Stat(path)
	require.NoError(t, snap.Flush())
	info2, _ := os.Stat(path)
	assert.Equal(t, info1.ModTime(), info2.ModTime())
}

func TestSnapshotterCloseFlushes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.cfg")

	store := roster.NewStore()
	snap := NewSnapshotter(store, path, time.Hour, nil, nil)
	store.SetNotifier(snap)

	store.Add(roster.NewRecord("Bill"))
	require.NoError(t, snap.Close())

	_, err := os.Stat(path)
	assert.NoError(t, err, "Close must write pending changes")
}
