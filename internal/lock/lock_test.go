package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
)

func TestMutexMapGetIsStablePerKey(t *testing.T) {
	m := NewMutexMap()
	if m.Get("roster") != m.Get("roster") {
		t.Error("Get must return the same mutex for the same key")
	}
	if m.Get("roster") == m.Get("audit") {
		t.Error("Get must return distinct mutexes for distinct keys")
	}
}

// The watch process hands the roster mutex to the snapshotter as a
// sync.Locker and takes the same mutex itself around reloads; both
// paths must exclude each other.
func TestMutexMapGuardSharedBetweenHolders(t *testing.T) {
	m := NewMutexMap()
	var guard sync.Locker = m.Get("roster")

	inCritical := false
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(viaLocker bool) {
			defer wg.Done()
			if viaLocker {
				guard.Lock()
				defer guard.Unlock()
			} else {
				m.Lock("roster")
				defer m.Unlock("roster")
			}
			if inCritical {
				t.Error("two holders inside the roster critical section")
			}
			inCritical = true
			inCritical = false
		}(i%2 == 0)
	}
	wg.Wait()
}

func TestMutexMapKeysAreIndependent(t *testing.T) {
	m := NewMutexMap()

	m.Lock("roster")
	defer m.Unlock("roster")

	done := make(chan struct{})
	go func() {
		// A different key must not queue behind the roster guard.
		m.Lock("audit")
		m.Unlock("audit")
		close(done)
	}()
	<-done
}

func TestFileLockWritesPID(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "watch.lock")

	fl := NewFileLock(lockPath)
	if err := fl.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	defer fl.Unlock()

	data, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != strconv.Itoa(os.Getpid()) {
		t.Errorf("lock file PID = %q, want %d", got, os.Getpid())
	}
}

func TestFileLockRefusesSecondHolder(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "watch.lock")

	first := NewFileLock(lockPath)
	if err := first.TryLock(); err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	defer first.Unlock()

	second := NewFileLock(lockPath)
	err := second.TryLock()
	if err == nil {
		second.Unlock()
		t.Fatal("second holder must be refused while the lock is held")
	}
	if !strings.Contains(err.Error(), "another watch process") {
		t.Errorf("refusal should name the likely cause: %v", err)
	}
}

func TestFileLockReleaseHandsOver(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "watch.lock")

	first := NewFileLock(lockPath)
	if err := first.TryLock(); err != nil {
		t.Fatalf("first TryLock failed: %v", err)
	}
	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	second := NewFileLock(lockPath)
	if err := second.TryLock(); err != nil {
		t.Fatalf("lock after release failed: %v", err)
	}
	second.Unlock()
}

func TestFileLockUnlockTwiceIsSafe(t *testing.T) {
	fl := NewFileLock(filepath.Join(t.TempDir(), "watch.lock"))
	if err := fl.TryLock(); err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if err := fl.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := fl.Unlock(); err != nil {
		t.Fatalf("second Unlock must be a no-op, got: %v", err)
	}
}
