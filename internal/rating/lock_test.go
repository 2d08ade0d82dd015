package rating

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestLock(t *testing.T) *Lock {
	t.Helper()
	return NewLock(filepath.Join(t.TempDir(), "elo_calc_process.lock"), "")
}

func TestAcquireAndRelease(t *testing.T) {
	lock := newTestLock(t)

	release, err := lock.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if !lock.LockFileExists() {
		t.Error("lock file missing after acquire")
	}
	if !lock.Running() {
		t.Error("Running should report the current process")
	}

	pid, started, ok := lock.ReadHolder()
	if !ok || pid != os.Getpid() {
		t.Errorf("ReadHolder = %d %v, want own pid", pid, ok)
	}
	if started == 0 {
		t.Error("start time not recorded")
	}

	release()
	if lock.LockFileExists() {
		t.Error("lock file remains after release")
	}
	if lock.Running() {
		t.Error("Running after release")
	}
}

func TestAcquireContention(t *testing.T) {
	lock := newTestLock(t)

	release, err := lock.Acquire()
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer release()

	if _, err := lock.Acquire(); err == nil {
		t.Error("second Acquire must fail while held")
	}
}

func TestScheduledSignal(t *testing.T) {
	lock := newTestLock(t)

	if lock.ScheduledExists() {
		t.Fatal("scheduled signal exists before Schedule")
	}
	if err := lock.Schedule(); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	// Overlapping triggers collapse into one pending run.
	if err := lock.Schedule(); err != nil {
		t.Fatalf("second Schedule: %v", err)
	}
	if !lock.ScheduledExists() {
		t.Fatal("scheduled signal missing")
	}

	lock.DischargeScheduled()
	if lock.ScheduledExists() {
		t.Error("scheduled signal remains after discharge")
	}
	// Discharging twice is tolerated.
	lock.DischargeScheduled()
}

func TestUnlockStaleLock(t *testing.T) {
	lock := newTestLock(t)

	// A lock file with a long-dead PID is stale and removable.
	if err := os.WriteFile(lock.LockFile, []byte("999999999\n0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if lock.Running() {
		t.Error("dead pid reported as running")
	}

	lock.Unlock(false)
	if lock.LockFileExists() {
		t.Error("stale lock not removed")
	}
}

func TestUnlockLiveHolderWithoutForce(t *testing.T) {
	lock := newTestLock(t)

	release, err := lock.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	// Without force the live holder keeps the lock.
	lock.Unlock(false)
	if !lock.LockFileExists() {
		t.Error("Unlock removed the lock of a live process")
	}
}
