package rating

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aocrec/mgxhub/internal/logger"
)

// Lock is the cross-process mutex around the rating calculation. The
// primary lock file carries two ASCII lines (PID, unix start time); a
// ".scheduled" sibling is the at-most-one queued follow-up run signal.
type Lock struct {
	LockFile string
	// CalcBin is the rating binary to spawn; empty means "ratingcalc"
	// next to the current executable.
	CalcBin string
}

func NewLock(lockFile, calcBin string) *Lock {
	return &Lock{LockFile: lockFile, CalcBin: calcBin}
}

func (l *Lock) scheduledFile() string {
	return l.LockFile + ".scheduled"
}

// ReadHolder returns the PID and start time recorded in the lock file.
func (l *Lock) ReadHolder() (pid int, started int64, ok bool) {
	f, err := os.Open(l.LockFile)
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if scanner.Scan() {
		pid, _ = strconv.Atoi(strings.TrimSpace(scanner.Text()))
	}
	if scanner.Scan() {
		started, _ = strconv.ParseInt(strings.TrimSpace(scanner.Text()), 10, 64)
	}
	return pid, started, pid > 0
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

// Running reports whether a rating process currently holds the lock: the
// lock file exists and the PID in it is still alive.
func (l *Lock) Running() bool {
	pid, _, ok := l.ReadHolder()
	return ok && pidAlive(pid)
}

func (l *Lock) LockFileExists() bool {
	_, err := os.Stat(l.LockFile)
	return err == nil
}

func (l *Lock) ScheduledExists() bool {
	_, err := os.Stat(l.scheduledFile())
	return err == nil
}

// Schedule creates the scheduled signal. Creating it twice is a no-op,
// which is exactly the "collapse overlapping triggers" semantics.
func (l *Lock) Schedule() error {
	f, err := os.OpenFile(l.scheduledFile(), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create scheduled signal: %w", err)
	}
	return f.Close()
}

// DischargeScheduled removes the scheduled signal; the starting run pays
// the debt. Concurrent removal is tolerated.
func (l *Lock) DischargeScheduled() {
	if err := os.Remove(l.scheduledFile()); err != nil && !os.IsNotExist(err) {
		logger.Warnf("[RATING] cannot remove scheduled signal: %v", err)
	}
}

// StartCalc spawns the rating process unless one is already running. With
// schedule set, a running instance results in the scheduled signal instead.
func (l *Lock) StartCalc(schedule bool) error {
	if l.Running() {
		if schedule {
			return l.Schedule()
		}
		return nil
	}

	bin := l.CalcBin
	if bin == "" {
		if exe, err := os.Executable(); err == nil {
			bin = filepath.Join(filepath.Dir(exe), "ratingcalc")
		} else {
			bin = "ratingcalc"
		}
	}

	cmd := exec.Command(bin)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to spawn rating process: %w", err)
	}
	// Detach; the child removes the lock on its own exit.
	go cmd.Wait()
	return nil
}

// Unlock removes a stale lock. With force, the holder is SIGTERMed first
// and given a grace period to die. The lock file is only removed once the
// recorded PID is no longer alive.
func (l *Lock) Unlock(force bool) {
	pid, _, ok := l.ReadHolder()

	if force && ok && pidAlive(pid) {
		syscall.Kill(pid, syscall.SIGTERM)
		for i := 0; i < 50 && pidAlive(pid); i++ {
			time.Sleep(100 * time.Millisecond)
		}
	}

	if l.LockFileExists() && !pidAlive(pid) {
		if err := os.Remove(l.LockFile); err != nil && !os.IsNotExist(err) {
			logger.Warnf("[RATING] cannot remove lock file: %v", err)
		}
	}
}

// Acquire takes the lock for the calling process: exclusive-create plus a
// non-blocking flock, then PID and start time written. Both failures mean
// another instance won the race.
func (l *Lock) Acquire() (release func(), err error) {
	f, err := os.OpenFile(l.LockFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lock file exists: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock file is held: %w", err)
	}

	fmt.Fprintf(f, "%d\n%d\n", os.Getpid(), time.Now().Unix())
	f.Sync()

	return func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		os.Remove(l.LockFile)
	}, nil
}
