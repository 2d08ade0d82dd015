package ingest

import (
	"context"
	"os"
	"path/filepath"
	"syscall"

	"github.com/aocrec/mgxhub/internal/logger"
)

// Lock path electing the single watcher instance per host.
const watcherLockFile = "/tmp/mgxhub_record_watcher.lock"

const defaultWatcherWorkers = 4

// Watcher owns the ingest queue drain. Exactly one instance per host wins
// the flock election; later attempts no-op.
type Watcher struct {
	proc     *Processor
	queue    *Queue
	workers  int
	lockFile *os.File
}

// StartWatcher elects a watcher via an exclusive file lock, repopulates the
// queue from any files left in the ingest root (crash recovery) and starts
// the worker pool. Returns nil when another instance already holds the lock.
func StartWatcher(ctx context.Context, proc *Processor, workers int) *Watcher {
	f, err := os.OpenFile(watcherLockFile, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Errorf("[Watcher] cannot open lock file: %v", err)
		return nil
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		logger.Infof("[Watcher] another watcher instance is running")
		f.Close()
		return nil
	}

	if workers <= 0 {
		workers = defaultWatcherWorkers
	}

	w := &Watcher{proc: proc, queue: proc.Queue, workers: workers, lockFile: f}

	if err := os.MkdirAll(proc.Cfg.UploadDir, 0o755); err != nil {
		logger.Errorf("[Watcher] cannot create upload dir: %v", err)
	}
	Scan(proc.Cfg.UploadDir, w.queue)

	for i := 0; i < w.workers; i++ {
		go w.drain(ctx)
	}
	logger.Infof("[Watcher] Monitoring queue with %d workers...", w.workers)

	return w
}

func (w *Watcher) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-w.queue.ch:
			if !ok {
				return
			}
			w.processOne(path)
		}
	}
}

// processOne must never deadlock on a bad file: any failure is logged and
// the task considered done.
func (w *Watcher) processOne(path string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("[Watcher] Error [%s]: %v", path, r)
		}
	}()

	result := w.proc.ProcessPath(path, Options{SyncProc: true, S3Replace: false, Cleanup: true, Source: "scan"})
	logger.Debugf("[Watcher] %s: %s", path, result.Status)

	// The processing tasks normally consume the file; tolerate both a
	// leftover and a concurrent removal.
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		os.Remove(path)
	}
	parent := filepath.Dir(path)
	if entries, err := os.ReadDir(parent); err == nil && len(entries) == 0 {
		os.Remove(parent)
	}
}

// Unlock releases the watcher election lock. Only used by tests; the lock
// naturally dies with the process.
func (w *Watcher) Unlock() {
	if w.lockFile != nil {
		syscall.Flock(int(w.lockFile.Fd()), syscall.LOCK_UN)
		w.lockFile.Close()
		w.lockFile = nil
	}
}
