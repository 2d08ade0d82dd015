package ingest

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/aocrec/mgxhub/internal/logger"
)

// Queue is the process-wide bounded queue of filesystem paths awaiting
// ingest. Multiple producers (upload handler, archive extractor, startup
// scan) feed it; the watcher's worker pool drains it.
type Queue struct {
	ch chan string
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 4096
	}
	return &Queue{ch: make(chan string, capacity)}
}

// Put enqueues a path, blocking while the queue is full.
func (q *Queue) Put(path string) {
	q.ch <- path
}

// Take dequeues the next path; ok is false once the queue is closed and
// drained.
func (q *Queue) Take() (string, bool) {
	path, ok := <-q.ch
	return path, ok
}

func (q *Queue) Len() int {
	return len(q.ch)
}

func (q *Queue) Close() {
	close(q.ch)
}

// Scan walks dirpath bottom-up, enqueues every regular file and prunes
// directories left empty. Used for crash recovery at watcher startup and
// after archive extraction.
func Scan(dirpath string, q *Queue) {
	var dirs []string
	filepath.Walk(dirpath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if path != dirpath {
				dirs = append(dirs, path)
			}
			return nil
		}
		q.Put(path)
		return nil
	})

	// Deepest first, so empty chains collapse. Workers remove the files
	// later, so only already-empty directories vanish here.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, d := range dirs {
		if entries, err := os.ReadDir(d); err == nil && len(entries) == 0 {
			if err := os.Remove(d); err != nil {
				logger.Warnf("[Watcher] prune %s: %v", d, err)
			}
		}
	}
}
