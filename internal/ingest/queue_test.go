package ingest

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestQueuePutTake(t *testing.T) {
	q := NewQueue(4)
	q.Put("a")
	q.Put("b")

	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}
	if path, ok := q.Take(); !ok || path != "a" {
		t.Errorf("Take = %q %v", path, ok)
	}
	if path, ok := q.Take(); !ok || path != "b" {
		t.Errorf("Take = %q %v", path, ok)
	}

	q.Close()
	if _, ok := q.Take(); ok {
		t.Error("Take on closed empty queue must report !ok")
	}
}

func TestScanEnqueuesFilesAndPrunesEmptyDirs(t *testing.T) {
	root := t.TempDir()

	mustWrite := func(rel string) string {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	want := []string{
		mustWrite("top.mgx"),
		mustWrite("sub/nested.mgz"),
	}
	empty := filepath.Join(root, "empty", "deeper")
	if err := os.MkdirAll(empty, 0o755); err != nil {
		t.Fatal(err)
	}

	q := NewQueue(16)
	Scan(root, q)

	var got []string
	for q.Len() > 0 {
		p, _ := q.Take()
		got = append(got, p)
	}
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("queued %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("queued[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if _, err := os.Stat(filepath.Join(root, "empty")); !os.IsNotExist(err) {
		t.Error("empty directory chain should have been pruned")
	}
	if _, err := os.Stat(filepath.Join(root, "sub")); err != nil {
		t.Error("directory with files must survive the scan")
	}
}
