package ingest

import (
	"os"
	"path/filepath"
	"strings"
)

// TmpDirs manages the per-request subdirectories of the temp root where
// uploads and extracted archives land before processing.
type TmpDirs struct {
	Root   string
	Prefix string
}

// Make creates a fresh prefixed subdirectory under the temp root.
func (t TmpDirs) Make() (string, error) {
	if err := os.MkdirAll(t.Root, 0o755); err != nil {
		return "", err
	}
	return os.MkdirTemp(t.Root, t.Prefix)
}

// List returns all prefixed subdirectories currently present.
func (t TmpDirs) List() ([]string, error) {
	entries, err := os.ReadDir(t.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), t.Prefix) {
			dirs = append(dirs, filepath.Join(t.Root, e.Name()))
		}
	}
	return dirs, nil
}

// Purge removes every prefixed subdirectory and its contents.
func (t TmpDirs) Purge() error {
	dirs, err := t.List()
	if err != nil {
		return err
	}
	for _, d := range dirs {
		if err := os.RemoveAll(d); err != nil {
			return err
		}
	}
	return nil
}
