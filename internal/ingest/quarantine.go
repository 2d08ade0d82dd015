package ingest

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

const prefixLetters = "abcdefghijklmnopqrstuvwxyz"

// MoveToError relocates a rejected file into errorDir. On a name collision
// the file gains a random 3-letter prefix, retried until free.
func MoveToError(errorDir, filePath string) (string, error) {
	if err := os.MkdirAll(errorDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create error dir: %w", err)
	}

	fileName := filepath.Base(filePath)
	newName := fileName
	for {
		if _, err := os.Stat(filepath.Join(errorDir, newName)); os.IsNotExist(err) {
			break
		}
		prefix := make([]byte, 3)
		for i := range prefix {
			prefix[i] = prefixLetters[rand.Intn(len(prefixLetters))]
		}
		newName = fmt.Sprintf("%s_%s", prefix, fileName)
	}

	newPath := filepath.Join(errorDir, newName)
	if err := os.Rename(filePath, newPath); err != nil {
		// Rename fails across filesystems; fall back to copy+remove.
		if err := copyFile(filePath, newPath); err != nil {
			return "", err
		}
		os.Remove(filePath)
	}
	return newPath, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
