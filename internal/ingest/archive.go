package ingest

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"
)

// ArchiveExts are the archive types the extractor understands, keyed by
// lowercased extension without the dot.
var ArchiveExts = map[string]bool{"zip": true, "rar": true, "7z": true}

// Archives above this size are extracted on a background worker.
const largeArchiveBytes = 2 << 20

// ExtractArchive decompresses the archive at path into destDir. destDir is
// expected to be a fresh subdirectory of the ingest root so that extracted
// files become visible to the queue scan.
func ExtractArchive(path, destDir string) error {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "zip":
		return extractZip(path, destDir)
	case "rar":
		return extractRar(path, destDir)
	case "7z":
		return extract7z(path, destDir)
	}
	return fmt.Errorf("unsupported archive type: %s", path)
}

// entryPath rejects entries that would escape destDir.
func entryPath(destDir, name string) (string, error) {
	p := filepath.Join(destDir, filepath.Clean("/"+name))
	if !strings.HasPrefix(p, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry escapes destination: %s", name)
	}
	return p, nil
}

func writeEntry(dest string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}

func extractZip(path, destDir string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		dest, err := entryPath(destDir, entry.Name)
		if err != nil {
			return err
		}
		rc, err := entry.Open()
		if err != nil {
			return fmt.Errorf("failed to open zip entry %s: %w", entry.Name, err)
		}
		err = writeEntry(dest, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractRar(path, destDir string) error {
	rr, err := rardecode.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open rar: %w", err)
	}
	defer rr.Close()

	for {
		hdr, err := rr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read rar entry: %w", err)
		}
		if hdr.IsDir {
			continue
		}
		dest, err := entryPath(destDir, hdr.Name)
		if err != nil {
			return err
		}
		if err := writeEntry(dest, rr); err != nil {
			return err
		}
	}
}

func extract7z(path, destDir string) error {
	sr, err := sevenzip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open 7z: %w", err)
	}
	defer sr.Close()

	for _, entry := range sr.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		dest, err := entryPath(destDir, entry.Name)
		if err != nil {
			return err
		}
		rc, err := entry.Open()
		if err != nil {
			return fmt.Errorf("failed to open 7z entry %s: %w", entry.Name, err)
		}
		err = writeEntry(dest, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
