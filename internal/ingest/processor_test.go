package ingest

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/aocrec/mgxhub/internal/config"
)

// fakeRecordParser writes a shell script that ignores its arguments and
// prints the given stdout, standing in for the parser binary.
func fakeRecordParser(t *testing.T, stdout string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakeparser")
	script := "#!/bin/sh\ncat <<'PARSEROUT'\n" + stdout + "\nPARSEROUT\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func minimapBase64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

const testRecordGUID = "0123456789abcdef0123456789abcdef"

func goodParserJSON(t *testing.T) string {
	return fmt.Sprintf(`{
		"status": "good",
		"guid": %q,
		"md5": "aaaa0000bbbb1111cccc2222dddd3333",
		"fileext": ".mgx",
		"duration": 1800000,
		"matchup": "1v1",
		"version": {"code": "AOC10"},
		"map": {"nameEn": "Arabia", "base64": %q},
		"players": [
			{"slot": 1, "name": "Alpha", "isWinner": true, "mainOp": true},
			{"slot": 2, "name": "Beta", "mainOp": true}
		],
		"chat": [{"time": 1000, "msg": "glhf"}]
	}`, testRecordGUID, minimapBase64(t))
}

// newTestProcessor wires a processor against a throwaway database and temp
// dirs, with the parser replaced by a script emitting parserJSON. No object
// store, so processed records are parked in the error dir.
func newTestProcessor(t *testing.T, parserJSON string) *Processor {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		ParserPath:  fakeRecordParser(t, parserJSON),
		UploadDir:   filepath.Join(root, "upload"),
		TmpDir:      filepath.Join(root, "tmp"),
		ErrorDir:    filepath.Join(root, "error"),
		MapDir:      filepath.Join(root, "map"),
		TmpPrefix:   "tmp_",
		S3RecordDir: "records/",
	}
	for _, dir := range []string{cfg.UploadDir, cfg.TmpDir, cfg.ErrorDir, cfg.MapDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return &Processor{DB: openTestDB(t), Cfg: cfg}
}

func writeRecordFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("not a real record, parser is faked"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessRecordPersists(t *testing.T) {
	proc := newTestProcessor(t, goodParserJSON(t))
	path := writeRecordFile(t, proc.Cfg.UploadDir, "match.mgx")

	result := proc.ProcessPath(path, Options{SyncProc: true, Cleanup: true, Source: "scan"})
	if result.Status != "good" {
		t.Fatalf("status = %q: %s", result.Status, result.Message)
	}
	if result.GUID != testRecordGUID {
		t.Errorf("guid = %q", result.GUID)
	}

	var games, players, files, chats int
	proc.DB.Get(&games, `SELECT COUNT(*) FROM games`)
	proc.DB.Get(&players, `SELECT COUNT(*) FROM players`)
	proc.DB.Get(&files, `SELECT COUNT(*) FROM files`)
	proc.DB.Get(&chats, `SELECT COUNT(*) FROM chats`)
	if games != 1 || players != 2 || files != 1 || chats != 1 {
		t.Errorf("rows = games %d players %d files %d chats %d", games, players, files, chats)
	}

	var source string
	proc.DB.Get(&source, `SELECT source FROM files`)
	if source != "scan" {
		t.Errorf("file source = %q, want scan", source)
	}

	if _, err := os.Stat(filepath.Join(proc.Cfg.MapDir, testRecordGUID+".png")); err != nil {
		t.Errorf("minimap not written: %v", err)
	}

	// Without an object store the binary is parked in the error dir
	// instead of being discarded.
	if _, err := os.Stat(filepath.Join(proc.Cfg.ErrorDir, "match.mgx")); err != nil {
		t.Errorf("record not parked in error dir: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("record still in upload dir")
	}
}

func TestProcessRecordParseFailureQuarantines(t *testing.T) {
	proc := newTestProcessor(t, "segmentation fault")
	path := writeRecordFile(t, proc.Cfg.UploadDir, "broken.mgx")

	result := proc.ProcessPath(path, Options{SyncProc: true, Cleanup: true, Source: "scan"})
	if result.Status != "error" {
		t.Errorf("status = %q, want error", result.Status)
	}

	var games int
	proc.DB.Get(&games, `SELECT COUNT(*) FROM games`)
	if games != 0 {
		t.Errorf("broken record persisted %d games", games)
	}
	if _, err := os.Stat(filepath.Join(proc.Cfg.ErrorDir, "broken.mgx")); err != nil {
		t.Errorf("broken record not quarantined: %v", err)
	}
}

func TestProcessPathUnsupportedQuarantines(t *testing.T) {
	proc := newTestProcessor(t, goodParserJSON(t))
	path := writeRecordFile(t, proc.Cfg.UploadDir, "notes.txt")

	result := proc.ProcessPath(path, Options{SyncProc: true, Source: "scan"})
	if result.Status != "invalid" {
		t.Errorf("status = %q, want invalid", result.Status)
	}
	if _, err := os.Stat(filepath.Join(proc.Cfg.ErrorDir, "notes.txt")); err != nil {
		t.Errorf("unsupported file not quarantined: %v", err)
	}
}

func TestProcessPathDirectory(t *testing.T) {
	proc := newTestProcessor(t, goodParserJSON(t))
	dir := filepath.Join(proc.Cfg.UploadDir, "batch")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeRecordFile(t, dir, "match.mgx")

	result := proc.ProcessPath(dir, Options{SyncProc: true, Cleanup: true, Source: "scan"})
	if result.Status != "success" {
		t.Fatalf("status = %q", result.Status)
	}

	var games int
	proc.DB.Get(&games, `SELECT COUNT(*) FROM games`)
	if games != 1 {
		t.Errorf("games = %d, want 1", games)
	}
	// The record moved out, leaving the directory empty and removable.
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("emptied directory not cleaned up")
	}
}

func TestProcessArchiveFeedsQueue(t *testing.T) {
	proc := newTestProcessor(t, goodParserJSON(t))
	proc.Queue = NewQueue(8)

	archive := filepath.Join(proc.Cfg.UploadDir, "batch.zip")
	writeZip(t, archive, map[string]string{"inner.mgx": "record payload"})

	result := proc.ProcessPath(archive, Options{SyncProc: true, Cleanup: true, Source: "scan"})
	if result.Status != "success" {
		t.Fatalf("status = %q: %s", result.Status, result.Message)
	}

	if proc.Queue.Len() != 1 {
		t.Fatalf("queue len = %d, want 1", proc.Queue.Len())
	}
	queued, ok := proc.Queue.Take()
	if !ok || filepath.Base(queued) != "inner.mgx" {
		t.Errorf("queued = %q, %v", queued, ok)
	}
	if _, err := os.Stat(queued); err != nil {
		t.Errorf("extracted file missing: %v", err)
	}
	if _, err := os.Stat(archive); !os.IsNotExist(err) {
		t.Error("archive not removed after extraction")
	}
}
