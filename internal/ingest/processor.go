package ingest

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/aocrec/mgxhub/internal/config"
	"github.com/aocrec/mgxhub/internal/logger"
	"github.com/aocrec/mgxhub/internal/minimap"
	"github.com/aocrec/mgxhub/internal/parser"
	"github.com/aocrec/mgxhub/internal/rating"
	"github.com/aocrec/mgxhub/internal/storage"
)

// RecordExts are the record file types accepted for parsing, keyed by
// lowercased extension without the dot.
var RecordExts = map[string]bool{
	"mgx": true, "mgx2": true, "mgz": true, "mgl": true,
	"msx": true, "msx2": true, "aoe2record": true,
}

// Synchronous processing waits at most this long for the I/O task group.
const syncTaskTimeout = 100 * time.Second

// Result is the per-file outcome returned to API callers.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	GUID    string `json:"guid,omitempty"`
}

// Options control one processing pass.
type Options struct {
	// SyncProc waits for the I/O task group instead of detaching.
	SyncProc bool
	// S3Replace overwrites an already stored record object.
	S3Replace bool
	// Cleanup removes the source file after successful processing.
	Cleanup bool
	// Source tags the file rows ("web", "bot", "scan", ...).
	Source string
}

// Processor orchestrates parse, persist, upload and minimap derivation for
// one file at a time. It is safe for concurrent use by the worker pool; each
// call owns its own transaction scope on the shared pool.
type Processor struct {
	DB    *sqlx.DB
	Store *storage.S3Adapter // nil disables object-store tasks
	Cfg   *config.Config
	Lock  *rating.Lock
	Queue *Queue
}

// ProcessUpload writes a buffered upload into a fresh tmp subdirectory,
// coerces its mtime to lastmod (clamped to the valid game-time range), and
// runs the regular path processing on it.
func (p *Processor) ProcessUpload(src io.Reader, filename, lastmod string, opts Options) *Result {
	tmp := TmpDirs{Root: p.Cfg.TmpDir, Prefix: p.Cfg.TmpPrefix}
	dir, err := tmp.Make()
	if err != nil {
		logger.Errorf("[Ingest] tmpdir failed: %v", err)
		return &Result{Status: "error", Message: "failed to create temp dir"}
	}

	dest := filepath.Join(dir, filepath.Base(filename))
	f, err := os.Create(dest)
	if err != nil {
		logger.Errorf("[Ingest] save upload failed: %v", err)
		return &Result{Status: "error", Message: "failed to save upload"}
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		logger.Errorf("[Ingest] save upload failed: %v", err)
		return &Result{Status: "error", Message: "failed to save upload"}
	}
	f.Close()

	mtime := DeriveGameTime(0, lastmod, time.Now())
	os.Chtimes(dest, mtime, mtime)
	logger.Debugf("[Ingest] upload saved to: %s", dest)

	return p.ProcessPath(dest, opts)
}

// ProcessPath dispatches one filesystem path: record files are parsed and
// persisted, archives extracted and their contents queued, directories
// recursed. Anything else is quarantined.
func (p *Processor) ProcessPath(path string, opts Options) *Result {
	info, err := os.Stat(path)
	if err != nil {
		return &Result{Status: "error", Message: fmt.Sprintf("cannot stat %s", path)}
	}

	if info.IsDir() {
		p.processDirectory(path, opts)
		if opts.Cleanup {
			os.Remove(path)
		}
		return &Result{Status: "success", Message: "directory was processed"}
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch {
	case RecordExts[ext]:
		logger.Debugf("[Ingest] Process: %s", path)
		return p.processRecord(path, opts)
	case ArchiveExts[ext]:
		logger.Debugf("[Ingest] Process(compressed): %s", path)
		return p.processArchive(path, info.Size(), opts)
	}

	p.quarantine(path)
	return &Result{Status: "invalid", Message: "unsupported file type"}
}

func (p *Processor) processDirectory(dir string, opts Options) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Errorf("[Ingest] read dir failed: %v", err)
		return
	}
	for _, e := range entries {
		sub := filepath.Join(dir, e.Name())
		p.ProcessPath(sub, opts)
	}
}

func (p *Processor) processRecord(path string, opts Options) *Result {
	parsed := parser.Parse(p.Cfg.ParserPath, path, "-b")

	parsed.RealFile = filepath.Base(path)
	if info, err := os.Stat(path); err == nil {
		parsed.RealSize = info.Size()
	}

	if !parsed.Parseable() {
		logger.Warnf("[Ingest] Invalid record: %s", path)
		p.quarantine(path)
		return &Result{Status: parsed.Status, Message: parsed.Message}
	}

	lastmod := ""
	if info, err := os.Stat(path); err == nil {
		lastmod = info.ModTime().Format("2006-01-02T15:04:05")
	}

	var wg sync.WaitGroup
	run := func(task func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task()
		}()
	}

	run(func() { p.saveToDB(parsed, lastmod, opts) })

	if p.Store != nil {
		run(func() { p.saveToS3(path, parsed, opts) })
		if parsed.Map != nil && parsed.Map.Base64 != "" && p.Cfg.MapDirS3 != "" {
			run(func() { p.saveMapS3(parsed) })
		}
	} else {
		// Without an object store the binary would be lost after cleanup;
		// park it in the error dir instead.
		p.quarantine(path)
	}

	if parsed.Map != nil && parsed.Map.Base64 != "" && p.Cfg.MapDir != "" {
		run(func() { p.saveMapLocal(parsed) })
	}

	if opts.SyncProc {
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(syncTaskTimeout):
			logger.Warnf("[Ingest] task group timeout: %s", path)
		}
	}

	return &Result{Status: parsed.Status, GUID: parsed.GUID}
}

func (p *Processor) processArchive(path string, size int64, opts Options) *Result {
	extract := func() *Result {
		tmp := TmpDirs{Root: p.Cfg.UploadDir, Prefix: p.Cfg.TmpPrefix}
		dir, err := tmp.Make()
		if err != nil {
			logger.Errorf("[Ingest] extract dir failed: %v", err)
			p.quarantine(path)
			return &Result{Status: "error", Message: "failed to create extraction dir"}
		}

		if err := ExtractArchive(path, dir); err != nil {
			logger.Errorf("[Ingest] extract failed: %v", err)
			os.RemoveAll(dir)
			p.quarantine(path)
			return &Result{Status: "invalid", Message: "failed to extract a compressed file"}
		}

		if opts.Cleanup {
			os.Remove(path)
		}
		if p.Queue != nil {
			Scan(dir, p.Queue)
		} else {
			p.processDirectory(dir, opts)
			os.Remove(dir)
		}
		return &Result{Status: "success", Message: "compressed file was scheduled for processing"}
	}

	if size > largeArchiveBytes {
		go extract()
		return &Result{Status: "success", Message: "compressed file was scheduled for processing"}
	}
	return extract()
}

func (p *Processor) saveToDB(parsed *parser.Result, lastmod string, opts Options) {
	status, guid := AddGame(p.DB, parsed, lastmod, opts.Source)
	logger.Debugf("[DB] Add: (%s, %s)", status, guid)
	if status == AddSuccess || status == AddUpdated {
		if p.Lock != nil {
			if err := p.Lock.StartCalc(true); err != nil {
				logger.Errorf("[RATING] schedule failed: %v", err)
			}
		}
	}
}

func (p *Processor) saveToS3(path string, parsed *parser.Result, opts Options) {
	if parsed.MD5 == "" || parsed.FileExt == "" || parsed.GUID == "" {
		logger.Warnf("[S3] Bad game meta: %s", path)
		p.quarantine(path)
		return
	}

	key := p.Cfg.S3RecordDir + parsed.MD5 + ".zip"
	ctx := context.Background()

	if p.Store.Exists(ctx, key) && !opts.S3Replace {
		p.cleanFile(path, opts)
		return
	}

	envelope, played, err := buildRecordEnvelope(path, parsed)
	if err != nil {
		logger.Errorf("[S3] pack failed for %s: %v", path, err)
		p.quarantine(path)
		return
	}
	defer os.Remove(envelope.Name())
	defer envelope.Close()

	version, matchup := envelopeLabels(parsed)
	err = p.Store.Put(ctx, key, envelope, map[string]string{
		"guid":    parsed.GUID,
		"md5":     parsed.MD5,
		"parser":  parsed.Parser,
		"played":  played,
		"version": version,
		"matchup": matchup,
	}, "application/zip")
	if err != nil {
		logger.Errorf("[S3] upload failed for %s: %v", path, err)
		p.quarantine(path)
		return
	}

	logger.Debugf("[S3] Uploaded: %s", key)
	p.cleanFile(path, opts)
}

func (p *Processor) saveMapLocal(parsed *parser.Result) {
	status, err := minimap.SaveLocal(p.Cfg.MapDir, parsed.GUID, parsed.Map.Base64)
	if err != nil {
		logger.Errorf("[Map] local save failed for %s: %v", parsed.GUID, err)
		return
	}
	logger.Debugf("[Map] %s: %s", parsed.GUID, status)
}

func (p *Processor) saveMapS3(parsed *parser.Result) {
	status, err := minimap.SaveS3(context.Background(), p.Store, p.Cfg.MapDirS3, parsed.GUID, parsed.Map.Base64)
	if err != nil {
		logger.Errorf("[Map] upload failed for %s: %v", parsed.GUID, err)
		return
	}
	logger.Debugf("[Map] %s: %s", parsed.GUID, status)
}

func (p *Processor) cleanFile(path string, opts Options) {
	if !opts.Cleanup {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Errorf("[Ingest] cleanup failed: %v", err)
	}
}

func (p *Processor) quarantine(path string) {
	newPath, err := MoveToError(p.Cfg.ErrorDir, path)
	if err != nil {
		logger.Errorf("[Ingest] quarantine failed for %s: %v", path, err)
		return
	}
	logger.Infof("[Ingest] quarantined: %s", newPath)
}

func envelopeLabels(parsed *parser.Result) (version, matchup string) {
	version, matchup = "UNKNOWN", "UNKNOWN"
	if parsed.Version != nil && parsed.Version.Code != "" {
		version = parsed.Version.Code
	}
	if parsed.Matchup != "" {
		matchup = parsed.Matchup
	}
	return version, matchup
}

// buildRecordEnvelope packs the record into a one-entry DEFLATE zip with an
// ASCII provenance comment, returned as an open temp file positioned at the
// start. The caller removes the temp file.
func buildRecordEnvelope(path string, parsed *parser.Result) (*os.File, string, error) {
	version, matchup := envelopeLabels(parsed)

	packedAt := time.Now().Format("2006-01-02 15:04:05")
	played := packedAt
	if parsed.GameTime > 0 {
		played = time.Unix(parsed.GameTime, 0).Format("2006-01-02 15:04:05")
	}

	tmpFile, err := os.CreateTemp("", "mgxpack_*.zip")
	if err != nil {
		return nil, "", err
	}

	zw := zip.NewWriter(tmpFile)
	entryName := fmt.Sprintf("%s_%s_%s%s", version, matchup, parsed.MD5[:4], parsed.FileExt)
	w, err := zw.Create(entryName)
	if err == nil {
		var src *os.File
		if src, err = os.Open(path); err == nil {
			_, err = io.Copy(w, src)
			src.Close()
		}
	}
	if err == nil {
		comment := fmt.Sprintf(`
Age of Empires II record

Version: %s
Matchup: %s

GUID: %s
MD5 : %s
(Maybe) Played at: %s

Collected by aocrec.com
Parsed by %s
Packed at %s
`, version, matchup, parsed.GUID, parsed.MD5, played, parsed.Parser, packedAt)
		err = zw.SetComment(comment)
	}
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		_, err = tmpFile.Seek(0, io.SeekStart)
	}
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return nil, "", err
	}

	return tmpFile, played, nil
}
