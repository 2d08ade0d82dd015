// Package logger wraps the standard log package with level filtering and an
// optional file destination. Messages below the configured level are dropped.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu       sync.RWMutex
	minLevel = LevelDebug
	out      = log.New(os.Stderr, "", log.LstdFlags)
)

// Setup configures the process-wide logger. dest is "console" or a path to a
// log directory; anything but "console" switches output to mgxhub.log inside
// that directory. The stdlib default logger is retargeted to the same
// destination so stray log.Printf calls and log.Fatalf share it.
func Setup(level, dest, logDir string) error {
	w := io.Writer(os.Stderr)
	if dest != "" && dest != "console" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("failed to create log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(logDir, "mgxhub.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		w = f
	}

	mu.Lock()
	minLevel = parseLevel(level)
	out = log.New(w, "", log.LstdFlags)
	mu.Unlock()

	log.SetOutput(w)
	return nil
}

func parseLevel(s string) int {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	}
	return LevelDebug
}

func logf(level int, tag, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if level < minLevel {
		return
	}
	out.Printf(tag+" "+format, args...)
}

func Debugf(format string, args ...any) { logf(LevelDebug, "DEBUG", format, args...) }
func Infof(format string, args ...any)  { logf(LevelInfo, "INFO", format, args...) }
func Warnf(format string, args ...any)  { logf(LevelWarn, "WARN", format, args...) }
func Errorf(format string, args ...any) { logf(LevelError, "ERROR", format, args...) }

// Fatalf logs at error level and exits, regardless of the configured level.
func Fatalf(format string, args ...any) {
	mu.RLock()
	out.Printf("ERROR "+format, args...)
	mu.RUnlock()
	os.Exit(1)
}
