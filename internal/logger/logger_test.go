package logger

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func restore(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		Setup("debug", "console", "")
		log.SetOutput(os.Stderr)
	})
}

func TestSetupLevelFiltering(t *testing.T) {
	restore(t)
	dir := t.TempDir()

	if err := Setup("warn", "file", dir); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	Debugf("[TEST] below threshold")
	Infof("[TEST] still below")
	Warnf("[TEST] warn kept")
	Errorf("[TEST] error kept")

	raw, err := os.ReadFile(filepath.Join(dir, "mgxhub.log"))
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	got := string(raw)

	if strings.Contains(got, "below") {
		t.Errorf("suppressed levels leaked:\n%s", got)
	}
	if !strings.Contains(got, "WARN [TEST] warn kept") || !strings.Contains(got, "ERROR [TEST] error kept") {
		t.Errorf("kept levels missing:\n%s", got)
	}
}

func TestSetupRetargetsDefaultLogger(t *testing.T) {
	restore(t)
	dir := t.TempDir()

	if err := Setup("debug", "file", dir); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	log.Printf("[TEST] via default logger")

	raw, err := os.ReadFile(filepath.Join(dir, "mgxhub.log"))
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	if !strings.Contains(string(raw), "via default logger") {
		t.Errorf("default logger did not follow the destination:\n%s", raw)
	}
}

func TestSetupConsoleNeedsNoDir(t *testing.T) {
	restore(t)

	if err := Setup("info", "console", ""); err != nil {
		t.Errorf("console setup failed: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]int{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"Warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelDebug,
		"":        LevelDebug,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %d, want %d", in, got, want)
		}
	}
}
