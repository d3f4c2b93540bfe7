package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
)

func TestNewLogger_ComponentAndLevel(t *testing.T) {
	var buf bytes.Buffer
	lg := NewLogger(Options{Level: "debug", Writer: &buf, Component: "ptyshell"})
	lg.Debug("hello", "k", "v")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log output is not JSON: %v raw=%q", err, buf.String())
	}
	if record["component"] != "ptyshell" {
		t.Fatalf("expected component attribute, got %#v", record)
	}
	if record["msg"] != "hello" || record["k"] != "v" {
		t.Fatalf("unexpected record: %#v", record)
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	cases := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.level); got != tc.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tc.level, got, tc.want)
		}
	}
}

func TestNewLogger_NilWriterDiscards(t *testing.T) {
	lg := NewLogger(Options{})
	// Must not panic or write to stderr.
	lg.Info("dropped")
}

func TestOpenLogFile_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "llamsh.log")
	f, err := OpenLogFile(path)
	if err != nil {
		t.Fatalf("OpenLogFile failed: %v", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString("line\n"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}
