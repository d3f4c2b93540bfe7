package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile_MissingIsEmpty(t *testing.T) {
	fc, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if fc.BaseURL != nil || fc.Model != nil {
		t.Fatalf("expected empty config, got %+v", fc)
	}
}

func TestLoadFile_ParsesFields(t *testing.T) {
	path := writeConfig(t, `
base_url = "http://example:9999"
model = "qwen"
temperature = 0.2
mood = "pirate"
`)
	fc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if fc.BaseURL == nil || *fc.BaseURL != "http://example:9999" {
		t.Fatalf("base_url not parsed: %+v", fc)
	}
	if fc.Temperature == nil || *fc.Temperature != 0.2 {
		t.Fatalf("temperature not parsed: %+v", fc)
	}
	if fc.Mood == nil || *fc.Mood != "pirate" {
		t.Fatalf("mood not parsed: %+v", fc)
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	path := writeConfig(t, "= not toml at all [")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestResolve_FlagBeatsFileBeatsDefault(t *testing.T) {
	fileModel := "file-model"
	fileURL := "http://file:1"
	file := FileConfig{Model: &fileModel, BaseURL: &fileURL}

	cfg := Resolve(Flags{Model: "flag-model"}, file)
	if cfg.Model != "flag-model" {
		t.Fatalf("flag should win, got %q", cfg.Model)
	}
	if cfg.BaseURL != "http://file:1" {
		t.Fatalf("file base_url should apply, got %q", cfg.BaseURL)
	}

	cfg = Resolve(Flags{}, FileConfig{})
	if cfg.Model != DefaultModel {
		t.Fatalf("default model expected, got %q", cfg.Model)
	}
	if cfg.BaseURL != "" {
		t.Fatalf("no base URL should resolve to empty (discovery), got %q", cfg.BaseURL)
	}
}

func TestResolve_PortShorthand(t *testing.T) {
	cfg := Resolve(Flags{Port: 11434}, FileConfig{})
	if cfg.BaseURL != "http://localhost:11434" {
		t.Fatalf("port shorthand broken: %q", cfg.BaseURL)
	}

	// Explicit base URL wins over port.
	cfg = Resolve(Flags{Port: 11434, BaseURL: "http://other:1/"}, FileConfig{})
	if cfg.BaseURL != "http://other:1" {
		t.Fatalf("base URL should win and be trimmed: %q", cfg.BaseURL)
	}
}

func TestResolve_Temperature(t *testing.T) {
	flagTemp := 0.7
	fileTemp := 0.1
	cfg := Resolve(Flags{Temperature: &flagTemp}, FileConfig{Temperature: &fileTemp})
	if cfg.Temperature == nil || *cfg.Temperature != 0.7 {
		t.Fatalf("flag temperature should win: %+v", cfg.Temperature)
	}
	cfg = Resolve(Flags{}, FileConfig{Temperature: &fileTemp})
	if cfg.Temperature == nil || *cfg.Temperature != 0.1 {
		t.Fatalf("file temperature should apply: %+v", cfg.Temperature)
	}
	cfg = Resolve(Flags{}, FileConfig{})
	if cfg.Temperature != nil {
		t.Fatalf("unset temperature should stay nil: %+v", cfg.Temperature)
	}
}
