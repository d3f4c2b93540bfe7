package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultPort  = 8080
	DefaultModel = "local-model"
)

// FileConfig is the TOML schema of ~/.config/llamsh/config.toml. Pointer
// fields distinguish "absent" from zero values so flag precedence works.
type FileConfig struct {
	BaseURL      *string  `toml:"base_url"`
	Port         *int     `toml:"port"`
	Model        *string  `toml:"model"`
	APIKey       *string  `toml:"api_key"`
	Temperature  *float64 `toml:"temperature"`
	SystemPrompt *string  `toml:"system_prompt"`
	Mood         *string  `toml:"mood"`
	LogLevel     *string  `toml:"log_level"`
}

// Config is the fully resolved runtime configuration.
type Config struct {
	BaseURL      string
	Model        string
	APIKey       string
	Temperature  *float64
	SystemPrompt string
	Mood         string
	LogLevel     string
	DBPath       string
	LogPath      string
}

// Flags carries CLI flag values; empty strings and nil mean unset.
type Flags struct {
	Port         int
	BaseURL      string
	Model        string
	APIKey       string
	Temperature  *float64
	SystemPrompt string
	Mood         string
	LogLevel     string
	DBPath       string
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "llamsh", "config.toml")
}

func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "llamsh.db"
	}
	return filepath.Join(home, ".local", "share", "llamsh", "history.db")
}

func DefaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "llamsh.log"
	}
	return filepath.Join(home, ".local", "share", "llamsh", "llamsh.log")
}

// LoadFile parses the TOML config file. A missing file is not an error.
func LoadFile(path string) (FileConfig, error) {
	var fc FileConfig
	if strings.TrimSpace(path) == "" {
		return fc, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fc, nil
		}
		return fc, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(raw, &fc); err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

// Resolve merges flags > config file > environment > defaults.
func Resolve(flags Flags, file FileConfig) Config {
	cfg := Config{
		Model:    DefaultModel,
		LogLevel: "info",
		DBPath:   DefaultDBPath(),
		LogPath:  DefaultLogPath(),
	}

	cfg.BaseURL = resolveString(flags.BaseURL, file.BaseURL, "")
	if cfg.BaseURL == "" {
		port := DefaultPort
		if file.Port != nil && *file.Port > 0 {
			port = *file.Port
		}
		if flags.Port > 0 {
			port = flags.Port
		}
		// A flagged or configured port is a request for a local server; an
		// empty base URL with the default port still allows discovery.
		if flags.Port > 0 || file.Port != nil {
			cfg.BaseURL = fmt.Sprintf("http://localhost:%d", port)
		}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	cfg.Model = resolveString(flags.Model, file.Model, DefaultModel)
	cfg.APIKey = resolveString(flags.APIKey, file.APIKey, os.Getenv("LLAMSH_API_KEY"))
	cfg.SystemPrompt = resolveString(flags.SystemPrompt, file.SystemPrompt, "")
	cfg.Mood = resolveString(flags.Mood, file.Mood, "")
	cfg.LogLevel = resolveString(flags.LogLevel, file.LogLevel, envOr("LLAMSH_LOG_LEVEL", "info"))
	if strings.TrimSpace(flags.DBPath) != "" {
		cfg.DBPath = flags.DBPath
	}

	if flags.Temperature != nil {
		cfg.Temperature = flags.Temperature
	} else if file.Temperature != nil {
		cfg.Temperature = file.Temperature
	}

	return cfg
}

func resolveString(flag string, file *string, fallback string) string {
	if strings.TrimSpace(flag) != "" {
		return strings.TrimSpace(flag)
	}
	if file != nil && strings.TrimSpace(*file) != "" {
		return strings.TrimSpace(*file)
	}
	return fallback
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
