// Package config provides YAML-based configuration loading for questline,
// with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level questline configuration.
type Config struct {
	DBPath       string        `yaml:"db_path" env:"QUESTLINE_DB_PATH"`
	Listen       string        `yaml:"listen" env:"QUESTLINE_LISTEN"`
	LogLevel     string        `yaml:"log_level" env:"QUESTLINE_LOG_LEVEL"`
	LogFormat    string        `yaml:"log_format" env:"QUESTLINE_LOG_FORMAT"`
	EventTTL     time.Duration `yaml:"event_ttl" env:"QUESTLINE_EVENT_TTL"`
	DefaultTimer time.Duration `yaml:"default_timer" env:"QUESTLINE_DEFAULT_TIMER"`
	Sweep        SweepConfig   `yaml:"sweep" envPrefix:"QUESTLINE_SWEEP_"`
}

// SweepConfig controls the background job that fails overdue timer quests.
type SweepConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Schedule string `yaml:"schedule" env:"SCHEDULE"`
}

// DefaultDBPath returns ~/.questline/quest.db.
func DefaultDBPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".questline", "quest.db")
}

// DefaultPath returns ~/.questline/config.yaml.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".questline", "config.yaml")
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file from path, applies environment overrides
// and returns a validated Config. A missing file is not an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		data = nil
	} else if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes, applies environment overrides and defaults
// and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath()
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:7467"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.EventTTL == 0 {
		c.EventTTL = 360 * time.Second
	}
	if c.DefaultTimer == 0 {
		c.DefaultTimer = time.Hour
	}
	if c.Sweep.Schedule == "" {
		c.Sweep.Schedule = "@every 30s"
	}
}

// validate checks that all fields are consistent.
func (c *Config) validate() error {
	var errs []string
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err.Error())
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("log_format must be text or json, got %q", c.LogFormat))
	}
	if c.EventTTL < 0 {
		errs = append(errs, "event_ttl must be positive")
	}
	if c.DefaultTimer < 0 {
		errs = append(errs, "default_timer must be positive")
	}
	if _, err := cron.ParseStandard(c.Sweep.Schedule); err != nil {
		errs = append(errs, fmt.Sprintf("sweep.schedule: %v", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level: unknown level %q", s)
	}
	return level, nil
}

// Logger builds the structured logger described by the configuration.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
