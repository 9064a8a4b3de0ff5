package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultDBPath(), cfg.DBPath)
	assert.Equal(t, "127.0.0.1:7467", cfg.Listen)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 360*time.Second, cfg.EventTTL)
	assert.Equal(t, time.Hour, cfg.DefaultTimer)
	assert.Equal(t, "@every 30s", cfg.Sweep.Schedule)
	assert.False(t, cfg.Sweep.Enabled)
}

func TestParse_YAML(t *testing.T) {
	data := []byte(`
db_path: /tmp/q.db
listen: 0.0.0.0:9000
log_level: debug
log_format: json
event_ttl: 90s
default_timer: 15m
sweep:
  enabled: true
  schedule: "*/5 * * * *"
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/q.db", cfg.DBPath)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 90*time.Second, cfg.EventTTL)
	assert.Equal(t, 15*time.Minute, cfg.DefaultTimer)
	assert.True(t, cfg.Sweep.Enabled)
	assert.Equal(t, "*/5 * * * *", cfg.Sweep.Schedule)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("QUESTLINE_LISTEN", "127.0.0.1:1234")
	t.Setenv("QUESTLINE_EVENT_TTL", "2m")
	t.Setenv("QUESTLINE_SWEEP_ENABLED", "true")

	cfg, err := Parse([]byte("listen: 127.0.0.1:9999\nevent_ttl: 10s\n"))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:1234", cfg.Listen)
	assert.Equal(t, 2*time.Minute, cfg.EventTTL)
	assert.True(t, cfg.Sweep.Enabled)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "bad level", yaml: "log_level: loud", want: "log_level"},
		{name: "bad format", yaml: "log_format: xml", want: "log_format"},
		{name: "bad schedule", yaml: "sweep:\n  schedule: every now and then", want: "sweep.schedule"},
		{name: "negative ttl", yaml: "event_ttl: -1s", want: "event_ttl"},
		{name: "bad yaml", yaml: "listen: [", want: "config: parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7467", cfg.Listen)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: 127.0.0.1:8000\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8000", cfg.Listen)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"

	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "quest_id", "q1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.Contains(out, `"quest_id":"q1"`), out)
}
