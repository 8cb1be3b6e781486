package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 10*time.Second, cfg.Monitor.Interval)
	require.Equal(t, 5*time.Hour, cfg.Monitor.SessionWindow)
	require.Equal(t, 7*24*time.Hour, cfg.Monitor.WeeklyWindow)
	require.Equal(t, float64(90), cfg.Monitor.SessionThreshold)
	require.Equal(t, 500*time.Millisecond, cfg.Worker.RestartDelay)
	require.Equal(t, time.Second, cfg.Worker.CleanupGrace)
	require.True(t, cfg.Monitor.ProactiveSwapEnabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
monitor:
  interval: 30s
  session_threshold: 80
worker:
  command: my-worker
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, 30*time.Second, cfg.Monitor.Interval)
	require.Equal(t, float64(80), cfg.Monitor.SessionThreshold)
	require.Equal(t, "my-worker", cfg.Worker.Command)

	// Unset keys keep defaults.
	require.Equal(t, float64(90), cfg.Monitor.WeeklyThreshold)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.Monitor.Interval = 0 }},
		{"negative window", func(c *Config) { c.Monitor.SessionWindow = -time.Hour }},
		{"session not shorter than weekly", func(c *Config) { c.Monitor.SessionWindow = c.Monitor.WeeklyWindow }},
		{"threshold over 100", func(c *Config) { c.Monitor.SessionThreshold = 101 }},
		{"zero weekly threshold", func(c *Config) { c.Monitor.WeeklyThreshold = 0 }},
		{"empty worker command", func(c *Config) { c.Worker.Command = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
