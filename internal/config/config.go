// Package config loads Autopilot configuration from file, environment, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level Autopilot configuration.
type Config struct {
	// Log configures logging output.
	Log LogConfig `mapstructure:"log"`

	// DataDir is the root of the agent session log tree (newline-
	// delimited JSON files, one usage event per line).
	DataDir string `mapstructure:"data_dir"`

	// VaultPath is where credential profiles are stored.
	VaultPath string `mapstructure:"vault_path"`

	// DBPath is the SQLite database location.
	DBPath string `mapstructure:"db_path"`

	// Monitor configures the usage monitor.
	Monitor MonitorConfig `mapstructure:"monitor"`

	// Worker configures how worker processes are invoked.
	Worker WorkerConfig `mapstructure:"worker"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the minimum level ("debug", "info", "warn", "error").
	Level string `mapstructure:"level"`

	// Format is "console" or "json".
	Format string `mapstructure:"format"`
}

// MonitorConfig configures the usage monitor and failover thresholds.
type MonitorConfig struct {
	// Interval is the polling interval.
	Interval time.Duration `mapstructure:"interval"`

	// SessionWindow is the short rate-limit window.
	SessionWindow time.Duration `mapstructure:"session_window"`

	// WeeklyWindow is the long rate-limit window.
	WeeklyWindow time.Duration `mapstructure:"weekly_window"`

	// SessionThreshold is the session-window percentage at or above
	// which a proactive swap is attempted.
	SessionThreshold float64 `mapstructure:"session_threshold"`

	// WeeklyThreshold is the weekly-window swap threshold.
	WeeklyThreshold float64 `mapstructure:"weekly_threshold"`

	// ProactiveSwapEnabled enables threshold-driven credential swaps.
	ProactiveSwapEnabled bool `mapstructure:"proactive_swap_enabled"`
}

// WorkerConfig configures worker process invocation.
type WorkerConfig struct {
	// Command is the worker executable.
	Command string `mapstructure:"command"`

	// RestartDelay is how long to wait after killing a worker before
	// respawning it, allowing OS-level cleanup.
	RestartDelay time.Duration `mapstructure:"restart_delay"`

	// CleanupGrace is how long an exited task's context is retained so
	// a pending restart can still claim it.
	CleanupGrace time.Duration `mapstructure:"cleanup_grace"`
}

// Default returns the default configuration.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		DataDir:   filepath.Join(home, ".claude", "projects"),
		VaultPath: filepath.Join(home, ".config", "autopilot", "vault"),
		DBPath:    filepath.Join(home, ".config", "autopilot", "autopilot.db"),
		Monitor: MonitorConfig{
			Interval:             10 * time.Second,
			SessionWindow:        5 * time.Hour,
			WeeklyWindow:         7 * 24 * time.Hour,
			SessionThreshold:     90,
			WeeklyThreshold:      90,
			ProactiveSwapEnabled: true,
		},
		Worker: WorkerConfig{
			Command:      "autopilot-worker",
			RestartDelay: 500 * time.Millisecond,
			CleanupGrace: 1 * time.Second,
		},
	}
}

// Load reads configuration from the given file (or the default search
// paths when path is empty), layered over Default() with AUTOPILOT_*
// environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults := Default()
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("data_dir", defaults.DataDir)
	v.SetDefault("vault_path", defaults.VaultPath)
	v.SetDefault("db_path", defaults.DBPath)
	v.SetDefault("monitor.interval", defaults.Monitor.Interval)
	v.SetDefault("monitor.session_window", defaults.Monitor.SessionWindow)
	v.SetDefault("monitor.weekly_window", defaults.Monitor.WeeklyWindow)
	v.SetDefault("monitor.session_threshold", defaults.Monitor.SessionThreshold)
	v.SetDefault("monitor.weekly_threshold", defaults.Monitor.WeeklyThreshold)
	v.SetDefault("monitor.proactive_swap_enabled", defaults.Monitor.ProactiveSwapEnabled)
	v.SetDefault("worker.command", defaults.Worker.Command)
	v.SetDefault("worker.restart_delay", defaults.Worker.RestartDelay)
	v.SetDefault("worker.cleanup_grace", defaults.Worker.CleanupGrace)

	v.SetEnvPrefix("AUTOPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		if configDir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(configDir, "autopilot"))
		}
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("failed to read config: %w", err)
			}
			// No config file is fine; defaults and env apply.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the loaded configuration for unusable values.
func (c *Config) Validate() error {
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive")
	}
	if c.Monitor.SessionWindow <= 0 || c.Monitor.WeeklyWindow <= 0 {
		return fmt.Errorf("monitor windows must be positive")
	}
	if c.Monitor.SessionWindow >= c.Monitor.WeeklyWindow {
		return fmt.Errorf("monitor.session_window must be shorter than monitor.weekly_window")
	}
	if c.Monitor.SessionThreshold <= 0 || c.Monitor.SessionThreshold > 100 {
		return fmt.Errorf("monitor.session_threshold must be in (0, 100]")
	}
	if c.Monitor.WeeklyThreshold <= 0 || c.Monitor.WeeklyThreshold > 100 {
		return fmt.Errorf("monitor.weekly_threshold must be in (0, 100]")
	}
	if c.Worker.Command == "" {
		return fmt.Errorf("worker.command is required")
	}
	return nil
}
