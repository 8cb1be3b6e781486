// Package cli implements the autopilot command-line interface.
package cli

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"github.com/tasklift/autopilot/internal/config"
	"github.com/tasklift/autopilot/internal/db"
	"github.com/tasklift/autopilot/internal/logging"
)

var (
	configPath     string
	nonInteractive bool
	outputJSON     bool
	logLevel       string

	cfgOnce sync.Once
	cfg     config.Config
	cfgErr  error
)

var rootCmd = &cobra.Command{
	Use:   "autopilot",
	Short: "Autonomous task runner with usage-aware credential failover",
	Long: "Autopilot launches coding-agent worker processes, tracks API usage\n" +
		"against rate-limit windows, and swaps credential profiles before\n" +
		"limits are hit so running tasks keep going.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		level := loaded.Log.Level
		if logLevel != "" {
			level = logLevel
		}
		logging.Setup(level, loaded.Log.Format)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt; fail when input would be required")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "emit machine-readable JSON output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration once per process and caches the result.
func loadConfig() (config.Config, error) {
	cfgOnce.Do(func() {
		cfg, cfgErr = config.Load(configPath)
		if cfgErr != nil {
			return
		}
		cfgErr = cfg.Validate()
	})
	return cfg, cfgErr
}

// GetConfig returns the loaded configuration. Only valid after
// PersistentPreRunE has run.
func GetConfig() config.Config {
	loaded, _ := loadConfig()
	return loaded
}

func openDatabase() (*db.DB, error) {
	loaded, err := loadConfig()
	if err != nil {
		return nil, err
	}
	database, err := db.Open(loaded.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}
