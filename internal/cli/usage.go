package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tasklift/autopilot/internal/models"
	"github.com/tasklift/autopilot/internal/usage"
)

var usageDataDir string

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.Flags().StringVar(&usageDataDir, "data-dir", "", "session log directory (defaults to config)")
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show locally estimated usage per window",
	Long: "Aggregate the session log tree and print token and cost totals for\n" +
		"the session and weekly rate-limit windows.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		dataDir := usageDataDir
		if dataDir == "" {
			dataDir = cfg.DataDir
		}

		now := time.Now().UTC()
		aggregator := usage.NewAggregator(usage.NewEstimator())
		result := aggregator.AggregateDir(dataDir, now.Add(-cfg.Monitor.SessionWindow), now.Add(-cfg.Monitor.WeeklyWindow))

		if IsJSONOutput() {
			return WriteOutput(os.Stdout, result)
		}

		rows := [][]string{
			windowRow("session", result.Session),
			windowRow("weekly", result.Weekly),
		}
		if err := writeTable(os.Stdout, []string{"WINDOW", "EVENTS", "INPUT", "OUTPUT", "CACHE W", "CACHE R", "TOTAL", "EST COST"}, rows); err != nil {
			return err
		}

		if result.Stats.Skipped > 0 || result.Stats.Errors > 0 {
			fmt.Fprintf(os.Stdout, "\n%d records skipped, %d parse errors.\n", result.Stats.Skipped, result.Stats.Errors)
		}
		return nil
	},
}

func windowRow(name string, w models.AggregatedWindow) []string {
	return []string{
		name,
		fmt.Sprintf("%d", w.EventCount),
		fmt.Sprintf("%d", w.InputTokens),
		fmt.Sprintf("%d", w.OutputTokens),
		fmt.Sprintf("%d", w.CacheWriteTokens),
		fmt.Sprintf("%d", w.CacheReadTokens),
		fmt.Sprintf("%d", w.TotalTokens),
		fmt.Sprintf("$%.2f", w.CostUSD),
	}
}
