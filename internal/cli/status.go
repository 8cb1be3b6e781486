package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tasklift/autopilot/internal/auth"
	"github.com/tasklift/autopilot/internal/db"
	"github.com/tasklift/autopilot/internal/monitor"
	"github.com/tasklift/autopilot/internal/usage"
	"github.com/tasklift/autopilot/internal/vault"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current usage and active profile",
	Long:  "Fetch one usage snapshot for the active credential profile and print it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg := GetConfig()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		mon := monitor.New(cfg.Monitor, cfg.DataDir, monitor.Deps{
			Fetcher:    usage.NewClient(),
			Tokens:     auth.ResolveToken,
			Profiles:   vault.NewManager(cfg.VaultPath),
			Aggregator: usage.NewAggregator(usage.NewEstimator()),
			Calibrator: usage.NewCalibrator(db.NewCalibrationRepository(database)),
		})

		mon.ForceRefresh(ctx)
		snapshot := mon.Snapshot()
		if snapshot == nil {
			return fmt.Errorf("no usage snapshot available (is a profile active? run 'autopilot profiles backup' first)")
		}

		if IsJSONOutput() {
			return WriteOutput(os.Stdout, snapshot)
		}

		source := "authoritative"
		if snapshot.Estimated {
			source = "estimated"
		}

		fmt.Fprintf(os.Stdout, "Profile: %s\n", snapshot.ProfileName)
		fmt.Fprintf(os.Stdout, "Source:  %s\n\n", source)

		rows := [][]string{
			{
				"session",
				fmt.Sprintf("%.1f%%", snapshot.SessionPercent),
				usageBadge(snapshot.SessionPercent, cfg.Monitor.SessionThreshold),
				orDash(snapshot.SessionResetsIn),
			},
			{
				"weekly",
				fmt.Sprintf("%.1f%%", snapshot.WeeklyPercent),
				usageBadge(snapshot.WeeklyPercent, cfg.Monitor.WeeklyThreshold),
				orDash(snapshot.WeeklyResetsIn),
			},
		}
		return writeTable(os.Stdout, []string{"WINDOW", "USED", "STATUS", "RESETS IN"}, rows)
	},
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
