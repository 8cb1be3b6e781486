package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tasklift/autopilot/internal/auth"
	"github.com/tasklift/autopilot/internal/bus"
	"github.com/tasklift/autopilot/internal/db"
	"github.com/tasklift/autopilot/internal/models"
	"github.com/tasklift/autopilot/internal/monitor"
	"github.com/tasklift/autopilot/internal/orchestrator"
	"github.com/tasklift/autopilot/internal/usage"
	"github.com/tasklift/autopilot/internal/vault"
)

func init() {
	rootCmd.AddCommand(monitorCmd)
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the usage monitor",
	Long: "Poll usage on an interval, swap credential profiles proactively when\n" +
		"a rate-limit threshold is breached, and restart active tasks under the\n" +
		"new profile. Runs until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg := GetConfig()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		eventRepo := db.NewEventRepository(database)
		snapshotRepo := db.NewSnapshotRepository(database)
		calibrator := usage.NewCalibrator(db.NewCalibrationRepository(database))
		aggregator := usage.NewAggregator(usage.NewEstimator())
		profiles := vault.NewManager(cfg.VaultPath)
		eventBus := bus.New()

		orch := orchestrator.NewService(cfg.Worker, profiles, eventBus, eventRepo)
		defer orch.Shutdown()

		mon := monitor.New(cfg.Monitor, cfg.DataDir, monitor.Deps{
			Fetcher:    usage.NewClient(),
			Tokens:     auth.ResolveToken,
			Profiles:   profiles,
			Aggregator: aggregator,
			Calibrator: calibrator,
			Restarter:  orch,
			Bus:        eventBus,
			Snapshots:  snapshotRepo,
			Events:     eventRepo,
		})

		if err := eventBus.Subscribe("console", consoleNotifier); err != nil {
			return err
		}

		if err := mon.Start(ctx); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "Monitor running. Press Ctrl+C to stop.")

		<-ctx.Done()
		mon.Stop()
		return nil
	},
}

// consoleNotifier prints the operator-facing view of bus traffic.
func consoleNotifier(event models.Event) {
	switch event.Type {
	case models.EventTypeSwapNotification:
		var payload models.SwapNotificationPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return
		}
		fmt.Fprintf(os.Stderr, "%s credential swapped %s -> %s (%s window at %.0f%%)\n",
			badge("SWAP", styleWarn), payload.FromProfile, payload.ToProfile, payload.LimitType, payload.Percent)
	case models.EventTypeSwapFailed:
		var payload models.SwapFailedPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return
		}
		fmt.Fprintf(os.Stderr, "%s credential swap failed: %s\n", badge("FAIL", styleErr), payload.Reason)
	case models.EventTypeTaskExit:
		fmt.Fprintf(os.Stderr, "%s task %s exited (code %s)\n",
			badge("TASK", styleDim), event.EntityID, event.Metadata["exit_code"])
	case models.EventTypeTaskRestarted:
		fmt.Fprintf(os.Stderr, "%s task %s restarted (swap %s)\n",
			badge("TASK", styleOK), event.EntityID, event.Metadata["swap_count"])
	}
}
