package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
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

var (
	taskProjectDir  string
	taskModel       string
	taskThinking    string
	taskAutoApprove bool
	taskSkipQA      bool
	taskBaseBranch  string
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(specCmd)
	rootCmd.AddCommand(qaCmd)

	for _, cmd := range []*cobra.Command{runCmd, specCmd, qaCmd} {
		cmd.Flags().StringVar(&taskProjectDir, "project-dir", ".", "project directory the worker operates on")
		cmd.Flags().StringVar(&taskModel, "model", "", "model for the worker (defaults to task metadata)")
		cmd.Flags().StringVar(&taskThinking, "thinking", "", "thinking level (none, low, medium, high)")
		cmd.Flags().BoolVar(&taskAutoApprove, "auto-approve", false, "pass the worker's auto-approval flag")
	}
	runCmd.Flags().BoolVar(&taskSkipQA, "skip-qa", false, "skip the QA phase after coding")
	runCmd.Flags().StringVar(&taskBaseBranch, "base-branch", "", "branch the worker branches from")
}

var runCmd = &cobra.Command{
	Use:   "run <spec-id>",
	Short: "Execute a spec with usage monitoring",
	Long: "Start a worker for an existing spec and keep the usage monitor\n" +
		"running alongside it, swapping credentials and restarting the worker\n" +
		"when a rate-limit threshold is breached.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(func(ctx context.Context, orch *orchestrator.Service, opts orchestrator.StartOptions) error {
			opts.SpecID = args[0]
			opts.Options.SkipQA = taskSkipQA
			opts.Options.BaseBranch = taskBaseBranch
			return orch.StartTask(ctx, opts)
		})
	},
}

var specCmd = &cobra.Command{
	Use:   "spec <description>",
	Short: "Create a spec from a description and execute it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(func(ctx context.Context, orch *orchestrator.Service, opts orchestrator.StartOptions) error {
			opts.SpecDescription = args[0]
			return orch.StartSpecCreation(ctx, opts)
		})
	},
}

var qaCmd = &cobra.Command{
	Use:   "qa <spec-id>",
	Short: "Run the QA phase for a completed task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(func(ctx context.Context, orch *orchestrator.Service, opts orchestrator.StartOptions) error {
			opts.SpecID = args[0]
			return orch.StartQA(ctx, opts)
		})
	},
}

// runTask wires the monitor and orchestrator together, starts one task,
// and blocks until the task finishes or the user interrupts.
func runTask(start func(ctx context.Context, orch *orchestrator.Service, opts orchestrator.StartOptions) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()

	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	projectDir, err := filepath.Abs(taskProjectDir)
	if err != nil {
		return fmt.Errorf("invalid project directory: %w", err)
	}

	eventRepo := db.NewEventRepository(database)
	profiles := vault.NewManager(cfg.VaultPath)
	eventBus := bus.New()

	orch := orchestrator.NewService(cfg.Worker, profiles, eventBus, eventRepo)
	defer orch.Shutdown()

	mon := monitor.New(cfg.Monitor, cfg.DataDir, monitor.Deps{
		Fetcher:    usage.NewClient(),
		Tokens:     auth.ResolveToken,
		Profiles:   profiles,
		Aggregator: usage.NewAggregator(usage.NewEstimator()),
		Calibrator: usage.NewCalibrator(db.NewCalibrationRepository(database)),
		Restarter:  orch,
		Bus:        eventBus,
		Snapshots:  db.NewSnapshotRepository(database),
		Events:     eventRepo,
	})

	if err := eventBus.Subscribe("console", consoleNotifier); err != nil {
		return err
	}

	if err := mon.Start(ctx); err != nil {
		return err
	}
	defer mon.Stop()

	taskID := uuid.NewString()
	opts := orchestrator.StartOptions{
		TaskID:     taskID,
		ProjectDir: projectDir,
		Options:    models.TaskOptions{AutoApprove: taskAutoApprove},
		Metadata:   metadataFromFlags(),
	}

	if err := start(ctx, orch, opts); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Task %s started.\n", taskID)

	return waitForTask(ctx, orch, taskID)
}

// metadataFromFlags builds task metadata from the --model/--thinking
// flags, or nil so the side-channel file applies.
func metadataFromFlags() *models.TaskMetadata {
	if taskModel == "" && taskThinking == "" {
		return nil
	}
	return &models.TaskMetadata{
		Model:         taskModel,
		ThinkingLevel: models.ThinkingLevel(taskThinking),
	}
}

// waitForTask blocks until the task's context is gone or settled.
func waitForTask(ctx context.Context, orch *orchestrator.Service, taskID string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "Interrupted, stopping task.")
			return nil
		case <-ticker.C:
			taskCtx, ok := orch.Context(taskID)
			if !ok {
				return nil
			}
			switch taskCtx.State {
			case models.TaskStateCompleted:
				fmt.Fprintln(os.Stderr, "Task completed.")
				return nil
			case models.TaskStateRetired:
				return fmt.Errorf("task retired after %d credential swaps", taskCtx.SwapCount)
			}
		}
	}
}
