// Package orchestrator manages worker process lifecycle, execution
// context, and the restart-after-credential-swap protocol.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tasklift/autopilot/internal/auth"
	"github.com/tasklift/autopilot/internal/bus"
	"github.com/tasklift/autopilot/internal/config"
	"github.com/tasklift/autopilot/internal/events"
	"github.com/tasklift/autopilot/internal/logging"
	"github.com/tasklift/autopilot/internal/models"
)

// Orchestrator errors.
var (
	ErrNoTaskContext      = errors.New("no context recorded for task")
	ErrSwapCapReached     = errors.New("swap cap reached for task")
	ErrTaskAlreadyRunning = errors.New("task already has a running worker")
	ErrMissingProjectDir  = errors.New("project directory is required")
	ErrMissingSpecID      = errors.New("spec id is required")
	ErrMissingDescription = errors.New("spec description is required")
)

// ProfileSwitcher is the credential collaborator.
type ProfileSwitcher interface {
	Active(ctx context.Context) (*models.Profile, error)
	SwitchTo(ctx context.Context, name string) error
}

// workerHandle is what the orchestrator holds per running worker.
type workerHandle interface {
	Kill() error
}

// spawnFunc starts a worker process; tests substitute a fake.
type spawnFunc func(taskID string, command []string, dir string, env []string, onExit ExitFunc) (workerHandle, error)

// StartOptions describes a task to start.
type StartOptions struct {
	// TaskID is the logical task identifier.
	TaskID string

	// ProjectDir is the project the worker operates on.
	ProjectDir string

	// SpecID is the target spec identifier.
	SpecID string

	// SpecDescription is the description for spec creation.
	SpecDescription string

	// Options are execution options forwarded to the worker.
	Options models.TaskOptions

	// Metadata is the model/thinking configuration. When nil, the
	// side-channel metadata file is consulted; when that is also
	// absent, worker defaults apply.
	Metadata *models.TaskMetadata
}

// Service owns the task-id to worker mapping and drives the restart
// protocol. All context mutation happens through lifecycle methods under
// one lock; the task id key partitions entries so tasks never interfere.
type Service struct {
	cfg      config.WorkerConfig
	profiles ProfileSwitcher
	bus      *bus.Bus
	events   events.Repository
	logger   zerolog.Logger

	mu       sync.Mutex
	contexts map[string]*models.TaskContext
	workers  map[string]workerHandle

	// gens fences exit callbacks: each spawn gets a generation number,
	// and an exit whose generation no longer matches the registered one
	// came from a superseded worker and must not touch the successor.
	gens     map[string]uint64
	spawnSeq uint64

	validateAuth func(ctx context.Context) error
	checkKeys    func(modelNames []string) error
	spawn        spawnFunc
	sleep        func(d time.Duration)
}

// NewService creates an orchestrator Service. eventRepo may be nil.
func NewService(cfg config.WorkerConfig, profiles ProfileSwitcher, b *bus.Bus, eventRepo events.Repository) *Service {
	s := &Service{
		cfg:          cfg,
		profiles:     profiles,
		bus:          b,
		events:       eventRepo,
		logger:       logging.Component("orchestrator"),
		contexts:     make(map[string]*models.TaskContext),
		workers:      make(map[string]workerHandle),
		gens:         make(map[string]uint64),
		validateAuth: auth.ValidateCredentials,
		checkKeys:    auth.CheckProviderKeys,
		sleep:        time.Sleep,
	}
	s.spawn = s.spawnWorker
	return s
}

func (s *Service) spawnWorker(taskID string, command []string, dir string, env []string, onExit ExitFunc) (workerHandle, error) {
	w := NewWorker(taskID, command)
	w.Dir = dir
	w.Env = env
	w.OnExit = onExit
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}

// StartSpecCreation starts a spec-creation task, which chains into a
// follow-on execution step inside the worker.
func (s *Service) StartSpecCreation(ctx context.Context, opts StartOptions) error {
	if opts.SpecDescription == "" {
		return ErrMissingDescription
	}
	return s.start(ctx, models.TaskKindSpecCreation, models.PhaseSpec, opts)
}

// StartTask starts direct execution of an existing spec.
func (s *Service) StartTask(ctx context.Context, opts StartOptions) error {
	if opts.SpecID == "" {
		return ErrMissingSpecID
	}
	return s.start(ctx, models.TaskKindExecution, models.PhaseCoding, opts)
}

// StartQA starts the QA phase for a completed task.
func (s *Service) StartQA(ctx context.Context, opts StartOptions) error {
	if opts.SpecID == "" {
		return ErrMissingSpecID
	}
	return s.start(ctx, models.TaskKindQA, models.PhaseQA, opts)
}

func (s *Service) start(ctx context.Context, kind models.TaskKind, phase models.TaskPhase, opts StartOptions) error {
	if opts.TaskID == "" {
		return ErrMissingTaskID
	}
	if opts.ProjectDir == "" {
		return ErrMissingProjectDir
	}

	// A valid, currently-authenticated credential is required before
	// anything is spawned.
	if err := s.validateAuth(ctx); err != nil {
		s.reportError(ctx, opts.TaskID, fmt.Sprintf("authentication required: %v", err))
		return err
	}

	meta := opts.Metadata
	if meta == nil && opts.SpecID != "" {
		meta = ReadTaskMetadata(opts.ProjectDir, opts.SpecID)
	}

	if err := s.checkKeys(meta.Models()); err != nil {
		s.reportError(ctx, opts.TaskID, err.Error())
		return err
	}

	model := meta.ModelForPhase(phase)
	thinking := meta.ThinkingForPhase(phase)
	command := s.buildCommand(kind, opts, model, thinking)
	env := append(auth.PassthroughEnv(), auth.ProviderEnv(model)...)

	s.mu.Lock()
	if _, running := s.workers[opts.TaskID]; running {
		s.mu.Unlock()
		return ErrTaskAlreadyRunning
	}

	// Reuse an existing context so the swap counter survives restarts.
	taskCtx, exists := s.contexts[opts.TaskID]
	if !exists {
		taskCtx = &models.TaskContext{
			TaskID:    opts.TaskID,
			StartedAt: time.Now().UTC(),
		}
		s.contexts[opts.TaskID] = taskCtx
	}
	taskCtx.Kind = kind
	taskCtx.ProjectDir = opts.ProjectDir
	taskCtx.SpecID = opts.SpecID
	taskCtx.CreateSpec = kind == models.TaskKindSpecCreation
	taskCtx.SpecDescription = opts.SpecDescription
	taskCtx.Options = opts.Options
	taskCtx.Metadata = meta
	taskCtx.State = models.TaskStateRunning
	s.spawnSeq++
	gen := s.spawnSeq
	s.gens[opts.TaskID] = gen
	s.mu.Unlock()

	worker, err := s.spawn(opts.TaskID, command, opts.ProjectDir, env, func(id string, code int) {
		s.handleExit(id, gen, code)
	})
	if err != nil {
		s.mu.Lock()
		if s.gens[opts.TaskID] == gen {
			delete(s.gens, opts.TaskID)
		}
		if !exists {
			delete(s.contexts, opts.TaskID)
		}
		s.mu.Unlock()
		s.reportError(ctx, opts.TaskID, fmt.Sprintf("failed to start worker: %v", err))
		return fmt.Errorf("failed to start worker: %w", err)
	}

	s.mu.Lock()
	// The worker may already have exited; register the handle only while
	// its generation is still current.
	if s.gens[opts.TaskID] == gen {
		s.workers[opts.TaskID] = worker
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("task_id", opts.TaskID).
		Str("kind", string(kind)).
		Str("model", model).
		Msg("task started")

	s.publishEvent(models.EventTypeTaskStarted, opts.TaskID, nil)
	return nil
}

// buildCommand assembles the worker invocation for a task kind.
func (s *Service) buildCommand(kind models.TaskKind, opts StartOptions, model string, thinking models.ThinkingLevel) []string {
	command := []string{s.cfg.Command, "--project-dir", opts.ProjectDir}

	if opts.SpecID != "" {
		command = append(command, "--spec", opts.SpecID)
	}
	if model != "" {
		command = append(command, "--model", model)
	}
	if thinking != "" {
		command = append(command, "--thinking", string(thinking))
	}
	if opts.Options.AutoApprove {
		command = append(command, "--auto-approve")
	}

	switch kind {
	case models.TaskKindSpecCreation:
		command = append(command, "--create-spec", "--description", opts.SpecDescription)
	case models.TaskKindExecution:
		if opts.Options.SkipQA {
			command = append(command, "--skip-qa")
		}
		if opts.Options.BaseBranch != "" {
			command = append(command, "--base-branch", opts.Options.BaseBranch)
		}
	case models.TaskKindQA:
		command = append(command, "--qa")
	}

	return command
}

// RestartTask restarts a task under a (possibly different) credential
// profile after a rate-limit condition. It refuses when no context is
// recorded or the swap cap is reached; the worker is killed, the restart
// delay allows OS-level cleanup, then the original start operation is
// re-invoked with the preserved context.
func (s *Service) RestartTask(ctx context.Context, taskID, newProfileID string) error {
	s.mu.Lock()
	taskCtx, ok := s.contexts[taskID]
	if !ok {
		s.mu.Unlock()
		return ErrNoTaskContext
	}
	if taskCtx.SwapCapReached() {
		taskCtx.State = models.TaskStateRetired
		s.mu.Unlock()
		s.logger.Warn().Str("task_id", taskID).Msg("restart refused, swap cap reached")
		return ErrSwapCapReached
	}

	taskCtx.SwapCount++
	taskCtx.State = models.TaskStateAwaitingRestart
	worker := s.workers[taskID]
	gen := s.gens[taskID]
	delete(s.workers, taskID)
	delete(s.gens, taskID)
	snapshot := *taskCtx
	s.mu.Unlock()

	if newProfileID != "" {
		if err := s.profiles.SwitchTo(ctx, newProfileID); err != nil {
			// The swap never happened: re-register the worker, keep the
			// task running on the old credential, and return the swap
			// attempt.
			s.mu.Lock()
			if cur, ok := s.contexts[taskID]; ok {
				cur.SwapCount--
				if worker != nil {
					cur.State = models.TaskStateRunning
				}
			}
			if worker != nil {
				s.workers[taskID] = worker
				s.gens[taskID] = gen
			}
			s.mu.Unlock()
			s.logger.Error().Err(err).Str("profile", newProfileID).Msg("profile switch failed during restart")
			return fmt.Errorf("failed to switch profile: %w", err)
		}
	}

	if worker != nil {
		if err := worker.Kill(); err != nil && !errors.Is(err, ErrNotStarted) {
			s.logger.Debug().Err(err).Str("task_id", taskID).Msg("kill failed, worker may have already exited")
		}
	}

	s.sleep(s.cfg.RestartDelay)

	opts := StartOptions{
		TaskID:          snapshot.TaskID,
		ProjectDir:      snapshot.ProjectDir,
		SpecID:          snapshot.SpecID,
		SpecDescription: snapshot.SpecDescription,
		Options:         snapshot.Options,
		Metadata:        snapshot.Metadata,
	}

	s.logger.Info().
		Str("task_id", taskID).
		Int("swap_count", snapshot.SwapCount).
		Str("profile", newProfileID).
		Msg("restarting task")

	var err error
	switch snapshot.Kind {
	case models.TaskKindSpecCreation:
		err = s.StartSpecCreation(ctx, opts)
	case models.TaskKindQA:
		err = s.StartQA(ctx, opts)
	default:
		err = s.StartTask(ctx, opts)
	}
	if err != nil {
		return err
	}

	s.publishEvent(models.EventTypeTaskRestarted, taskID, map[string]string{
		"swap_count": strconv.Itoa(snapshot.SwapCount),
		"profile":    newProfileID,
	})
	return nil
}

// RestartActiveTasks restarts every task with a live or restartable
// context under the new profile. Used by the monitor after a proactive
// swap; per-task refusals (swap cap) are logged, not propagated.
func (s *Service) RestartActiveTasks(ctx context.Context, newProfileID string) {
	s.mu.Lock()
	var taskIDs []string
	for id, taskCtx := range s.contexts {
		if taskCtx.State == models.TaskStateRunning || taskCtx.State == models.TaskStateAwaitingRestart {
			taskIDs = append(taskIDs, id)
		}
	}
	s.mu.Unlock()

	for _, id := range taskIDs {
		if err := s.RestartTask(ctx, id, newProfileID); err != nil {
			s.logger.Warn().Err(err).Str("task_id", id).Msg("task restart skipped")
		}
	}
}

// handleExit runs when a worker process exits. Exits from superseded
// workers (killed during a restart, or outlived by a successor spawn)
// are discarded. For the current worker, cleanup is a state transition:
// the context enters a grace window during which a pending restart may
// reclaim it, then is deleted when the task completed or can no longer
// be restarted.
func (s *Service) handleExit(taskID string, gen uint64, exitCode int) {
	s.mu.Lock()
	if s.gens[taskID] != gen {
		s.mu.Unlock()
		s.logger.Debug().
			Str("task_id", taskID).
			Int("exit_code", exitCode).
			Msg("ignoring exit from superseded worker")
		return
	}
	delete(s.workers, taskID)
	delete(s.gens, taskID)
	taskCtx, ok := s.contexts[taskID]
	if ok {
		switch {
		case exitCode == 0:
			taskCtx.State = models.TaskStateCompleted
		case taskCtx.SwapCapReached():
			taskCtx.State = models.TaskStateRetired
		default:
			taskCtx.State = models.TaskStateAwaitingRestart
		}
	}
	s.mu.Unlock()

	s.publishEvent(models.EventTypeTaskExit, taskID, map[string]string{
		"exit_code": strconv.Itoa(exitCode),
	})
	if s.events != nil {
		_ = events.LogTaskExit(context.Background(), s.events, taskID, exitCode)
	}
	if !ok {
		return
	}

	time.AfterFunc(s.cfg.CleanupGrace, func() {
		s.cleanupContext(taskID)
	})
}

// cleanupContext deletes a context whose grace window elapsed without a
// restart claiming it.
func (s *Service) cleanupContext(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	taskCtx, ok := s.contexts[taskID]
	if !ok {
		return
	}
	switch taskCtx.State {
	case models.TaskStateCompleted, models.TaskStateRetired:
		delete(s.contexts, taskID)
		s.logger.Debug().Str("task_id", taskID).Str("state", string(taskCtx.State)).Msg("context cleaned up")
	default:
		// Running again (a restart claimed it) or still awaiting one.
	}
}

// Context returns a copy of the context for a task, if any.
func (s *Service) Context(taskID string) (*models.TaskContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	taskCtx, ok := s.contexts[taskID]
	if !ok {
		return nil, false
	}
	copied := *taskCtx
	return &copied, true
}

// ActiveTasks returns the ids of tasks with live or restartable contexts.
func (s *Service) ActiveTasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, taskCtx := range s.contexts {
		if taskCtx.State == models.TaskStateRunning || taskCtx.State == models.TaskStateAwaitingRestart {
			ids = append(ids, id)
		}
	}
	return ids
}

// Shutdown kills every running worker.
func (s *Service) Shutdown() {
	s.mu.Lock()
	workers := make(map[string]workerHandle, len(s.workers))
	for id, w := range s.workers {
		workers[id] = w
	}
	s.mu.Unlock()

	for id, w := range workers {
		if err := w.Kill(); err != nil && !errors.Is(err, ErrNotStarted) {
			s.logger.Debug().Err(err).Str("task_id", id).Msg("kill failed during shutdown")
		}
	}
}

func (s *Service) reportError(ctx context.Context, taskID, message string) {
	s.logger.Error().Str("task_id", taskID).Msg(message)

	if s.events != nil {
		_ = events.LogTaskError(ctx, s.events, taskID, message)
	}
	if s.bus != nil {
		payload, _ := json.Marshal(models.TaskErrorPayload{TaskID: taskID, Message: message})
		s.bus.Publish(models.Event{
			Type:       models.EventTypeTaskError,
			EntityType: models.EntityTypeTask,
			EntityID:   taskID,
			Payload:    payload,
		})
	}
}

func (s *Service) publishEvent(eventType models.EventType, taskID string, metadata map[string]string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(models.Event{
		Type:       eventType,
		EntityType: models.EntityTypeTask,
		EntityID:   taskID,
		Metadata:   metadata,
	})
}
