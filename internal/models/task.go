package models

import (
	"time"
)

// TaskKind identifies which start operation created a task.
type TaskKind string

const (
	// TaskKindSpecCreation builds a spec from a description, then chains
	// into task execution.
	TaskKindSpecCreation TaskKind = "spec_creation"

	// TaskKindExecution runs an existing spec directly.
	TaskKindExecution TaskKind = "execution"

	// TaskKindQA runs the QA phase against a completed task.
	TaskKindQA TaskKind = "qa"
)

// TaskPhase is one stage of the task pipeline. Each phase is independently
// configurable for model and thinking level under an auto profile.
type TaskPhase string

const (
	PhaseSpec     TaskPhase = "spec"
	PhasePlanning TaskPhase = "planning"
	PhaseCoding   TaskPhase = "coding"
	PhaseQA       TaskPhase = "qa"
)

// ThinkingLevel controls how much extended thinking the worker requests.
type ThinkingLevel string

const (
	ThinkingNone   ThinkingLevel = "none"
	ThinkingLow    ThinkingLevel = "low"
	ThinkingMedium ThinkingLevel = "medium"
	ThinkingHigh   ThinkingLevel = "high"
)

// TaskState tracks a context through its lifecycle. Cleanup is an explicit
// state transition rather than a bare timer race.
type TaskState string

const (
	// TaskStateRunning means a worker process is active for the task.
	TaskStateRunning TaskState = "running"

	// TaskStateAwaitingRestart is the grace window after a worker exit
	// during which a pending restart may still claim the context.
	TaskStateAwaitingRestart TaskState = "awaiting_restart"

	// TaskStateCompleted means the worker exited successfully.
	TaskStateCompleted TaskState = "completed"

	// TaskStateRetired means the swap cap was reached and the context
	// will not be restarted again.
	TaskStateRetired TaskState = "retired"
)

// MaxProfileSwaps caps how many credential swaps a single task may go
// through before restarts are refused.
const MaxProfileSwaps = 2

// TaskMetadata carries the model/thinking configuration for a task.
type TaskMetadata struct {
	// Model is the single configured model, when not an auto profile.
	Model string `json:"model,omitempty"`

	// ThinkingLevel is the thinking level for Model.
	ThinkingLevel ThinkingLevel `json:"thinkingLevel,omitempty"`

	// IsAutoProfile selects per-phase model resolution.
	IsAutoProfile bool `json:"isAutoProfile,omitempty"`

	// PhaseModels maps each phase to a model under an auto profile.
	PhaseModels map[TaskPhase]string `json:"phaseModels,omitempty"`

	// PhaseThinking maps each phase to a thinking level.
	PhaseThinking map[TaskPhase]ThinkingLevel `json:"phaseThinking,omitempty"`
}

// ModelForPhase resolves the model for a phase, falling back to the single
// configured model. Empty string means "use the worker default".
func (m *TaskMetadata) ModelForPhase(phase TaskPhase) string {
	if m == nil {
		return ""
	}
	if m.IsAutoProfile {
		return m.PhaseModels[phase]
	}
	return m.Model
}

// ThinkingForPhase resolves the thinking level for a phase.
func (m *TaskMetadata) ThinkingForPhase(phase TaskPhase) ThinkingLevel {
	if m == nil {
		return ""
	}
	if m.IsAutoProfile {
		return m.PhaseThinking[phase]
	}
	return m.ThinkingLevel
}

// Models returns every model the metadata can select, for provider
// preflight checks.
func (m *TaskMetadata) Models() []string {
	if m == nil {
		return nil
	}
	if !m.IsAutoProfile {
		if m.Model == "" {
			return nil
		}
		return []string{m.Model}
	}
	models := make([]string, 0, len(m.PhaseModels))
	seen := make(map[string]struct{}, len(m.PhaseModels))
	for _, phase := range []TaskPhase{PhaseSpec, PhasePlanning, PhaseCoding, PhaseQA} {
		model := m.PhaseModels[phase]
		if model == "" {
			continue
		}
		if _, ok := seen[model]; ok {
			continue
		}
		seen[model] = struct{}{}
		models = append(models, model)
	}
	return models
}

// TaskOptions are execution options forwarded to the worker process.
type TaskOptions struct {
	// AutoApprove passes the worker's auto-approval flag.
	AutoApprove bool `json:"auto_approve,omitempty"`

	// SkipQA skips the QA phase after coding.
	SkipQA bool `json:"skip_qa,omitempty"`

	// BaseBranch is the branch the worker branches from.
	BaseBranch string `json:"base_branch,omitempty"`
}

// TaskContext is the per-task execution context the orchestrator keeps
// across restarts. Entries are keyed by task ID; an entry is updated in
// place on restart so the swap counter survives.
type TaskContext struct {
	// TaskID is the logical task identifier.
	TaskID string `json:"task_id"`

	// Kind records which start operation created the task, so a restart
	// can re-invoke the same one.
	Kind TaskKind `json:"kind"`

	// ProjectDir is the project location the worker operates on.
	ProjectDir string `json:"project_dir"`

	// SpecID is the target spec identifier.
	SpecID string `json:"spec_id,omitempty"`

	// CreateSpec marks a spec-creation task.
	CreateSpec bool `json:"create_spec,omitempty"`

	// SpecDescription is the description for spec creation.
	SpecDescription string `json:"spec_description,omitempty"`

	// Options are the execution options.
	Options TaskOptions `json:"options"`

	// Metadata is the model/thinking configuration.
	Metadata *TaskMetadata `json:"metadata,omitempty"`

	// SwapCount is how many credential swaps this task has gone
	// through. Monotonic, capped at MaxProfileSwaps.
	SwapCount int `json:"swap_count"`

	// State is the lifecycle state of the context.
	State TaskState `json:"state"`

	// StartedAt is when the task first started.
	StartedAt time.Time `json:"started_at"`
}

// SwapCapReached reports whether the context may not be restarted again.
func (c *TaskContext) SwapCapReached() bool {
	return c.SwapCount >= MaxProfileSwaps
}
