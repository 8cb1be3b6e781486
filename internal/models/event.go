package models

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType categorizes events in the system.
type EventType string

const (
	// Usage events
	EventTypeUsageUpdated      EventType = "usage.updated"
	EventTypeRateLimitDetected EventType = "rate_limit.detected"

	// Swap events
	EventTypeSwapCompleted    EventType = "swap.completed"
	EventTypeSwapFailed       EventType = "swap.failed"
	EventTypeSwapNotification EventType = "swap.notification"

	// Task events
	EventTypeTaskStarted   EventType = "task.started"
	EventTypeTaskRestarted EventType = "task.restarted"
	EventTypeTaskExit      EventType = "task.exit"
	EventTypeTaskError     EventType = "task.error"

	// System events
	EventTypeError   EventType = "error"
	EventTypeWarning EventType = "warning"
)

// EntityType identifies the type of entity an event relates to.
type EntityType string

const (
	EntityTypeProfile EntityType = "profile"
	EntityTypeTask    EntityType = "task"
	EntityTypeMonitor EntityType = "monitor"
	EntityTypeSystem  EntityType = "system"
)

// Event represents an append-only log entry.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// EntityType identifies what kind of entity this event relates to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the ID of the related entity.
	EntityID string `json:"entity_id"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Metadata contains additional context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks if the event is valid.
func (e *Event) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(string(e.Type)) == "" {
		validation.AddMessage("type", "event type is required")
	}
	if strings.TrimSpace(string(e.EntityType)) == "" {
		validation.AddMessage("entity_type", "entity_type is required")
	}
	if strings.TrimSpace(e.EntityID) == "" {
		validation.AddMessage("entity_id", "entity_id is required")
	}
	return validation.Err()
}

// LimitType names which window tripped a threshold.
type LimitType string

const (
	LimitTypeSession LimitType = "session"
	LimitTypeWeekly  LimitType = "weekly"
)

// SwapCompletedPayload is the payload for swap.completed events.
type SwapCompletedPayload struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	LimitType LimitType `json:"limit_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SwapFailedPayload is the payload for swap.failed events.
type SwapFailedPayload struct {
	Reason         string `json:"reason"`
	CurrentProfile string `json:"current_profile"`
}

// Swap failure reasons.
const (
	SwapFailReasonNoAlternative = "no_alternative"
	SwapFailReasonSwitchFailed  = "switch_failed"
)

// SwapNotificationPayload is the payload for swap.notification events,
// consumed by the UI-layer collaborator.
type SwapNotificationPayload struct {
	FromProfile string    `json:"from_profile"`
	ToProfile   string    `json:"to_profile"`
	LimitType   LimitType `json:"limit_type"`
	Percent     float64   `json:"percent"`
}

// RateLimitDetectedPayload is the payload for rate_limit.detected events.
type RateLimitDetectedPayload struct {
	ProfileID string    `json:"profile_id"`
	LimitType LimitType `json:"limit_type"`
	Percent   float64   `json:"percent"`
}

// TaskExitPayload is the payload for task.exit events.
type TaskExitPayload struct {
	TaskID   string `json:"task_id"`
	ExitCode int    `json:"exit_code"`
}

// TaskErrorPayload is the payload for task.error events.
type TaskErrorPayload struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}
