// Package events provides helper functions for writing Autopilot journal events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/tasklift/autopilot/internal/models"
)

// Repository is the minimal interface needed to write events.
type Repository interface {
	Append(ctx context.Context, event *models.Event) error
}

// LogSwapCompleted records a completed proactive credential swap.
func LogSwapCompleted(ctx context.Context, repo Repository, from, to string, limitType models.LimitType) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}

	payload, err := json.Marshal(models.SwapCompletedPayload{
		From:      from,
		To:        to,
		LimitType: limitType,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal swap payload: %w", err)
	}

	return repo.Append(ctx, &models.Event{
		Type:       models.EventTypeSwapCompleted,
		EntityType: models.EntityTypeProfile,
		EntityID:   to,
		Payload:    payload,
	})
}

// LogSwapFailed records a failed proactive swap attempt.
func LogSwapFailed(ctx context.Context, repo Repository, reason, currentProfile string) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}
	if currentProfile == "" {
		currentProfile = "unknown"
	}

	payload, err := json.Marshal(models.SwapFailedPayload{
		Reason:         reason,
		CurrentProfile: currentProfile,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal swap failure payload: %w", err)
	}

	return repo.Append(ctx, &models.Event{
		Type:       models.EventTypeSwapFailed,
		EntityType: models.EntityTypeProfile,
		EntityID:   currentProfile,
		Payload:    payload,
	})
}

// LogRateLimitDetected records a threshold breach on a usage window.
func LogRateLimitDetected(ctx context.Context, repo Repository, profileID string, limitType models.LimitType, percent float64) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}
	if profileID == "" {
		return fmt.Errorf("profile id is required")
	}

	payload, err := json.Marshal(models.RateLimitDetectedPayload{
		ProfileID: profileID,
		LimitType: limitType,
		Percent:   percent,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal rate limit payload: %w", err)
	}

	return repo.Append(ctx, &models.Event{
		Type:       models.EventTypeRateLimitDetected,
		EntityType: models.EntityTypeProfile,
		EntityID:   profileID,
		Payload:    payload,
	})
}

// LogTaskExit records a worker process exit.
func LogTaskExit(ctx context.Context, repo Repository, taskID string, exitCode int) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}
	if taskID == "" {
		return fmt.Errorf("task id is required")
	}

	payload, err := json.Marshal(models.TaskExitPayload{
		TaskID:   taskID,
		ExitCode: exitCode,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal exit payload: %w", err)
	}

	return repo.Append(ctx, &models.Event{
		Type:       models.EventTypeTaskExit,
		EntityType: models.EntityTypeTask,
		EntityID:   taskID,
		Payload:    payload,
		Metadata:   map[string]string{"exit_code": strconv.Itoa(exitCode)},
	})
}

// LogTaskError records a task start or runtime failure.
func LogTaskError(ctx context.Context, repo Repository, taskID, message string) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}
	if taskID == "" {
		return fmt.Errorf("task id is required")
	}

	payload, err := json.Marshal(models.TaskErrorPayload{
		TaskID:  taskID,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal error payload: %w", err)
	}

	return repo.Append(ctx, &models.Event{
		Type:       models.EventTypeTaskError,
		EntityType: models.EntityTypeTask,
		EntityID:   taskID,
		Payload:    payload,
	})
}
