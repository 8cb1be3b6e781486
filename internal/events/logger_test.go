package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tasklift/autopilot/internal/models"
)

type memoryRepo struct {
	events []*models.Event
}

func (r *memoryRepo) Append(ctx context.Context, event *models.Event) error {
	r.events = append(r.events, event)
	return nil
}

func TestLogSwapCompleted(t *testing.T) {
	repo := &memoryRepo{}
	require.NoError(t, LogSwapCompleted(context.Background(), repo, "work", "backup", models.LimitTypeSession))

	require.Len(t, repo.events, 1)
	event := repo.events[0]
	require.Equal(t, models.EventTypeSwapCompleted, event.Type)
	require.Equal(t, "backup", event.EntityID)

	var payload models.SwapCompletedPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	require.Equal(t, "work", payload.From)
	require.Equal(t, "backup", payload.To)
	require.Equal(t, models.LimitTypeSession, payload.LimitType)
	require.False(t, payload.Timestamp.IsZero())
}

func TestLogSwapFailedDefaultsUnknownProfile(t *testing.T) {
	repo := &memoryRepo{}
	require.NoError(t, LogSwapFailed(context.Background(), repo, models.SwapFailReasonNoAlternative, ""))

	var payload models.SwapFailedPayload
	require.NoError(t, json.Unmarshal(repo.events[0].Payload, &payload))
	require.Equal(t, "unknown", payload.CurrentProfile)
	require.Equal(t, models.SwapFailReasonNoAlternative, payload.Reason)
}

func TestLogRateLimitDetectedRequiresProfile(t *testing.T) {
	repo := &memoryRepo{}
	require.Error(t, LogRateLimitDetected(context.Background(), repo, "", models.LimitTypeWeekly, 95))
	require.Empty(t, repo.events)

	require.NoError(t, LogRateLimitDetected(context.Background(), repo, "p1", models.LimitTypeWeekly, 95))
	require.Equal(t, models.EventTypeRateLimitDetected, repo.events[0].Type)
}

func TestLogTaskExitCarriesCodeMetadata(t *testing.T) {
	repo := &memoryRepo{}
	require.NoError(t, LogTaskExit(context.Background(), repo, "t1", 3))

	event := repo.events[0]
	require.Equal(t, models.EventTypeTaskExit, event.Type)
	require.Equal(t, "3", event.Metadata["exit_code"])
}

func TestLoggersRequireRepository(t *testing.T) {
	ctx := context.Background()
	require.Error(t, LogSwapCompleted(ctx, nil, "a", "b", models.LimitTypeSession))
	require.Error(t, LogTaskError(ctx, nil, "t1", "boom"))
}
