package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tasklift/autopilot/internal/models"
)

func TestEventRepositoryAppendAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(openTestDB(t))

	event := &models.Event{
		Type:       models.EventTypeSwapCompleted,
		EntityType: models.EntityTypeProfile,
		EntityID:   "backup",
		Payload:    []byte(`{"from":"work","to":"backup"}`),
		Metadata:   map[string]string{"reason": "session"},
	}
	if err := repo.Append(ctx, event); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if event.ID == "" {
		t.Error("expected ID to be set")
	}
	if event.Timestamp.IsZero() {
		t.Error("expected Timestamp to be set")
	}

	got, err := repo.Get(ctx, event.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Type != models.EventTypeSwapCompleted {
		t.Errorf("expected type swap.completed, got %s", got.Type)
	}
	if string(got.Payload) != `{"from":"work","to":"backup"}` {
		t.Errorf("unexpected payload: %s", got.Payload)
	}
	if got.Metadata["reason"] != "session" {
		t.Errorf("unexpected metadata: %v", got.Metadata)
	}
}

func TestEventRepositoryRejectsInvalid(t *testing.T) {
	repo := NewEventRepository(openTestDB(t))

	err := repo.Append(context.Background(), &models.Event{Type: models.EventTypeWarning})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestEventRepositoryGetMissing(t *testing.T) {
	repo := NewEventRepository(openTestDB(t))

	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestEventRepositoryQueryFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(openTestDB(t))

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	seed := []*models.Event{
		{Type: models.EventTypeSwapCompleted, EntityType: models.EntityTypeProfile, EntityID: "backup", Timestamp: base},
		{Type: models.EventTypeTaskExit, EntityType: models.EntityTypeTask, EntityID: "t1", Timestamp: base.Add(time.Minute)},
		{Type: models.EventTypeTaskExit, EntityType: models.EntityTypeTask, EntityID: "t2", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, e := range seed {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	exitType := models.EventTypeTaskExit
	byType, err := repo.Query(ctx, EventQuery{Type: &exitType})
	if err != nil {
		t.Fatalf("Query by type: %v", err)
	}
	if len(byType) != 2 {
		t.Fatalf("expected 2 task.exit events, got %d", len(byType))
	}
	// Newest first.
	if byType[0].EntityID != "t2" {
		t.Errorf("expected newest first (t2), got %s", byType[0].EntityID)
	}

	entityID := "t1"
	byEntity, err := repo.Query(ctx, EventQuery{EntityID: &entityID})
	if err != nil {
		t.Fatalf("Query by entity: %v", err)
	}
	if len(byEntity) != 1 || byEntity[0].EntityID != "t1" {
		t.Fatalf("expected only t1, got %v", byEntity)
	}

	since := base.Add(30 * time.Second)
	until := base.Add(90 * time.Second)
	windowed, err := repo.Query(ctx, EventQuery{Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("Query windowed: %v", err)
	}
	if len(windowed) != 1 || windowed[0].EntityID != "t1" {
		t.Fatalf("expected only the t1 event in window, got %d", len(windowed))
	}

	limited, err := repo.Query(ctx, EventQuery{Limit: 1})
	if err != nil {
		t.Fatalf("Query limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 event with limit, got %d", len(limited))
	}
}
