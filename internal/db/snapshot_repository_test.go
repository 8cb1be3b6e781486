package db

import (
	"context"
	"testing"
	"time"

	"github.com/tasklift/autopilot/internal/models"
)

func TestSnapshotRepositoryAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	repo := NewSnapshotRepository(openTestDB(t))

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		snapshot := &models.UsageSnapshot{
			ProfileID:      "work",
			ProfileName:    "work",
			SessionPercent: float64(10 * (i + 1)),
			WeeklyPercent:  5,
			Estimated:      i == 2,
			SessionTokens:  int64(1000 * (i + 1)),
			FetchedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Append(ctx, snapshot); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recent, err := repo.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(recent))
	}
	if recent[0].SessionPercent != 30 {
		t.Errorf("expected newest snapshot first (30%%), got %v", recent[0].SessionPercent)
	}
	if !recent[0].Estimated {
		t.Error("expected newest snapshot to be estimated")
	}
	if recent[0].SessionTokens != 3000 {
		t.Errorf("expected SessionTokens 3000, got %d", recent[0].SessionTokens)
	}
}

func TestSnapshotRepositoryRequiresProfile(t *testing.T) {
	repo := NewSnapshotRepository(openTestDB(t))

	if err := repo.Append(context.Background(), &models.UsageSnapshot{}); err == nil {
		t.Fatal("expected error for missing profile_id")
	}
}

func TestSnapshotRepositoryPrune(t *testing.T) {
	ctx := context.Background()
	repo := NewSnapshotRepository(openTestDB(t))

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		snapshot := &models.UsageSnapshot{
			ProfileID: "work",
			FetchedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := repo.Append(ctx, snapshot); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	pruned, err := repo.Prune(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if pruned != 2 {
		t.Errorf("expected 2 pruned, got %d", pruned)
	}

	remaining, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("expected 2 remaining, got %d", len(remaining))
	}
}
