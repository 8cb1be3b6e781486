package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tasklift/autopilot/internal/models"
	"github.com/tasklift/autopilot/internal/usage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestCalibrationRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewCalibrationRepository(openTestDB(t))

	limits := &models.CalibratedLimits{
		ProfileID:       "work",
		SessionLimitUSD: 17.5,
		WeeklyLimitUSD:  280,
		SampleCount:     3,
		UpdatedAt:       time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	}
	if err := repo.PutLimits(ctx, limits); err != nil {
		t.Fatalf("PutLimits: %v", err)
	}

	got, err := repo.GetLimits(ctx, "work")
	if err != nil {
		t.Fatalf("GetLimits: %v", err)
	}
	if got.SessionLimitUSD != 17.5 {
		t.Errorf("expected SessionLimitUSD 17.5, got %v", got.SessionLimitUSD)
	}
	if got.WeeklyLimitUSD != 280 {
		t.Errorf("expected WeeklyLimitUSD 280, got %v", got.WeeklyLimitUSD)
	}
	if got.SampleCount != 3 {
		t.Errorf("expected SampleCount 3, got %d", got.SampleCount)
	}
	if !got.UpdatedAt.Equal(limits.UpdatedAt) {
		t.Errorf("expected UpdatedAt %v, got %v", limits.UpdatedAt, got.UpdatedAt)
	}
}

func TestCalibrationRepositoryUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewCalibrationRepository(openTestDB(t))

	first := &models.CalibratedLimits{ProfileID: "work", SessionLimitUSD: 35, WeeklyLimitUSD: 350}
	if err := repo.PutLimits(ctx, first); err != nil {
		t.Fatalf("PutLimits: %v", err)
	}

	second := &models.CalibratedLimits{ProfileID: "work", SessionLimitUSD: 20, WeeklyLimitUSD: 200, SampleCount: 1}
	if err := repo.PutLimits(ctx, second); err != nil {
		t.Fatalf("PutLimits (update): %v", err)
	}

	got, err := repo.GetLimits(ctx, "work")
	if err != nil {
		t.Fatalf("GetLimits: %v", err)
	}
	if got.SessionLimitUSD != 20 {
		t.Errorf("expected updated SessionLimitUSD 20, got %v", got.SessionLimitUSD)
	}
}

func TestCalibrationRepositoryNotFound(t *testing.T) {
	repo := NewCalibrationRepository(openTestDB(t))

	_, err := repo.GetLimits(context.Background(), "missing")
	if !errors.Is(err, usage.ErrLimitsNotFound) {
		t.Fatalf("expected ErrLimitsNotFound, got %v", err)
	}
}

func TestCalibrationRepositoryRejectsInvalid(t *testing.T) {
	repo := NewCalibrationRepository(openTestDB(t))

	bad := &models.CalibratedLimits{ProfileID: "", SessionLimitUSD: 35, WeeklyLimitUSD: 350}
	if err := repo.PutLimits(context.Background(), bad); err == nil {
		t.Fatal("expected validation error for empty profile_id")
	}
}

func TestCalibrationRepositoryDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewCalibrationRepository(openTestDB(t))

	limits := &models.CalibratedLimits{ProfileID: "work", SessionLimitUSD: 35, WeeklyLimitUSD: 350}
	if err := repo.PutLimits(ctx, limits); err != nil {
		t.Fatalf("PutLimits: %v", err)
	}
	if err := repo.DeleteLimits(ctx, "work"); err != nil {
		t.Fatalf("DeleteLimits: %v", err)
	}
	if _, err := repo.GetLimits(ctx, "work"); !errors.Is(err, usage.ErrLimitsNotFound) {
		t.Fatalf("expected ErrLimitsNotFound after delete, got %v", err)
	}
}
