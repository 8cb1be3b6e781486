package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tasklift/autopilot/internal/models"
	"github.com/tasklift/autopilot/internal/usage"
)

// CalibrationRepository persists calibrated limits per credential profile.
// It implements usage.LimitStore.
type CalibrationRepository struct {
	db *DB
}

// NewCalibrationRepository creates a new CalibrationRepository.
func NewCalibrationRepository(db *DB) *CalibrationRepository {
	return &CalibrationRepository{db: db}
}

// GetLimits retrieves the calibrated limits for a profile. Returns
// usage.ErrLimitsNotFound when the profile has never been calibrated.
func (r *CalibrationRepository) GetLimits(ctx context.Context, profileID string) (*models.CalibratedLimits, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT profile_id, session_limit_usd, weekly_limit_usd, sample_count, updated_at
		FROM calibrated_limits WHERE profile_id = ?
	`, profileID)

	var (
		limits    models.CalibratedLimits
		updatedAt string
	)
	err := row.Scan(
		&limits.ProfileID,
		&limits.SessionLimitUSD,
		&limits.WeeklyLimitUSD,
		&limits.SampleCount,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, usage.ErrLimitsNotFound
		}
		return nil, fmt.Errorf("failed to load calibrated limits: %w", err)
	}

	limits.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &limits, nil
}

// PutLimits inserts or replaces the calibrated limits for a profile.
func (r *CalibrationRepository) PutLimits(ctx context.Context, limits *models.CalibratedLimits) error {
	if err := limits.Validate(); err != nil {
		return err
	}
	if limits.UpdatedAt.IsZero() {
		limits.UpdatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO calibrated_limits (
			profile_id, session_limit_usd, weekly_limit_usd, sample_count, updated_at
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(profile_id) DO UPDATE SET
			session_limit_usd = excluded.session_limit_usd,
			weekly_limit_usd = excluded.weekly_limit_usd,
			sample_count = excluded.sample_count,
			updated_at = excluded.updated_at
	`,
		limits.ProfileID,
		limits.SessionLimitUSD,
		limits.WeeklyLimitUSD,
		limits.SampleCount,
		limits.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to persist calibrated limits: %w", err)
	}
	return nil
}

// DeleteLimits removes the calibrated limits for a profile.
func (r *CalibrationRepository) DeleteLimits(ctx context.Context, profileID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM calibrated_limits WHERE profile_id = ?`, profileID)
	if err != nil {
		return fmt.Errorf("failed to delete calibrated limits: %w", err)
	}
	return nil
}
