package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tasklift/autopilot/internal/models"
)

// SnapshotRepository keeps a history of published usage snapshots.
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Append records one published snapshot.
func (r *SnapshotRepository) Append(ctx context.Context, snapshot *models.UsageSnapshot) error {
	if snapshot.ProfileID == "" {
		return fmt.Errorf("snapshot profile_id is required")
	}
	fetchedAt := snapshot.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	estimated := 0
	if snapshot.Estimated {
		estimated = 1
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO snapshots (
			id, profile_id, profile_name, session_percent, weekly_percent,
			estimated, session_tokens, weekly_tokens, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		uuid.New().String(),
		snapshot.ProfileID,
		snapshot.ProfileName,
		snapshot.SessionPercent,
		snapshot.WeeklyPercent,
		estimated,
		snapshot.SessionTokens,
		snapshot.WeeklyTokens,
		fetchedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// Recent returns the most recent snapshots, newest first.
func (r *SnapshotRepository) Recent(ctx context.Context, limit int) ([]*models.UsageSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT profile_id, profile_name, session_percent, weekly_percent,
			estimated, session_tokens, weekly_tokens, fetched_at
		FROM snapshots ORDER BY fetched_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.UsageSnapshot
	for rows.Next() {
		var (
			s         models.UsageSnapshot
			estimated int
			fetchedAt string
		)
		if err := rows.Scan(
			&s.ProfileID,
			&s.ProfileName,
			&s.SessionPercent,
			&s.WeeklyPercent,
			&estimated,
			&s.SessionTokens,
			&s.WeeklyTokens,
			&fetchedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		s.Estimated = estimated != 0
		if s.FetchedAt, err = time.Parse(time.RFC3339, fetchedAt); err != nil {
			return nil, fmt.Errorf("failed to parse fetched_at: %w", err)
		}
		snapshots = append(snapshots, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snapshots, nil
}

// Prune deletes snapshots older than the cutoff and returns the number
// removed.
func (r *SnapshotRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE fetched_at < ?`,
		olderThan.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected, nil
}
