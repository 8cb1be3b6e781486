package usage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tasklift/autopilot/internal/models"
)

type memoryLimitStore struct {
	limits map[string]*models.CalibratedLimits
	puts   int
}

func newMemoryLimitStore() *memoryLimitStore {
	return &memoryLimitStore{limits: make(map[string]*models.CalibratedLimits)}
}

func (s *memoryLimitStore) GetLimits(ctx context.Context, profileID string) (*models.CalibratedLimits, error) {
	limits, ok := s.limits[profileID]
	if !ok {
		return nil, ErrLimitsNotFound
	}
	copied := *limits
	return &copied, nil
}

func (s *memoryLimitStore) PutLimits(ctx context.Context, limits *models.CalibratedLimits) error {
	copied := *limits
	s.limits[limits.ProfileID] = &copied
	s.puts++
	return nil
}

func TestCalibratorDefaultsWhenUnknown(t *testing.T) {
	c := NewCalibrator(newMemoryLimitStore())

	limits, err := c.Limits(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, DefaultSessionLimitUSD, limits.SessionLimitUSD)
	require.Equal(t, DefaultWeeklyLimitUSD, limits.WeeklyLimitUSD)
	require.Zero(t, limits.SampleCount)
}

func TestCalibratorCommitsLargeDisagreement(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLimitStore()
	c := NewCalibrator(store)

	// Local estimate says $7 of a $35 ceiling (20%); the authoritative
	// source says 40%. Implied ceiling is $17.50.
	err := c.Update(ctx, "p1", Observation{
		SessionCostUSD: 7,
		SessionPercent: 40,
	})
	require.NoError(t, err)

	limits, err := c.Limits(ctx, "p1")
	require.NoError(t, err)
	require.InDelta(t, 17.50, limits.SessionLimitUSD, 1e-9)
	require.Equal(t, DefaultWeeklyLimitUSD, limits.WeeklyLimitUSD)
	require.Equal(t, int64(1), limits.SampleCount)
}

func TestCalibratorIgnoresSmallDisagreement(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLimitStore()
	c := NewCalibrator(store)

	// 20% local vs 25% authoritative is inside the tolerance band.
	err := c.Update(ctx, "p1", Observation{
		SessionCostUSD: 7,
		SessionPercent: 25,
	})
	require.NoError(t, err)
	require.Zero(t, store.puts)
}

func TestCalibratorIgnoresTrivialUsage(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLimitStore()
	c := NewCalibrator(store)

	err := c.Update(ctx, "p1", Observation{
		SessionCostUSD: 0.10,
		SessionPercent: 4,
	})
	require.NoError(t, err)
	require.Zero(t, store.puts)
}

func TestCalibratorConverges(t *testing.T) {
	ctx := context.Background()
	store := newMemoryLimitStore()
	c := NewCalibrator(store)

	obs := Observation{SessionCostUSD: 7, SessionPercent: 40}
	require.NoError(t, c.Update(ctx, "p1", obs))

	// After the first commit the estimates agree; reapplying the same
	// observation must not move the limits again.
	require.NoError(t, c.Update(ctx, "p1", obs))
	require.NoError(t, c.Update(ctx, "p1", obs))

	limits, err := c.Limits(ctx, "p1")
	require.NoError(t, err)
	require.InDelta(t, 17.50, limits.SessionLimitUSD, 1e-9)
	require.Equal(t, int64(1), limits.SampleCount)
	require.Equal(t, 1, store.puts)
}

func TestCalibratorBlendWeighting(t *testing.T) {
	// With one prior sample, a new implied limit moves the estimate
	// halfway; with more history it moves less.
	require.InDelta(t, 15.0, blend(10, 20, 1), 1e-9)
	require.InDelta(t, 12.5, blend(10, 20, 3), 1e-9)
	require.InDelta(t, 20.0, blend(10, 20, 0), 1e-9)
}

func TestCalibratorRejectsInvalidObservation(t *testing.T) {
	c := NewCalibrator(newMemoryLimitStore())

	require.ErrorIs(t, c.Update(context.Background(), "", Observation{}), ErrInvalidObservation)
	require.ErrorIs(t, c.Update(context.Background(), "p1", Observation{SessionPercent: -1}), ErrInvalidObservation)
}
