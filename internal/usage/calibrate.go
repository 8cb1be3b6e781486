package usage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tasklift/autopilot/internal/logging"
	"github.com/tasklift/autopilot/internal/models"
)

// Conservative defaults used until a profile has calibrated limits.
const (
	DefaultSessionLimitUSD = 35.0
	DefaultWeeklyLimitUSD  = 350.0
)

const (
	// calibrationTolerance is the minimum disagreement, in percentage
	// points, between the authoritative and local estimates before a
	// correction is committed.
	calibrationTolerance = 10.0

	// calibrationMinPercent is the minimum authoritative utilization
	// before an observation is considered meaningful.
	calibrationMinPercent = 5.0
)

// Calibration errors.
var (
	ErrInvalidObservation = errors.New("invalid calibration observation")
)

// LimitStore persists calibrated limits per profile.
type LimitStore interface {
	GetLimits(ctx context.Context, profileID string) (*models.CalibratedLimits, error)
	PutLimits(ctx context.Context, limits *models.CalibratedLimits) error
}

// ErrLimitsNotFound is returned by LimitStore implementations when no
// limits have been persisted for a profile.
var ErrLimitsNotFound = errors.New("calibrated limits not found")

// Calibrator adaptively adjusts remembered cost ceilings per profile based
// on feedback from the authoritative usage API.
type Calibrator struct {
	store  LimitStore
	logger zerolog.Logger

	// mu serializes read-modify-write cycles on the store so two
	// calibration attempts for the same profile cannot lose updates.
	mu sync.Mutex

	now func() time.Time
}

// NewCalibrator creates a Calibrator backed by the given store.
func NewCalibrator(store LimitStore) *Calibrator {
	return &Calibrator{
		store:  store,
		logger: logging.Component("calibrator"),
		now:    time.Now,
	}
}

// Limits returns the persisted calibrated limits for a profile, or the
// conservative defaults when none have been learned yet.
func (c *Calibrator) Limits(ctx context.Context, profileID string) (*models.CalibratedLimits, error) {
	limits, err := c.store.GetLimits(ctx, profileID)
	if err != nil {
		if errors.Is(err, ErrLimitsNotFound) {
			return &models.CalibratedLimits{
				ProfileID:       profileID,
				SessionLimitUSD: DefaultSessionLimitUSD,
				WeeklyLimitUSD:  DefaultWeeklyLimitUSD,
			}, nil
		}
		return nil, fmt.Errorf("failed to load calibrated limits: %w", err)
	}
	return limits, nil
}

// Observation is one (locally computed cost, authoritative percent) pair
// per window, taken from a successful authoritative fetch.
type Observation struct {
	SessionCostUSD float64
	SessionPercent float64
	WeeklyCostUSD  float64
	WeeklyPercent  float64
}

// Update blends the observation into the stored limits. A correction is
// committed only when the authoritative percentage and the local estimate
// disagree by more than the tolerance and usage is non-trivial, so noisy
// small-sample observations never drift the estimate. Reapplying an
// identical observation after a commit is a no-op: once the estimates
// agree within tolerance the gate stays closed.
func (c *Calibrator) Update(ctx context.Context, profileID string, obs Observation) error {
	if profileID == "" {
		return ErrInvalidObservation
	}
	if obs.SessionPercent < 0 || obs.WeeklyPercent < 0 {
		return ErrInvalidObservation
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	limits, err := c.Limits(ctx, profileID)
	if err != nil {
		return err
	}

	changed := false

	if newLimit, ok := impliedLimit(limits.SessionLimitUSD, obs.SessionCostUSD, obs.SessionPercent); ok {
		limits.SessionLimitUSD = blend(limits.SessionLimitUSD, newLimit, limits.SampleCount)
		changed = true
	}
	if newLimit, ok := impliedLimit(limits.WeeklyLimitUSD, obs.WeeklyCostUSD, obs.WeeklyPercent); ok {
		limits.WeeklyLimitUSD = blend(limits.WeeklyLimitUSD, newLimit, limits.SampleCount)
		changed = true
	}

	if !changed {
		return nil
	}

	limits.ProfileID = profileID
	limits.SampleCount++
	limits.UpdatedAt = c.now().UTC()

	c.logger.Debug().
		Str("profile_id", profileID).
		Float64("session_limit_usd", limits.SessionLimitUSD).
		Float64("weekly_limit_usd", limits.WeeklyLimitUSD).
		Int64("samples", limits.SampleCount).
		Msg("calibrated limits updated")

	if err := c.store.PutLimits(ctx, limits); err != nil {
		return fmt.Errorf("failed to persist calibrated limits: %w", err)
	}
	return nil
}

// impliedLimit returns the ceiling implied by one observation, and whether
// the correction gate is open for it.
func impliedLimit(currentLimit, observedCost, authoritativePercent float64) (float64, bool) {
	if authoritativePercent <= calibrationMinPercent {
		return 0, false
	}
	if currentLimit <= 0 || observedCost <= 0 {
		return 0, false
	}

	localPercent := observedCost / currentLimit * 100
	if math.Abs(authoritativePercent-localPercent) <= calibrationTolerance {
		return 0, false
	}

	return observedCost / (authoritativePercent / 100), true
}

// blend weights the new implied limit against accumulated history; as the
// sample count grows, a single observation moves the estimate less.
func blend(current, implied float64, samples int64) float64 {
	if samples <= 0 {
		return implied
	}
	weight := float64(samples) / float64(samples+1)
	return current*weight + implied*(1-weight)
}
