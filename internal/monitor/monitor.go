// Package monitor implements the usage polling engine and proactive
// credential failover.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tasklift/autopilot/internal/bus"
	"github.com/tasklift/autopilot/internal/config"
	"github.com/tasklift/autopilot/internal/events"
	"github.com/tasklift/autopilot/internal/logging"
	"github.com/tasklift/autopilot/internal/models"
	"github.com/tasklift/autopilot/internal/usage"
)

// Monitor errors.
var (
	ErrMonitorAlreadyRunning = errors.New("monitor already running")
	ErrMonitorNotRunning     = errors.New("monitor not running")
)

// UsageFetcher fetches authoritative usage for a bearer token.
type UsageFetcher interface {
	Fetch(ctx context.Context, token string) (*usage.APIUsage, error)
}

// ProfileManager is the credential-swap collaborator.
type ProfileManager interface {
	Active(ctx context.Context) (*models.Profile, error)
	Alternative(ctx context.Context, currentName string) (*models.Profile, error)
	SwitchTo(ctx context.Context, name string) error
}

// Restarter is notified after a completed swap so active tasks can be
// restarted under the new credential.
type Restarter interface {
	RestartActiveTasks(ctx context.Context, newProfileID string)
}

// TokenSource resolves the bearer token for the authoritative API.
type TokenSource func(ctx context.Context) (string, error)

// Aggregator is the local-estimation collaborator.
type Aggregator interface {
	AggregateDir(dataDir string, sessionCutoff, weeklyCutoff time.Time) usage.Result
}

// Calibrator adjusts remembered limits from authoritative feedback.
type Calibrator interface {
	Limits(ctx context.Context, profileID string) (*models.CalibratedLimits, error)
	Update(ctx context.Context, profileID string, obs usage.Observation) error
}

// meaningfulUsagePercent is the minimum authoritative utilization before a
// calibration comparison is worth making.
const meaningfulUsagePercent = 5.0

// Deps are the monitor's collaborators. Fetcher, Restarter, Snapshots,
// and Events may be nil; the rest are required.
type Deps struct {
	Fetcher    UsageFetcher
	Tokens     TokenSource
	Profiles   ProfileManager
	Aggregator Aggregator
	Calibrator Calibrator
	Restarter  Restarter
	Bus        *bus.Bus

	// Snapshots, when set, receives every published snapshot.
	Snapshots interface {
		Append(ctx context.Context, snapshot *models.UsageSnapshot) error
	}

	// Events, when set, receives journal entries for swaps and
	// threshold breaches.
	Events events.Repository
}

// Monitor polls usage on a fixed interval and triggers proactive swaps.
// It is an explicitly constructed service: tests build fresh instances and
// drive Start/Stop directly.
type Monitor struct {
	cfg     config.MonitorConfig
	dataDir string
	deps    Deps
	logger  zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// tickMu enforces the overlapping-tick guard: a tick in progress
	// suppresses a new one.
	tickMu     sync.Mutex
	tickActive bool

	// apiFailed permanently demotes the authoritative source for this
	// monitor's lifetime, until ForceRefresh resets it.
	apiFailed bool

	// breachActive suppresses repeated swap attempts until usage drops
	// back below the thresholds.
	breachActive bool

	snapshotMu sync.RWMutex
	snapshot   *models.UsageSnapshot

	now func() time.Time
}

// New creates a Monitor.
func New(cfg config.MonitorConfig, dataDir string, deps Deps) *Monitor {
	return &Monitor{
		cfg:     cfg,
		dataDir: dataDir,
		deps:    deps,
		logger:  logging.Component("monitor"),
		now:     time.Now,
	}
}

// Start begins polling. The first tick fires immediately, then on the
// configured interval. Starting a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.logger.Info().
		Dur("interval", m.cfg.Interval).
		Bool("proactive_swap", m.cfg.ProactiveSwapEnabled).
		Msg("monitor starting")

	m.wg.Add(1)
	go m.runLoop(runCtx)
	return nil
}

// Stop clears the timer and halts polling. An in-flight tick is allowed
// to complete silently. Stopping a stopped monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info().Msg("monitor stopped")
}

// Running reports whether the monitor is polling.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Snapshot returns the most recently published snapshot, or nil before
// the first successful cycle.
func (m *Monitor) Snapshot() *models.UsageSnapshot {
	m.snapshotMu.RLock()
	defer m.snapshotMu.RUnlock()
	if m.snapshot == nil {
		return nil
	}
	copied := *m.snapshot
	return &copied
}

// ForceRefresh resets the authoritative-source failure flag and performs
// one synchronous cycle outside the timer cadence.
func (m *Monitor) ForceRefresh(ctx context.Context) {
	m.tickMu.Lock()
	m.apiFailed = false
	m.tickMu.Unlock()
	m.tick(ctx)
}

func (m *Monitor) runLoop(ctx context.Context) {
	defer m.wg.Done()

	m.tick(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick runs one evaluation cycle. Aggregation completes fully before
// threshold evaluation; a cycle that produces no snapshot leaves the
// prior one untouched.
func (m *Monitor) tick(ctx context.Context) {
	m.tickMu.Lock()
	if m.tickActive {
		m.tickMu.Unlock()
		return
	}
	m.tickActive = true
	apiFailed := m.apiFailed
	m.tickMu.Unlock()

	defer func() {
		m.tickMu.Lock()
		m.tickActive = false
		m.tickMu.Unlock()
	}()

	profile, err := m.deps.Profiles.Active(ctx)
	if err != nil {
		m.logger.Debug().Err(err).Msg("no active profile, skipping tick")
		return
	}

	snapshot, ok := m.collect(ctx, profile, apiFailed)
	if !ok {
		return
	}

	m.publish(ctx, snapshot)
	m.evaluateThresholds(ctx, profile, snapshot)
}

// collect produces a snapshot from the authoritative API when possible,
// falling back to local estimation.
func (m *Monitor) collect(ctx context.Context, profile *models.Profile, apiFailed bool) (*models.UsageSnapshot, bool) {
	if !apiFailed && m.deps.Fetcher != nil && m.deps.Tokens != nil {
		if token, err := m.deps.Tokens(ctx); err == nil && token != "" {
			apiUsage, err := m.deps.Fetcher.Fetch(ctx, token)
			if err == nil {
				snapshot := m.snapshotFromAPI(profile, apiUsage)
				m.calibrate(ctx, profile, apiUsage)
				return snapshot, true
			}
			m.logger.Warn().Err(err).Msg("authoritative usage fetch failed, demoting to local estimation")
			m.tickMu.Lock()
			m.apiFailed = true
			m.tickMu.Unlock()
		}
	}

	return m.snapshotFromLogs(ctx, profile)
}

func (m *Monitor) snapshotFromAPI(profile *models.Profile, apiUsage *usage.APIUsage) *models.UsageSnapshot {
	snapshot := &models.UsageSnapshot{
		ProfileID:      profile.ID,
		ProfileName:    profile.Name,
		SessionPercent: clampPercent(apiUsage.FiveHourUtilization * 100),
		WeeklyPercent:  clampPercent(apiUsage.SevenDayUtilization * 100),
		Estimated:      false,
		FetchedAt:      m.now().UTC(),
	}
	if reset, err := apiUsage.SessionResetTime(); err == nil {
		snapshot.SessionResetsIn = formatCountdown(reset.Sub(m.now()))
	}
	if reset, err := apiUsage.WeeklyResetTime(); err == nil {
		snapshot.WeeklyResetsIn = formatCountdown(reset.Sub(m.now()))
	}
	return snapshot
}

func (m *Monitor) snapshotFromLogs(ctx context.Context, profile *models.Profile) (*models.UsageSnapshot, bool) {
	limits, err := m.deps.Calibrator.Limits(ctx, profile.ID)
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to load calibrated limits, keeping prior snapshot")
		return nil, false
	}

	now := m.now().UTC()
	result := m.deps.Aggregator.AggregateDir(m.dataDir, now.Add(-m.cfg.SessionWindow), now.Add(-m.cfg.WeeklyWindow))

	snapshot := &models.UsageSnapshot{
		ProfileID:      profile.ID,
		ProfileName:    profile.Name,
		SessionPercent: clampPercent(result.Session.CostUSD / limits.SessionLimitUSD * 100),
		WeeklyPercent:  clampPercent(result.Weekly.CostUSD / limits.WeeklyLimitUSD * 100),
		Estimated:      true,
		SessionTokens:  result.Session.TotalTokens,
		WeeklyTokens:   result.Weekly.TotalTokens,
		FetchedAt:      now,
	}
	if !result.Session.OldestEvent.IsZero() {
		snapshot.SessionResetsIn = formatCountdown(result.Session.OldestEvent.Add(m.cfg.SessionWindow).Sub(now))
	}
	if !result.Weekly.OldestEvent.IsZero() {
		snapshot.WeeklyResetsIn = formatCountdown(result.Weekly.OldestEvent.Add(m.cfg.WeeklyWindow).Sub(now))
	}
	return snapshot, true
}

// calibrate opportunistically compares an authoritative result against a
// fresh local estimate and feeds the calibrator when usage is meaningful.
func (m *Monitor) calibrate(ctx context.Context, profile *models.Profile, apiUsage *usage.APIUsage) {
	sessionPercent := apiUsage.FiveHourUtilization * 100
	weeklyPercent := apiUsage.SevenDayUtilization * 100
	if sessionPercent <= meaningfulUsagePercent && weeklyPercent <= meaningfulUsagePercent {
		return
	}

	now := m.now().UTC()
	result := m.deps.Aggregator.AggregateDir(m.dataDir, now.Add(-m.cfg.SessionWindow), now.Add(-m.cfg.WeeklyWindow))

	obs := usage.Observation{
		SessionCostUSD: result.Session.CostUSD,
		SessionPercent: sessionPercent,
		WeeklyCostUSD:  result.Weekly.CostUSD,
		WeeklyPercent:  weeklyPercent,
	}
	if err := m.deps.Calibrator.Update(ctx, profile.ID, obs); err != nil {
		m.logger.Debug().Err(err).Msg("calibration update failed")
	}
}

// publish atomically replaces the prior snapshot and broadcasts it.
func (m *Monitor) publish(ctx context.Context, snapshot *models.UsageSnapshot) {
	m.snapshotMu.Lock()
	m.snapshot = snapshot
	m.snapshotMu.Unlock()

	if m.deps.Snapshots != nil {
		if err := m.deps.Snapshots.Append(ctx, snapshot); err != nil {
			m.logger.Debug().Err(err).Msg("failed to record snapshot history")
		}
	}

	if m.deps.Bus != nil {
		payload, err := json.Marshal(snapshot)
		if err != nil {
			return
		}
		m.deps.Bus.Publish(models.Event{
			Timestamp:  snapshot.FetchedAt,
			Type:       models.EventTypeUsageUpdated,
			EntityType: models.EntityTypeMonitor,
			EntityID:   snapshot.ProfileID,
			Payload:    payload,
		})
	}
}

// evaluateThresholds triggers a proactive swap when either window is at or
// above its threshold. One attempt is made per breach; further attempts
// wait for usage to drop below the thresholds and breach again.
func (m *Monitor) evaluateThresholds(ctx context.Context, profile *models.Profile, snapshot *models.UsageSnapshot) {
	if !m.cfg.ProactiveSwapEnabled {
		return
	}

	limitType, percent, breached := m.breachedWindow(snapshot)
	if !breached {
		m.tickMu.Lock()
		m.breachActive = false
		m.tickMu.Unlock()
		return
	}

	m.tickMu.Lock()
	alreadyHandled := m.breachActive
	m.breachActive = true
	m.tickMu.Unlock()
	if alreadyHandled {
		return
	}

	m.logger.Warn().
		Str("profile", profile.Name).
		Str("limit_type", string(limitType)).
		Float64("percent", percent).
		Msg("usage threshold breached")

	if m.deps.Events != nil {
		_ = events.LogRateLimitDetected(ctx, m.deps.Events, profile.ID, limitType, percent)
	}

	m.attemptSwap(ctx, profile, limitType, percent)
}

func (m *Monitor) breachedWindow(snapshot *models.UsageSnapshot) (models.LimitType, float64, bool) {
	if snapshot.SessionPercent >= m.cfg.SessionThreshold {
		return models.LimitTypeSession, snapshot.SessionPercent, true
	}
	if snapshot.WeeklyPercent >= m.cfg.WeeklyThreshold {
		return models.LimitTypeWeekly, snapshot.WeeklyPercent, true
	}
	return "", 0, false
}

func (m *Monitor) attemptSwap(ctx context.Context, profile *models.Profile, limitType models.LimitType, percent float64) {
	alternative, err := m.deps.Profiles.Alternative(ctx, profile.ID)
	if err != nil {
		m.reportSwapFailure(ctx, profile, models.SwapFailReasonNoAlternative)
		return
	}

	if err := m.deps.Profiles.SwitchTo(ctx, alternative.ID); err != nil {
		m.logger.Error().Err(err).Str("to", alternative.Name).Msg("profile switch failed")
		m.reportSwapFailure(ctx, profile, models.SwapFailReasonSwitchFailed)
		return
	}

	m.logger.Info().
		Str("from", profile.Name).
		Str("to", alternative.Name).
		Str("limit_type", string(limitType)).
		Msg("proactive swap completed")

	if m.deps.Events != nil {
		_ = events.LogSwapCompleted(ctx, m.deps.Events, profile.ID, alternative.ID, limitType)
	}

	if m.deps.Bus != nil {
		completed, _ := json.Marshal(models.SwapCompletedPayload{
			From:      profile.ID,
			To:        alternative.ID,
			LimitType: limitType,
			Timestamp: m.now().UTC(),
		})
		m.deps.Bus.Publish(models.Event{
			Type:       models.EventTypeSwapCompleted,
			EntityType: models.EntityTypeProfile,
			EntityID:   alternative.ID,
			Payload:    completed,
		})

		notification, _ := json.Marshal(models.SwapNotificationPayload{
			FromProfile: profile.Name,
			ToProfile:   alternative.Name,
			LimitType:   limitType,
			Percent:     percent,
		})
		m.deps.Bus.Publish(models.Event{
			Type:       models.EventTypeSwapNotification,
			EntityType: models.EntityTypeProfile,
			EntityID:   alternative.ID,
			Payload:    notification,
		})
	}

	// The new credential starts with fresh windows; retry the
	// authoritative source on the next tick.
	m.tickMu.Lock()
	m.apiFailed = false
	m.tickMu.Unlock()

	if m.deps.Restarter != nil {
		m.deps.Restarter.RestartActiveTasks(ctx, alternative.ID)
	}
}

func (m *Monitor) reportSwapFailure(ctx context.Context, profile *models.Profile, reason string) {
	m.logger.Warn().
		Str("profile", profile.Name).
		Str("reason", reason).
		Msg("proactive swap failed")

	if m.deps.Events != nil {
		_ = events.LogSwapFailed(ctx, m.deps.Events, reason, profile.ID)
	}
	if m.deps.Bus != nil {
		payload, _ := json.Marshal(models.SwapFailedPayload{
			Reason:         reason,
			CurrentProfile: profile.ID,
		})
		m.deps.Bus.Publish(models.Event{
			Type:       models.EventTypeSwapFailed,
			EntityType: models.EntityTypeProfile,
			EntityID:   profile.ID,
			Payload:    payload,
		})
	}
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// formatCountdown renders a duration as a compact "2h 14m" countdown.
func formatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Minute)

	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
