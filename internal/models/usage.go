package models

import (
	"time"
)

// UsageEvent is one normalized usage record parsed from an agent session log.
//
// Log files from different agent versions use a handful of timestamp and
// field-name variants; the parser normalizes all of them into this shape so
// nothing downstream ever touches raw JSON.
type UsageEvent struct {
	// Timestamp is when the underlying API call happened.
	Timestamp time.Time `json:"timestamp"`

	// InputTokens is the number of non-cached input tokens.
	InputTokens int64 `json:"input_tokens"`

	// OutputTokens is the number of generated tokens.
	OutputTokens int64 `json:"output_tokens"`

	// CacheWriteTokens is the number of cache-creation input tokens.
	CacheWriteTokens int64 `json:"cache_write_tokens"`

	// CacheReadTokens is the number of cache-read input tokens.
	CacheReadTokens int64 `json:"cache_read_tokens"`

	// CostUSD is the precomputed cost carried by the record, if any.
	// When present it takes precedence over rate-based estimation.
	CostUSD *float64 `json:"cost_usd,omitempty"`

	// Sidechain marks nested/parallel sub-work that is not billed
	// against the primary quota.
	Sidechain bool `json:"sidechain,omitempty"`

	// MessageID and RequestID identify the API call for deduplication.
	MessageID string `json:"message_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// Model is the model that served the call, when recorded.
	Model string `json:"model,omitempty"`
}

// TotalTokens returns the sum of all token kinds.
func (e *UsageEvent) TotalTokens() int64 {
	return e.InputTokens + e.OutputTokens + e.CacheWriteTokens + e.CacheReadTokens
}

// DedupKey returns the message:request key used for deduplication.
func (e *UsageEvent) DedupKey() string {
	return e.MessageID + ":" + e.RequestID
}

// AggregatedWindow accumulates usage over one time window.
//
// A window is built up by folding in-window events and is treated as
// immutable once returned from the aggregator.
type AggregatedWindow struct {
	// InputTokens is the summed non-cached input tokens.
	InputTokens int64 `json:"input_tokens"`

	// OutputTokens is the summed output tokens.
	OutputTokens int64 `json:"output_tokens"`

	// CacheWriteTokens is the summed cache-creation tokens.
	CacheWriteTokens int64 `json:"cache_write_tokens"`

	// CacheReadTokens is the summed cache-read tokens.
	CacheReadTokens int64 `json:"cache_read_tokens"`

	// TotalTokens is the sum across all token kinds.
	TotalTokens int64 `json:"total_tokens"`

	// CostUSD is the estimated cost for the window.
	CostUSD float64 `json:"cost_usd"`

	// EventCount is the number of events folded in.
	EventCount int64 `json:"event_count"`

	// OldestEvent and NewestEvent bound the events actually seen.
	OldestEvent time.Time `json:"oldest_event,omitempty"`
	NewestEvent time.Time `json:"newest_event,omitempty"`
}

// Add folds one event into the window.
func (w *AggregatedWindow) Add(e *UsageEvent, cost float64) {
	w.InputTokens += e.InputTokens
	w.OutputTokens += e.OutputTokens
	w.CacheWriteTokens += e.CacheWriteTokens
	w.CacheReadTokens += e.CacheReadTokens
	w.TotalTokens += e.TotalTokens()
	w.CostUSD += cost
	w.EventCount++

	if w.OldestEvent.IsZero() || e.Timestamp.Before(w.OldestEvent) {
		w.OldestEvent = e.Timestamp
	}
	if e.Timestamp.After(w.NewestEvent) {
		w.NewestEvent = e.Timestamp
	}
}

// UsageSnapshot is the externally visible result of one monitor cycle.
type UsageSnapshot struct {
	// ProfileID identifies the credential profile the snapshot is for.
	ProfileID string `json:"profile_id"`

	// ProfileName is the human-readable profile name.
	ProfileName string `json:"profile_name"`

	// SessionPercent is session-window utilization, clamped to [0, 100].
	SessionPercent float64 `json:"session_percent"`

	// WeeklyPercent is weekly-window utilization, clamped to [0, 100].
	WeeklyPercent float64 `json:"weekly_percent"`

	// SessionResetsIn and WeeklyResetsIn are human-readable countdowns
	// until each window resets (e.g. "2h 14m").
	SessionResetsIn string `json:"session_resets_in,omitempty"`
	WeeklyResetsIn  string `json:"weekly_resets_in,omitempty"`

	// Estimated is true when the snapshot was derived from local logs
	// rather than the authoritative usage API.
	Estimated bool `json:"estimated"`

	// SessionTokens and WeeklyTokens carry raw token totals when the
	// snapshot is estimated.
	SessionTokens int64 `json:"session_tokens,omitempty"`
	WeeklyTokens  int64 `json:"weekly_tokens,omitempty"`

	// FetchedAt is when the snapshot was produced.
	FetchedAt time.Time `json:"fetched_at"`
}

// CalibratedLimits is the persisted best estimate of the cost ceiling for
// one credential profile.
type CalibratedLimits struct {
	// ProfileID is the profile these limits belong to.
	ProfileID string `json:"profile_id"`

	// SessionLimitUSD is the estimated session-window cost ceiling.
	SessionLimitUSD float64 `json:"session_limit_usd"`

	// WeeklyLimitUSD is the estimated weekly-window cost ceiling.
	WeeklyLimitUSD float64 `json:"weekly_limit_usd"`

	// SampleCount is how many observations have been blended in.
	SampleCount int64 `json:"sample_count"`

	// UpdatedAt is when the limits were last adjusted.
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the calibrated limits are valid.
func (l *CalibratedLimits) Validate() error {
	validation := &ValidationErrors{}
	if l.ProfileID == "" {
		validation.AddMessage("profile_id", "profile_id is required")
	}
	if l.SessionLimitUSD <= 0 {
		validation.AddMessage("session_limit_usd", "session_limit_usd must be positive")
	}
	if l.WeeklyLimitUSD <= 0 {
		validation.AddMessage("weekly_limit_usd", "weekly_limit_usd must be positive")
	}
	return validation.Err()
}
