package usage

import (
	"github.com/tasklift/autopilot/internal/models"
)

// Per-million-token rates in USD. Cache reads are priced far below fresh
// input and cache writes above it, matching the backend's pricing
// asymmetry.
const (
	RateInputPerMTok      = 3.00
	RateOutputPerMTok     = 15.00
	RateCacheWritePerMTok = 3.75
	RateCacheReadPerMTok  = 0.30
)

const tokensPerMillion = 1_000_000

// Estimator converts token counts to USD cost.
type Estimator struct {
	inputRate      float64
	outputRate     float64
	cacheWriteRate float64
	cacheReadRate  float64
}

// NewEstimator creates an Estimator with the default rates.
func NewEstimator() *Estimator {
	return &Estimator{
		inputRate:      RateInputPerMTok,
		outputRate:     RateOutputPerMTok,
		cacheWriteRate: RateCacheWritePerMTok,
		cacheReadRate:  RateCacheReadPerMTok,
	}
}

// Cost returns the USD cost of the given token counts as a weighted linear
// sum over the four per-MTok rates.
func (e *Estimator) Cost(inputTokens, outputTokens, cacheReadTokens, cacheWriteTokens int64) float64 {
	return float64(inputTokens)*e.inputRate/tokensPerMillion +
		float64(outputTokens)*e.outputRate/tokensPerMillion +
		float64(cacheReadTokens)*e.cacheReadRate/tokensPerMillion +
		float64(cacheWriteTokens)*e.cacheWriteRate/tokensPerMillion
}

// EventCost returns the cost of one event. A precomputed cost on the event
// always takes precedence over rate-based estimation.
func (e *Estimator) EventCost(event *models.UsageEvent) float64 {
	if event.CostUSD != nil {
		return *event.CostUSD
	}
	return e.Cost(event.InputTokens, event.OutputTokens, event.CacheReadTokens, event.CacheWriteTokens)
}
