package usage

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tasklift/autopilot/internal/models"
)

func TestEstimatorCost(t *testing.T) {
	e := NewEstimator()

	// 1M of each token kind at the published rates.
	cost := e.Cost(1_000_000, 1_000_000, 1_000_000, 1_000_000)
	require.InDelta(t, 3.00+15.00+0.30+3.75, cost, 1e-9)

	require.Zero(t, e.Cost(0, 0, 0, 0))
}

func TestEventCostPrefersPrecomputed(t *testing.T) {
	e := NewEstimator()

	precomputed := 1.23
	event := &models.UsageEvent{
		InputTokens:  1_000_000,
		OutputTokens: 1_000_000,
		CostUSD:      &precomputed,
	}
	require.Equal(t, precomputed, e.EventCost(event))

	event.CostUSD = nil
	require.InDelta(t, 18.00, e.EventCost(event), 1e-9)
}
