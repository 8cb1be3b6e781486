// Package usage implements usage-event aggregation, cost estimation, limit
// calibration, and the authoritative usage API client.
package usage

import (
	"bufio"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/tasklift/autopilot/internal/logging"
	"github.com/tasklift/autopilot/internal/models"
)

// epoch seconds for 2100-01-01T00:00:00Z; numeric timestamps at or above
// this are millisecond epochs, below it second epochs.
const year2100EpochSeconds = 4102444800

const (
	maxLineBytes     = 10 * 1024 * 1024
	initialLineBytes = 1024 * 1024
)

// rawRecord maps the JSONL field variants we care about. Older logs carry
// token counts at the top level; newer ones nest them under message.usage.
type rawRecord struct {
	Type        string          `json:"type"`
	Timestamp   json.RawMessage `json:"timestamp"`
	IsSidechain bool            `json:"isSidechain"`
	CostUSD     *float64        `json:"costUSD"`
	RequestID   string          `json:"requestId"`

	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`

	Message *struct {
		ID    string `json:"id"`
		Model string `json:"model"`
		Usage *struct {
			InputTokens              int64 `json:"input_tokens"`
			OutputTokens             int64 `json:"output_tokens"`
			CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
			CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

// ParseStats counts records that were dropped during parsing.
type ParseStats struct {
	// Skipped counts records with no usage data, missing timestamps,
	// or zero tokens across all kinds.
	Skipped int

	// Errors counts malformed JSON lines and unreadable files.
	Errors int
}

// Aggregator scans agent session logs and reduces them to windowed totals.
type Aggregator struct {
	estimator *Estimator
	logger    zerolog.Logger
}

// NewAggregator creates an Aggregator using the given cost estimator.
func NewAggregator(estimator *Estimator) *Aggregator {
	if estimator == nil {
		estimator = NewEstimator()
	}
	return &Aggregator{
		estimator: estimator,
		logger:    logging.Component("aggregator"),
	}
}

// Result holds the two windows produced by one aggregation pass.
type Result struct {
	Session models.AggregatedWindow
	Weekly  models.AggregatedWindow
	Stats   ParseStats
}

// AggregateDir walks a directory tree of .jsonl log files and aggregates
// every event into session and weekly windows. An unreadable file is
// counted and skipped; it never aborts the pass.
func (a *Aggregator) AggregateDir(dataDir string, sessionCutoff, weeklyCutoff time.Time) Result {
	var paths []string
	_ = filepath.WalkDir(dataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".jsonl" {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	sort.Strings(paths)

	return a.AggregateFiles(paths, sessionCutoff, weeklyCutoff)
}

// AggregateFiles aggregates the given log files into session and weekly
// windows. The session window is a subset filter over the same events, not
// a separate pass.
func (a *Aggregator) AggregateFiles(paths []string, sessionCutoff, weeklyCutoff time.Time) Result {
	var (
		stats  ParseStats
		events []models.UsageEvent
	)

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			a.logger.Debug().Str("path", path).Err(err).Msg("skipping unreadable log file")
			stats.Errors++
			continue
		}

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, initialLineBytes), maxLineBytes)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			event, ok := a.parseLine(line, &stats)
			if !ok {
				continue
			}
			if event.Timestamp.Before(weeklyCutoff) {
				continue
			}
			events = append(events, event)
		}
		if err := scanner.Err(); err != nil {
			stats.Errors++
		}
		f.Close()
	}

	events = dedup(events)

	result := Result{Stats: stats}
	for i := range events {
		e := &events[i]
		cost := a.estimator.EventCost(e)
		result.Weekly.Add(e, cost)
		if !e.Timestamp.Before(sessionCutoff) {
			result.Session.Add(e, cost)
		}
	}
	return result
}

// parseLine normalizes one JSONL line into a UsageEvent. Records that are
// not billable usage (sidechain, zero tokens, no timestamp) are dropped.
func (a *Aggregator) parseLine(line []byte, stats *ParseStats) (models.UsageEvent, bool) {
	var rec rawRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		stats.Errors++
		return models.UsageEvent{}, false
	}

	event := models.UsageEvent{
		Sidechain: rec.IsSidechain,
		CostUSD:   rec.CostUSD,
		RequestID: rec.RequestID,
	}

	if rec.Message != nil && rec.Message.Usage != nil {
		event.MessageID = rec.Message.ID
		event.Model = rec.Message.Model
		event.InputTokens = rec.Message.Usage.InputTokens
		event.OutputTokens = rec.Message.Usage.OutputTokens
		event.CacheWriteTokens = rec.Message.Usage.CacheCreationInputTokens
		event.CacheReadTokens = rec.Message.Usage.CacheReadInputTokens
	} else {
		event.InputTokens = rec.InputTokens
		event.OutputTokens = rec.OutputTokens
		event.CacheWriteTokens = rec.CacheCreationInputTokens
		event.CacheReadTokens = rec.CacheReadInputTokens
	}

	if event.Sidechain {
		stats.Skipped++
		return models.UsageEvent{}, false
	}
	if event.TotalTokens() == 0 {
		// Housekeeping records (summaries, tool results) carry no usage.
		stats.Skipped++
		return models.UsageEvent{}, false
	}

	ts, ok := parseTimestamp(rec.Timestamp)
	if !ok {
		stats.Skipped++
		return models.UsageEvent{}, false
	}
	event.Timestamp = ts

	return event, true
}

// parseTimestamp accepts RFC3339 strings and second- or millisecond-
// precision numeric epochs.
func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, false
		}
		return ts.UTC(), true
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
		return time.Time{}, false
	}

	if n < year2100EpochSeconds {
		return time.Unix(int64(n), 0).UTC(), true
	}
	return time.UnixMilli(int64(n)).UTC(), true
}

// dedup removes duplicate events by message:request key, keeping the
// earliest occurrence. Entries without IDs are kept as-is.
func dedup(events []models.UsageEvent) []models.UsageEvent {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	seen := make(map[string]struct{}, len(events))
	result := events[:0]
	for _, e := range events {
		key := e.DedupKey()
		if key == ":" {
			result = append(result, e)
			continue
		}
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, e)
	}
	return result
}
