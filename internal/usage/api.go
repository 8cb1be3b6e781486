package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	// DefaultUsageEndpoint is the authoritative usage API.
	DefaultUsageEndpoint = "https://api.anthropic.com/api/oauth/usage"

	anthropicBetaHeader = "oauth-2025-04-20"
	requestTimeout      = 5 * time.Second
	userAgent           = "autopilot/1.0"
)

// APIUsage is the parsed authoritative usage response.
type APIUsage struct {
	// FiveHourUtilization and SevenDayUtilization are fractions in
	// [0.0, 1.0] of each rate-limit window.
	FiveHourUtilization float64 `json:"five_hour_utilization"`
	SevenDayUtilization float64 `json:"seven_day_utilization"`

	// FiveHourResetAt and SevenDayResetAt are RFC3339 reset timestamps.
	FiveHourResetAt string `json:"five_hour_reset_at"`
	SevenDayResetAt string `json:"seven_day_reset_at"`

	// FetchedAt is when the response was received.
	FetchedAt time.Time `json:"-"`
}

// SessionResetTime parses the five-hour reset timestamp.
func (u *APIUsage) SessionResetTime() (time.Time, error) {
	return time.Parse(time.RFC3339, u.FiveHourResetAt)
}

// WeeklyResetTime parses the seven-day reset timestamp.
func (u *APIUsage) WeeklyResetTime() (time.Time, error) {
	return time.Parse(time.RFC3339, u.SevenDayResetAt)
}

// Client fetches usage from the authoritative endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithEndpoint overrides the usage endpoint, primarily for tests.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a usage API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   DefaultUsageEndpoint,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves current usage for the bearer token. Any non-2xx status
// or malformed body is an error; callers treat it as a source failure and
// fall back to local estimation.
func (c *Client) Fetch(ctx context.Context, token string) (*APIUsage, error) {
	if token == "" {
		return nil, fmt.Errorf("usage api token is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create usage request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("anthropic-beta", anthropicBetaHeader)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("usage api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("usage api returned status %d", resp.StatusCode)
	}

	var usage APIUsage
	if err := json.NewDecoder(resp.Body).Decode(&usage); err != nil {
		return nil, fmt.Errorf("decode usage response: %w", err)
	}
	if usage.FiveHourUtilization < 0 || usage.SevenDayUtilization < 0 {
		return nil, fmt.Errorf("usage api returned negative utilization")
	}

	usage.FetchedAt = time.Now().UTC()
	return &usage, nil
}
