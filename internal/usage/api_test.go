package usage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok_123", r.Header.Get("Authorization"))
		require.Equal(t, "oauth-2025-04-20", r.Header.Get("anthropic-beta"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"five_hour_utilization": 0.42,
			"seven_day_utilization": 0.10,
			"five_hour_reset_at": "2026-08-24T12:00:00Z",
			"seven_day_reset_at": "2026-08-29T00:00:00Z"
		}`))
	}))
	defer server.Close()

	client := NewClient(WithEndpoint(server.URL))
	usage, err := client.Fetch(context.Background(), "tok_123")
	require.NoError(t, err)
	require.InDelta(t, 0.42, usage.FiveHourUtilization, 1e-9)
	require.InDelta(t, 0.10, usage.SevenDayUtilization, 1e-9)

	reset, err := usage.SessionResetTime()
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC), reset.UTC())
}

func TestClientFetchNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(WithEndpoint(server.URL))
	_, err := client.Fetch(context.Background(), "tok_123")
	require.ErrorContains(t, err, "429")
}

func TestClientFetchMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewClient(WithEndpoint(server.URL))
	_, err := client.Fetch(context.Background(), "tok_123")
	require.Error(t, err)
}

func TestClientFetchNegativeUtilization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"five_hour_utilization": -0.1, "seven_day_utilization": 0.1}`))
	}))
	defer server.Close()

	client := NewClient(WithEndpoint(server.URL))
	_, err := client.Fetch(context.Background(), "tok_123")
	require.ErrorContains(t, err, "negative")
}

func TestClientFetchRequiresToken(t *testing.T) {
	client := NewClient()
	_, err := client.Fetch(context.Background(), "")
	require.Error(t, err)
}
