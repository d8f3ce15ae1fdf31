package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTokenSource struct {
	access     string
	refreshed  string
	refreshes  int
	refreshErr error
}

func (c *countingTokenSource) AccessToken(context.Context) (string, error) {
	return c.access, nil
}

func (c *countingTokenSource) RefreshAccessToken(context.Context) (string, error) {
	c.refreshes++
	if c.refreshErr != nil {
		return "", c.refreshErr
	}
	return c.refreshed, nil
}

func freeBusyBody(busy ...[2]string) map[string]any {
	blocks := make([]map[string]string, 0, len(busy))
	for _, b := range busy {
		blocks = append(blocks, map[string]string{"start": b[0], "end": b[1]})
	}
	return map[string]any{
		"calendars": map[string]any{
			"primary": map[string]any{"busy": blocks},
		},
	}
}

func newUserSource(t *testing.T, ts TokenSource, handler http.HandlerFunc) *UserBusySource {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	src := NewUserBusySource(ts)
	src.url = server.URL
	src.httpClient = server.Client()
	return src
}

func TestUserBusySourceSuccess(t *testing.T) {
	ts := &countingTokenSource{access: "good"}
	src := newUserSource(t, ts, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer good", r.Header.Get("Authorization"))
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req, "timeMin")
		json.NewEncoder(w).Encode(freeBusyBody(
			[2]string{"2025-03-17T12:00:00Z", "2025-03-17T13:00:00Z"},
		))
	})

	busy, err := src.BusyIntervals(context.Background(),
		time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 17, 17, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, busy, 1)
	assert.Equal(t, 12, busy[0].Start.Hour())
	assert.Equal(t, 0, ts.refreshes)
}

func TestUserBusySourceRefreshOn401(t *testing.T) {
	ts := &countingTokenSource{access: "stale", refreshed: "fresh"}
	src := newUserSource(t, ts, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer stale" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(freeBusyBody())
	})

	busy, err := src.BusyIntervals(context.Background(), time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, busy)
	assert.Equal(t, 1, ts.refreshes)
}

func TestUserBusySourceSecond401IsUnavailable(t *testing.T) {
	ts := &countingTokenSource{access: "stale", refreshed: "still-stale"}
	src := newUserSource(t, ts, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := src.BusyIntervals(context.Background(), time.Now(), time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrCalendarUnavailable)
	assert.Equal(t, 1, ts.refreshes, "exactly one refresh attempt")
}

func TestUserBusySourceRefreshFailure(t *testing.T) {
	ts := &countingTokenSource{access: "stale", refreshErr: errors.New("revoked")}
	src := newUserSource(t, ts, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := src.BusyIntervals(context.Background(), time.Now(), time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrCalendarUnavailable)
}

func TestUserBusySourceServerError(t *testing.T) {
	ts := &countingTokenSource{access: "good"}
	src := newUserSource(t, ts, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := src.BusyIntervals(context.Background(), time.Now(), time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrCalendarUnavailable)
	assert.Equal(t, 0, ts.refreshes, "5xx must not trigger a refresh")
}

func TestUserBusySourceMalformedPayload(t *testing.T) {
	ts := &countingTokenSource{access: "good"}
	src := newUserSource(t, ts, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"calendars": {}}`))
	})

	_, err := src.BusyIntervals(context.Background(), time.Now(), time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrCalendarUnavailable)
}
