package distance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callpilot/callpilot/pkg/config"
	"github.com/callpilot/callpilot/pkg/models"
)

func TestMockEstimatorDeterministic(t *testing.T) {
	mock := MockEstimator{}
	p := models.Provider{ID: "prov-123"}

	first, err := mock.EstimateTravelMinutes(context.Background(), "origin", p)
	require.NoError(t, err)
	second, err := mock.EstimateTravelMinutes(context.Background(), "elsewhere", p)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.GreaterOrEqual(t, first, 5)
	assert.LessOrEqual(t, first, 40)
}

func TestMockEstimatorVariesByProvider(t *testing.T) {
	mock := MockEstimator{}
	seen := map[int]bool{}
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		m, err := mock.EstimateTravelMinutes(context.Background(), "o", models.Provider{ID: id})
		require.NoError(t, err)
		seen[m] = true
	}
	assert.Greater(t, len(seen), 1)
}

func matrixResponse(seconds int) map[string]any {
	return map[string]any{
		"status": "OK",
		"rows": []map[string]any{{
			"elements": []map[string]any{{
				"status":   "OK",
				"duration": map[string]any{"value": seconds},
			}},
		}},
	}
}

func newGoogleEstimator(t *testing.T, handler http.HandlerFunc) (*GoogleEstimator, *int) {
	t.Helper()
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	g := NewGoogleEstimator("test-key")
	g.url = server.URL
	g.httpClient = server.Client()
	return g, &calls
}

func TestGoogleEstimatorSuccess(t *testing.T) {
	g, calls := newGoogleEstimator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "home", r.URL.Query().Get("origins"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		json.NewEncoder(w).Encode(matrixResponse(25 * 60))
	})

	minutes, err := g.EstimateTravelMinutes(context.Background(), "home", models.Provider{ID: "p1", Address: "1 Main St"})
	require.NoError(t, err)
	assert.Equal(t, 25, minutes)
	assert.Equal(t, 1, *calls)
}

func TestGoogleEstimatorCaches(t *testing.T) {
	g, calls := newGoogleEstimator(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(matrixResponse(10 * 60))
	})
	p := models.Provider{ID: "p1", Address: "1 Main St"}

	for i := 0; i < 3; i++ {
		minutes, err := g.EstimateTravelMinutes(context.Background(), "home", p)
		require.NoError(t, err)
		assert.Equal(t, 10, minutes)
	}
	assert.Equal(t, 1, *calls)

	// Different origin is a different cache key.
	_, err := g.EstimateTravelMinutes(context.Background(), "work", p)
	require.NoError(t, err)
	assert.Equal(t, 2, *calls)
}

func TestGoogleEstimatorFallsBackOnElementError(t *testing.T) {
	g, _ := newGoogleEstimator(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status": "OK",
			"rows": []map[string]any{{
				"elements": []map[string]any{{"status": "NOT_FOUND"}},
			}},
		})
	})
	p := models.Provider{ID: "p1"}

	minutes, err := g.EstimateTravelMinutes(context.Background(), "home", p)
	require.NoError(t, err)

	want, _ := MockEstimator{}.EstimateTravelMinutes(context.Background(), "home", p)
	assert.Equal(t, want, minutes)
}

func TestGoogleEstimatorFallsBackOnTransportError(t *testing.T) {
	g := NewGoogleEstimator("k")
	g.url = "http://127.0.0.1:1" // refused
	g.httpClient = &http.Client{Timeout: 200 * time.Millisecond}
	p := models.Provider{ID: "p9"}

	minutes, err := g.EstimateTravelMinutes(context.Background(), "home", p)
	require.NoError(t, err)
	want, _ := MockEstimator{}.EstimateTravelMinutes(context.Background(), "home", p)
	assert.Equal(t, want, minutes)
}

func TestNewEstimatorSelection(t *testing.T) {
	s := config.Default()
	_, isMock := NewEstimator(s).(MockEstimator)
	assert.True(t, isMock)

	s.UseDistanceMatrix = true
	s.MapsAPIKey = "k"
	_, isGoogle := NewEstimator(s).(*GoogleEstimator)
	assert.True(t, isGoogle)
}
