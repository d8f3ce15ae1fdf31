package distance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/callpilot/callpilot/pkg/models"
)

const distanceMatrixURL = "https://maps.googleapis.com/maps/api/distancematrix/json"

// GoogleEstimator queries the Distance Matrix API with a one-hour cache per
// origin/provider pair. Failures log and fall back to the mock.
type GoogleEstimator struct {
	apiKey     string
	httpClient *http.Client
	url        string
	fallback   Estimator
	cache      *minutesCache
}

// NewGoogleEstimator builds the Distance Matrix variant.
func NewGoogleEstimator(apiKey string) *GoogleEstimator {
	return &GoogleEstimator{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		url:        distanceMatrixURL,
		fallback:   MockEstimator{},
		cache:      newMinutesCache(time.Hour),
	}
}

func (g *GoogleEstimator) EstimateTravelMinutes(ctx context.Context, origin string, p models.Provider) (int, error) {
	key := origin + "|" + p.ID
	if minutes, ok := g.cache.get(key); ok {
		return minutes, nil
	}

	minutes, err := g.query(ctx, origin, p)
	if err != nil {
		slog.Warn("distance matrix lookup failed, using mock estimate",
			"provider_id", p.ID, "error", err)
		return g.fallback.EstimateTravelMinutes(ctx, origin, p)
	}

	g.cache.set(key, minutes)
	return minutes, nil
}

func (g *GoogleEstimator) query(ctx context.Context, origin string, p models.Provider) (int, error) {
	destination := p.Address
	if p.Lat != 0 || p.Lng != 0 {
		destination = fmt.Sprintf("%v,%v", p.Lat, p.Lng)
	}

	params := url.Values{}
	params.Set("origins", origin)
	params.Set("destinations", destination)
	params.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url+"?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	res, err := g.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("distance matrix request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("distance matrix status %d", res.StatusCode)
	}

	var payload struct {
		Status string `json:"status"`
		Rows   []struct {
			Elements []struct {
				Status   string `json:"status"`
				Duration struct {
					Value int `json:"value"` // seconds
				} `json:"duration"`
			} `json:"elements"`
		} `json:"rows"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("parse distance matrix response: %w", err)
	}
	if payload.Status != "OK" {
		return 0, fmt.Errorf("distance matrix status %q", payload.Status)
	}
	if len(payload.Rows) == 0 || len(payload.Rows[0].Elements) == 0 {
		return 0, fmt.Errorf("distance matrix returned no elements")
	}
	element := payload.Rows[0].Elements[0]
	if element.Status != "OK" {
		return 0, fmt.Errorf("distance matrix element status %q", element.Status)
	}
	return element.Duration.Value / 60, nil
}

// minutesCache is a TTL cache with lazy expiry.
type minutesCache struct {
	mu      sync.RWMutex
	entries map[string]minutesEntry
	ttl     time.Duration
}

type minutesEntry struct {
	minutes int
	at      time.Time
}

func newMinutesCache(ttl time.Duration) *minutesCache {
	return &minutesCache{entries: make(map[string]minutesEntry), ttl: ttl}
}

func (c *minutesCache) get(key string) (int, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(e.at) > c.ttl {
		c.mu.Lock()
		// Re-check under the write lock before evicting.
		if e2, ok := c.entries[key]; ok && time.Since(e2.at) > c.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return 0, false
	}
	return e.minutes, true
}

func (c *minutesCache) set(key string, minutes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = minutesEntry{minutes: minutes, at: time.Now()}
}
