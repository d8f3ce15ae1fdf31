package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/callpilot/callpilot/pkg/models"
)

const (
	placesBaseURL = "https://maps.googleapis.com/maps/api/place"

	// searchRadiusKm bounds nearby searches around the given coordinates.
	searchRadiusKm = 25

	// maxSearchResults caps what one Places query contributes.
	maxSearchResults = 20
)

// PlacesDirectory searches the Google Places API: nearby search when
// coordinates are given, text search otherwise, plus a details lookup for
// each phone number. Any failure falls back to the demo dataset.
type PlacesDirectory struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	registry   *Registry
	fallback   Directory
	cache      *searchCache
}

// NewPlacesDirectory builds the Places variant.
func NewPlacesDirectory(apiKey string, registry *Registry, fallback Directory) *PlacesDirectory {
	if registry == nil {
		panic("directory.NewPlacesDirectory: registry is required")
	}
	return &PlacesDirectory{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    placesBaseURL,
		registry:   registry,
		fallback:   fallback,
		cache:      newSearchCache(time.Hour),
	}
}

func (d *PlacesDirectory) Search(ctx context.Context, service, location string, lat, lng *float64) ([]models.Provider, error) {
	key := cacheKey(service, location, lat, lng)
	if cached, ok := d.cache.get(key); ok {
		return cached, nil
	}

	providers, err := d.search(ctx, service, location, lat, lng)
	if err != nil {
		slog.Warn("places search failed, falling back to demo directory",
			"service", service, "location", location, "error", err)
		if d.fallback != nil {
			return d.fallback.Search(ctx, service, location, lat, lng)
		}
		return nil, err
	}

	d.registry.Put(providers...)
	d.cache.set(key, providers)
	return providers, nil
}

func (d *PlacesDirectory) search(ctx context.Context, service, location string, lat, lng *float64) ([]models.Provider, error) {
	var (
		results []placeResult
		err     error
	)
	if lat != nil && lng != nil {
		results, err = d.nearbySearch(ctx, service, *lat, *lng)
	} else {
		results, err = d.textSearch(ctx, service, location)
	}
	if err != nil {
		return nil, err
	}
	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}

	providers := make([]models.Provider, 0, len(results))
	for _, r := range results {
		phone, err := d.phoneNumber(ctx, r.PlaceID)
		if err != nil {
			slog.Debug("place details lookup failed", "place_id", r.PlaceID, "error", err)
		}
		address := r.FormattedAddress
		if address == "" {
			address = r.Vicinity
		}
		providers = append(providers, models.Provider{
			ID:       r.PlaceID,
			Name:     r.Name,
			Phone:    phone,
			Address:  address,
			Lat:      r.Geometry.Location.Lat,
			Lng:      r.Geometry.Location.Lng,
			Rating:   r.Rating,
			Services: []string{service},
		})
	}
	return providers, nil
}

type placeResult struct {
	PlaceID          string  `json:"place_id"`
	Name             string  `json:"name"`
	FormattedAddress string  `json:"formatted_address"`
	Vicinity         string  `json:"vicinity"`
	Rating           float64 `json:"rating"`
	Geometry         struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

func (d *PlacesDirectory) textSearch(ctx context.Context, service, location string) ([]placeResult, error) {
	params := url.Values{}
	params.Set("query", service+" in "+location)
	params.Set("key", d.apiKey)
	return d.fetchResults(ctx, d.baseURL+"/textsearch/json?"+params.Encode())
}

func (d *PlacesDirectory) nearbySearch(ctx context.Context, service string, lat, lng float64) ([]placeResult, error) {
	params := url.Values{}
	params.Set("location", fmt.Sprintf("%v,%v", lat, lng))
	params.Set("radius", fmt.Sprintf("%d", searchRadiusKm*1000))
	params.Set("keyword", service)
	params.Set("key", d.apiKey)
	return d.fetchResults(ctx, d.baseURL+"/nearbysearch/json?"+params.Encode())
}

func (d *PlacesDirectory) fetchResults(ctx context.Context, rawURL string) ([]placeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	res, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("places request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("places status %d", res.StatusCode)
	}

	var payload struct {
		Status  string        `json:"status"`
		Results []placeResult `json:"results"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("parse places response: %w", err)
	}
	if payload.Status != "OK" && payload.Status != "ZERO_RESULTS" {
		return nil, fmt.Errorf("places status %q", payload.Status)
	}
	return payload.Results, nil
}

func (d *PlacesDirectory) phoneNumber(ctx context.Context, placeID string) (string, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", "international_phone_number,formatted_phone_number")
	params.Set("key", d.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/details/json?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	res, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("details request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("details status %d", res.StatusCode)
	}

	var payload struct {
		Result struct {
			InternationalPhoneNumber string `json:"international_phone_number"`
			FormattedPhoneNumber     string `json:"formatted_phone_number"`
		} `json:"result"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("parse details response: %w", err)
	}
	phone := payload.Result.InternationalPhoneNumber
	if phone == "" {
		phone = payload.Result.FormattedPhoneNumber
	}
	phone = strings.ReplaceAll(phone, " ", "")
	phone = strings.ReplaceAll(phone, "-", "")
	return phone, nil
}

func cacheKey(service, location string, lat, lng *float64) string {
	latS, lngS := "", ""
	if lat != nil {
		latS = fmt.Sprintf("%v", *lat)
	}
	if lng != nil {
		lngS = fmt.Sprintf("%v", *lng)
	}
	return fmt.Sprintf("%s|%s|%d|%s|%s", service, location, searchRadiusKm, latS, lngS)
}

// searchCache is a TTL cache with lazy expiry.
type searchCache struct {
	mu      sync.RWMutex
	entries map[string]searchEntry
	ttl     time.Duration
}

type searchEntry struct {
	providers []models.Provider
	at        time.Time
}

func newSearchCache(ttl time.Duration) *searchCache {
	return &searchCache{entries: make(map[string]searchEntry), ttl: ttl}
}

func (c *searchCache) get(key string) ([]models.Provider, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Since(e.at) > c.ttl {
		c.mu.Lock()
		if e2, ok := c.entries[key]; ok && time.Since(e2.at) > c.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.providers, true
}

func (c *searchCache) set(key string, providers []models.Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = searchEntry{providers: providers, at: time.Now()}
}
