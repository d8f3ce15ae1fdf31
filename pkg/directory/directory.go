// Package directory finds providers to call and remembers every provider it
// has ever returned, so later phases can resolve ids without re-searching.
package directory

import (
	"context"
	"sync"

	"github.com/callpilot/callpilot/pkg/config"
	"github.com/callpilot/callpilot/pkg/models"
)

// Directory searches providers for a service near a location. lat/lng are
// optional and bias the search when present.
type Directory interface {
	Search(ctx context.Context, service, location string, lat, lng *float64) ([]models.Provider, error)
}

// Registry is the process-wide provider-by-id cache. Every search result is
// registered; campaign allow-lists resolve against it without a search.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]models.Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]models.Provider)}
}

// Put records providers by id, overwriting stale entries.
func (r *Registry) Put(providers ...models.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range providers {
		r.byID[p.ID] = p
	}
}

// Get returns one provider by id.
func (r *Registry) Get(id string) (models.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// GetAll resolves ids in order. It is all-or-miss: one unknown id makes the
// whole lookup fail so callers fall back to a fresh search.
func (r *Registry) GetAll(ids []string) ([]models.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Provider, 0, len(ids))
	for _, id := range ids {
		p, ok := r.byID[id]
		if !ok {
			return nil, false
		}
		out = append(out, p)
	}
	return out, true
}

// Len returns the number of cached providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// New picks the directory variant from settings. Search results are
// registered in registry on every path.
func New(settings *config.Settings, registry *Registry) Directory {
	demo := NewDemoDirectory(registry)
	if settings.UsePlaces && settings.PlacesAPIKey != "" {
		return NewPlacesDirectory(settings.PlacesAPIKey, registry, demo)
	}
	return demo
}
