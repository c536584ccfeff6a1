package memory

import (
	"context"
	"sync"

	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
)

// GeocodeCache is a process-local geocode cache.
type GeocodeCache struct {
	mu      sync.RWMutex
	entries map[string]ingest.GeocodeEntry
}

// NewGeocodeCache constructs an empty cache.
func NewGeocodeCache() *GeocodeCache {
	return &GeocodeCache{entries: make(map[string]ingest.GeocodeEntry)}
}

// Get returns the entry for query or nil.
func (c *GeocodeCache) Get(_ context.Context, query string) (*ingest.GeocodeEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[query]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// Put stores an entry, replacing any previous one.
func (c *GeocodeCache) Put(_ context.Context, query string, entry ingest.GeocodeEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[query] = entry
	return nil
}

// Len returns the number of cached queries.
func (c *GeocodeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
