package ingest

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrStoreUnavailable marks store failures that make continuing the run pointless.
var ErrStoreUnavailable = errors.New("event store unavailable")

// ErrNotFound is returned when an update targets a missing record.
var ErrNotFound = errors.New("record not found")

// Store persists event records.
type Store interface {
	Ping(ctx context.Context) error
	// FindMatch returns the best candidate for q or nil when nothing matches.
	FindMatch(ctx context.Context, q MatchQuery) (*Record, error)
	Insert(ctx context.Context, rec Record) error
	Update(ctx context.Context, id string, patch Patch) error
}

// GeocodeEntry is a cached geocoding result.
type GeocodeEntry struct {
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	DisplayAddress string    `json:"displayAddress"`
	CachedAt       time.Time `json:"cachedAt"`
}

// GeocodeCache stores provider results keyed by the exact query string.
type GeocodeCache interface {
	Get(ctx context.Context, query string) (*GeocodeEntry, error)
	Put(ctx context.Context, query string, entry GeocodeEntry) error
}

// BlobStore writes run artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher derives stable identifiers from content.
type Hasher interface {
	Fingerprint(parts ...string) string
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record and run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
