// Package memory provides in-memory stores for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
)

// EventStore keeps records in insertion order.
type EventStore struct {
	mu      sync.RWMutex
	records map[string]ingest.Record
	order   []string
	// Unavailable makes every call fail with ingest.ErrStoreUnavailable.
	Unavailable bool
}

// NewEventStore constructs an empty EventStore.
func NewEventStore(seed ...ingest.Record) *EventStore {
	s := &EventStore{records: make(map[string]ingest.Record)}
	for _, r := range seed {
		s.records[r.ID] = r
		s.order = append(s.order, r.ID)
	}
	return s
}

// Ping reports availability.
func (s *EventStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Unavailable {
		return ingest.ErrStoreUnavailable
	}
	return nil
}

// FindMatch returns the matching record with the nearest start. Ties keep
// the oldest record.
func (s *EventStore) FindMatch(_ context.Context, q ingest.MatchQuery) (*ingest.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Unavailable {
		return nil, ingest.ErrStoreUnavailable
	}
	var best *ingest.Record
	for _, id := range s.order {
		rec := s.records[id]
		if !q.Matches(rec) {
			continue
		}
		if best == nil || q.Distance(rec) < q.Distance(*best) {
			r := rec
			best = &r
		}
	}
	return best, nil
}

// Insert stores a new record.
func (s *EventStore) Insert(_ context.Context, rec ingest.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Unavailable {
		return ingest.ErrStoreUnavailable
	}
	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("record %s already exists", rec.ID)
	}
	s.records[rec.ID] = rec
	s.order = append(s.order, rec.ID)
	return nil
}

// Update applies a patch to an existing record.
func (s *EventStore) Update(_ context.Context, id string, patch ingest.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Unavailable {
		return ingest.ErrStoreUnavailable
	}
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, ingest.ErrNotFound)
	}
	rec.Apply(patch)
	s.records[id] = rec
	return nil
}

// Get returns a copy of a record.
func (s *EventStore) Get(id string) (ingest.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// All returns every record ordered by insertion.
func (s *EventStore) All() []ingest.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

// CountBySource tallies live records per source.
func (s *EventStore) CountBySource() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, rec := range s.records {
		if !rec.Deleted {
			out[rec.Source]++
		}
	}
	return out
}
