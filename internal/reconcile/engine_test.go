package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/artem-schander/protest-scraper-sub000/internal/clock/system"
	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
	"github.com/artem-schander/protest-scraper-sub000/internal/storage/memory"
)

var (
	created = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	now     = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	start   = time.Date(2025, 3, 15, 13, 0, 0, 0, time.UTC)
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("id-%d", s.n), nil
}

func newEngine(store ingest.Store) *Engine {
	return New(store, &seqIDs{}, system.Fixed(now), Config{}, nil)
}

func sampleDraft() ingest.Draft {
	d := ingest.NewDraft("berlin-police")
	d.Title = "Demo gegen Rechts"
	d.City = "Berlin"
	d.Country = "DE"
	d.Language = "de-DE"
	s := start
	d.Start = &s
	d.StartTimeKnown = true
	d.Location = "10117 Berlin, Mitte"
	d.URL = "https://www.berlin.de/demos#abc"
	d.Categories = []string{ingest.CategoryDemonstration}
	return d
}

func existing(d ingest.Draft) ingest.Record {
	r := ingest.RecordFromDraft("rec-1", d, created)
	r.Verified = false
	return r
}

func TestImportInsertsNewDrafts(t *testing.T) {
	store := memory.NewEventStore()
	d := sampleDraft()
	attendees := 1500
	d.Attendees = &attendees
	d.Coordinates = &ingest.Point{Lat: 52.5, Lon: 13.4}

	summary, err := newEngine(store).Import(context.Background(), []ingest.Draft{d})
	require.NoError(t, err)
	require.Equal(t, ingest.Summary{Total: 1, Inserted: 1}, summary)

	rec, ok := store.Get("id-1")
	require.True(t, ok)
	require.Equal(t, d.Title, rec.Title)
	require.True(t, rec.Verified)
	require.Nil(t, rec.CreatedBy)
	require.Equal(t, now, rec.CreatedAt)
	require.Equal(t, now, rec.UpdatedAt)
	require.Equal(t, 52.5, rec.Coordinates.Lat)
}

func TestImportRespectsEditedFields(t *testing.T) {
	d := sampleDraft()
	rec := existing(d)
	rec.Title = "Korrigierter Titel"
	rec.ManuallyEdited = true
	rec.EditedFields = ingest.NewFieldSet("title")
	store := memory.NewEventStore(rec)

	d.Title = "Demo gegen Rechts!!"
	d.City = "Berlin"
	summary, err := newEngine(store).Import(context.Background(), []ingest.Draft{d})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Updated)

	got, _ := store.Get("rec-1")
	require.Equal(t, "Korrigierter Titel", got.Title)
	require.True(t, got.Verified)
	require.Equal(t, now, got.UpdatedAt)
	require.True(t, got.ManuallyEdited)
}

func TestImportShouldDeleteOnlyFlagsDeleted(t *testing.T) {
	d := sampleDraft()
	rec := existing(d)
	rec.ManuallyEdited = true
	store := memory.NewEventStore(rec)

	d.ShouldDelete = true
	d.Title = "Changed upstream"
	d.Location = "somewhere else"
	summary, err := newEngine(store).Import(context.Background(), []ingest.Draft{d})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Deleted)

	got, _ := store.Get("rec-1")
	require.True(t, got.Deleted)
	want := rec
	want.Deleted = true
	require.Equal(t, want, got)
}

func TestImportShouldDeleteWithoutMatchWritesNothing(t *testing.T) {
	store := memory.NewEventStore()
	d := sampleDraft()
	d.ShouldDelete = true
	summary, err := newEngine(store).Import(context.Background(), []ingest.Draft{d})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Skipped)
	require.Empty(t, store.All())
}

func TestImportSkipsFullyManualAndDeleted(t *testing.T) {
	d := sampleDraft()
	manual := existing(d)
	manual.FullyManual = true
	store := memory.NewEventStore(manual)

	summary, err := newEngine(store).Import(context.Background(), []ingest.Draft{d})
	require.NoError(t, err)
	require.Equal(t, ingest.Summary{Total: 1, Skipped: 1}, summary)
	got, _ := store.Get("rec-1")
	require.Equal(t, manual, got)

	deleted := existing(d)
	deleted.Deleted = true
	store = memory.NewEventStore(deleted)
	summary, err = newEngine(store).Import(context.Background(), []ingest.Draft{d})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Skipped)
	got, _ = store.Get("rec-1")
	require.Equal(t, deleted, got)
}

func TestImportClearsCreatedBy(t *testing.T) {
	d := sampleDraft()
	rec := existing(d)
	author := "user-42"
	rec.CreatedBy = &author
	store := memory.NewEventStore(rec)

	_, err := newEngine(store).Import(context.Background(), []ingest.Draft{d})
	require.NoError(t, err)
	got, _ := store.Get("rec-1")
	require.Nil(t, got.CreatedBy)
}

func TestImportMatchesRescheduledEvent(t *testing.T) {
	d := sampleDraft()
	store := memory.NewEventStore(existing(d))

	moved := start.Add(48 * time.Hour)
	d.Start = &moved
	d.URL = "https://new-url"
	summary, err := newEngine(store).Import(context.Background(), []ingest.Draft{d})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Updated)
	got, _ := store.Get("rec-1")
	require.True(t, got.Start.Equal(moved))
	require.Equal(t, "https://new-url", got.URL)

	weekLater := start.AddDate(0, 0, 7)
	d.Start = &weekLater
	summary, err = newEngine(store).Import(context.Background(), []ingest.Draft{d})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Inserted)
}

type flakyStore struct {
	*memory.EventStore
	failInsertFor string
	downAfter     int
	calls         int
}

func (f *flakyStore) FindMatch(ctx context.Context, q ingest.MatchQuery) (*ingest.Record, error) {
	f.calls++
	if f.downAfter > 0 && f.calls > f.downAfter {
		return nil, fmt.Errorf("dial tcp: %w", ingest.ErrStoreUnavailable)
	}
	return f.EventStore.FindMatch(ctx, q)
}

func (f *flakyStore) Insert(ctx context.Context, rec ingest.Record) error {
	if rec.Title == f.failInsertFor {
		return errors.New("constraint violation")
	}
	return f.EventStore.Insert(ctx, rec)
}

func TestImportCountsPerDraftFailuresAsSkipped(t *testing.T) {
	store := &flakyStore{EventStore: memory.NewEventStore(), failInsertFor: "bad"}
	good := sampleDraft()
	bad := sampleDraft()
	bad.Title = "bad"
	bad.URL = "https://bad"

	summary, err := newEngine(store).Import(context.Background(), []ingest.Draft{bad, good})
	require.NoError(t, err)
	require.Equal(t, ingest.Summary{Total: 2, Inserted: 1, Skipped: 1}, summary)
}

func TestImportAbortsWhenStoreUnavailable(t *testing.T) {
	store := &flakyStore{EventStore: memory.NewEventStore(), downAfter: 1}
	first := sampleDraft()
	second := sampleDraft()
	second.Title, second.URL = "zwei", "u2"
	third := sampleDraft()
	third.Title, third.URL = "drei", "u3"

	summary, err := newEngine(store).Import(context.Background(), []ingest.Draft{first, second, third})
	require.ErrorIs(t, err, ingest.ErrStoreUnavailable)
	require.Equal(t, 1, summary.Inserted)
	require.Equal(t, 2, summary.Skipped)
	require.Equal(t, 3, summary.Total)

	down := memory.NewEventStore()
	down.Unavailable = true
	_, err = newEngine(down).Import(context.Background(), []ingest.Draft{first})
	require.ErrorIs(t, err, ingest.ErrStoreUnavailable)
}

func TestReimportIsIdempotent(t *testing.T) {
	store := memory.NewEventStore()
	drafts := []ingest.Draft{sampleDraft()}
	engine := newEngine(store)

	_, err := engine.Import(context.Background(), drafts)
	require.NoError(t, err)
	before := store.All()

	summary, err := engine.Import(context.Background(), drafts)
	require.NoError(t, err)
	require.Equal(t, 0, summary.Inserted)
	require.Equal(t, 1, summary.Updated)
	require.Equal(t, before, store.All())
}
