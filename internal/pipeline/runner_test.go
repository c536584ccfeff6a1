package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/artem-schander/protest-scraper-sub000/internal/clock/system"
	"github.com/artem-schander/protest-scraper-sub000/internal/geocode"
	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
	pubmemory "github.com/artem-schander/protest-scraper-sub000/internal/publisher/memory"
	"github.com/artem-schander/protest-scraper-sub000/internal/reconcile"
	"github.com/artem-schander/protest-scraper-sub000/internal/sources"
	"github.com/artem-schander/protest-scraper-sub000/internal/storage/memory"
)

var (
	testNow   = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	testClock = system.Fixed(testNow)
)

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%d", s.n), nil
}

type stubProvider struct {
	calls atomic.Int32
}

func (p *stubProvider) Search(_ context.Context, q string) (*geocode.Result, error) {
	p.calls.Add(1)
	if q == "Altmarkt, Dresden" {
		return &geocode.Result{Lat: 51.05, Lon: 13.74, DisplayAddress: "01067 Dresden, Sachsen"}, nil
	}
	return nil, nil
}

func sameEvent(ctx context.Context, env sources.Env, _ int) ([]ingest.Draft, error) {
	d := env.NewDraft("Klimastreik", "Dresden")
	start := testNow.Add(72 * time.Hour)
	d.Start = &start
	d.StartTimeKnown = true
	d.Location = "Altmarkt, Dresden"
	d.URL = env.URL("/e/1")
	d.Categories = []string{ingest.CategoryDemonstration}
	// Duplicate within one source collapses to one draft.
	return []ingest.Draft{d, d}, ctx.Err()
}

func testParsers(t *testing.T) []Parser {
	t.Helper()
	defs := []sources.Definition{
		{ID: "alpha", Country: "DE", DefaultURL: "https://alpha.example", Collect: sameEvent},
		{ID: "beta", Country: "DE", DefaultURL: "https://beta.example", Collect: sameEvent},
	}
	reg, err := sources.NewRegistry(defs, sources.Deps{Clock: testClock}, nil)
	require.NoError(t, err)
	return ParsersFromRegistry(reg)
}

type harness struct {
	runner    *Runner
	store     *memory.EventStore
	archive   *memory.BlobStore
	publisher *pubmemory.Publisher
	provider  *stubProvider
}

func newHarness(t *testing.T, parsers []Parser, parallel int) *harness {
	t.Helper()
	store := memory.NewEventStore()
	ids := &seqIDs{}
	provider := &stubProvider{}
	h := &harness{
		store:     store,
		archive:   memory.NewBlobStore(),
		publisher: pubmemory.New(),
		provider:  provider,
	}
	runner, err := New(Deps{
		Parsers:   parsers,
		Store:     store,
		Geocoder:  geocode.New(memory.NewGeocodeCache(), provider, geocode.Config{Interval: time.Millisecond}, testClock, nil),
		Importer:  reconcile.New(store, ids, testClock, reconcile.Config{}, nil),
		Archive:   h.archive,
		Publisher: h.publisher,
		IDs:       ids,
		Clock:     testClock,
	}, Config{ParallelSources: parallel, SummaryTopic: "scraper-runs"})
	require.NoError(t, err)
	h.runner = runner
	return h
}

func TestRunPersistsSameEventFromTwoSources(t *testing.T) {
	h := newHarness(t, testParsers(t), 2)

	summary, err := h.runner.Run(context.Background(), 30)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Total)
	require.Equal(t, 2, summary.Inserted)
	require.Equal(t, 30, summary.HorizonDays)
	require.Equal(t, map[string]int{"alpha": 2, "beta": 2}, summary.PerSource)
	require.Equal(t, map[string]int{"alpha": 1, "beta": 1}, h.store.CountBySource())

	for _, rec := range h.store.All() {
		require.NotNil(t, rec.Coordinates)
		require.Equal(t, "01067 Dresden, Sachsen", rec.Location)
		require.Equal(t, "Altmarkt, Dresden", rec.OriginalLocation)
	}
	require.EqualValues(t, 1, h.provider.calls.Load(), "identical locations share one lookup")
}

func TestRerunInsertsNothing(t *testing.T) {
	h := newHarness(t, testParsers(t), 1)

	_, err := h.runner.Run(context.Background(), 30)
	require.NoError(t, err)
	before := h.store.All()

	summary, err := h.runner.Run(context.Background(), 30)
	require.NoError(t, err)
	require.Zero(t, summary.Inserted)
	require.Equal(t, 2, summary.Updated)
	require.Equal(t, before, h.store.All())
}

func TestRunArchivesAndPublishes(t *testing.T) {
	h := newHarness(t, testParsers(t), 1)

	summary, err := h.runner.Run(context.Background(), 30)
	require.NoError(t, err)

	data, contentType, ok := h.archive.Object(ArchivePath("runs", summary.RunID))
	require.True(t, ok)
	require.Equal(t, "application/json", contentType)
	var doc archiveDocument
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, summary.RunID, doc.RunID)
	require.Len(t, doc.Drafts, 2)

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "scraper-runs", msgs[0].Topic)
	published, ok := msgs[0].Payload.(ingest.Summary)
	require.True(t, ok)
	require.Equal(t, summary, published)
}

func TestRunFailsFastWhenStoreUnreachable(t *testing.T) {
	var parsed atomic.Bool
	parser := parserFunc{id: "watch", fn: func() []ingest.Draft {
		parsed.Store(true)
		return nil
	}}
	h := newHarness(t, []Parser{parser}, 1)
	h.store.Unavailable = true

	summary, err := h.runner.Run(context.Background(), 30)
	require.ErrorIs(t, err, ingest.ErrStoreUnavailable)
	require.False(t, parsed.Load())
	require.NotEmpty(t, summary.RunID)
	require.Len(t, h.publisher.Messages(), 1, "failed runs are announced too")
}

func TestRunToleratesPublishFailure(t *testing.T) {
	h := newHarness(t, testParsers(t), 1)
	h.publisher.Err = errors.New("pubsub down")

	summary, err := h.runner.Run(context.Background(), 30)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Inserted)
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	parser := parserFunc{id: "slow", fn: func() []ingest.Draft {
		close(entered)
		<-release
		return nil
	}}
	h := newHarness(t, []Parser{parser}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := h.runner.Run(context.Background(), 30)
		done <- err
	}()
	<-entered
	require.True(t, h.runner.Running())

	_, err := h.runner.Run(context.Background(), 30)
	require.ErrorIs(t, err, ErrRunInProgress)

	close(release)
	require.NoError(t, <-done)
	require.False(t, h.runner.Running())
}

func TestCollectKeepsParserOrder(t *testing.T) {
	mk := func(id string, delay time.Duration) Parser {
		return parserFunc{id: id, fn: func() []ingest.Draft {
			time.Sleep(delay)
			return []ingest.Draft{{Source: id, Title: id}}
		}}
	}
	h := newHarness(t, []Parser{mk("a", 20*time.Millisecond), mk("b", 0), mk("c", 5*time.Millisecond)}, 3)

	drafts, perSource := h.runner.collect(context.Background(), 30)
	require.Len(t, drafts, 3)
	require.Equal(t, "a", drafts[0].Source)
	require.Equal(t, "b", drafts[1].Source)
	require.Equal(t, "c", drafts[2].Source)
	require.Equal(t, 1, perSource["b"])
}

func TestNewValidatesDeps(t *testing.T) {
	_, err := New(Deps{}, Config{})
	require.Error(t, err)

	store := memory.NewEventStore()
	_, err = New(Deps{Store: store, Importer: reconcile.New(store, &seqIDs{}, testClock, reconcile.Config{}, nil)}, Config{})
	require.Error(t, err)
}

type parserFunc struct {
	id string
	fn func() []ingest.Draft
}

func (p parserFunc) ID() string { return p.id }

func (p parserFunc) Parse(context.Context, int) []ingest.Draft { return p.fn() }

type countingResetter struct {
	resets atomic.Int32
}

func (c *countingResetter) Reset() { c.resets.Add(1) }

func TestRunResetsRobotsCacheBeforeParsing(t *testing.T) {
	robots := &countingResetter{}
	var seenAtParse []int32
	parser := parserFunc{id: "gated", fn: func() []ingest.Draft {
		seenAtParse = append(seenAtParse, robots.resets.Load())
		return nil
	}}
	h := newHarness(t, []Parser{parser}, 1)
	h.runner.deps.Robots = robots

	for range 2 {
		_, err := h.runner.Run(context.Background(), 30)
		require.NoError(t, err)
	}
	require.Equal(t, []int32{1, 2}, seenAtParse)
}
