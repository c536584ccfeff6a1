// Package pipeline orchestrates one ingestion run: parse every enabled source,
// deduplicate, geocode, reconcile, then archive and announce the summary.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/artem-schander/protest-scraper-sub000/internal/dedupe"
	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
	"github.com/artem-schander/protest-scraper-sub000/internal/metrics"
	"github.com/artem-schander/protest-scraper-sub000/internal/sources"
)

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = errors.New("a run is already in progress")

// Parser is one runnable source.
type Parser interface {
	ID() string
	Parse(ctx context.Context, horizonDays int) []ingest.Draft
}

// Annotator attaches coordinates to drafts.
type Annotator interface {
	Annotate(ctx context.Context, drafts []ingest.Draft) int
}

// Resetter is a cache scoped to one run, cleared when the next run starts.
type Resetter interface {
	Reset()
}

// Importer reconciles drafts against the store.
type Importer interface {
	Import(ctx context.Context, drafts []ingest.Draft) (ingest.Summary, error)
}

// Config tunes a Runner.
type Config struct {
	// ParallelSources bounds concurrently running parsers; 1 is sequential.
	ParallelSources int
	// ArchivePrefix is the object prefix for draft archives.
	ArchivePrefix string
	// SummaryTopic receives the run summary when a publisher is set.
	SummaryTopic string
}

// Deps are the collaborators of a Runner. Robots, Geocoder, Archive and
// Publisher are optional.
type Deps struct {
	Parsers   []Parser
	Robots    Resetter
	Store     ingest.Store
	Geocoder  Annotator
	Importer  Importer
	Archive   ingest.BlobStore
	Publisher ingest.Publisher
	IDs       ingest.IDGenerator
	Clock     ingest.Clock
	Logger    *zap.Logger
}

// Runner executes ingestion runs.
type Runner struct {
	deps    Deps
	cfg     Config
	logger  *zap.Logger
	running atomic.Bool
}

// New builds a Runner.
func New(deps Deps, cfg Config) (*Runner, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Importer == nil {
		return nil, fmt.Errorf("importer is required")
	}
	if deps.IDs == nil || deps.Clock == nil {
		return nil, fmt.Errorf("id generator and clock are required")
	}
	if cfg.ParallelSources <= 0 {
		cfg.ParallelSources = 1
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "runs"
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{deps: deps, cfg: cfg, logger: logger.Named("pipeline")}, nil
}

// ParsersFromRegistry adapts the registry's sources.
func ParsersFromRegistry(reg *sources.Registry) []Parser {
	srcs := reg.Sources()
	out := make([]Parser, len(srcs))
	for i, s := range srcs {
		out[i] = s
	}
	return out
}

// Run performs one full run. The store is pinged before any source is
// fetched; an unreachable store fails the run without scraping. The returned
// summary is valid even when err is non-nil.
func (r *Runner) Run(ctx context.Context, horizonDays int) (ingest.Summary, error) {
	if !r.running.CompareAndSwap(false, true) {
		return ingest.Summary{}, ErrRunInProgress
	}
	defer r.running.Store(false)
	if r.deps.Robots != nil {
		r.deps.Robots.Reset()
	}

	started := r.deps.Clock.Now()
	runID, err := r.deps.IDs.NewID()
	if err != nil {
		return ingest.Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := r.logger.With(zap.String("run_id", runID), zap.Int("horizon_days", horizonDays))
	logger.Info("run started", zap.Int("sources", len(r.deps.Parsers)))

	summary := ingest.Summary{RunID: runID, HorizonDays: horizonDays, StartedAt: started}
	finish := func(err error) (ingest.Summary, error) {
		summary.FinishedAt = r.deps.Clock.Now()
		status := "success"
		if err != nil {
			status = "failed"
		}
		metrics.ObserveRun(status, summary.FinishedAt.Sub(started))
		logger.Info("run finished",
			zap.String("status", status),
			zap.Int("total", summary.Total),
			zap.Int("inserted", summary.Inserted),
			zap.Int("updated", summary.Updated),
			zap.Int("deleted", summary.Deleted),
			zap.Int("skipped", summary.Skipped),
			zap.Error(err),
		)
		r.publish(ctx, logger, summary)
		return summary, err
	}

	if err := r.deps.Store.Ping(ctx); err != nil {
		return finish(fmt.Errorf("event store not reachable: %w", err))
	}

	drafts, perSource := r.collect(ctx, horizonDays)
	summary.PerSource = perSource
	drafts = dedupe.Drafts(drafts)
	logger.Info("drafts collected", zap.Int("drafts", len(drafts)))

	if r.deps.Geocoder != nil {
		resolved := r.deps.Geocoder.Annotate(ctx, drafts)
		logger.Info("drafts geocoded", zap.Int("resolved", resolved), zap.Int("drafts", len(drafts)))
	}

	r.archive(ctx, logger, runID, drafts)

	imported, err := r.deps.Importer.Import(ctx, drafts)
	summary.Total = imported.Total
	summary.Inserted = imported.Inserted
	summary.Updated = imported.Updated
	summary.Deleted = imported.Deleted
	summary.Skipped = imported.Skipped
	if err != nil {
		return finish(fmt.Errorf("import drafts: %w", err))
	}
	return finish(nil)
}

// collect runs the parsers with bounded parallelism and concatenates their
// drafts in parser order, so results do not depend on scheduling.
func (r *Runner) collect(ctx context.Context, horizonDays int) ([]ingest.Draft, map[string]int) {
	results := make([][]ingest.Draft, len(r.deps.Parsers))
	var g errgroup.Group
	g.SetLimit(r.cfg.ParallelSources)
	for i, p := range r.deps.Parsers {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = p.Parse(ctx, horizonDays)
			return nil
		})
	}
	_ = g.Wait()

	perSource := make(map[string]int, len(results))
	var all []ingest.Draft
	for i, drafts := range results {
		perSource[r.deps.Parsers[i].ID()] = len(drafts)
		all = append(all, drafts...)
	}
	return all, perSource
}

func (r *Runner) archive(ctx context.Context, logger *zap.Logger, runID string, drafts []ingest.Draft) {
	if r.deps.Archive == nil {
		return
	}
	if drafts == nil {
		drafts = []ingest.Draft{}
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(archiveDocument{RunID: runID, Drafts: drafts}); err != nil {
		logger.Warn("encode draft archive", zap.Error(err))
		return
	}
	uri, err := r.deps.Archive.PutObject(ctx, ArchivePath(r.cfg.ArchivePrefix, runID), "application/json", &buf)
	if err != nil {
		logger.Warn("write draft archive", zap.Error(err))
		return
	}
	logger.Info("draft archive written", zap.String("uri", uri))
}

func (r *Runner) publish(ctx context.Context, logger *zap.Logger, summary ingest.Summary) {
	if r.deps.Publisher == nil || r.cfg.SummaryTopic == "" {
		return
	}
	// The run may have been canceled; the notification still goes out.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	id, err := r.deps.Publisher.Publish(pubCtx, r.cfg.SummaryTopic, summary)
	if err != nil {
		logger.Warn("publish run summary", zap.Error(err))
		return
	}
	logger.Debug("run summary published", zap.String("message_id", id))
}

type archiveDocument struct {
	RunID  string         `json:"runId"`
	Drafts []ingest.Draft `json:"drafts"`
}

// ArchivePath returns the object path of a run's draft archive.
func ArchivePath(prefix, runID string) string {
	return path.Join(prefix, runID+".json")
}

// Running reports whether a run is active.
func (r *Runner) Running() bool {
	return r.running.Load()
}
