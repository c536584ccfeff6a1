package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
	"github.com/artem-schander/protest-scraper-sub000/internal/metrics"
)

// DefaultTolerance is the fuzzy start window used to match a draft to a record.
const DefaultTolerance = 72 * time.Hour

// Config tunes matching.
type Config struct {
	Tolerance time.Duration
}

// Engine writes drafts to the store. It never calls external services.
type Engine struct {
	store     ingest.Store
	ids       ingest.IDGenerator
	clock     ingest.Clock
	tolerance time.Duration
	logger    *zap.Logger
}

// New builds an Engine.
func New(store ingest.Store, ids ingest.IDGenerator, clock ingest.Clock, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Engine{store: store, ids: ids, clock: clock, tolerance: tolerance, logger: logger}
}

// Import reconciles drafts one by one. Per-draft failures count as skipped;
// an unreachable store aborts and returns the partial summary with the error.
func (e *Engine) Import(ctx context.Context, drafts []ingest.Draft) (ingest.Summary, error) {
	summary := ingest.Summary{Total: len(drafts)}
	if err := e.store.Ping(ctx); err != nil {
		return summary, fmt.Errorf("ping event store: %w", err)
	}

	for i := range drafts {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("import canceled after %d drafts: %w", i, err)
		}
		action, err := e.importOne(ctx, drafts[i])
		if err != nil {
			if errors.Is(err, ingest.ErrStoreUnavailable) {
				summary.Skipped += len(drafts) - i
				return summary, fmt.Errorf("import aborted: %w", err)
			}
			e.logger.Warn("draft skipped after store error",
				zap.String("source", drafts[i].Source),
				zap.String("title", drafts[i].Title),
				zap.Error(err),
			)
			action = ActionSkip
		}
		metrics.ObserveReconcile(action.String())
		switch action {
		case ActionInsert:
			summary.Inserted++
		case ActionUpdate:
			summary.Updated++
		case ActionDelete:
			summary.Deleted++
		default:
			summary.Skipped++
		}
	}
	return summary, nil
}

func (e *Engine) importOne(ctx context.Context, d ingest.Draft) (Action, error) {
	rec, err := e.store.FindMatch(ctx, ingest.MatchQuery{
		URL:       d.URL,
		Source:    d.Source,
		Title:     d.Title,
		City:      d.City,
		Start:     d.Start,
		Tolerance: e.tolerance,
	})
	if err != nil {
		return ActionSkip, fmt.Errorf("find match: %w", err)
	}

	now := e.clock.Now()
	decision := Decide(rec, d, now)
	logger := e.logger.With(zap.String("source", d.Source), zap.String("title", d.Title))

	switch decision.Action {
	case ActionInsert:
		id, err := e.ids.NewID()
		if err != nil {
			return ActionSkip, fmt.Errorf("new record id: %w", err)
		}
		if err := e.store.Insert(ctx, ingest.RecordFromDraft(id, d, now)); err != nil {
			return ActionSkip, fmt.Errorf("insert record: %w", err)
		}
		logger.Debug("inserted", zap.String("id", id))
	case ActionUpdate, ActionDelete:
		if err := e.store.Update(ctx, rec.ID, decision.Patch); err != nil {
			return ActionSkip, fmt.Errorf("update record %s: %w", rec.ID, err)
		}
		logger.Debug(decision.Action.String(), zap.String("id", rec.ID), zap.Int("fields", len(decision.Patch.Fields)))
	default:
		logger.Debug("skipped", zap.String("reason", decision.Reason))
	}
	return decision.Action, nil
}
