// Package app builds and holds the long-lived services of the scraper, acting
// as a dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/artem-schander/protest-scraper-sub000/internal/clock/system"
	"github.com/artem-schander/protest-scraper-sub000/internal/config"
	"github.com/artem-schander/protest-scraper-sub000/internal/fetch"
	"github.com/artem-schander/protest-scraper-sub000/internal/geocode"
	"github.com/artem-schander/protest-scraper-sub000/internal/hash/sha256"
	"github.com/artem-schander/protest-scraper-sub000/internal/id/uuid"
	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
	"github.com/artem-schander/protest-scraper-sub000/internal/pipeline"
	pubsubpublisher "github.com/artem-schander/protest-scraper-sub000/internal/publisher/pubsub"
	"github.com/artem-schander/protest-scraper-sub000/internal/reconcile"
	"github.com/artem-schander/protest-scraper-sub000/internal/robots"
	"github.com/artem-schander/protest-scraper-sub000/internal/sources"
	"github.com/artem-schander/protest-scraper-sub000/internal/storage/gcs"
	"github.com/artem-schander/protest-scraper-sub000/internal/storage/local"
	"github.com/artem-schander/protest-scraper-sub000/internal/storage/memory"
	"github.com/artem-schander/protest-scraper-sub000/internal/storage/postgres"
)

// App holds the shared services. It is built once per process.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Store    ingest.Store
	Registry *sources.Registry
	Runner   *pipeline.Runner

	closers []func() error
}

// New wires every service from cfg. It fails fast when a configured backend
// cannot be reached or constructed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config
	logger := a.Logger
	clock := system.New()
	ids := uuid.New()

	gate := robots.NewGate(robots.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	}, logger.Named("robots"))
	client := fetch.New(fetch.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	}, gate, logger.Named("fetch"))

	registry, err := sources.NewRegistry(sources.Definitions, sources.Deps{
		Client: client,
		Clock:  clock,
		Hasher: sha256.New(),
		Logger: logger,
	}, overrides(cfg.Sources))
	if err != nil {
		return fmt.Errorf("build source registry: %w", err)
	}
	a.Registry = registry

	var cache ingest.GeocodeCache
	switch cfg.Store.Provider {
	case config.ProviderPostgres:
		pool, err := postgres.Connect(ctx, postgres.Config{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		store, err := postgres.NewEventStore(pool)
		if err != nil {
			return err
		}
		pgCache, err := postgres.NewGeocodeCache(pool)
		if err != nil {
			return err
		}
		a.Store, cache = store, pgCache
		logger.Info("using postgres event store")
	default:
		a.Store, cache = memory.NewEventStore(), memory.NewGeocodeCache()
		logger.Info("using in-memory event store; records are lost on exit")
	}

	var geocoder pipeline.Annotator
	if cfg.Geocoder.Enabled {
		provider := geocode.NewNominatim(geocode.NominatimConfig{
			BaseURL:   cfg.Geocoder.BaseURL,
			UserAgent: cfg.HTTP.UserAgent,
			Email:     cfg.Geocoder.Email,
			Language:  cfg.Geocoder.Language,
			Timeout:   time.Duration(cfg.Geocoder.TimeoutSeconds) * time.Second,
		}, logger.Named("nominatim"))
		geocoder = geocode.New(cache, provider, geocode.Config{
			Interval: time.Duration(cfg.Geocoder.IntervalMs) * time.Millisecond,
		}, clock, logger.Named("geocode"))
	}

	archive, err := a.archive(ctx)
	if err != nil {
		return err
	}

	var publisher ingest.Publisher
	if cfg.PubSub.Topic != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("create pubsub client: %w", err)
		}
		pub := pubsubpublisher.New(psClient)
		a.closers = append(a.closers, pub.Close)
		publisher = pub
		logger.Info("publishing run summaries", zap.String("topic", cfg.PubSub.Topic))
	}

	runner, err := pipeline.New(pipeline.Deps{
		Parsers:   pipeline.ParsersFromRegistry(registry),
		Robots:    gate,
		Store:     a.Store,
		Geocoder:  geocoder,
		Importer:  reconcile.New(a.Store, ids, clock, reconcile.Config{Tolerance: cfg.Tolerance()}, logger.Named("reconcile")),
		Archive:   archive,
		Publisher: publisher,
		IDs:       ids,
		Clock:     clock,
		Logger:    logger,
	}, pipeline.Config{
		ParallelSources: cfg.Pipeline.ParallelSources,
		ArchivePrefix:   cfg.Archive.Prefix,
		SummaryTopic:    cfg.PubSub.Topic,
	})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	a.Runner = runner
	return nil
}

func (a *App) archive(ctx context.Context) (ingest.BlobStore, error) {
	cfg := a.Config.Archive
	switch cfg.Provider {
	case config.ProviderLocal:
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("open local archive: %w", err)
		}
		a.Logger.Info("archiving drafts locally", zap.String("dir", cfg.BaseDir))
		return store, nil
	case config.ProviderGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, fmt.Errorf("open gcs archive: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.Logger.Info("archiving drafts to gcs", zap.String("bucket", cfg.Bucket))
		return store, nil
	case config.ProviderMemory:
		a.Logger.Info("archiving drafts in memory; archives are lost on exit")
		return memory.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

func overrides(in map[string]config.SourceConfig) map[string]sources.Override {
	out := make(map[string]sources.Override, len(in))
	for id, sc := range in {
		out[id] = sources.Override{Enabled: sc.Enabled, BaseURL: sc.BaseURL}
	}
	return out
}

// Close releases every backend in reverse construction order.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("error closing services", zap.Error(err))
	}
}
