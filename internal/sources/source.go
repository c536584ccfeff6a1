// Package sources holds the per-site parsers and the registry that binds each
// source id to its country, politeness delay and collector.
package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/artem-schander/protest-scraper-sub000/internal/fetch"
	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
	"github.com/artem-schander/protest-scraper-sub000/internal/locale"
	"github.com/artem-schander/protest-scraper-sub000/internal/metrics"
)

// Env is what a collector may use. Collectors never reach outside it.
type Env struct {
	Client  *fetch.Client
	Locale  locale.Locale
	BaseURL string
	Clock   ingest.Clock
	Hasher  ingest.Hasher
	Logger  *zap.Logger
	// Source is the id stamped on every draft.
	Source string
}

// Now returns the current time from the configured clock.
func (e Env) Now() time.Time {
	if e.Clock == nil {
		return time.Now().UTC()
	}
	return e.Clock.Now()
}

// URL joins the source origin with path.
func (e Env) URL(path string) string {
	return strings.TrimRight(e.BaseURL, "/") + path
}

// NewDraft returns a draft stamped with the source and the locale defaults.
func (e Env) NewDraft(title, city string) ingest.Draft {
	d := ingest.NewDraft(e.Source)
	d.Title = cleanText(title)
	d.City = cleanText(city)
	d.Country = e.Locale.Country
	d.Language = e.Locale.LanguageTag()
	return d
}

// CollectFunc fetches and parses one site. It may return partial results
// together with an error.
type CollectFunc func(ctx context.Context, env Env, horizonDays int) ([]ingest.Draft, error)

// Definition is one row of the static source table.
type Definition struct {
	ID         string
	Country    string
	Delay      time.Duration
	DefaultURL string
	Collect    CollectFunc
}

// Definitions is the source table. Adding a source means adding a collector
// and a row here.
var Definitions = []Definition{
	{ID: "berlin-police", Country: "DE", Delay: time.Second, DefaultURL: "https://www.berlin.de", Collect: collectBerlin},
	{ID: "dresden", Country: "DE", Delay: time.Second, DefaultURL: "https://www.dresden.de", Collect: collectDresden},
	{
		ID: "friedenskooperative", Country: "DE", Delay: 2 * time.Second,
		DefaultURL: "https://www.friedenskooperative.de", Collect: collectFriedenskooperative,
	},
	{
		ID: "demokrateam", Country: "DE", Delay: 1500 * time.Millisecond,
		DefaultURL: "https://www.demokrateam.org", Collect: collectDemokrateam,
	},
	{ID: "wien-police", Country: "AT", Delay: time.Second, DefaultURL: "https://www.polizei.gv.at", Collect: collectWien},
}

// Source is a registered, ready-to-run parser.
type Source struct {
	def    Definition
	env    Env
	logger *zap.Logger
}

// ID returns the source id.
func (s *Source) ID() string {
	return s.def.ID
}

// Parse runs the collector and returns the drafts within the horizon. It never
// panics and never fails: errors are logged and partial results kept.
func (s *Source) Parse(ctx context.Context, horizonDays int) (drafts []ingest.Draft) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("source panicked", zap.Any("panic", r), zap.Stack("stack"))
			metrics.ObserveSource(s.def.ID, 0, true)
			drafts = nil
		}
	}()

	raw, err := s.def.Collect(ctx, s.env, horizonDays)
	if err != nil {
		s.logger.Warn("source failed", zap.Error(err), zap.Int("partial", len(raw)))
	}
	drafts = FilterHorizon(raw, s.env.Now(), horizonDays, s.env.Locale.Timezone)
	for i := range drafts {
		drafts[i].Source = s.def.ID
	}
	metrics.ObserveSource(s.def.ID, len(drafts), err != nil && len(drafts) == 0)
	s.logger.Info("source parsed",
		zap.Int("raw", len(raw)),
		zap.Int("drafts", len(drafts)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return drafts
}

// Override adjusts one source from configuration.
type Override struct {
	Enabled *bool
	BaseURL string
}

// Registry is the ordered list of enabled sources.
type Registry struct {
	sources []*Source
}

// Deps are the shared collaborators handed to every source.
type Deps struct {
	Client *fetch.Client
	Clock  ingest.Clock
	Hasher ingest.Hasher
	Logger *zap.Logger
}

// NewRegistry binds the definitions to their locales and clients. Unknown
// override keys are an error so typos in configuration surface early.
func NewRegistry(defs []Definition, deps Deps, overrides map[string]Override) (*Registry, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	known := make(map[string]bool, len(defs))
	for _, def := range defs {
		known[def.ID] = true
	}
	for id := range overrides {
		if !known[id] {
			return nil, fmt.Errorf("unknown source %q in overrides", id)
		}
	}

	reg := &Registry{}
	for _, def := range defs {
		ov := overrides[def.ID]
		if ov.Enabled != nil && !*ov.Enabled {
			logger.Info("source disabled", zap.String("source", def.ID))
			continue
		}
		loc, ok := locale.Lookup(def.Country)
		if !ok {
			return nil, fmt.Errorf("source %s: unknown country %q", def.ID, def.Country)
		}
		baseURL := def.DefaultURL
		if ov.BaseURL != "" {
			baseURL = ov.BaseURL
		}
		srcLogger := logger.Named("source").With(zap.String("source", def.ID))
		var client *fetch.Client
		if deps.Client != nil {
			client = deps.Client.WithDelay(def.Delay)
		}
		reg.sources = append(reg.sources, &Source{
			def: def,
			env: Env{
				Client:  client,
				Locale:  loc,
				BaseURL: baseURL,
				Clock:   deps.Clock,
				Hasher:  deps.Hasher,
				Logger:  srcLogger,
				Source:  def.ID,
			},
			logger: srcLogger,
		})
	}
	return reg, nil
}

// Sources returns the enabled sources in table order.
func (r *Registry) Sources() []*Source {
	return append([]*Source(nil), r.sources...)
}

// IDs returns the enabled source ids in table order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.sources))
	for i, s := range r.sources {
		ids[i] = s.def.ID
	}
	return ids
}
