// Package geocode resolves location strings to coordinates through a cached,
// rate-limited provider.
package geocode

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
	"github.com/artem-schander/protest-scraper-sub000/internal/locale"
	"github.com/artem-schander/protest-scraper-sub000/internal/metrics"
)

// Result is a resolved location.
type Result struct {
	Lat            float64
	Lon            float64
	DisplayAddress string
	// Cached is true when the result came from the cache.
	Cached bool
}

// Point returns the coordinates as an ingest.Point.
func (r Result) Point() ingest.Point {
	return ingest.Point{Lat: r.Lat, Lon: r.Lon}
}

// Provider is an external geocoding service. Search returns nil without an
// error when nothing matches.
type Provider interface {
	Search(ctx context.Context, query string) (*Result, error)
}

// Fallback is the coarse city/country pair tried when the full query fails.
type Fallback struct {
	City    string
	Country string
}

// Query formats the fallback as "city, country-name".
func (f Fallback) Query() string {
	city := strings.TrimSpace(f.City)
	if city == "" {
		return ""
	}
	name := strings.TrimSpace(f.Country)
	if loc, ok := locale.Lookup(name); ok {
		name = loc.CountryName
	}
	if name == "" {
		return city
	}
	return city + ", " + name
}

// Config controls provider pacing.
type Config struct {
	// Interval is the minimum spacing between provider calls.
	Interval time.Duration
}

// Geocoder looks locations up in the cache first and serializes provider
// calls behind a rate limiter.
type Geocoder struct {
	cache    ingest.GeocodeCache
	provider Provider
	limiter  *rate.Limiter
	clock    ingest.Clock
	logger   *zap.Logger

	mu sync.Mutex
}

// New builds a Geocoder.
func New(cache ingest.GeocodeCache, provider Provider, cfg Config, clock ingest.Clock, logger *zap.Logger) *Geocoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	return &Geocoder{
		cache:    cache,
		provider: provider,
		limiter:  rate.NewLimiter(limit, 1),
		clock:    clock,
		logger:   logger,
	}
}

// Lookup resolves query. On a provider miss it retries once with the fallback
// and caches a fallback hit under the original query. A nil result with a nil
// error means the location is unknown.
func (g *Geocoder) Lookup(ctx context.Context, query string, fallback *Fallback) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if g.cache != nil {
		entry, err := g.cache.Get(ctx, query)
		if err != nil {
			g.logger.Warn("geocode cache read failed", zap.String("query", query), zap.Error(err))
		} else if entry != nil {
			metrics.ObserveGeocode("cache_hit")
			return &Result{Lat: entry.Lat, Lon: entry.Lon, DisplayAddress: entry.DisplayAddress, Cached: true}, nil
		}
	}

	res, err := g.search(ctx, query)
	if err != nil {
		metrics.ObserveGeocode("error")
		return nil, err
	}
	if res == nil && fallback != nil {
		if fq := fallback.Query(); fq != "" && fq != query {
			g.logger.Debug("geocode miss; trying fallback", zap.String("query", query), zap.String("fallback", fq))
			res, err = g.search(ctx, fq)
			if err != nil {
				metrics.ObserveGeocode("error")
				return nil, err
			}
		}
	}
	if res == nil {
		metrics.ObserveGeocode("unresolved")
		return nil, nil
	}
	metrics.ObserveGeocode("resolved")

	if g.cache != nil {
		entry := ingest.GeocodeEntry{Lat: res.Lat, Lon: res.Lon, DisplayAddress: res.DisplayAddress, CachedAt: g.now()}
		if err := g.cache.Put(ctx, query, entry); err != nil {
			g.logger.Warn("geocode cache write failed", zap.String("query", query), zap.Error(err))
		}
	}
	return res, nil
}

func (g *Geocoder) search(ctx context.Context, query string) (*Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("geocode rate limit: %w", err)
	}
	res, err := g.provider.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w", query, err)
	}
	return res, nil
}

func (g *Geocoder) now() time.Time {
	if g.clock == nil {
		return time.Now().UTC()
	}
	return g.clock.Now()
}

// Request is one distinct lookup derived from the drafts of a run.
type Request struct {
	Query    string
	Fallback *Fallback
}

// QueryFor returns the lookup string for a draft: its location when present,
// else its city.
func QueryFor(d ingest.Draft) string {
	if q := strings.TrimSpace(d.Location); q != "" {
		return q
	}
	return Fallback{City: d.City, Country: d.Country}.Query()
}

// Unique returns one Request per distinct query, in first-seen order.
func Unique(drafts []ingest.Draft) []Request {
	seen := make(map[string]struct{}, len(drafts))
	var out []Request
	for _, d := range drafts {
		q := QueryFor(d)
		if q == "" {
			continue
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		var fb *Fallback
		if strings.TrimSpace(d.City) != "" {
			fb = &Fallback{City: d.City, Country: d.Country}
		}
		out = append(out, Request{Query: q, Fallback: fb})
	}
	return out
}

// Annotate geocodes each distinct location once and attaches coordinates and
// the normalized display address to the drafts. The raw location text moves
// to OriginalLocation. Failures leave drafts untouched. It returns how many
// drafts received coordinates.
func (g *Geocoder) Annotate(ctx context.Context, drafts []ingest.Draft) int {
	results := make(map[string]*Result)
	for _, req := range Unique(drafts) {
		if ctx.Err() != nil {
			break
		}
		res, err := g.Lookup(ctx, req.Query, req.Fallback)
		if err != nil {
			g.logger.Warn("geocode failed", zap.String("query", req.Query), zap.Error(err))
			continue
		}
		if res != nil {
			results[req.Query] = res
		}
	}

	resolved := 0
	for i := range drafts {
		res, ok := results[QueryFor(drafts[i])]
		if !ok {
			continue
		}
		p := res.Point()
		drafts[i].Coordinates = &p
		if res.DisplayAddress != "" {
			if drafts[i].OriginalLocation == "" {
				drafts[i].OriginalLocation = drafts[i].Location
			}
			drafts[i].Location = res.DisplayAddress
		}
		resolved++
	}
	return resolved
}
