package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
)

const geocodeTable = "geocode_cache"

// GeocodeCache implements ingest.GeocodeCache on Postgres.
type GeocodeCache struct {
	pool Pool
}

// NewGeocodeCache wraps an existing pool.
func NewGeocodeCache(pool Pool) (*GeocodeCache, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &GeocodeCache{pool: pool}, nil
}

// Get returns the cached entry for query or nil.
func (c *GeocodeCache) Get(ctx context.Context, query string) (*ingest.GeocodeEntry, error) {
	sqlText, args, err := psql.Select("lat", "lon", "display_address", "cached_at").
		From(geocodeTable).
		Where(sq.Eq{"query": query}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build geocode lookup: %w", err)
	}
	var e ingest.GeocodeEntry
	err = c.pool.QueryRow(ctx, sqlText, args...).Scan(&e.Lat, &e.Lon, &e.DisplayAddress, &e.CachedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup geocode %q: %w", query, err)
	}
	e.CachedAt = e.CachedAt.UTC()
	return &e, nil
}

// Put upserts the entry for query.
func (c *GeocodeCache) Put(ctx context.Context, query string, entry ingest.GeocodeEntry) error {
	sqlText, args, err := psql.Insert(geocodeTable).
		Columns("query", "lat", "lon", "display_address", "cached_at").
		Values(query, entry.Lat, entry.Lon, entry.DisplayAddress, entry.CachedAt).
		Suffix("ON CONFLICT (query) DO UPDATE SET lat = EXCLUDED.lat, lon = EXCLUDED.lon, " +
			"display_address = EXCLUDED.display_address, cached_at = EXCLUDED.cached_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build geocode upsert: %w", err)
	}
	if _, err := c.pool.Exec(ctx, sqlText, args...); err != nil {
		return fmt.Errorf("store geocode %q: %w", query, err)
	}
	return nil
}
