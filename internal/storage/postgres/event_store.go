package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
)

const eventsTable = "events"

var eventColumns = []string{
	"id",
	"source",
	"city",
	"country",
	"title",
	"start_at",
	"start_time_known",
	"end_at",
	"end_time_known",
	"location",
	"original_location",
	"coordinates",
	"language",
	"url",
	"attendees",
	"categories",
	"verified",
	"deleted",
	"manually_edited",
	"edited_fields",
	"fully_manual",
	"created_by",
	"created_at",
	"updated_at",
}

// fieldColumns maps scraper-writable fields to their column.
var fieldColumns = map[ingest.Field]string{
	ingest.FieldTitle:            "title",
	ingest.FieldCity:             "city",
	ingest.FieldCountry:          "country",
	ingest.FieldStart:            "start_at",
	ingest.FieldStartTimeKnown:   "start_time_known",
	ingest.FieldEnd:              "end_at",
	ingest.FieldEndTimeKnown:     "end_time_known",
	ingest.FieldLocation:         "location",
	ingest.FieldOriginalLocation: "original_location",
	ingest.FieldCoordinates:      "coordinates",
	ingest.FieldLanguage:         "language",
	ingest.FieldURL:              "url",
	ingest.FieldAttendees:        "attendees",
	ingest.FieldCategories:       "categories",
}

// EventStore implements ingest.Store on Postgres.
type EventStore struct {
	pool Pool
}

// NewEventStore wraps an existing pool (a pgxpool.Pool or a pgxmock pool).
func NewEventStore(pool Pool) (*EventStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &EventStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *EventStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity. Any failure is reported as ErrStoreUnavailable.
func (s *EventStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w: %w", ingest.ErrStoreUnavailable, err)
	}
	return nil
}

// FindMatch selects the candidate with the start nearest to q.Start, oldest
// first on ties.
func (s *EventStore) FindMatch(ctx context.Context, q ingest.MatchQuery) (*ingest.Record, error) {
	query, args, err := matchQuery(q).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build match query: %w", err)
	}
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("find match", err)
	}
	return rec, nil
}

func matchQuery(q ingest.MatchQuery) sq.SelectBuilder {
	var match sq.Sqlizer = sq.And{
		sq.Eq{"source": q.Source},
		sq.Expr("lower(title) = lower(?)", q.Title),
		sq.Eq{"city": q.City},
	}
	if q.URL != "" {
		match = sq.Or{sq.Eq{"url": q.URL}, match}
	}
	b := psql.Select(eventColumns...).From(eventsTable).Where(match)
	if q.Start == nil {
		b = b.Where(sq.Eq{"start_at": nil})
	} else {
		b = b.Where(sq.Expr("start_at BETWEEN ? AND ?", q.Start.Add(-q.Tolerance), q.Start.Add(q.Tolerance))).
			OrderByClause("abs(extract(epoch FROM start_at - ?::timestamptz))", *q.Start)
	}
	return b.OrderBy("created_at").Limit(1)
}

// Insert writes a new record.
func (s *EventStore) Insert(ctx context.Context, rec ingest.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	query, args, err := psql.Insert(eventsTable).
		Columns(eventColumns...).
		Values(recordValues(rec)...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return unavailable("insert event", err)
	}
	return nil
}

// Update applies patch to the record with id. Empty patches are a no-op.
func (s *EventStore) Update(ctx context.Context, id string, patch ingest.Patch) error {
	set := patchColumns(patch)
	if len(set) == 0 {
		return nil
	}
	query, args, err := psql.Update(eventsTable).
		SetMap(set).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return unavailable("update event", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s: %w", id, ingest.ErrNotFound)
	}
	return nil
}

func patchColumns(p ingest.Patch) map[string]any {
	set := make(map[string]any, len(p.Fields)+4)
	for f, v := range p.Fields {
		col, ok := fieldColumns[f]
		if !ok {
			continue
		}
		if pt, ok := v.(ingest.Point); ok {
			v = toPoint(&pt)
		}
		set[col] = v
	}
	if p.Verified != nil {
		set["verified"] = *p.Verified
	}
	if p.Deleted != nil {
		set["deleted"] = *p.Deleted
	}
	if p.ClearCreatedBy {
		set["created_by"] = nil
	}
	if p.UpdatedAt != nil {
		set["updated_at"] = *p.UpdatedAt
	}
	return set
}

func recordValues(rec ingest.Record) []any {
	categories := rec.Categories
	if categories == nil {
		categories = []string{}
	}
	return []any{
		rec.ID,
		rec.Source,
		rec.City,
		rec.Country,
		rec.Title,
		rec.Start,
		rec.StartTimeKnown,
		rec.End,
		rec.EndTimeKnown,
		rec.Location,
		rec.OriginalLocation,
		toPoint(rec.Coordinates),
		rec.Language,
		rec.URL,
		rec.Attendees,
		categories,
		rec.Verified,
		rec.Deleted,
		rec.ManuallyEdited,
		rec.EditedFields.Names(),
		rec.FullyManual,
		rec.CreatedBy,
		rec.CreatedAt,
		rec.UpdatedAt,
	}
}

func scanRecord(row pgx.Row) (*ingest.Record, error) {
	var (
		rec         ingest.Record
		start, end  *time.Time
		coordinates pgtype.Point
		attendees   *int
		edited      []string
		createdBy   *string
	)
	err := row.Scan(
		&rec.ID,
		&rec.Source,
		&rec.City,
		&rec.Country,
		&rec.Title,
		&start,
		&rec.StartTimeKnown,
		&end,
		&rec.EndTimeKnown,
		&rec.Location,
		&rec.OriginalLocation,
		&coordinates,
		&rec.Language,
		&rec.URL,
		&attendees,
		&rec.Categories,
		&rec.Verified,
		&rec.Deleted,
		&rec.ManuallyEdited,
		&edited,
		&rec.FullyManual,
		&createdBy,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Start = utcPtr(start)
	rec.End = utcPtr(end)
	rec.Coordinates = fromPoint(coordinates)
	rec.Attendees = attendees
	rec.EditedFields = ingest.NewFieldSet(edited...)
	rec.CreatedBy = createdBy
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

// Postgres points are (x, y), so longitude goes first.
func toPoint(p *ingest.Point) pgtype.Point {
	if p == nil {
		return pgtype.Point{}
	}
	return pgtype.Point{P: pgtype.Vec2{X: p.Lon, Y: p.Lat}, Valid: true}
}

func fromPoint(p pgtype.Point) *ingest.Point {
	if !p.Valid {
		return nil
	}
	return &ingest.Point{Lat: p.P.Y, Lon: p.P.X}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
