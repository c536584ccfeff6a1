package ingest

import (
	"slices"
	"strings"
	"time"
)

// Apply writes p onto r. Field values use the types Plan produces: strings,
// bools, *time.Time, int, Point and []string.
func (r *Record) Apply(p Patch) {
	for f, v := range p.Fields {
		switch f {
		case FieldTitle:
			r.Title, _ = v.(string)
		case FieldCity:
			r.City, _ = v.(string)
		case FieldCountry:
			r.Country, _ = v.(string)
		case FieldStart:
			r.Start, _ = v.(*time.Time)
		case FieldStartTimeKnown:
			r.StartTimeKnown, _ = v.(bool)
		case FieldEnd:
			r.End, _ = v.(*time.Time)
		case FieldEndTimeKnown:
			r.EndTimeKnown, _ = v.(bool)
		case FieldLocation:
			r.Location, _ = v.(string)
		case FieldOriginalLocation:
			r.OriginalLocation, _ = v.(string)
		case FieldCoordinates:
			if pt, ok := v.(Point); ok {
				r.Coordinates = &pt
			}
		case FieldLanguage:
			r.Language, _ = v.(string)
		case FieldURL:
			r.URL, _ = v.(string)
		case FieldAttendees:
			if n, ok := v.(int); ok {
				r.Attendees = &n
			}
		case FieldCategories:
			cats, _ := v.([]string)
			r.Categories = slices.Clone(cats)
		}
	}
	if p.Verified != nil {
		r.Verified = *p.Verified
	}
	if p.Deleted != nil {
		r.Deleted = *p.Deleted
	}
	if p.ClearCreatedBy {
		r.CreatedBy = nil
	}
	if p.UpdatedAt != nil {
		r.UpdatedAt = *p.UpdatedAt
	}
}

// Matches reports whether r is a candidate for q: same URL, or same source,
// title and city, and a start within the tolerance. A query without a start
// only matches records without one.
func (q MatchQuery) Matches(r Record) bool {
	sameURL := q.URL != "" && r.URL == q.URL
	sameKey := r.Source == q.Source && strings.EqualFold(r.Title, q.Title) && r.City == q.City
	if !sameURL && !sameKey {
		return false
	}
	if q.Start == nil || r.Start == nil {
		return q.Start == nil && r.Start == nil
	}
	return q.Distance(r) <= q.Tolerance
}

// Distance is the absolute gap between the query and record starts. It is
// zero when either lacks a start.
func (q MatchQuery) Distance(r Record) time.Duration {
	if q.Start == nil || r.Start == nil {
		return 0
	}
	d := r.Start.Sub(*q.Start)
	if d < 0 {
		d = -d
	}
	return d
}
