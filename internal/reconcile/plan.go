// Package reconcile merges scraped drafts into the event store without
// overwriting human corrections.
package reconcile

import (
	"slices"
	"time"

	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
)

// Action is what the engine does with one draft.
type Action int

const (
	// ActionSkip writes nothing.
	ActionSkip Action = iota
	// ActionInsert creates a new record.
	ActionInsert
	// ActionUpdate patches the matched record.
	ActionUpdate
	// ActionDelete soft-deletes the matched record.
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "inserted"
	case ActionUpdate:
		return "updated"
	case ActionDelete:
		return "deleted"
	default:
		return "skipped"
	}
}

// Decision is the outcome for one draft.
type Decision struct {
	Action Action
	Patch  ingest.Patch
	Reason string
}

// governs lists fields whose protection extends to others: a human-edited
// start also pins startTimeKnown, and so on.
var governs = map[ingest.Field][]ingest.Field{
	ingest.FieldStart:    {ingest.FieldStartTimeKnown},
	ingest.FieldEnd:      {ingest.FieldEndTimeKnown},
	ingest.FieldLocation: {ingest.FieldOriginalLocation, ingest.FieldCoordinates},
}

// Protected reports whether the scraper must leave f alone on a record with
// the given edited fields.
func Protected(f ingest.Field, edited ingest.FieldSet) bool {
	if edited.Has(f) {
		return true
	}
	for governor, dependents := range governs {
		if edited.Has(governor) && slices.Contains(dependents, f) {
			return true
		}
	}
	return false
}

// Decide applies the merge rules to a draft and its matched record (nil when
// nothing matched). It performs no I/O.
func Decide(rec *ingest.Record, d ingest.Draft, now time.Time) Decision {
	switch {
	case rec != nil && rec.FullyManual:
		return Decision{Action: ActionSkip, Reason: "fully manual"}
	case d.ShouldDelete:
		if rec == nil {
			return Decision{Action: ActionSkip, Reason: "delete without match"}
		}
		if rec.Deleted {
			return Decision{Action: ActionSkip, Reason: "already deleted"}
		}
		deleted := true
		return Decision{Action: ActionDelete, Patch: ingest.Patch{Deleted: &deleted}}
	case rec != nil && rec.Deleted:
		return Decision{Action: ActionSkip, Reason: "deleted"}
	case rec == nil:
		return Decision{Action: ActionInsert}
	default:
		return Decision{Action: ActionUpdate, Patch: Plan(*rec, d, now)}
	}
}

// Plan builds the selective update for a matched record: every unprotected
// field whose value differs, plus verified and updatedAt. Attendees and
// coordinates are only written when the draft carries them. A draft that
// failed geocoding leaves the location of an already geocoded record as is.
func Plan(rec ingest.Record, d ingest.Draft, now time.Time) ingest.Patch {
	p := ingest.Patch{Fields: map[ingest.Field]any{}}
	set := func(f ingest.Field, differs bool, value any) {
		if differs && !Protected(f, rec.EditedFields) {
			p.Fields[f] = value
		}
	}

	set(ingest.FieldTitle, rec.Title != d.Title, d.Title)
	set(ingest.FieldCity, rec.City != d.City, d.City)
	set(ingest.FieldCountry, rec.Country != d.Country, d.Country)
	set(ingest.FieldStart, !sameTime(rec.Start, d.Start), cloneTime(d.Start))
	set(ingest.FieldStartTimeKnown, rec.StartTimeKnown != d.StartTimeKnown, d.StartTimeKnown)
	set(ingest.FieldEnd, !sameTime(rec.End, d.End), cloneTime(d.End))
	set(ingest.FieldEndTimeKnown, rec.EndTimeKnown != d.EndTimeKnown, d.EndTimeKnown)
	if d.Coordinates != nil || rec.Coordinates == nil {
		set(ingest.FieldLocation, rec.Location != d.Location, d.Location)
		set(ingest.FieldOriginalLocation, rec.OriginalLocation != d.OriginalLocation, d.OriginalLocation)
	}
	set(ingest.FieldLanguage, rec.Language != d.Language, d.Language)
	set(ingest.FieldURL, rec.URL != d.URL, d.URL)
	set(ingest.FieldCategories, !slices.Equal(rec.Categories, d.Categories), slices.Clone(d.Categories))
	if d.Attendees != nil {
		set(ingest.FieldAttendees, rec.Attendees == nil || *rec.Attendees != *d.Attendees, *d.Attendees)
	}
	if d.Coordinates != nil {
		set(ingest.FieldCoordinates, rec.Coordinates == nil || *rec.Coordinates != *d.Coordinates, *d.Coordinates)
	}

	verified := d.Verified
	p.Verified = &verified
	updatedAt := now
	p.UpdatedAt = &updatedAt
	p.ClearCreatedBy = rec.CreatedBy != nil
	if len(p.Fields) == 0 {
		p.Fields = nil
	}
	return p
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
