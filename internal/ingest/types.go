// Package ingest defines the canonical event types and the collaborator
// interfaces shared by the parsers, the geocoder, and the reconciliation engine.
package ingest

import (
	"slices"
	"time"
)

// Category tags emitted by parsers.
const (
	CategoryDemonstration = "Demonstration"
	CategoryRally         = "Rally"
	CategoryVigil         = "Vigil"
	CategoryMarch         = "March"
)

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Draft is one scraped, normalized, not-yet-persisted event.
type Draft struct {
	Source           string     `json:"source"`
	City             string     `json:"city"`
	Country          string     `json:"country"`
	Title            string     `json:"title"`
	Start            *time.Time `json:"start,omitempty"`
	StartTimeKnown   bool       `json:"startTimeKnown"`
	End              *time.Time `json:"end,omitempty"`
	EndTimeKnown     bool       `json:"endTimeKnown"`
	Location         string     `json:"location"`
	OriginalLocation string     `json:"originalLocation,omitempty"`
	Language         string     `json:"language"`
	URL              string     `json:"url"`
	Attendees        *int       `json:"attendees,omitempty"`
	Categories       []string   `json:"categories"`
	Verified         bool       `json:"verified"`
	ShouldDelete     bool       `json:"shouldDelete"`
	Coordinates      *Point     `json:"coordinates,omitempty"`
}

// NewDraft returns a Draft with the scraper defaults applied.
func NewDraft(source string) Draft {
	return Draft{Source: source, Verified: true}
}

// Record is the persisted form of an event.
type Record struct {
	ID               string     `json:"id"`
	Source           string     `json:"source"`
	City             string     `json:"city"`
	Country          string     `json:"country"`
	Title            string     `json:"title"`
	Start            *time.Time `json:"start,omitempty"`
	StartTimeKnown   bool       `json:"startTimeKnown"`
	End              *time.Time `json:"end,omitempty"`
	EndTimeKnown     bool       `json:"endTimeKnown"`
	Location         string     `json:"location"`
	OriginalLocation string     `json:"originalLocation,omitempty"`
	Language         string     `json:"language"`
	URL              string     `json:"url"`
	Attendees        *int       `json:"attendees,omitempty"`
	Categories       []string   `json:"categories"`
	Verified         bool       `json:"verified"`
	Coordinates      *Point     `json:"coordinates,omitempty"`
	Deleted          bool       `json:"deleted"`
	ManuallyEdited   bool       `json:"manuallyEdited"`
	EditedFields     FieldSet   `json:"editedFields"`
	FullyManual      bool       `json:"fullyManual"`
	CreatedBy        *string    `json:"createdBy,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// RecordFromDraft builds a fresh scraper-authored record.
func RecordFromDraft(id string, d Draft, now time.Time) Record {
	return Record{
		ID:               id,
		Source:           d.Source,
		City:             d.City,
		Country:          d.Country,
		Title:            d.Title,
		Start:            d.Start,
		StartTimeKnown:   d.StartTimeKnown,
		End:              d.End,
		EndTimeKnown:     d.EndTimeKnown,
		Location:         d.Location,
		OriginalLocation: d.OriginalLocation,
		Language:         d.Language,
		URL:              d.URL,
		Attendees:        d.Attendees,
		Categories:       slices.Clone(d.Categories),
		Verified:         d.Verified,
		Coordinates:      d.Coordinates,
		EditedFields:     FieldSet{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// MatchQuery describes the lookup the reconciliation engine performs for a draft.
type MatchQuery struct {
	URL    string
	Source string
	Title  string
	City   string
	// Start is nil for drafts without a start; such drafts only match
	// records that also lack one.
	Start     *time.Time
	Tolerance time.Duration
}

// Patch is a partial update of a Record. Nil fields are left untouched.
type Patch struct {
	Fields         map[Field]any
	Verified       *bool
	Deleted        *bool
	ClearCreatedBy bool
	UpdatedAt      *time.Time
}

// Empty reports whether the patch would write nothing.
func (p Patch) Empty() bool {
	return len(p.Fields) == 0 && p.Verified == nil && p.Deleted == nil && !p.ClearCreatedBy && p.UpdatedAt == nil
}

// Summary reports the outcome of one ingestion run.
type Summary struct {
	RunID       string         `json:"runId"`
	HorizonDays int            `json:"horizonDays"`
	Total       int            `json:"total"`
	Inserted    int            `json:"inserted"`
	Updated     int            `json:"updated"`
	Deleted     int            `json:"deleted"`
	Skipped     int            `json:"skipped"`
	PerSource   map[string]int `json:"perSource,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	FinishedAt  time.Time      `json:"finishedAt"`
}
