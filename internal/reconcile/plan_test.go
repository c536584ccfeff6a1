package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
)

func TestProtectedFollowsGoverningFields(t *testing.T) {
	edited := ingest.NewFieldSet("start", "location")
	require.True(t, Protected(ingest.FieldStart, edited))
	require.True(t, Protected(ingest.FieldStartTimeKnown, edited))
	require.True(t, Protected(ingest.FieldOriginalLocation, edited))
	require.True(t, Protected(ingest.FieldCoordinates, edited))
	require.False(t, Protected(ingest.FieldEnd, edited))
	require.False(t, Protected(ingest.FieldEndTimeKnown, edited))
	require.False(t, Protected(ingest.FieldTitle, nil))
}

func TestPlanOnlyChangedUnprotectedFields(t *testing.T) {
	d := sampleDraft()
	rec := existing(d)
	rec.EditedFields = ingest.NewFieldSet("location")

	d.Location = "ganz woanders"
	d.OriginalLocation = "Rohtext"
	d.Coordinates = &ingest.Point{Lat: 1, Lon: 2}
	d.Categories = []string{ingest.CategoryDemonstration, ingest.CategoryMarch}
	n := 400
	d.Attendees = &n
	later := start.Add(time.Hour)
	d.End = &later
	d.EndTimeKnown = true

	p := Plan(rec, d, now)
	require.Equal(t, map[ingest.Field]any{
		ingest.FieldCategories:   []string{ingest.CategoryDemonstration, ingest.CategoryMarch},
		ingest.FieldAttendees:    400,
		ingest.FieldEnd:          &later,
		ingest.FieldEndTimeKnown: true,
	}, p.Fields)
	require.True(t, *p.Verified)
	require.Equal(t, now, *p.UpdatedAt)
	require.False(t, p.ClearCreatedBy)
	require.Nil(t, p.Deleted)
}

func TestPlanKeepsExistingEnrichmentWhenDraftLacksIt(t *testing.T) {
	d := sampleDraft()
	rec := existing(d)
	n := 900
	rec.Attendees = &n
	rec.Coordinates = &ingest.Point{Lat: 52.5, Lon: 13.4}

	p := Plan(rec, d, now)
	require.Nil(t, p.Fields)
}

func TestPlanKeepsGeocodedLocationWhenGeocodingFailed(t *testing.T) {
	d := sampleDraft()
	rec := existing(d)
	rec.Location = "10178 Berlin, Mitte"
	rec.OriginalLocation = "Alexanderplatz, 10178 Berlin"
	rec.Coordinates = &ingest.Point{Lat: 52.52, Lon: 13.41}

	d.Location = "Alexanderplatz, 10178 Berlin"
	d.OriginalLocation = ""
	d.Coordinates = nil

	p := Plan(rec, d, now)
	require.Nil(t, p.Fields)

	// Without stored coordinates the raw location still wins.
	rec.Coordinates = nil
	p = Plan(rec, d, now)
	require.Equal(t, map[ingest.Field]any{
		ingest.FieldLocation:         "Alexanderplatz, 10178 Berlin",
		ingest.FieldOriginalLocation: "",
	}, p.Fields)
}

func TestDecide(t *testing.T) {
	d := sampleDraft()
	rec := existing(d)

	require.Equal(t, ActionInsert, Decide(nil, d, now).Action)
	require.Equal(t, ActionUpdate, Decide(&rec, d, now).Action)

	manual := rec
	manual.FullyManual = true
	del := d
	del.ShouldDelete = true
	require.Equal(t, ActionSkip, Decide(&manual, del, now).Action)

	decision := Decide(&rec, del, now)
	require.Equal(t, ActionDelete, decision.Action)
	require.True(t, *decision.Patch.Deleted)
	require.Nil(t, decision.Patch.Fields)
	require.Nil(t, decision.Patch.Verified)
	require.Nil(t, decision.Patch.UpdatedAt)

	gone := rec
	gone.Deleted = true
	require.Equal(t, ActionSkip, Decide(&gone, del, now).Action)
	require.Equal(t, ActionSkip, Decide(&gone, d, now).Action)
	require.Equal(t, ActionSkip, Decide(nil, del, now).Action)
	require.Equal(t, "skipped", ActionSkip.String())
}
