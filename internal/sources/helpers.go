package sources

import (
	"regexp"
	"strings"
	"time"

	"github.com/artem-schander/protest-scraper-sub000/internal/datetime"
	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
	"github.com/artem-schander/protest-scraper-sub000/internal/locale"
)

// Canonical status codes understood by ApplyStatus.
const (
	StatusApproved   = "approved"
	StatusRegistered = "registered"
)

// ApplyStatus maps a source status code onto the draft's trust flags:
// approved is verified, registered is unverified, anything else marks the
// draft for deletion.
func ApplyStatus(d *ingest.Draft, code string) {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case StatusApproved:
		d.Verified = true
		d.ShouldDelete = false
	case StatusRegistered:
		d.Verified = false
		d.ShouldDelete = false
	default:
		d.ShouldDelete = true
	}
}

// FilterHorizon drops drafts starting after now+horizonDays or before today
// (in tz). Drafts without a start are kept. A non-positive horizon disables
// the upper bound.
func FilterHorizon(drafts []ingest.Draft, now time.Time, horizonDays int, tz *time.Location) []ingest.Draft {
	if tz == nil {
		tz = time.UTC
	}
	local := now.In(tz)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tz)
	limit := now.AddDate(0, 0, horizonDays)

	out := make([]ingest.Draft, 0, len(drafts))
	for _, d := range drafts {
		if d.Start != nil {
			if d.Start.Before(today) {
				continue
			}
			if horizonDays > 0 && d.Start.After(limit) {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

// beyondHorizon reports whether t lies after now+horizonDays.
func beyondHorizon(t *time.Time, now time.Time, horizonDays int) bool {
	return t != nil && horizonDays > 0 && t.After(now.AddDate(0, 0, horizonDays))
}

// span is a resolved start/end pair.
type span struct {
	start      *time.Time
	startKnown bool
	end        *time.Time
	endKnown   bool
}

// resolveSpan resolves a date fragment plus an optional clock range such as
// "14:00 - 16:00 Uhr". An end before the start rolls over to the next day.
func resolveSpan(date, clock string, loc locale.Locale, now time.Time) (span, bool) {
	startClock, endClock := datetime.SplitTimeRange(clock)
	res, ok := datetime.Resolve(strings.TrimSpace(date+" "+startClock), loc, now)
	if !ok {
		return span{}, false
	}
	start := res.Time.UTC()
	out := span{start: &start, startKnown: res.HasTime}
	if endClock == "" || !res.HasTime {
		return out, true
	}
	endRes, ok := datetime.Resolve(strings.TrimSpace(date+" "+endClock), loc, now)
	if !ok || !endRes.HasTime {
		return out, true
	}
	end := endRes.Time.UTC()
	if end.Before(start) {
		end = end.AddDate(0, 0, 1)
	}
	out.end = &end
	out.endKnown = true
	return out, true
}

func (s span) apply(d *ingest.Draft) {
	d.Start = s.start
	d.StartTimeKnown = s.startKnown
	d.End = s.end
	d.EndTimeKnown = s.endKnown
}

var whitespace = regexp.MustCompile(`\s+`)

// cleanText collapses whitespace, including non-breaking spaces.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// joinNonEmpty joins the non-empty cleaned parts with sep.
func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = cleanText(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// rowURL gives table rows a stable per-row URL on a shared listing page.
func rowURL(env Env, pageURL, title, city string) string {
	if env.Hasher == nil {
		return pageURL
	}
	return pageURL + "#" + env.Hasher.Fingerprint(title, city)
}

var categoryKeywords = []struct {
	category string
	words    []string
}{
	{ingest.CategoryVigil, []string{"mahnwache", "gedenken", "lichterkette"}},
	{ingest.CategoryMarch, []string{"aufzug", "demonstrationszug", "marsch", "laufdemo", "fahrraddemo", "umzug"}},
	{ingest.CategoryRally, []string{"kundgebung", "standkundgebung"}},
}

// categorize derives category tags from free text. Demonstration is the
// fallback so every draft carries at least one tag.
func categorize(texts ...string) []string {
	joined := strings.ToLower(strings.Join(texts, " "))
	var out []string
	for _, c := range categoryKeywords {
		for _, w := range c.words {
			if strings.Contains(joined, w) {
				out = append(out, c.category)
				break
			}
		}
	}
	if len(out) == 0 {
		out = []string{ingest.CategoryDemonstration}
	}
	return out
}

// addCategory appends c unless present.
func addCategory(cats []string, c string) []string {
	for _, existing := range cats {
		if existing == c {
			return cats
		}
	}
	return append(cats, c)
}
