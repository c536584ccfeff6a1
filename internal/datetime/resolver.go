// Package datetime turns locale-specific free-text date fragments into
// absolute timestamps.
package datetime

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/artem-schander/protest-scraper-sub000/internal/locale"
)

// Result is a resolved timestamp plus whether a time of day was present.
type Result struct {
	Time    time.Time
	HasTime bool
}

// isoLayouts are tried on the raw fragment after the locale layouts.
var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

var (
	rangeTail      = regexp.MustCompile(`\s*(?:-|–|bis)\s*\d{1,2}(?:[:.]\d{2})?(?:\s*(?:uhr|h))?\s*$`)
	spacedDate     = regexp.MustCompile(`(\d{1,2})\.\s+(\d{1,2})\.\s*(\d{4})?`)
	dottedTime     = regexp.MustCompile(`(\s)(\d{1,2})\.(\d{2})(\s|$)`)
	dateRangeTail  = regexp.MustCompile(`\s*(?:-|–|bis)\s*\d{1,2}\.\d{1,2}\.(?:\d{2,4})?.*$`)
	bareHour       = regexp.MustCompile(`^(\d{1,2}\.\d{1,2}\.(?:\d{2,4})?)\s+(\d{1,2})$`)
	multipleSpaces = regexp.MustCompile(`\s+`)
)

// localeRegexps caches the per-locale normalization patterns.
type localeRegexps struct {
	months     *regexp.Regexp
	weekdays   *regexp.Regexp
	suffixes   *regexp.Regexp
	connectors *regexp.Regexp
}

var compiled sync.Map // country -> *localeRegexps

func patternsFor(loc locale.Locale) *localeRegexps {
	if cached, ok := compiled.Load(loc.Country); ok {
		if p, ok := cached.(*localeRegexps); ok {
			return p
		}
	}
	names := make([]string, 0, len(loc.Months))
	for name := range loc.Months {
		names = append(names, name)
	}
	p := &localeRegexps{
		months:     regexp.MustCompile(`(\d{1,2})\.?\s*(` + alternation(names) + `)\.?(?:\s*(\d{4}))?`),
		weekdays:   wordPattern(loc.Weekdays, `\.?,?`),
		suffixes:   wordPattern(loc.TimeSuffixes, ""),
		connectors: wordPattern(loc.Connectors, ""),
	}
	compiled.Store(loc.Country, p)
	return p
}

// alternation joins quoted words longest first so prefixes never shadow
// longer names ("jun" vs "juni").
func alternation(words []string) string {
	sorted := append([]string(nil), words...)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})
	quoted := make([]string, len(sorted))
	for i, w := range sorted {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, "|")
}

func wordPattern(words []string, tail string) *regexp.Regexp {
	if len(words) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?:^|\s)(?:` + alternation(words) + `)` + tail + `(?:\s|$)`)
}

// Normalize rewrites a fragment into the "D.M.YYYY HH:MM" form the locale
// layouts expect. Unknown text is left in place so layouts reject it.
func Normalize(fragment string, loc locale.Locale) string {
	p := patternsFor(loc)
	s := strings.ToLower(strings.ReplaceAll(fragment, "\u00a0", " "))
	s = strings.ReplaceAll(s, ",", " ")
	s = multipleSpaces.ReplaceAllString(strings.TrimSpace(s), " ")

	s = p.months.ReplaceAllStringFunc(s, func(m string) string {
		sub := p.months.FindStringSubmatch(m)
		month, ok := loc.Months[sub[2]]
		if !ok {
			return m
		}
		out := sub[1] + "." + strconv.Itoa(int(month)) + "."
		if sub[3] != "" {
			out += sub[3]
		}
		return out + " "
	})
	for _, re := range []*regexp.Regexp{p.weekdays, p.suffixes, p.connectors} {
		if re == nil {
			continue
		}
		// Matches consume the surrounding spaces, so run twice for adjacent hits.
		s = re.ReplaceAllString(s, " ")
		s = re.ReplaceAllString(s, " ")
	}
	s = multipleSpaces.ReplaceAllString(strings.TrimSpace(s), " ")
	s = dateRangeTail.ReplaceAllString(s, "")
	s = rangeTail.ReplaceAllString(s, "")
	s = dottedTime.ReplaceAllString(s, "$1$2:$3$4")
	s = spacedDate.ReplaceAllString(s, "$1.$2.$3")
	s = bareHour.ReplaceAllString(s, "$1 $2:00")
	return strings.TrimSpace(s)
}

// Resolve parses fragment with the locale's layouts. It returns false when no
// layout matches; it never panics.
func Resolve(fragment string, loc locale.Locale, now time.Time) (Result, bool) {
	raw := strings.TrimSpace(fragment)
	if raw == "" || loc.Timezone == nil {
		return Result{}, false
	}
	norm := Normalize(raw, loc)
	for _, layout := range loc.DateLayouts {
		t, err := time.ParseInLocation(layout, norm, loc.Timezone)
		if err != nil {
			continue
		}
		if !hasYear(layout) {
			var ok bool
			if t, ok = inferYear(t, now, loc.Timezone); !ok {
				return Result{}, false
			}
		}
		return Result{Time: t, HasTime: hasClock(layout)}, true
	}
	for _, layout := range isoLayouts {
		t, err := time.ParseInLocation(layout, raw, loc.Timezone)
		if err != nil {
			continue
		}
		return Result{Time: t, HasTime: hasClock(layout)}, true
	}
	return Result{}, false
}

// Format renders t in the locale's display notation.
func Format(t time.Time, loc locale.Locale, hasTime bool) string {
	layout := loc.DisplayDateLayout
	if hasTime {
		layout = loc.DisplayLayout
	}
	return t.In(loc.Timezone).Format(layout)
}

// SplitTimeRange splits "14:00 - 16:00 Uhr" into its start and end fragments.
// Either part may be empty.
func SplitTimeRange(text string) (string, string) {
	s := strings.TrimSpace(text)
	for _, sep := range []string{" bis ", "–", "-"} {
		if i := strings.Index(s, sep); i >= 0 {
			return cleanClock(s[:i]), cleanClock(s[i+len(sep):])
		}
	}
	return cleanClock(s), ""
}

func cleanClock(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, suffix := range []string{"uhr", "h"} {
		if strings.HasSuffix(lower, suffix) {
			s = strings.TrimSpace(s[:len(s)-len(suffix)])
			lower = strings.ToLower(s)
		}
	}
	s = strings.ReplaceAll(s, ".", ":")
	if s != "" && !strings.Contains(s, ":") {
		if _, err := strconv.Atoi(s); err == nil {
			s += ":00"
		}
	}
	return s
}

func hasYear(layout string) bool {
	return strings.Contains(layout, "06")
}

func hasClock(layout string) bool {
	return strings.Contains(layout, "15")
}

// inferYear picks the current year unless that date already passed, in which
// case the event is assumed to be next year. A day that does not exist in
// that year (29.02.) moves to the next year that has it.
func inferYear(t time.Time, now time.Time, tz *time.Location) (time.Time, bool) {
	local := now.In(tz)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, tz)
	for year := local.Year(); year <= local.Year()+8; year++ {
		candidate := time.Date(year, t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, tz)
		if candidate.Month() != t.Month() {
			continue
		}
		day := time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, tz)
		if !day.Before(today) {
			return candidate, true
		}
	}
	return time.Time{}, false
}
