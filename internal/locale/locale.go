// Package locale holds the static per-country configuration consumed by the
// date resolver, the attendee extractor, and the source parsers.
package locale

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // timezones must resolve in minimal containers

	"golang.org/x/text/language"
)

// AttendeeKeywords drive the attendee extractor for one locale.
type AttendeeKeywords struct {
	// Approx are markers such as "ca." or "bis zu" preceding the number.
	Approx []string
	// Exact are nouns that follow the number, e.g. "Teilnehmer".
	Exact []string
	// Range separates two numbers of a range, e.g. "-" or "bis".
	Range []string
}

// Locale is immutable per-country configuration.
type Locale struct {
	Country     string
	CountryName string
	Language    language.Tag
	Timezone    *time.Location
	// DateLayouts are tried in order, most specific first. They apply to the
	// normalized "D.M.YYYY HH:MM" form produced by the date resolver.
	DateLayouts []string
	// DisplayLayout and DisplayDateLayout render timestamps back in the
	// locale's canonical notation.
	DisplayLayout     string
	DisplayDateLayout string
	Months            map[string]time.Month
	Weekdays          []string
	TimeSuffixes      []string
	Connectors        []string
	Attendees         AttendeeKeywords
}

// LanguageTag returns the BCP 47 string form, e.g. "de-DE".
func (l Locale) LanguageTag() string {
	return l.Language.String()
}

var germanMonths = map[string]time.Month{
	"januar": time.January, "jan": time.January,
	"februar": time.February, "feb": time.February,
	"märz": time.March, "maerz": time.March, "mär": time.March, "mrz": time.March,
	"april": time.April, "apr": time.April,
	"mai":  time.May,
	"juni": time.June, "jun": time.June,
	"juli": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"oktober": time.October, "okt": time.October,
	"november": time.November, "nov": time.November,
	"dezember": time.December, "dez": time.December,
}

var germanLayouts = []string{
	"2.1.2006 15:04",
	"2.1.06 15:04",
	"2.1. 15:04",
	"2.1.2006",
	"2.1.06",
	"2.1.",
}

var germanWeekdays = []string{
	"montag", "dienstag", "mittwoch", "donnerstag", "freitag", "samstag", "sonnabend", "sonntag",
	"mo", "di", "mi", "do", "fr", "sa", "so",
}

var germanAttendees = AttendeeKeywords{
	Approx: []string{"ca.", "ca", "circa", "zirka", "etwa", "ungefähr", "rund", "bis zu", "max.", "maximal", "über"},
	Exact: []string{
		"teilnehmer*innen", "teilnehmer:innen", "teilnehmerinnen", "teilnehmende", "teilnehmer",
		"personen", "menschen", "leute", "tn",
	},
	Range: []string{"-", "–", "bis"},
}

var table = map[string]Locale{
	"DE": german("DE", "Deutschland", "de-DE", "Europe/Berlin", nil),
	"AT": german("AT", "Österreich", "de-AT", "Europe/Vienna", map[string]time.Month{
		"jänner": time.January, "jän": time.January, "feber": time.February,
	}),
	"CH": german("CH", "Schweiz", "de-CH", "Europe/Zurich", nil),
}

func german(country, name, tag, tz string, extraMonths map[string]time.Month) Locale {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		panic(fmt.Sprintf("locale %s: load timezone %s: %v", country, tz, err))
	}
	months := make(map[string]time.Month, len(germanMonths)+len(extraMonths))
	for k, v := range germanMonths {
		months[k] = v
	}
	for k, v := range extraMonths {
		months[k] = v
	}
	return Locale{
		Country:           country,
		CountryName:       name,
		Language:          language.MustParse(tag),
		Timezone:          loc,
		DateLayouts:       germanLayouts,
		DisplayLayout:     "02.01.2006 15:04",
		DisplayDateLayout: "02.01.2006",
		Months:            months,
		Weekdays:          germanWeekdays,
		TimeSuffixes:      []string{"uhr", "h"},
		Connectors:        []string{"um", "ab", "von"},
		Attendees:         germanAttendees,
	}
}

// Lookup returns the locale for an ISO 3166-1 alpha-2 code.
func Lookup(country string) (Locale, bool) {
	l, ok := table[strings.ToUpper(strings.TrimSpace(country))]
	return l, ok
}

// MustLookup is Lookup for codes wired into the source registry.
func MustLookup(country string) Locale {
	l, ok := Lookup(country)
	if !ok {
		panic(fmt.Sprintf("unknown locale %q", country))
	}
	return l
}

// Countries lists the configured country codes.
func Countries() []string {
	out := make([]string, 0, len(table))
	for code := range table {
		out = append(out, code)
	}
	return out
}
