// Package attendees estimates headcounts from organizer-provided free text.
package attendees

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/artem-schander/protest-scraper-sub000/internal/locale"
)

const number = `(\d{1,3}(?:[. '’]\d{3})+|\d+)`

var patterns sync.Map // cache key -> *regexp.Regexp

// Extract returns the first headcount estimate found in text, or nil. For a
// range such as "500-800 Leute" the larger bound is returned. An optional
// override replaces the locale's keyword lists.
func Extract(text string, loc locale.Locale, override ...locale.AttendeeKeywords) *int {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	keywords := loc.Attendees
	cacheKey := loc.Country
	if len(override) > 0 {
		keywords = override[0]
		cacheKey = ""
	}
	re := compile(cacheKey, keywords)
	if re == nil {
		return nil
	}
	m := re.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return nil
	}
	first, ok := parseNumber(m[1])
	if !ok {
		return nil
	}
	if m[2] != "" {
		if second, ok := parseNumber(m[2]); ok && second > first {
			first = second
		}
	}
	return &first
}

func compile(cacheKey string, kw locale.AttendeeKeywords) *regexp.Regexp {
	if cacheKey != "" {
		if cached, ok := patterns.Load(cacheKey); ok {
			if re, ok := cached.(*regexp.Regexp); ok {
				return re
			}
		}
	}
	if len(kw.Exact) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`(?:^|[^\pL\d])`)
	if len(kw.Approx) > 0 {
		b.WriteString(`(?:(?:` + alternation(kw.Approx) + `)\s*)?`)
	}
	b.WriteString(number)
	if len(kw.Range) > 0 {
		b.WriteString(`(?:\s*(?:` + alternation(kw.Range) + `)\s*` + number + `)?`)
	} else {
		b.WriteString(`()`)
	}
	b.WriteString(`\s*(?:` + alternation(kw.Exact) + `)`)
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil
	}
	if cacheKey != "" {
		patterns.Store(cacheKey, re)
	}
	return re
}

func alternation(words []string) string {
	sorted := make([]string, 0, len(words))
	for _, w := range words {
		sorted = append(sorted, strings.ToLower(w))
	}
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	for i, w := range sorted {
		sorted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(sorted, "|")
}

func parseNumber(raw string) (int, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
