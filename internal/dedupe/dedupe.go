// Package dedupe removes exact duplicates from one run's drafts.
package dedupe

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
)

// Key identifies a draft within a run: lowercased title, start instant, city
// and source id.
func Key(d ingest.Draft) string {
	start := ""
	if d.Start != nil {
		start = d.Start.UTC().Format(time.RFC3339Nano)
	}
	fold := cases.Lower(language.Und)
	return strings.Join([]string{fold.String(strings.TrimSpace(d.Title)), start, d.City, d.Source}, "\x1f")
}

// Drafts keeps the first draft per Key, preserving input order.
func Drafts(drafts []ingest.Draft) []ingest.Draft {
	seen := make(map[string]struct{}, len(drafts))
	out := make([]ingest.Draft, 0, len(drafts))
	for _, d := range drafts {
		k := Key(d)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}
	return out
}
