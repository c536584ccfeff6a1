package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/artem-schander/protest-scraper-sub000/internal/attendees"
	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
)

const berlinPath = "/polizei/service/versammlungsbehoerde/versammlungen-aufzuege/"

// collectBerlin scrapes the assembly authority's single listing table.
// Columns are located by header text since their order has changed before.
func collectBerlin(ctx context.Context, env Env, horizonDays int) ([]ingest.Draft, error) {
	pageURL := env.URL(berlinPath)
	doc, err := env.Client.Document(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("berlin listing: %w", err)
	}
	table := doc.Find("table").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find("th").Length() > 0
	}).First()
	if table.Length() == 0 {
		return nil, errors.New("berlin listing: no table found")
	}
	cols := headerIndex(table)
	for _, required := range []string{"datum", "thema"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("berlin listing: missing column %q", required)
		}
	}

	now := env.Now()
	var drafts []ingest.Draft
	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		cell := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= cells.Length() {
				return ""
			}
			return cleanText(cells.Eq(i).Text())
		}

		title := cell("thema")
		if title == "" {
			return
		}
		clock := cell("von")
		if until := cell("bis"); until != "" && clock != "" {
			clock += " - " + until
		}
		when, ok := resolveSpan(cell("datum"), clock, env.Locale, now)
		if !ok {
			env.Logger.Debug("skipping row with unparsable date", zap.String("title", title), zap.String("date", cell("datum")))
			return
		}
		if beyondHorizon(when.start, now, horizonDays) {
			return
		}

		d := env.NewDraft(title, "Berlin")
		when.apply(&d)
		place := cell("versammlungsort")
		d.Location = joinNonEmpty(", ", place, joinNonEmpty(" ", cell("plz"), "Berlin"))
		d.URL = rowURL(env, pageURL, title, d.City)
		d.Attendees = attendees.Extract(title, env.Locale)
		d.Categories = categorize(title)
		if route := cell("aufzugsstrecke"); route != "" {
			d.Categories = addCategory(d.Categories, ingest.CategoryMarch)
		}
		drafts = append(drafts, d)
	})
	return drafts, nil
}

// headerIndex maps lowercased header labels to column positions.
func headerIndex(table *goquery.Selection) map[string]int {
	cols := make(map[string]int)
	table.Find("th").Each(func(i int, th *goquery.Selection) {
		label := strings.ToLower(cleanText(th.Text()))
		label = strings.TrimSuffix(label, ":")
		if _, seen := cols[label]; !seen {
			cols[label] = i
		}
	})
	return cols
}
