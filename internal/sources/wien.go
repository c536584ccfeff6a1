package sources

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/artem-schander/protest-scraper-sub000/internal/attendees"
	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
)

const wienPath = "/wien/lpd/service/versammlungen.aspx"

// clockStart finds where the time of day begins in a heading such as
// "Samstag, 15. März 2025, 14:00 bis 16:00 Uhr".
var clockStart = regexp.MustCompile(`(?i)\d{1,2}[:.]\d{2}\s*(?:uhr|h|bis|-|–|,|$)`)

// collectWien parses the Vienna police definition list: each dt is a date
// heading, the following dd holds topic, place and remarks.
func collectWien(ctx context.Context, env Env, horizonDays int) ([]ingest.Draft, error) {
	pageURL := env.URL(wienPath)
	doc, err := env.Client.Document(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("wien listing: %w", err)
	}

	now := env.Now()
	var drafts []ingest.Draft
	doc.Find("dl.versammlungen dt").Each(func(_ int, dt *goquery.Selection) {
		dd := dt.NextFiltered("dd")
		if dd.Length() == 0 {
			return
		}
		title := cleanText(dd.Find(".thema").Text())
		if title == "" {
			title = cleanText(dd.Children().First().Text())
		}
		if title == "" {
			return
		}

		date, clock := splitHeading(cleanText(dt.Text()))
		when, ok := resolveSpan(date, clock, env.Locale, now)
		if !ok {
			env.Logger.Debug("skipping entry with unparsable date", zap.String("title", title), zap.String("heading", dt.Text()))
			return
		}
		if beyondHorizon(when.start, now, horizonDays) {
			return
		}

		d := env.NewDraft(title, "Wien")
		when.apply(&d)
		place := cleanText(dd.Find(".ort").Text())
		if place == "" {
			place = "Wien"
		}
		d.Location = place
		remarks := cleanText(dd.Find(".anmerkung").Text())
		d.Attendees = attendees.Extract(joinNonEmpty(" ", title, remarks), env.Locale)
		d.Categories = categorize(title, remarks)
		d.URL = rowURL(env, pageURL, title, d.City)
		drafts = append(drafts, d)
	})
	return drafts, nil
}

// splitHeading separates the date from the clock range.
func splitHeading(heading string) (string, string) {
	loc := clockStart.FindStringIndex(heading)
	if loc == nil {
		return heading, ""
	}
	return strings.TrimRight(strings.TrimSpace(heading[:loc[0]]), ","), strings.TrimSpace(heading[loc[0]:])
}
