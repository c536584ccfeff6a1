package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/artem-schander/protest-scraper-sub000/internal/attendees"
	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
)

const (
	friedenskoopAjaxPath = "/views/ajax"
	friedenskoopMaxPages = 30
)

// friedenskoopCategories is the category filter loop: site term id and the
// tag it maps to.
var friedenskoopCategories = []struct {
	term     string
	category string
}{
	{term: "demonstration", category: ingest.CategoryDemonstration},
	{term: "kundgebung", category: ingest.CategoryRally},
	{term: "mahnwache", category: ingest.CategoryVigil},
	{term: "aufzug", category: ingest.CategoryMarch},
}

// ajaxCommand is one entry of a Drupal views AJAX response.
type ajaxCommand struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data"`
}

// collectFriedenskooperative pages through the dates view once per category.
// An event listed under several categories is emitted once with all tags.
func collectFriedenskooperative(ctx context.Context, env Env, horizonDays int) ([]ingest.Draft, error) {
	var (
		drafts []ingest.Draft
		seen   = make(map[string]int)
		errs   []error
	)
	for _, cat := range friedenskoopCategories {
		err := friedenskoopCategory(ctx, env, horizonDays, cat.term, func(d ingest.Draft) {
			key := occurrenceKey(d)
			if i, ok := seen[key]; ok {
				drafts[i].Categories = addCategory(drafts[i].Categories, cat.category)
				return
			}
			d.Categories = []string{cat.category}
			for _, c := range categorize(d.Title) {
				d.Categories = addCategory(d.Categories, c)
			}
			seen[key] = len(drafts)
			drafts = append(drafts, d)
		})
		if err != nil {
			if ctx.Err() != nil {
				return drafts, fmt.Errorf("friedenskooperative: %w", err)
			}
			errs = append(errs, fmt.Errorf("category %s: %w", cat.term, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return drafts, fmt.Errorf("friedenskooperative: %w", err)
	}
	return drafts, nil
}

// occurrenceKey identifies one dated listing. Recurring events without a
// detail page share a URL, so the start instant is part of the key.
func occurrenceKey(d ingest.Draft) string {
	if d.Start == nil {
		return d.URL
	}
	return d.URL + "|" + d.Start.UTC().Format(time.RFC3339)
}

func friedenskoopCategory(
	ctx context.Context,
	env Env,
	horizonDays int,
	term string,
	emit func(ingest.Draft),
) error {
	now := env.Now()
	for page := 0; page < friedenskoopMaxPages; page++ {
		form := url.Values{
			"view_name":       {"termine"},
			"view_display_id": {"page_1"},
			"page":            {strconv.Itoa(page)},
			"kategorie":       {term},
		}
		var commands []ajaxCommand
		if err := env.Client.PostFormJSON(ctx, env.URL(friedenskoopAjaxPath), form, &commands); err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
		fragment := insertFragment(commands)
		if fragment == "" {
			return nil
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
		if err != nil {
			return fmt.Errorf("page %d: parse fragment: %w", page, err)
		}
		rows := doc.Find(".views-row")
		if rows.Length() == 0 {
			return nil
		}

		inHorizon := 0
		rows.Each(func(_ int, row *goquery.Selection) {
			d, ok := friedenskoopRow(env, row, now)
			if !ok {
				return
			}
			if beyondHorizon(d.Start, now, horizonDays) {
				return
			}
			inHorizon++
			emit(d)
		})
		// The view is sorted by date, so a page entirely past the horizon ends the loop.
		if inHorizon == 0 {
			env.Logger.Debug("stopping pagination", zap.String("category", term), zap.Int("page", page))
			return nil
		}
	}
	return nil
}

func friedenskoopRow(env Env, row *goquery.Selection, now time.Time) (ingest.Draft, bool) {
	link := row.Find(".termin-titel a").First()
	title := cleanText(link.Text())
	if title == "" {
		return ingest.Draft{}, false
	}
	when, ok := resolveSpan(cleanText(row.Find(".termin-datum").Text()), cleanText(row.Find(".termin-zeit").Text()), env.Locale, now)
	if !ok {
		env.Logger.Debug("skipping row with unparsable date", zap.String("title", title))
		return ingest.Draft{}, false
	}
	city := cleanText(row.Find(".termin-ort").Text())
	d := env.NewDraft(title, city)
	when.apply(&d)
	d.Location = joinNonEmpty(", ", row.Find(".termin-adresse").Text(), city)
	d.Attendees = attendees.Extract(row.Find(".termin-beschreibung").Text(), env.Locale)
	if href, ok := link.Attr("href"); ok && href != "" {
		d.URL = absoluteURL(env.BaseURL, href)
	} else {
		d.URL = rowURL(env, env.URL("/termine"), title, city)
	}
	return d, true
}

// insertFragment returns the HTML of the first insert command.
func insertFragment(commands []ajaxCommand) string {
	for _, c := range commands {
		if c.Command != "insert" || len(c.Data) == 0 {
			continue
		}
		var html string
		if err := json.Unmarshal(c.Data, &html); err == nil {
			return html
		}
	}
	return ""
}

// absoluteURL resolves href against base; unparsable input is returned as is.
func absoluteURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}
