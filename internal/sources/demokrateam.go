package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/artem-schander/protest-scraper-sub000/internal/attendees"
	"github.com/artem-schander/protest-scraper-sub000/internal/datetime"
	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
	"github.com/artem-schander/protest-scraper-sub000/internal/locale"
)

const (
	demokrateamPath     = "/aktionen/"
	demokrateamMaxPages = 50
)

// countryCodes maps addressCountry spellings seen in the wild to ISO codes.
var countryCodes = map[string]string{
	"de": "DE", "deutschland": "DE", "germany": "DE",
	"at": "AT", "österreich": "AT", "austria": "AT",
	"ch": "CH", "schweiz": "CH", "switzerland": "CH",
}

// collectDemokrateam walks the paginated action list and reads the
// schema.org Event blocks embedded in each page.
func collectDemokrateam(ctx context.Context, env Env, horizonDays int) ([]ingest.Draft, error) {
	now := env.Now()
	var drafts []ingest.Draft
	for page := 1; page <= demokrateamMaxPages; page++ {
		pageURL := env.URL(demokrateamPath)
		if page > 1 {
			pageURL += "?page=" + strconv.Itoa(page)
		}
		doc, err := env.Client.Document(ctx, pageURL)
		if err != nil {
			return drafts, fmt.Errorf("demokrateam page %d: %w", page, err)
		}

		events := jsonLDEvents(doc, env.Logger)
		if len(events) == 0 {
			break
		}
		inHorizon := 0
		for _, ev := range events {
			d, ok := demokrateamDraft(env, ev, now)
			if !ok || beyondHorizon(d.Start, now, horizonDays) {
				continue
			}
			inHorizon++
			drafts = append(drafts, d)
		}
		if inHorizon == 0 || doc.Find(`a[rel="next"]`).Length() == 0 {
			break
		}
	}
	return drafts, nil
}

// jsonLDEvents collects every Event node from the page's JSON-LD scripts,
// descending into arrays and @graph containers.
func jsonLDEvents(doc *goquery.Document, logger *zap.Logger) []map[string]any {
	var events []map[string]any
	var walk func(v any)
	walk = func(v any) {
		switch node := v.(type) {
		case []any:
			for _, item := range node {
				walk(item)
			}
		case map[string]any:
			if graph, ok := node["@graph"]; ok {
				walk(graph)
			}
			if isEventType(node["@type"]) {
				events = append(events, node)
			}
		}
	}
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var payload any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			logger.Debug("skipping malformed json-ld block", zap.Error(err))
			return
		}
		walk(payload)
	})
	return events
}

func isEventType(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.HasSuffix(t, "Event")
	case []any:
		for _, item := range t {
			if isEventType(item) {
				return true
			}
		}
	}
	return false
}

func demokrateamDraft(env Env, ev map[string]any, now time.Time) (ingest.Draft, bool) {
	title := cleanText(ldString(ev["name"]))
	if title == "" {
		return ingest.Draft{}, false
	}

	place := ldObject(ev["location"])
	address := ldObject(place["address"])
	loc := env.Locale
	if code, ok := countryCodes[strings.ToLower(cleanText(ldString(address["addressCountry"])))]; ok {
		if l, found := locale.Lookup(code); found {
			loc = l
		}
	}

	start, ok := datetime.Resolve(ldString(ev["startDate"]), loc, now)
	if !ok {
		env.Logger.Debug("skipping event with unparsable start", zap.String("title", title))
		return ingest.Draft{}, false
	}

	city := cleanText(ldString(address["addressLocality"]))
	if city == "" {
		city = cleanText(ldString(place["name"]))
	}
	d := env.NewDraft(title, city)
	d.Country = loc.Country
	d.Language = loc.LanguageTag()

	startUTC := start.Time.UTC()
	d.Start = &startUTC
	d.StartTimeKnown = start.HasTime
	if end, ok := datetime.Resolve(ldString(ev["endDate"]), loc, now); ok && end.HasTime {
		endUTC := end.Time.UTC()
		d.End = &endUTC
		d.EndTimeKnown = true
	}

	postal := joinNonEmpty(" ", ldString(address["postalCode"]), ldString(address["addressLocality"]))
	streetOrPlace := joinNonEmpty(", ", ldString(place["name"]), ldString(address["streetAddress"]))
	if len(address) == 0 {
		// Some blocks carry the location as a bare string.
		streetOrPlace = cleanText(ldString(ev["location"]))
	}
	d.Location = joinNonEmpty(", ", streetOrPlace, postal)
	description := ldString(ev["description"])
	d.Attendees = attendees.Extract(description, loc)
	d.Categories = categorize(title, description)
	if href := strings.TrimSpace(ldString(ev["url"])); href != "" {
		d.URL = absoluteURL(env.BaseURL, href)
	} else {
		d.URL = rowURL(env, env.URL(demokrateamPath), title, city)
	}

	status := ldString(ev["eventStatus"])
	if strings.HasSuffix(status, "EventCancelled") {
		ApplyStatus(&d, "cancelled")
	}
	return d, true
}

// ldString reads a JSON-LD value that may be a string or an object with a name.
func ldString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if name, ok := t["name"].(string); ok {
			return name
		}
	case []any:
		if len(t) > 0 {
			return ldString(t[0])
		}
	}
	return ""
}

// ldObject reads a JSON-LD value as an object, taking the first of a list.
func ldObject(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case []any:
		if len(t) > 0 {
			return ldObject(t[0])
		}
	}
	return nil
}
