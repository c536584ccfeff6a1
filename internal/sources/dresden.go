package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/artem-schander/protest-scraper-sub000/internal/attendees"
	"github.com/artem-schander/protest-scraper-sub000/internal/ingest"
)

const dresdenPath = "/data_ext/versammlungsuebersicht/Versammlungen.json"

type dresdenPayload struct {
	Versammlungen []dresdenAssembly `json:"Versammlungen"`
}

type dresdenAssembly struct {
	ID         string `json:"ID"`
	Datum      string `json:"Datum"`
	Zeit       string `json:"Zeit"`
	Thema      string `json:"Thema"`
	Ort        string `json:"Ort"`
	Startpunkt string `json:"Startpunkt"`
	Teilnehmer string `json:"Teilnehmer"`
	Status     string `json:"Status"`
}

// dresdenStatus translates the city's status vocabulary into ApplyStatus codes.
var dresdenStatus = map[string]string{
	"beschieden":    StatusApproved,
	"bestätigt":     StatusApproved,
	"angemeldet":    StatusRegistered,
	"in prüfung":    StatusRegistered,
	"abgesagt":      "cancelled",
	"verboten":      "prohibited",
	"zurückgezogen": "withdrawn",
}

// collectDresden reads the city's JSON feed. Status codes drive the
// verified/delete flags.
func collectDresden(ctx context.Context, env Env, horizonDays int) ([]ingest.Draft, error) {
	var payload dresdenPayload
	if err := env.Client.JSON(ctx, env.URL(dresdenPath), &payload); err != nil {
		return nil, fmt.Errorf("dresden feed: %w", err)
	}

	now := env.Now()
	drafts := make([]ingest.Draft, 0, len(payload.Versammlungen))
	for _, a := range payload.Versammlungen {
		title := cleanText(a.Thema)
		if title == "" {
			continue
		}
		when, ok := resolveSpan(a.Datum, a.Zeit, env.Locale, now)
		if !ok {
			env.Logger.Debug("skipping assembly with unparsable date",
				zap.String("id", a.ID), zap.String("date", a.Datum), zap.String("time", a.Zeit))
			continue
		}
		if beyondHorizon(when.start, now, horizonDays) {
			continue
		}

		d := env.NewDraft(title, "Dresden")
		when.apply(&d)
		d.Location = joinNonEmpty(", ", a.Ort, a.Startpunkt, "Dresden")
		d.Attendees = attendees.Extract(a.Teilnehmer, env.Locale)
		d.Categories = categorize(title, a.Startpunkt)
		d.URL = dresdenURL(env, a, title)

		if status := strings.ToLower(cleanText(a.Status)); status != "" {
			if mapped, ok := dresdenStatus[status]; ok {
				status = mapped
			}
			ApplyStatus(&d, status)
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

func dresdenURL(env Env, a dresdenAssembly, title string) string {
	if id := strings.TrimSpace(a.ID); id != "" {
		return env.URL("/de/rathaus/dienstleistungen/versammlungen.php?id=" + url.QueryEscape(id))
	}
	return rowURL(env, env.URL(dresdenPath), title, "Dresden")
}
