package attendees

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artem-schander/protest-scraper-sub000/internal/locale"
)

func TestExtract(t *testing.T) {
	t.Parallel()

	de := locale.MustLookup("DE")
	cases := []struct {
		text string
		want int
	}{
		{"ca. 1000 Teilnehmer", 1000},
		{"500-800 Leute", 800},
		{"5.000 Menschen", 5000},
		{"Erwartet werden bis zu 15 000 Teilnehmende.", 15000},
		{"etwa 200 – 300 Personen", 300},
		{"1.200 bis 900 Teilnehmer", 1200},
		{"Angemeldet: 50 TN", 50},
		{"Circa 80 Teilnehmer*innen", 80},
		{"30 Menschen, später 4.000 Menschen", 30},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			got := Extract(tc.text, de)
			require.NotNil(t, got)
			require.Equal(t, tc.want, *got)
		})
	}
}

func TestExtractNoMatch(t *testing.T) {
	t.Parallel()

	de := locale.MustLookup("DE")
	for _, text := range []string{"", "Kundgebung am 15.03.2025", "1000 Plakate", "viele Teilnehmer"} {
		require.Nilf(t, Extract(text, de), "text %q", text)
	}
}

func TestExtractOverride(t *testing.T) {
	t.Parallel()

	de := locale.MustLookup("DE")
	custom := locale.AttendeeKeywords{Exact: []string{"Fahrräder"}, Range: []string{"-"}}

	got := Extract("300-400 Fahrräder", de, custom)
	require.NotNil(t, got)
	require.Equal(t, 400, *got)
	require.Nil(t, Extract("300 Teilnehmer", de, custom))
}
