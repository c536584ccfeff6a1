package locale

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	de, ok := Lookup("de")
	require.True(t, ok)
	require.Equal(t, "DE", de.Country)
	require.Equal(t, "de-DE", de.LanguageTag())
	require.Equal(t, "Europe/Berlin", de.Timezone.String())

	at := MustLookup("AT")
	require.Equal(t, time.January, at.Months["jänner"])
	require.Equal(t, "Österreich", at.CountryName)

	_, ok = Lookup("XX")
	require.False(t, ok)
}

func TestLayoutsMostSpecificFirst(t *testing.T) {
	de := MustLookup("DE")
	require.Equal(t, "2.1.2006 15:04", de.DateLayouts[0])
	require.Equal(t, "2.1.", de.DateLayouts[len(de.DateLayouts)-1])
}

func TestMustLookupPanicsOnUnknown(t *testing.T) {
	require.Panics(t, func() { MustLookup("ZZ") })
}

func TestCountries(t *testing.T) {
	require.ElementsMatch(t, []string{"DE", "AT", "CH"}, Countries())
}
