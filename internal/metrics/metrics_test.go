package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()
	require.NotNil(t, fetchTotal)
	require.NotNil(t, reconcileOutcomesTotal)
}

func TestObserversIncrementCollectors(t *testing.T) {
	before := testutil.ToFloat64(reconcileOutcomesTotal.WithLabelValues("inserted"))
	ObserveReconcile("inserted")
	require.InDelta(t, before+1, testutil.ToFloat64(reconcileOutcomesTotal.WithLabelValues("inserted")), 0.001)

	ObserveSource("metrics-test", 3, false)
	ObserveSource("metrics-test", 0, true)
	require.InDelta(t, 3, testutil.ToFloat64(sourceEventsTotal.WithLabelValues("metrics-test")), 0.001)
	require.InDelta(t, 1, testutil.ToFloat64(sourceFailuresTotal.WithLabelValues("metrics-test")), 0.001)

	ObserveRobotsDecision("https://Robots.Example/x", false)
	require.InDelta(t, 1, testutil.ToFloat64(robotsDecisionsTotal.WithLabelValues("robots.example", "deny")), 0.001)

	ObserveFetch("https://fetch.example/a", "200", 512)
	require.InDelta(t, 512, testutil.ToFloat64(fetchBytesTotal.WithLabelValues("fetch.example")), 0.001)

	ObserveRun("success", 2*time.Second)
	require.Positive(t, testutil.CollectAndCount(runDurationSeconds))
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
