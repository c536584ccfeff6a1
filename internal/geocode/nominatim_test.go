package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNominatimSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("format") != "jsonv2" || r.URL.Query().Get("addressdetails") != "1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("User-Agent") != "ProtestScraper/test" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("q") == "nowhere" {
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprint(w, `[{"lat":"52.5162746","lon":"13.3777041","display_name":"Pariser Platz, Mitte, Berlin, 10117, Deutschland",
			"address":{"road":"Pariser Platz","suburb":"Mitte","city":"Berlin","state":"Berlin","postcode":"10117","country":"Deutschland"}}]`)
	}))
	defer srv.Close()

	n := NewNominatim(NominatimConfig{BaseURL: srv.URL, UserAgent: "ProtestScraper/test"}, nil)

	res, err := n.Search(context.Background(), "Pariser Platz, Berlin")
	require.NoError(t, err)
	require.NotNil(t, res)
	require.InDelta(t, 52.5162746, res.Lat, 1e-9)
	require.InDelta(t, 13.3777041, res.Lon, 1e-9)
	require.Equal(t, "10117 Berlin, Mitte", res.DisplayAddress)

	res, err = n.Search(context.Background(), "nowhere")
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestNominatimStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := NewNominatim(NominatimConfig{BaseURL: srv.URL}, nil)
	_, err := n.Search(context.Background(), "x")
	require.Error(t, err)
}

func TestFormatAddress(t *testing.T) {
	cases := []struct {
		name string
		addr map[string]string
		want string
	}{
		{
			name: "city state omits region",
			addr: map[string]string{"postcode": "10117", "city": "Berlin", "state": "Berlin", "suburb": "Mitte"},
			want: "10117 Berlin, Mitte",
		},
		{
			name: "region and sub area",
			addr: map[string]string{"postcode": "01067", "city": "Dresden", "state": "Sachsen", "city_district": "Altstadt"},
			want: "01067 Dresden, Sachsen, Altstadt",
		},
		{
			name: "town without postcode",
			addr: map[string]string{"town": "Bad Ischl", "state": "Oberösterreich"},
			want: "Bad Ischl, Oberösterreich",
		},
		{
			name: "no locality",
			addr: map[string]string{"state": "Tirol"},
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, FormatAddress(tc.addr))
		})
	}
}
