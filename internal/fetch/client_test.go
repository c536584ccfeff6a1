package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type denyPrefixGate struct {
	prefix string
}

func (g denyPrefixGate) Allowed(_ context.Context, rawURL string) bool {
	return !strings.Contains(rawURL, g.prefix)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<html><body><h1>%s</h1></body></html>", r.UserAgent())
	})
	mux.HandleFunc("/data.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[{"name":"a"},{"name":"b"}]}`)
	})
	mux.HandleFunc("/form", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		values, _ := url.ParseQuery(string(body))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"page":%q,"ctype":%q}`, values.Get("page"), r.Header.Get("Content-Type"))
	})
	mux.HandleFunc("/missing", http.NotFound)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientDocument(t *testing.T) {
	srv := newTestServer(t)
	client := New(Config{UserAgent: "ProtestScraper/test", Timeout: time.Second}, nil, nil)

	doc, err := client.Document(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	require.Equal(t, "ProtestScraper/test", doc.Find("h1").Text())
	require.NotNil(t, doc.Url)
}

func TestClientJSON(t *testing.T) {
	srv := newTestServer(t)
	client := New(Config{Timeout: time.Second}, nil, nil)

	var payload struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	}
	require.NoError(t, client.JSON(context.Background(), srv.URL+"/data.json", &payload))
	require.Len(t, payload.Items, 2)
	require.Equal(t, "b", payload.Items[1].Name)
}

func TestClientPostFormJSON(t *testing.T) {
	srv := newTestServer(t)
	client := New(Config{Timeout: time.Second}, nil, nil)

	var payload struct {
		Page  string `json:"page"`
		CType string `json:"ctype"`
	}
	form := url.Values{"page": {"3"}}
	require.NoError(t, client.PostFormJSON(context.Background(), srv.URL+"/form", form, &payload))
	require.Equal(t, "3", payload.Page)
	require.Contains(t, payload.CType, "application/x-www-form-urlencoded")

	// The same request twice must not be suppressed as a revisit.
	require.NoError(t, client.PostFormJSON(context.Background(), srv.URL+"/form", form, &payload))
}

func TestClientStatusError(t *testing.T) {
	srv := newTestServer(t)
	client := New(Config{Timeout: time.Second}, nil, nil)

	_, err := client.Get(context.Background(), srv.URL+"/missing")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestClientDisallowed(t *testing.T) {
	srv := newTestServer(t)
	client := New(Config{Timeout: time.Second}, denyPrefixGate{prefix: "/page"}, nil)

	_, err := client.Get(context.Background(), srv.URL+"/page")
	require.True(t, errors.Is(err, ErrDisallowed))

	_, err = client.Get(context.Background(), srv.URL+"/data.json")
	require.NoError(t, err)
}

func TestClientGatesRedirectTargets(t *testing.T) {
	var privateHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/private/list", http.StatusFound)
	})
	mux.HandleFunc("/elsewhere", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/public", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/private/list", func(w http.ResponseWriter, _ *http.Request) {
		privateHits.Add(1)
		fmt.Fprint(w, "secret")
	})
	mux.HandleFunc("/public", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "open")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := New(Config{Timeout: time.Second}, denyPrefixGate{prefix: "/private"}, nil)

	_, err := client.Get(context.Background(), srv.URL+"/moved")
	require.ErrorIs(t, err, ErrDisallowed)
	require.Zero(t, privateHits.Load())

	for range 2 {
		resp, err := client.Get(context.Background(), srv.URL+"/elsewhere")
		require.NoError(t, err)
		require.Equal(t, "open", string(resp.Body))
	}
}

func TestClientCanceledContext(t *testing.T) {
	srv := newTestServer(t)
	client := New(Config{Timeout: time.Second, Delay: time.Hour}, nil, nil)

	_, err := client.Get(context.Background(), srv.URL+"/page")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Get(ctx, srv.URL+"/page")
	require.Error(t, err)
}

func TestWithDelayKeepsGate(t *testing.T) {
	client := New(Config{Delay: time.Second}, denyPrefixGate{prefix: "x"}, nil)
	slower := client.WithDelay(2 * time.Second)
	require.Equal(t, 2*time.Second, slower.cfg.Delay)
	require.Equal(t, time.Second, client.cfg.Delay)
	require.NotNil(t, slower.gate)
	require.NotSame(t, client.limiter, slower.limiter)
}
