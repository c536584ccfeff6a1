// Package fetch performs the HTTP requests of source parsers: every request is
// checked against the crawl-permission gate and spaced by the source's delay
// before colly sends it.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/artem-schander/protest-scraper-sub000/internal/metrics"
)

const maxRedirects = 10

// ErrDisallowed is returned when robots.txt forbids the request.
var ErrDisallowed = errors.New("fetch: disallowed by robots.txt")

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// Gate decides whether a URL may be fetched.
type Gate interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Response is a completed upstream response.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Delay is the minimum spacing between two requests to the same host.
	Delay time.Duration
}

// Client issues gated, throttled requests through a colly collector.
type Client struct {
	cfg           Config
	gate          Gate
	limiter       *Limiter
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Client. A nil gate allows every URL.
func New(cfg Config, gate Gate, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	// Clones share the base backend, so redirect checks are configured here.
	c.AllowURLRevisit = true
	c.SetRedirectHandler(redirectPolicy(gate))
	return &Client{
		cfg:           cfg,
		gate:          gate,
		limiter:       NewLimiter(cfg.Delay),
		baseCollector: c,
		logger:        logger,
	}
}

// redirectPolicy applies the gate to every redirect target.
func redirectPolicy(gate Gate) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if gate != nil && !gate.Allowed(req.Context(), req.URL.String()) {
			metrics.ObserveFetch(req.URL.String(), "disallowed", 0)
			return fmt.Errorf("redirect to %s: %w", req.URL, ErrDisallowed)
		}
		return nil
	}
}

// WithDelay returns a Client sharing the gate and transport but spacing
// requests by delay.
func (c *Client) WithDelay(delay time.Duration) *Client {
	clone := *c
	clone.cfg.Delay = delay
	clone.limiter = NewLimiter(delay)
	return &clone
}

// Get fetches rawURL.
func (c *Client) Get(ctx context.Context, rawURL string) (Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil, nil)
}

// PostForm sends form as an urlencoded POST body.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) (Response, error) {
	hdr := http.Header{"Content-Type": {"application/x-www-form-urlencoded; charset=UTF-8"}}
	return c.do(ctx, http.MethodPost, rawURL, []byte(form.Encode()), hdr)
}

// Document fetches rawURL and parses it as HTML.
func (c *Client) Document(ctx context.Context, rawURL string) (*goquery.Document, error) {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", rawURL, err)
	}
	if u, perr := url.Parse(resp.URL); perr == nil {
		doc.Url = u
	}
	return doc, nil
}

// JSON fetches rawURL and decodes the body into v.
func (c *Client) JSON(ctx context.Context, rawURL string, v any) error {
	resp, err := c.do(ctx, http.MethodGet, rawURL, nil, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return err
	}
	return decodeJSON(rawURL, resp.Body, v)
}

// PostFormJSON posts form and decodes the JSON response into v.
func (c *Client) PostFormJSON(ctx context.Context, rawURL string, form url.Values, v any) error {
	resp, err := c.PostForm(ctx, rawURL, form)
	if err != nil {
		return err
	}
	return decodeJSON(rawURL, resp.Body, v)
}

func decodeJSON(rawURL string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode json %s: %w", rawURL, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, hdr http.Header) (Response, error) {
	if c.gate != nil && !c.gate.Allowed(ctx, rawURL) {
		metrics.ObserveFetch(rawURL, "disallowed", 0)
		return Response{}, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
	}
	if err := c.limiter.Wait(ctx, rawURL); err != nil {
		return Response{}, err
	}

	var (
		result   Response
		fetchErr error
	)
	collector := c.buildCollector(hdr, &result, &fetchErr)
	if err := c.runCollector(ctx, collector, method, rawURL, body, &fetchErr); err != nil {
		metrics.ObserveFetch(rawURL, "error", 0)
		return Response{}, err
	}
	metrics.ObserveFetch(rawURL, strconv.Itoa(result.StatusCode), len(result.Body))
	if result.StatusCode < 200 || result.StatusCode > 299 {
		return Response{}, &StatusError{URL: rawURL, StatusCode: result.StatusCode}
	}
	c.logger.Debug("fetched",
		zap.String("method", method),
		zap.String("url", rawURL),
		zap.Int("status", result.StatusCode),
		zap.Int("bytes", len(result.Body)),
	)
	return result, nil
}

func (c *Client) buildCollector(hdr http.Header, result *Response, fetchErr *error) *colly.Collector {
	collector := c.baseCollector.Clone()
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}
	// The gate already evaluated robots.txt.
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	timeout := c.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	configureCollectorHooks(collector, hdr, result, fetchErr)
	return collector
}

func configureCollectorHooks(hooks collectorHooks, hdr http.Header, result *Response, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range hdr {
			r.Headers.Del(key)
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (c *Client) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	method, rawURL string,
	body []byte,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		done <- collector.Request(method, rawURL, reader, nil, nil)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly %s %s failed: %w", strings.ToLower(method), rawURL, err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
