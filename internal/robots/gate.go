package robots

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/artem-schander/protest-scraper-sub000/internal/metrics"
)

var fetchRetryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
}

// Gate answers allow/deny for URLs, caching one policy per origin until Reset
// is called at the start of the next run. It is safe for concurrent use.
type Gate struct {
	client    *http.Client
	cache     sync.Map // origin -> *entry
	agent     string
	userAgent string
	logger    *zap.Logger
}

type entry struct {
	mu     sync.Mutex
	policy *Policy
}

// Config configures a Gate.
type Config struct {
	// UserAgent is sent with robots.txt requests. Its product token (the
	// part before "/") selects the robots.txt group.
	UserAgent string
	Timeout   time.Duration
	Client    *http.Client
}

// NewGate builds a Gate.
func NewGate(cfg Config, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Gate{
		client:    client,
		agent:     ProductToken(cfg.UserAgent),
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// ProductToken returns the robots.txt agent name for a User-Agent header value.
func ProductToken(userAgent string) string {
	token, _, _ := strings.Cut(strings.TrimSpace(userAgent), "/")
	if i := strings.IndexByte(token, ' '); i >= 0 {
		token = token[:i]
	}
	return token
}

// Allowed reports whether rawURL may be fetched. Unparsable URLs are denied;
// policy fetch problems allow everything.
func (g *Gate) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	policy := g.policyFor(ctx, parsed)
	path := parsed.EscapedPath()
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}
	allowed := policy.Allowed(g.agent, path)
	metrics.ObserveRobotsDecision(parsed.Hostname(), allowed)
	if !allowed {
		g.logger.Info("robots.txt disallows url", zap.String("url", rawURL), zap.String("agent", g.agent))
	}
	return allowed
}

func (g *Gate) policyFor(ctx context.Context, parsed *url.URL) *Policy {
	origin := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	value, _ := g.cache.LoadOrStore(origin, &entry{})
	e, ok := value.(*entry)
	if !ok {
		return AllowAll
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.policy != nil {
		return e.policy
	}
	policy, err := g.fetch(ctx, origin)
	if err != nil {
		g.logger.Warn("robots fetch failed; allowing access", zap.String("origin", origin), zap.Error(err))
		if ctx.Err() != nil {
			// The caller gave up; the next caller fetches again.
			return AllowAll
		}
		policy = AllowAll
	}
	e.policy = policy
	return policy
}

// Reset drops every cached policy so the next request per origin refetches
// robots.txt.
func (g *Gate) Reset() {
	g.cache.Clear()
}

func (g *Gate) fetch(ctx context.Context, origin string) (*Policy, error) {
	robotsURL := origin + "/robots.txt"
	maxAttempts := len(fetchRetryBackoff) + 1
	for attempt := 0; ; attempt++ {
		policy, err := g.fetchOnce(ctx, robotsURL)
		if err == nil {
			return policy, nil
		}
		if !isTransient(err) || attempt == maxAttempts-1 {
			return nil, err
		}
		if err := sleepWithContext(ctx, fetchRetryBackoff[attempt]); err != nil {
			return nil, err
		}
	}
}

func (g *Gate) fetchOnce(ctx context.Context, robotsURL string) (*Policy, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("failed to close robots response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.logger.Debug("no usable robots.txt", zap.String("url", robotsURL), zap.Int("status", resp.StatusCode))
		return AllowAll, nil
	}
	policy, err := Parse(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return policy, nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("robots backoff sleep: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
