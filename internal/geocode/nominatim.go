package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// NominatimConfig configures the Nominatim client.
type NominatimConfig struct {
	BaseURL   string
	UserAgent string
	// Email is sent as the contact parameter the public instance asks for.
	Email    string
	Language string
	Timeout  time.Duration
	Client   *http.Client
}

// Nominatim queries a Nominatim-compatible /search endpoint.
type Nominatim struct {
	baseURL   string
	userAgent string
	email     string
	language  string
	client    *http.Client
	logger    *zap.Logger
}

// NewNominatim builds a provider client.
func NewNominatim(cfg NominatimConfig, logger *zap.Logger) *Nominatim {
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
	base := cfg.BaseURL
	if base == "" {
		base = "https://nominatim.openstreetmap.org"
	}
	return &Nominatim{
		baseURL:   strings.TrimRight(base, "/"),
		userAgent: cfg.UserAgent,
		email:     cfg.Email,
		language:  cfg.Language,
		client:    client,
		logger:    logger,
	}
}

type nominatimPlace struct {
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
}

// Search returns the best match for query, or nil when the provider knows nothing.
func (n *Nominatim) Search(ctx context.Context, query string) (*Result, error) {
	params := url.Values{
		"q":              {query},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
		"limit":          {"1"},
	}
	if n.email != "" {
		params.Set("email", n.email)
	}
	if n.language != "" {
		params.Set("accept-language", n.language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new geocode request: %w", err)
	}
	if n.userAgent != "" {
		req.Header.Set("User-Agent", n.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			n.logger.Debug("failed to close geocode response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode request: unexpected status %d", resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&places); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(places) == 0 {
		return nil, nil
	}
	p := places[0]
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("parse latitude %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("parse longitude %q: %w", p.Lon, err)
	}
	display := FormatAddress(p.Address)
	if display == "" {
		display = p.DisplayName
	}
	return &Result{Lat: lat, Lon: lon, DisplayAddress: display}, nil
}

var (
	localityKeys = []string{"city", "town", "village", "municipality", "hamlet"}
	regionKeys   = []string{"state", "region", "county"}
	subAreaKeys  = []string{"suburb", "city_district", "borough", "quarter", "neighbourhood"}
)

// FormatAddress renders "<postcode> <locality>[, <region>][, <sub-area>]". The
// region is omitted when it equals the locality (city states).
func FormatAddress(addr map[string]string) string {
	locality := first(addr, localityKeys)
	if locality == "" {
		return ""
	}
	head := strings.TrimSpace(addr["postcode"] + " " + locality)
	parts := []string{head}
	if region := first(addr, regionKeys); region != "" && !strings.EqualFold(region, locality) {
		parts = append(parts, region)
	}
	if sub := first(addr, subAreaKeys); sub != "" && !strings.EqualFold(sub, locality) {
		parts = append(parts, sub)
	}
	return strings.Join(parts, ", ")
}

func first(addr map[string]string, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(addr[k]); v != "" {
			return v
		}
	}
	return ""
}
