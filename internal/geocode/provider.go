// BusTracker - Real-Time Vehicle Location Broadcast Service
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package geocode resolves coordinates to human-readable addresses via
// external reverse-geocoding providers. Enrichment is strictly optional:
// a provider failure degrades the response (no address) and never fails
// the request.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/citygrid/bustracker/internal/metrics"
)

// ErrNoResult is returned when the provider has no address for the
// coordinate (open ocean, unmapped area).
var ErrNoResult = errors.New("no address for coordinate")

// Provider resolves a coordinate to an address string.
type Provider interface {
	// ReverseGeocode returns a display address for the coordinate.
	// Returns ErrNoResult when the provider has nothing for the location.
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)

	// Name identifies the provider in logs and metrics.
	Name() string

	// IsAvailable reports whether the provider is configured and usable.
	IsAvailable() bool
}

const (
	defaultNominatimURL  = "https://nominatim.openstreetmap.org"
	defaultLocationIQURL = "https://us1.locationiq.com"
)

// reverseResponse is the shared response shape of Nominatim and
// LocationIQ (LocationIQ exposes a Nominatim-compatible API).
type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// NominatimProvider resolves addresses against the public Nominatim API.
// Nominatim's usage policy caps clients at one request per second and
// requires an identifying User-Agent; the limiter enforces the cap.
type NominatimProvider struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

// NewNominatimProvider creates a Nominatim-backed provider. baseURL
// overrides the public endpoint (self-hosted instances, tests); empty
// means the public API.
func NewNominatimProvider(baseURL, userAgent string, timeout time.Duration) *NominatimProvider {
	if baseURL == "" {
		baseURL = defaultNominatimURL
	}
	return &NominatimProvider{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Name implements Provider.
func (p *NominatimProvider) Name() string { return "nominatim" }

// IsAvailable implements Provider. Nominatim needs no credentials.
func (p *NominatimProvider) IsAvailable() bool { return true }

// ReverseGeocode implements Provider.
func (p *NominatimProvider) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("nominatim rate limit wait: %w", err)
	}

	endpoint := fmt.Sprintf("%s/reverse?%s", p.baseURL, url.Values{
		"format": {"jsonv2"},
		"lat":    {formatCoord(lat)},
		"lon":    {formatCoord(lon)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("building nominatim request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	return doReverse(p.client, req, p.Name())
}

// LocationIQProvider resolves addresses against the LocationIQ API, a
// keyed Nominatim-compatible service with higher rate limits.
type LocationIQProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewLocationIQProvider creates a LocationIQ-backed provider. baseURL
// overrides the public endpoint; empty means the us1 region API.
func NewLocationIQProvider(baseURL, apiKey string, timeout time.Duration) *LocationIQProvider {
	if baseURL == "" {
		baseURL = defaultLocationIQURL
	}
	return &LocationIQProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name implements Provider.
func (p *LocationIQProvider) Name() string { return "locationiq" }

// IsAvailable implements Provider.
func (p *LocationIQProvider) IsAvailable() bool { return p.apiKey != "" }

// ReverseGeocode implements Provider.
func (p *LocationIQProvider) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	if !p.IsAvailable() {
		return "", errors.New("locationiq provider not configured")
	}

	endpoint := fmt.Sprintf("%s/v1/reverse?%s", p.baseURL, url.Values{
		"key":    {p.apiKey},
		"format": {"json"},
		"lat":    {formatCoord(lat)},
		"lon":    {formatCoord(lon)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("building locationiq request: %w", err)
	}

	return doReverse(p.client, req, p.Name())
}

// doReverse executes a reverse-geocoding request and decodes the shared
// response shape, recording metrics for the call.
func doReverse(client *http.Client, req *http.Request, provider string) (string, error) {
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		metrics.RecordGeocodeRequest(provider, "error", time.Since(start))
		return "", fmt.Errorf("%s request: %w", provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		metrics.RecordGeocodeRequest(provider, "no_result", time.Since(start))
		return "", ErrNoResult
	}
	if resp.StatusCode != http.StatusOK {
		metrics.RecordGeocodeRequest(provider, "error", time.Since(start))
		return "", fmt.Errorf("%s returned status %d", provider, resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.RecordGeocodeRequest(provider, "error", time.Since(start))
		return "", fmt.Errorf("decoding %s response: %w", provider, err)
	}

	// Nominatim reports "Unable to geocode" as a 200 with an error field.
	if body.Error != "" || body.DisplayName == "" {
		metrics.RecordGeocodeRequest(provider, "no_result", time.Since(start))
		return "", ErrNoResult
	}

	metrics.RecordGeocodeRequest(provider, "success", time.Since(start))
	return body.DisplayName, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
