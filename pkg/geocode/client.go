// Package geocode resolves street addresses to coordinates and county using
// the Census Geocoder (primary) and Google (fallback).
package geocode

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client geocodes a single address.
type Client interface {
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)
}

// AddressInput is an address to geocode. When only OneLine is set it is sent
// as-is.
type AddressInput struct {
	OneLine string
	Street  string
	City    string
	State   string
	ZipCode string
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude  float64
	Longitude float64
	County    string // bare county name, e.g. "Davidson"
	Source    string // "census" or "google"
	Quality   string // "exact", "rooftop", "range", "centroid", "approximate"
	Matched   bool
}

// StatusError is a provider response that failed with an HTTP status, or a
// quota status mapped onto one.
type StatusError struct {
	Provider string
	Code     int
	Detail   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("geocode: %s returned status %d", e.Provider, e.Code)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// HTTPStatus reports the status so retry classification can see it.
func (e *StatusError) HTTPStatus() int { return e.Code }

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables Google Geocoding API as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for both Census and Google requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the shared requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type geocoder struct {
	httpClient *http.Client
	googleKey  string
	limiter    *rate.Limiter
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode tries Census first, then Google if configured. An address neither
// provider matches is returned with Matched=false and no error. The error is
// only returned when every provider attempted failed outright.
func (g *geocoder) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	result, censusErr := g.geocodeCensus(ctx, addr)
	if censusErr == nil && result.Matched {
		return result, nil
	}

	if g.googleKey != "" {
		googleResult, googleErr := g.geocodeGoogle(ctx, addr)
		if googleErr == nil {
			return googleResult, nil
		}
		if censusErr != nil {
			return nil, censusErr
		}
	} else if censusErr != nil {
		return nil, censusErr
	}

	return &Result{Matched: false}, nil
}

// formatOneLine formats an address as a single comma-separated line.
func formatOneLine(addr AddressInput) string {
	if addr.OneLine != "" {
		return strings.TrimSpace(addr.OneLine)
	}
	parts := make([]string, 0, 4)
	for _, p := range []string{addr.Street, addr.City, addr.State, addr.ZipCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// countyName strips a trailing " County" from a county label.
func countyName(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 7 && strings.EqualFold(s[len(s)-7:], " county") {
		s = strings.TrimSpace(s[:len(s)-7])
	}
	return s
}
