package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

type googleResponse struct {
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
	Results      []googleResult `json:"results"`
}

type googleComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

type googleResult struct {
	Components []googleComponent `json:"address_components"`
	Geometry   struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	PartialMatch bool `json:"partial_match"`
}

func (r googleResult) component(kind string) (googleComponent, bool) {
	for _, c := range r.Components {
		for _, t := range c.Types {
			if t == kind {
				return c, true
			}
		}
	}
	return googleComponent{}, false
}

// googleQuery builds the request parameters. A known state restricts the
// match to that state so same-named streets elsewhere are not returned.
func googleQuery(addr AddressInput, key string) url.Values {
	q := url.Values{
		"address": {formatOneLine(addr)},
		"key":     {key},
	}
	components := []string{"country:US"}
	if st := strings.TrimSpace(addr.State); st != "" {
		components = append(components, "administrative_area:"+strings.ToUpper(st))
	}
	q.Set("components", strings.Join(components, "|"))
	return q
}

// geocodeGoogle resolves addr with the Google Geocoding API. ZERO_RESULTS
// is an unmatched result, not an error; quota statuses come back as
// retryable status errors.
func (g *geocoder) geocodeGoogle(ctx context.Context, addr AddressInput) (*Result, error) {
	if g.googleKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleGeocodeURL+"?"+googleQuery(addr, g.googleKey).Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: "google", Code: resp.StatusCode}
	}

	var body googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, eris.Wrap(err, "geocode: google decode response")
	}

	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return &Result{Source: "google"}, nil
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return nil, &StatusError{Provider: "google", Code: http.StatusTooManyRequests, Detail: body.Status}
	case "UNKNOWN_ERROR":
		return nil, &StatusError{Provider: "google", Code: http.StatusServiceUnavailable, Detail: body.Status}
	default:
		return nil, eris.Errorf("geocode: google status %s: %s", body.Status, body.ErrorMessage)
	}
	if len(body.Results) == 0 {
		return &Result{Source: "google"}, nil
	}

	best := body.Results[0]
	out := &Result{
		Latitude:  best.Geometry.Location.Lat,
		Longitude: best.Geometry.Location.Lng,
		Source:    "google",
		Quality:   googleQuality(best.Geometry.LocationType, best.PartialMatch),
		Matched:   true,
	}
	if c, ok := best.component("administrative_area_level_2"); ok {
		out.County = countyName(c.LongName)
	}
	return out, nil
}

func googleQuality(locationType string, partial bool) string {
	if partial {
		return "approximate"
	}
	switch strings.ToUpper(locationType) {
	case "ROOFTOP":
		return "rooftop"
	case "RANGE_INTERPOLATED":
		return "range"
	case "GEOMETRIC_CENTER":
		return "centroid"
	}
	return "approximate"
}
