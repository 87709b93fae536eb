package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const censusMatchBody = `{
	"result": {
		"addressMatches": [{
			"coordinates": {"x": -86.7816, "y": 36.1627},
			"matchedAddress": "100 OAK ST, NASHVILLE, TN, 37201",
			"geographies": {
				"Counties": [{"BASENAME": "Davidson", "NAME": "Davidson County", "STATE": "47", "COUNTY": "037"}]
			}
		}]
	}
}`

const googleMatchBody = `{
	"status": "OK",
	"results": [{
		"formatted_address": "5 Elm Dr, Lebanon, TN 37087, USA",
		"address_components": [
			{"long_name": "Lebanon", "types": ["locality", "political"]},
			{"long_name": "Wilson County", "types": ["administrative_area_level_2", "political"]}
		],
		"geometry": {"location": {"lat": 36.2081, "lng": -86.2911}, "location_type": "ROOFTOP"}
	}]
}`

func TestCensusGeocode_Success(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, censusMatchBody)
	}))
	defer srv.Close()

	g := &geocoder{
		httpClient: newRewriteClient(srv.URL, censusGeographiesURL),
		limiter:    newTestLimiter(),
	}

	result, err := g.geocodeCensus(context.Background(), AddressInput{OneLine: "100 Oak St, Nashville, TN"})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, 36.1627, result.Latitude, 0.0001)
	assert.InDelta(t, -86.7816, result.Longitude, 0.0001)
	assert.Equal(t, "Davidson", result.County)
	assert.Equal(t, "census", result.Source)
	assert.Contains(t, gotQuery, "layers=Counties")
	assert.Contains(t, gotQuery, "address=100+Oak+St")
}

func TestCensusGeocode_NameFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"result":{"addressMatches":[{"coordinates":{"x":1,"y":2},"geographies":{"Counties":[{"NAME":"Sumner County"}]}}]}}`)
	}))
	defer srv.Close()

	g := &geocoder{httpClient: newRewriteClient(srv.URL, censusGeographiesURL), limiter: newTestLimiter()}

	result, err := g.geocodeCensus(context.Background(), AddressInput{OneLine: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Sumner", result.County)
}

func TestCensusGeocode_NoMatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"result": {"addressMatches": []}}`)
	}))
	defer srv.Close()

	g := &geocoder{httpClient: newRewriteClient(srv.URL, censusGeographiesURL), limiter: newTestLimiter()}

	result, err := g.geocodeCensus(context.Background(), AddressInput{Street: "123 Nowhere St", City: "Faketown", State: "XX"})
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Empty(t, result.County)
}

func TestCensusGeocode_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := &geocoder{httpClient: newRewriteClient(srv.URL, censusGeographiesURL), limiter: newTestLimiter()}

	_, err := g.geocodeCensus(context.Background(), AddressInput{OneLine: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestGoogleGeocode_County(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "country:US|administrative_area:TN", r.URL.Query().Get("components"))
		_, _ = io.WriteString(w, googleMatchBody)
	}))
	defer srv.Close()

	g := &geocoder{httpClient: newRewriteClient(srv.URL, googleGeocodeURL), googleKey: "test-key", limiter: newTestLimiter()}

	result, err := g.geocodeGoogle(context.Background(), AddressInput{OneLine: "5 Elm Dr, Lebanon, TN", State: "tn"})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "Wilson", result.County)
	assert.Equal(t, "rooftop", result.Quality)
	assert.Equal(t, "google", result.Source)
}

func TestGoogleGeocode_Statuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"zero results", `{"status":"ZERO_RESULTS","results":[]}`, false},
		{"denied", `{"status":"REQUEST_DENIED","results":[]}`, true},
		{"over limit", `{"status":"OVER_QUERY_LIMIT","results":[]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			g := &geocoder{httpClient: newRewriteClient(srv.URL, googleGeocodeURL), googleKey: "k", limiter: newTestLimiter()}
			result, err := g.geocodeGoogle(context.Background(), AddressInput{OneLine: "x"})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.False(t, result.Matched)
		})
	}
}

func TestGoogleGeocode_QuotaIsRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"status":"OVER_QUERY_LIMIT","results":[]}`)
	}))
	defer srv.Close()

	g := &geocoder{httpClient: newRewriteClient(srv.URL, googleGeocodeURL), googleKey: "k", limiter: newTestLimiter()}
	_, err := g.geocodeGoogle(context.Background(), AddressInput{OneLine: "x"})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.HTTPStatus())
	assert.Contains(t, se.Error(), "OVER_QUERY_LIMIT")
}

func TestGoogleQuality(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "rooftop", googleQuality("ROOFTOP", false))
	assert.Equal(t, "approximate", googleQuality("ROOFTOP", true))
	assert.Equal(t, "centroid", googleQuality("geometric_center", false))
	assert.Equal(t, "approximate", googleQuality("", false))
}

func TestGoogleGeocode_NoKey(t *testing.T) {
	t.Parallel()

	g := &geocoder{limiter: newTestLimiter()}
	_, err := g.geocodeGoogle(context.Background(), AddressInput{OneLine: "x"})
	assert.ErrorContains(t, err, "google api key not configured")
}

func TestGeocode_FallsBackToGoogle(t *testing.T) {
	t.Parallel()

	var censusCalls, googleCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "geographies") {
			censusCalls.Add(1)
			_, _ = io.WriteString(w, `{"result": {"addressMatches": []}}`)
			return
		}
		googleCalls.Add(1)
		_, _ = io.WriteString(w, googleMatchBody)
	}))
	defer srv.Close()

	c := NewClient(
		WithHTTPClient(newRewriteClient(srv.URL, censusGeographiesURL, googleGeocodeURL)),
		WithGoogleAPIKey("k"),
		WithRateLimit(1000),
	)

	result, err := c.Geocode(context.Background(), AddressInput{Street: "5 Elm Dr", City: "Lebanon", State: "TN"})
	require.NoError(t, err)
	assert.Equal(t, "google", result.Source)
	assert.Equal(t, "Wilson", result.County)
	assert.Equal(t, int32(1), censusCalls.Load())
	assert.Equal(t, int32(1), googleCalls.Load())
}

func TestGeocode_CensusErrorWithoutFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(WithHTTPClient(newRewriteClient(srv.URL, censusGeographiesURL)), WithRateLimit(1000))
	_, err := c.Geocode(context.Background(), AddressInput{OneLine: "x"})
	assert.ErrorContains(t, err, "status 502")
}

func TestGeocode_UnmatchedIsNotAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"result": {"addressMatches": []}}`)
	}))
	defer srv.Close()

	c := NewClient(WithHTTPClient(newRewriteClient(srv.URL, censusGeographiesURL)))
	result, err := c.Geocode(context.Background(), AddressInput{OneLine: "x"})
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestFormatOneLine(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1 A St, Nashville, TN, 37201", formatOneLine(AddressInput{Street: "1 A St", City: "Nashville", State: "TN", ZipCode: "37201"}))
	assert.Equal(t, "1 A St, TN", formatOneLine(AddressInput{Street: " 1 A St ", State: "TN"}))
	assert.Equal(t, "raw line", formatOneLine(AddressInput{OneLine: " raw line ", Street: "ignored"}))
}

func TestCountyName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Wilson", countyName("Wilson County"))
	assert.Equal(t, "Davidson", countyName(" Davidson COUNTY "))
	assert.Equal(t, "County", countyName("County"))
}
