package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
)

const (
	censusGeographiesURL = "https://geocoding.geo.census.gov/geocoder/geographies/onelineaddress"
	censusBenchmark      = "Public_AR_Current"
	censusVintage        = "Current_Current"
	censusCountyLayer    = "Counties"
)

// censusGeographiesResponse is the JSON response from the Census
// geographies one-line API.
type censusGeographiesResponse struct {
	Result struct {
		AddressMatches []censusAddressMatch `json:"addressMatches"`
	} `json:"result"`
}

type censusAddressMatch struct {
	Coordinates struct {
		X float64 `json:"x"` // longitude
		Y float64 `json:"y"` // latitude
	} `json:"coordinates"`
	MatchedAddress string                       `json:"matchedAddress"`
	Geographies    map[string][]censusGeography `json:"geographies"`
}

type censusGeography struct {
	BaseName string `json:"BASENAME"`
	Name     string `json:"NAME"`
	State    string `json:"STATE"`
	County   string `json:"COUNTY"`
}

func censusQuery(addr AddressInput) url.Values {
	return url.Values{
		"address":   {formatOneLine(addr)},
		"benchmark": {censusBenchmark},
		"vintage":   {censusVintage},
		"layers":    {censusCountyLayer},
		"format":    {"json"},
	}
}

// county prefers the bare BASENAME and falls back to NAME without its
// suffix.
func (m censusAddressMatch) county() string {
	counties := m.Geographies[censusCountyLayer]
	if len(counties) == 0 {
		return ""
	}
	if counties[0].BaseName != "" {
		return counties[0].BaseName
	}
	return countyName(counties[0].Name)
}

// geocodeCensus resolves addr with the Census geographies endpoint, which
// returns the county layer alongside the coordinates.
func (g *geocoder) geocodeCensus(ctx context.Context, addr AddressInput) (*Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: census rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, censusGeographiesURL+"?"+censusQuery(addr).Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census build request")
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: "census", Code: resp.StatusCode}
	}

	var body censusGeographiesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, eris.Wrap(err, "geocode: census decode response")
	}
	if len(body.Result.AddressMatches) == 0 {
		return &Result{Source: "census"}, nil
	}

	m := body.Result.AddressMatches[0]
	return &Result{
		Latitude:  m.Coordinates.Y,
		Longitude: m.Coordinates.X,
		County:    m.county(),
		Source:    "census",
		Quality:   "exact",
		Matched:   true,
	}, nil
}
