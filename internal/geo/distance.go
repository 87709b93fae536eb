// Package geo resolves county and hub proximity for property addresses.
package geo

import "math"

// earthRadiusMi is the mean Earth radius used by Haversine.
const earthRadiusMi = 3959.0

// Drive-speed tiers (miles, mph). Shorter trips are slower on average.
const (
	cityMaxMi     = 5.0
	cityMPH       = 25.0
	suburbanMaxMi = 15.0
	suburbanMPH   = 35.0
	arterialMaxMi = 30.0
	arterialMPH   = 45.0
	highwayMPH    = 55.0
)

// Hub is a named reference point that proximity is measured against.
type Hub struct {
	Name    string  `mapstructure:"name" yaml:"name" json:"name"`
	Lat     float64 `mapstructure:"lat" yaml:"lat" json:"lat"`
	Lon     float64 `mapstructure:"lon" yaml:"lon" json:"lon"`
	Primary bool    `mapstructure:"primary" yaml:"primary" json:"primary"`
}

// Hub names used by the property model.
const (
	HubNashville = "Nashville"
	HubMtJuliet  = "Mt. Juliet"
)

// DefaultHubs returns Nashville (primary) and Mt. Juliet.
func DefaultHubs() []Hub {
	return []Hub{
		{Name: HubNashville, Lat: 36.1627, Lon: -86.7816, Primary: true},
		{Name: HubMtJuliet, Lat: 36.2009, Lon: -86.5186},
	}
}

// Distance is the descriptive mileage and the estimated drive time to a hub.
type Distance struct {
	Miles                 float64 `json:"miles"`
	EstimatedDriveMinutes float64 `json:"estimatedDriveMinutes"`
}

// Haversine returns the great-circle distance in miles.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMi * c
}

// EstimateDriveMinutes converts miles to minutes using tiered average speeds:
//   - up to 5 mi: 25 mph
//   - up to 15 mi: 35 mph
//   - up to 30 mi: 45 mph
//   - beyond: 55 mph
func EstimateDriveMinutes(miles float64) float64 {
	var mph float64
	switch {
	case miles <= cityMaxMi:
		mph = cityMPH
	case miles <= suburbanMaxMi:
		mph = suburbanMPH
	case miles <= arterialMaxMi:
		mph = arterialMPH
	default:
		mph = highwayMPH
	}
	return round2(miles / mph * 60)
}

// DistanceTo computes the Distance from a coordinate to a hub.
func DistanceTo(lat, lon float64, hub Hub) Distance {
	miles := round2(Haversine(lat, lon, hub.Lat, hub.Lon))
	return Distance{Miles: miles, EstimatedDriveMinutes: EstimateDriveMinutes(miles)}
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
