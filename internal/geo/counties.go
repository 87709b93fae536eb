package geo

import (
	"strings"

	"github.com/sells-group/property-scorer/internal/address"
)

// CountyTable maps lowercase city names to county names. Lookups against
// it never touch the network.
type CountyTable map[string]string

// DefaultCountyTable returns the built-in middle-Tennessee city table.
func DefaultCountyTable() CountyTable {
	return CountyTable{
		"nashville":      "Davidson",
		"memphis":        "Shelby",
		"knoxville":      "Knox",
		"chattanooga":    "Hamilton",
		"clarksville":    "Montgomery",
		"murfreesboro":   "Rutherford",
		"franklin":       "Williamson",
		"brentwood":      "Williamson",
		"hendersonville": "Sumner",
		"gallatin":       "Sumner",
		"lebanon":        "Wilson",
		"mt juliet":      "Wilson",
		"mount juliet":   "Wilson",
	}
}

// With returns a copy of t extended (or overridden) by extra.
func (t CountyTable) With(extra map[string]string) CountyTable {
	out := make(CountyTable, len(t)+len(extra))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range extra {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || strings.TrimSpace(v) == "" {
			continue
		}
		out[k] = address.ProperCase(address.StripCountySuffix(v))
	}
	return out
}

// Lookup returns the county for a city name.
func (t CountyTable) Lookup(city string) (string, bool) {
	c, ok := t[strings.ToLower(strings.TrimSpace(city))]
	return c, ok
}

// ForAddress derives the city from a full address and looks it up.
func (t CountyTable) ForAddress(addr string) (string, bool) {
	city := address.City(addr)
	if city == address.Unknown {
		return "", false
	}
	return t.Lookup(city)
}
