package model

import (
	"strings"
	"time"
)

// UnknownCounty is the county value used when no county can be resolved.
const UnknownCounty = "Unknown"

// PropertyType classifies the physical parcel.
type PropertyType string

// Property types.
const (
	PropertyTypeSFR         PropertyType = "SFR"
	PropertyTypeCondo       PropertyType = "Condo"
	PropertyTypeMultiFamily PropertyType = "Multi-Family"
	PropertyTypeLand        PropertyType = "Land"
	PropertyTypeOther       PropertyType = "Other"
)

// AllPropertyTypes lists the known property types in display order.
var AllPropertyTypes = []PropertyType{
	PropertyTypeSFR,
	PropertyTypeCondo,
	PropertyTypeMultiFamily,
	PropertyTypeLand,
	PropertyTypeOther,
}

// ParsePropertyType maps free-form source text onto a PropertyType.
// Unrecognized or empty input yields PropertyTypeOther.
func ParsePropertyType(s string) PropertyType {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", " ", "_", " ").Replace(norm)
	switch norm {
	case "sfr", "single family", "single family residence", "single family residential", "residential", "house":
		return PropertyTypeSFR
	case "condo", "condominium", "townhouse", "townhome":
		return PropertyTypeCondo
	case "multi family", "multifamily", "duplex", "triplex", "fourplex", "apartment":
		return PropertyTypeMultiFamily
	case "land", "lot", "vacant land", "vacant":
		return PropertyTypeLand
	default:
		return PropertyTypeOther
	}
}

// Property is a physical parcel under distress.
type Property struct {
	ID          string `json:"id"`
	FullAddress string `json:"full_address"`
	Street      string `json:"street,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Zip         string `json:"zip,omitempty"`
	County      string `json:"county,omitempty"`
	ParcelAPN   string `json:"parcel_apn,omitempty"`

	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`

	DistanceNashMi      *float64 `json:"distance_nash_mi,omitempty"`
	DistanceMtJulietMi  *float64 `json:"distance_mtjuliet_mi,omitempty"`
	Within30MinNash     bool     `json:"within_30min_nash"`
	Within30MinMtJuliet bool     `json:"within_30min_mtjuliet"`

	PropertyType PropertyType `json:"property_type"`
	Beds         *int         `json:"beds,omitempty"`
	Baths        *float64     `json:"baths,omitempty"`
	Sqft         *int         `json:"sqft,omitempty"`
	LotSqft      *int         `json:"lot_sqft,omitempty"`

	DataConfidence float64 `json:"data_confidence"`

	// AddressKey is the normalized address used to deduplicate properties.
	AddressKey string `json:"address_key,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasCoordinates reports whether both lat and lon are set.
func (p *Property) HasCoordinates() bool {
	return p.Lat != nil && p.Lon != nil
}

// HasProximity reports whether at least one hub distance was resolved.
func (p *Property) HasProximity() bool {
	return p.DistanceNashMi != nil || p.DistanceMtJulietMi != nil
}

// LocationKnown reports whether any location signal backs the proximity flags.
func (p *Property) LocationKnown() bool {
	return p.HasCoordinates() || p.HasProximity()
}

// CountyKnown reports whether the county is set to something other than Unknown.
func (p *Property) CountyKnown() bool {
	c := strings.TrimSpace(p.County)
	return c != "" && !strings.EqualFold(c, UnknownCounty)
}

// Touch sets UpdatedAt, and CreatedAt when it is still zero.
func (p *Property) Touch(now time.Time) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 { return &v }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
