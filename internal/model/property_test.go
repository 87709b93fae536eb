package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParsePropertyType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want PropertyType
	}{
		{"SFR", PropertyTypeSFR},
		{"Single Family", PropertyTypeSFR},
		{"single-family residence", PropertyTypeSFR},
		{"Condominium", PropertyTypeCondo},
		{"Townhouse", PropertyTypeCondo},
		{"Multi-Family", PropertyTypeMultiFamily},
		{"duplex", PropertyTypeMultiFamily},
		{"Vacant Land", PropertyTypeLand},
		{"", PropertyTypeOther},
		{"warehouse", PropertyTypeOther},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParsePropertyType(tt.in))
		})
	}
}

func TestProperty_LocationKnown(t *testing.T) {
	t.Parallel()

	p := Property{}
	assert.False(t, p.HasCoordinates())
	assert.False(t, p.LocationKnown())

	p.Lat = Float64Ptr(36.1)
	assert.False(t, p.HasCoordinates(), "lat alone is not a coordinate")
	assert.False(t, p.LocationKnown())

	p.Lon = Float64Ptr(-86.7)
	assert.True(t, p.LocationKnown())

	q := Property{DistanceNashMi: Float64Ptr(4.2)}
	assert.True(t, q.HasProximity())
	assert.True(t, q.LocationKnown())
}

func TestProperty_CountyKnown(t *testing.T) {
	t.Parallel()

	for _, c := range []string{"", "  ", "Unknown", "unknown"} {
		p := Property{County: c}
		assert.False(t, p.CountyKnown(), c)
	}
	p := Property{County: "Davidson"}
	assert.True(t, p.CountyKnown())
}

func TestProperty_Touch(t *testing.T) {
	t.Parallel()

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	p := Property{}
	p.Touch(first)
	assert.Equal(t, first, p.CreatedAt)
	assert.Equal(t, first, p.UpdatedAt)

	p.Touch(later)
	assert.Equal(t, first, p.CreatedAt)
	assert.Equal(t, later, p.UpdatedAt)
}

func TestParseEventType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, EventForeclosure, ParseEventType(""))
	assert.Equal(t, EventForeclosure, ParseEventType("foreclosure"))
	assert.Equal(t, EventTaxLien, ParseEventType("tax lien"))
	assert.Equal(t, EventCodeViolation, ParseEventType("code-violation"))
	assert.Equal(t, EventProbate, ParseEventType("Probate"))
	assert.Equal(t, EventOther, ParseEventType("eviction"))
}

func TestParseEventStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, EventStatusActive, ParseEventStatus(""))
	assert.Equal(t, EventStatusPostponed, ParseEventStatus("Postponed"))
	assert.Equal(t, EventStatusCancelled, ParseEventStatus("canceled"))
	assert.Equal(t, EventStatusCompleted, ParseEventStatus("sold"))
}

func TestSameDate(t *testing.T) {
	t.Parallel()

	a := Date(2026, 3, 1)
	b := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	c := Date(2026, 3, 2)

	assert.True(t, SameDate(nil, nil))
	assert.False(t, SameDate(&a, nil))
	assert.True(t, SameDate(&a, &b))
	assert.False(t, SameDate(&a, &c))

	e := DistressEvent{EventDate: &a}
	assert.Equal(t, "2026-03-01", e.DateString())
	assert.Empty(t, (&DistressEvent{}).DateString())
}
