package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBundle() Bundle {
	return Bundle{
		Property: Property{ID: "p1"},
		Events:   []DistressEvent{{ID: "e1", PropertyID: "p1"}},
		Contacts: []Contact{{ID: "c1", ContactType: ContactSkipTrace, Phones: []Phone{{Number: "(615) 555-0000"}}}},
		Links:    []PropertyContact{{PropertyID: "p1", ContactID: "c1", Role: RoleSkipTrace, Confidence: 0.7}},
	}
}

func TestBundle_Validate(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		b := validBundle()
		require.NoError(t, b.Validate())
	})

	t.Run("missing property id", func(t *testing.T) {
		t.Parallel()
		b := validBundle()
		b.Property.ID = ""
		assert.ErrorContains(t, b.Validate(), "no id")
	})

	t.Run("dangling contact", func(t *testing.T) {
		t.Parallel()
		b := validBundle()
		b.Links[0].ContactID = "c9"
		assert.ErrorContains(t, b.Validate(), "references contact c9")
	})

	t.Run("event points elsewhere", func(t *testing.T) {
		t.Parallel()
		b := validBundle()
		b.Events[0].PropertyID = "p2"
		assert.ErrorContains(t, b.Validate(), "references property p2")
	})

	t.Run("unknown contact type", func(t *testing.T) {
		t.Parallel()
		b := validBundle()
		b.Contacts[0].ContactType = "landlord"
		assert.ErrorContains(t, b.Validate(), "has type landlord")
	})

	t.Run("duplicate link", func(t *testing.T) {
		t.Parallel()
		b := validBundle()
		b.Links = append(b.Links, b.Links[0])
		assert.ErrorContains(t, b.Validate(), "duplicate link")
	})
}

func TestLinkedContacts(t *testing.T) {
	t.Parallel()

	contacts := []Contact{{ID: "c1"}, {ID: "c2"}, {ID: "c3"}}
	links := []PropertyContact{
		{PropertyID: "p1", ContactID: "c1", Role: RoleOwner},
		{PropertyID: "p1", ContactID: "c1", Role: RoleSkipTrace},
		{PropertyID: "p2", ContactID: "c2", Role: RoleOwner},
		{PropertyID: "p1", ContactID: "c3", Role: RoleExecutor},
	}

	got := LinkedContacts("p1", contacts, links)
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, "c3", got[1].ID)
}

func TestUpsertLink(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	links := []PropertyContact{{PropertyID: "p1", ContactID: "c1", Role: RoleSkipTrace, Confidence: 0.5}}

	links = UpsertLink(links, PropertyContact{PropertyID: "p1", ContactID: "c1", Role: RoleSkipTrace, Confidence: 0.9, LastValidatedAt: &now})
	require.Len(t, links, 1)
	assert.InDelta(t, 0.9, links[0].Confidence, 1e-9)
	assert.Equal(t, &now, links[0].LastValidatedAt)

	links = UpsertLink(links, PropertyContact{PropertyID: "p1", ContactID: "c1", Role: RoleOwner, Confidence: 1})
	assert.Len(t, links, 2)
}

func TestContact_Reachable(t *testing.T) {
	t.Parallel()

	assert.False(t, (&Contact{}).Reachable())
	assert.True(t, (&Contact{Emails: []Email{{Email: "a@b.co"}}}).Reachable())
	assert.True(t, (&Contact{Phones: []Phone{{Number: "1"}}}).Reachable())
}

func TestPriority_Rank(t *testing.T) {
	t.Parallel()

	assert.Less(t, PriorityLow.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityHigh.Rank())
	assert.Less(t, PriorityHigh.Rank(), PriorityUrgent.Rank())
	assert.Equal(t, -1, Priority("bogus").Rank())

	p, ok := ParsePriority("high")
	assert.True(t, ok)
	assert.Equal(t, PriorityHigh, p)
	_, ok = ParsePriority("HIGH")
	assert.False(t, ok)
}

func TestInvestorRules_Clone(t *testing.T) {
	t.Parallel()

	r := InvestorRules{
		TargetCounties:       []string{"Davidson"},
		PropertyTypeFactors:  map[PropertyType]float64{PropertyTypeSFR: 1},
		EventTypeMultipliers: map[EventType]float64{EventForeclosure: 1},
	}
	c := r.Clone()
	c.TargetCounties[0] = "Knox"
	c.PropertyTypeFactors[PropertyTypeSFR] = 2
	c.EventTypeMultipliers[EventForeclosure] = 3

	assert.Equal(t, "Davidson", r.TargetCounties[0])
	assert.InDelta(t, 1.0, r.PropertyTypeFactors[PropertyTypeSFR], 1e-9)
	assert.InDelta(t, 1.0, r.EventTypeMultipliers[EventForeclosure], 1e-9)
}

func TestStableID(t *testing.T) {
	t.Parallel()

	a := StableID("property", "100 oak nashville tn")
	b := StableID("property", "100 oak nashville tn")
	c := StableID("event", "100 oak nashville tn")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36)
	assert.NotEqual(t, NewID(), NewID())
}
