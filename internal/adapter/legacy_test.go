package adapter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-scorer/internal/model"
)

func sampleLegacy() LegacyRecord {
	dist := 4.2
	rec := LegacyRecord{
		ID:            7,
		Address:       "100 Oak St, Nashville, TN",
		City:          "Nashville",
		County:        "Davidson",
		Source:        "phillipjoneslaw",
		Date:          "2026-03-20",
		Time:          "10:00 AM",
		Firm:          "Phillip Jones Law",
		DistanceMiles: &dist,
		Within30Min:   "Y",
	}
	rec.OwnerPhones[0] = "615-555-0000"
	return rec
}

func TestLegacyAdapter_Convert(t *testing.T) {
	t.Parallel()

	b := LegacyAdapter{}.Convert(sampleLegacy())

	p := b.Property
	assert.Equal(t, "7", p.ID)
	assert.Equal(t, "100 Oak St, Nashville, TN", p.FullAddress)
	assert.Equal(t, "100 Oak St", p.Street)
	assert.Equal(t, "Nashville", p.City)
	assert.Equal(t, "TN", p.State)
	assert.Equal(t, "Davidson", p.County)
	require.NotNil(t, p.DistanceNashMi)
	assert.InDelta(t, 4.2, *p.DistanceNashMi, 1e-9)
	assert.Nil(t, p.DistanceMtJulietMi)
	assert.True(t, p.Within30MinNash)
	assert.False(t, p.Within30MinMtJuliet)
	assert.Equal(t, model.PropertyTypeSFR, p.PropertyType)
	assert.InDelta(t, 0.8, p.DataConfidence, 1e-9)
	assert.Equal(t, "100 oak nashville tn", p.AddressKey)

	require.Len(t, b.Events, 1)
	ev := b.Events[0]
	assert.Equal(t, "legacy-7", ev.ID)
	assert.Equal(t, "7", ev.PropertyID)
	assert.Equal(t, model.EventForeclosure, ev.EventType)
	assert.Equal(t, model.EventStatusActive, ev.Status)
	assert.Equal(t, "2026-03-20", ev.DateString())
	assert.Equal(t, "10:00:00", ev.EventTime)
	assert.Equal(t, "phillipjoneslaw", ev.Source)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(ev.RawData, &raw))
	assert.Equal(t, "615-555-0000", raw["owner_phone_1"])
	assert.EqualValues(t, 7, raw["id"])

	require.Len(t, b.Contacts, 1)
	c := b.Contacts[0]
	assert.Equal(t, "legacy-contact-7", c.ID)
	assert.Equal(t, model.ContactSkipTrace, c.ContactType)
	assert.Equal(t, "Migrated from legacy system", c.Notes)
	require.Len(t, c.Phones, 1)
	assert.Equal(t, model.Phone{Number: "615-555-0000", Label: "primary", Source: "legacy"}, c.Phones[0])
	assert.Empty(t, c.Emails)

	require.Len(t, b.Links, 1)
	assert.Equal(t, model.PropertyContact{PropertyID: "7", ContactID: "legacy-contact-7", Role: model.RoleSkipTrace, Confidence: 0.7}, b.Links[0])

	assert.Empty(t, b.Warnings)
	require.NoError(t, b.Validate())
}

func TestLegacyAdapter_AllSlots(t *testing.T) {
	t.Parallel()

	rec := sampleLegacy()
	rec.OwnerPhones = [OwnerSlots]string{"1", "", "3", "", "5"}
	rec.OwnerEmails = [OwnerSlots]string{"", "b@x.com", "", "", "e@x.com"}

	b := LegacyAdapter{State: "KY"}.Convert(rec)
	assert.Equal(t, "KY", b.Property.State)
	require.Len(t, b.Contacts, 1)

	c := b.Contacts[0]
	require.Len(t, c.Phones, 3)
	assert.Equal(t, "primary", c.Phones[0].Label)
	assert.Equal(t, "secondary", c.Phones[1].Label)
	assert.Equal(t, "5", c.Phones[2].Number)
	require.Len(t, c.Emails, 2)
	assert.Equal(t, "secondary", c.Emails[0].Label)
	for _, e := range c.Emails {
		assert.False(t, e.Verified)
		assert.Equal(t, "legacy", e.Source)
	}
}

func TestLegacyAdapter_ContactGating(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		phone1   string
		email1   string
		others   bool
		contacts int
	}{
		{"no slot one", "", "", false, 0},
		{"only later slots", "", "", true, 0},
		{"phone one", "615-555-0000", "", false, 1},
		{"email one", "", "owner@example.com", false, 1},
		{"both", "615-555-0000", "owner@example.com", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := LegacyRecord{ID: 1, Address: "1 Main St, Nashville, TN"}
			rec.OwnerPhones[0] = tt.phone1
			rec.OwnerEmails[0] = tt.email1
			if tt.others {
				rec.OwnerPhones[2] = "615-555-1111"
				rec.OwnerEmails[3] = "x@example.com"
			}
			b := LegacyAdapter{}.Convert(rec)
			assert.Len(t, b.Contacts, tt.contacts)
			assert.Len(t, b.Links, tt.contacts)
		})
	}
}

func TestLegacyAdapter_Totality(t *testing.T) {
	t.Parallel()

	b := LegacyAdapter{}.Convert(LegacyRecord{})

	assert.Equal(t, "0", b.Property.ID)
	assert.Equal(t, model.UnknownCounty, b.Property.County)
	assert.Empty(t, b.Property.FullAddress)
	assert.Nil(t, b.Property.DistanceNashMi)
	assert.False(t, b.Property.Within30MinNash)
	require.Len(t, b.Events, 1)
	assert.Nil(t, b.Events[0].EventDate)
	assert.Equal(t, LegacySource, b.Events[0].Source)
	assert.Empty(t, b.Contacts)
	assert.Contains(t, b.Warnings, "legacy record 0 has no address")
	require.NoError(t, b.Validate())
}

func TestLegacyAdapter_BadDateKeepsEvent(t *testing.T) {
	t.Parallel()

	rec := sampleLegacy()
	rec.Date = "sometime next spring"
	rec.Time = "noonish"

	b := LegacyAdapter{}.Convert(rec)
	require.Len(t, b.Events, 1)
	assert.Nil(t, b.Events[0].EventDate)
	assert.Empty(t, b.Events[0].EventTime)
	assert.Contains(t, b.Warnings, `unparseable event date "sometime next spring"`)
	assert.Contains(t, b.Warnings, `unparseable event time "noonish"`)
}

func TestLegacyAdapter_Deterministic(t *testing.T) {
	t.Parallel()

	a := LegacyAdapter{}.Convert(sampleLegacy())
	b := LegacyAdapter{}.Convert(sampleLegacy())
	assert.Equal(t, a, b)
}

func TestIsLegacyID(t *testing.T) {
	t.Parallel()

	assert.True(t, IsLegacyID("7"))
	assert.True(t, IsLegacyID(LegacyPropertyID(12345)))
	assert.False(t, IsLegacyID(""))
	assert.False(t, IsLegacyID(model.StableID("property", "x")))
}
