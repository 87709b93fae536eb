package scorer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-scorer/internal/adapter"
	"github.com/sells-group/property-scorer/internal/geo"
	"github.com/sells-group/property-scorer/internal/model"
)

var testNow = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func daysOut(n int) *time.Time {
	d := model.Date(2026, 3, 14).AddDate(0, 0, n)
	return &d
}

func activeEvent(id string, n int) model.DistressEvent {
	return model.DistressEvent{ID: id, PropertyID: "p1", EventType: model.EventForeclosure, EventDate: daysOut(n), Status: model.EventStatusActive}
}

func baseInput() Input {
	return Input{
		Property: model.Property{
			ID:              "p1",
			FullAddress:     "100 Oak St, Nashville, TN",
			County:          "Davidson",
			Lat:             model.Float64Ptr(36.17),
			Lon:             model.Float64Ptr(-86.78),
			Within30MinNash: true,
			PropertyType:    model.PropertyTypeSFR,
			DataConfidence:  1,
		},
		Events: []model.DistressEvent{activeEvent("e1", 10)},
		Contacts: []model.Contact{
			{ID: "c1", Phones: []model.Phone{{Number: "(615) 555-0000"}}},
		},
		Links: []model.PropertyContact{{PropertyID: "p1", ContactID: "c1", Role: model.RoleSkipTrace, Confidence: 0.7}},
	}
}

func TestDefaultRules_Valid(t *testing.T) {
	t.Parallel()
	require.NoError(t, ValidateRules(DefaultRules()))
}

func TestValidateRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*model.InvestorRules)
		want   string
	}{
		{"negative weight", func(r *model.InvestorRules) { r.Weights.HasContact = -1 }, "HasContact"},
		{"zero drive time", func(r *model.InvestorRules) { r.MaxDriveTimeMin = 0 }, "MaxDriveTimeMin"},
		{"bad mode", func(r *model.InvestorRules) { r.PropertyTypeMode = "divide" }, "PropertyTypeMode"},
		{"no counties", func(r *model.InvestorRules) { r.TargetCounties = nil }, "target_counties must not be empty"},
		{"blank county", func(r *model.InvestorRules) { r.TargetCounties = []string{"Davidson", ""} }, "TargetCounties[1]"},
		{"zero cap", func(r *model.InvestorRules) { r.ContactCap = 0 }, "ContactCap"},
		{"thresholds out of order", func(r *model.InvestorRules) { r.Thresholds.High = 30 }, "thresholds must ascend"},
		{"bonus grows with distance", func(r *model.InvestorRules) { r.UrgencyTiers[2].Bonus = 40 }, "must not grow"},
		{"duplicate tier", func(r *model.InvestorRules) { r.UrgencyTiers[1].MaxDays = 7 }, "duplicate max_days"},
		{"beyond too big", func(r *model.InvestorRules) { r.UrgencyBeyond = 10 }, "urgency_beyond"},
		{"negative type factor", func(r *model.InvestorRules) { r.PropertyTypeFactors[model.PropertyTypeLand] = -1 }, "property_type_factors[Land]"},
		{"negative event multiplier", func(r *model.InvestorRules) { r.EventTypeMultipliers[model.EventProbate] = -0.1 }, "event_type_multipliers[PROBATE]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := DefaultRules()
			tt.mutate(&r)
			err := ValidateRules(r)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "scorer: rules validation failed")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPriorityFor(t *testing.T) {
	t.Parallel()

	th := DefaultRules().Thresholds
	tests := []struct {
		score int
		want  model.Priority
	}{
		{0, model.PriorityLow},
		{39, model.PriorityLow},
		{40, model.PriorityMedium},
		{59, model.PriorityMedium},
		{60, model.PriorityHigh},
		{79, model.PriorityHigh},
		{80, model.PriorityUrgent},
		{100, model.PriorityUrgent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PriorityFor(tt.score, th), "score %d", tt.score)
	}
}

func TestPriorityFor_Monotonic(t *testing.T) {
	t.Parallel()

	for _, th := range []model.Thresholds{
		DefaultRules().Thresholds,
		{Medium: 26, High: 51, Urgent: 76},
		{Medium: 10, High: 11, Urgent: 99},
	} {
		prev := PriorityFor(0, th)
		for s := 1; s <= 100; s++ {
			cur := PriorityFor(s, th)
			assert.GreaterOrEqual(t, cur.Rank(), prev.Rank(), "score %d thresholds %+v", s, th)
			prev = cur
		}
	}
}

func TestSelectUrgency(t *testing.T) {
	t.Parallel()

	completed := activeEvent("done", -3)
	completed.Status = model.EventStatusCompleted
	postponed := activeEvent("post", 1)
	postponed.Status = model.EventStatusPostponed

	tests := []struct {
		name    string
		events  []model.DistressEvent
		want    *int
		undated int
	}{
		{"no events", nil, nil, 0},
		{
			name:   "earliest active upcoming",
			events: []model.DistressEvent{activeEvent("a", 20), activeEvent("b", 5), completed, activeEvent("c", 5)},
			want:   model.IntPtr(5),
		},
		{"inactive ignored", []model.DistressEvent{postponed, activeEvent("a", 9)}, model.IntPtr(9), 0},
		{"today counts", []model.DistressEvent{activeEvent("a", 0), activeEvent("b", 3)}, model.IntPtr(0), 0},
		{"past falls back to most recent", []model.DistressEvent{activeEvent("a", -10), activeEvent("b", -2)}, model.IntPtr(-2), 0},
		{"upcoming beats past", []model.DistressEvent{activeEvent("a", -1), activeEvent("b", 40)}, model.IntPtr(40), 0},
		{"only inactive", []model.DistressEvent{completed}, nil, 0},
		{"undated counted", []model.DistressEvent{{ID: "x", Status: model.EventStatusActive}}, nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u := selectUrgency(tt.events, testNow)
			assert.Equal(t, tt.want, u.days)
			assert.Equal(t, tt.undated, u.undated)
		})
	}
}

func TestSelectUrgency_CalendarDays(t *testing.T) {
	t.Parallel()

	// Late in the day still counts the event tomorrow as one day away.
	late := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, model.IntPtr(1), UrgencyDays([]model.DistressEvent{activeEvent("a", 1)}, late))

	// Non-UTC clocks are normalized to the UTC date.
	cst := time.FixedZone("CST", -6*3600)
	evening := time.Date(2026, 3, 13, 20, 0, 0, 0, cst) // 2026-03-14 02:00 UTC
	assert.Equal(t, model.IntPtr(6), UrgencyDays([]model.DistressEvent{activeEvent("a", 6)}, evening))
}

func TestEngine_Score_AllFactors(t *testing.T) {
	t.Parallel()

	res := NewEngine(DefaultRules()).Score(baseInput(), testNow)

	// 10 contact + 20 county + 30 drive + 15 urgency (10 days).
	assert.Equal(t, 75, res.Score)
	assert.Equal(t, model.PriorityHigh, res.Priority)
	assert.Equal(t, 1.0, res.Factors[model.FactorHasContact])
	assert.Equal(t, 1.0, res.Factors[model.FactorInTargetCounty])
	assert.Equal(t, 1.0, res.Factors[model.FactorWithinDriveRadius])
	assert.Equal(t, 10.0, res.Factors[model.FactorUrgencyDays])
	assert.Equal(t, 15.0, res.Factors[model.FactorUrgencyBonus])
	assert.Equal(t, 1.0, res.Factors[model.FactorPropertyTypeMultiplier])
	assert.Equal(t, 0.0, res.Factors[model.FactorDataConfidencePenalty])
	require.NotNil(t, res.UrgencyDays)
	assert.Equal(t, 10, *res.UrgencyDays)
	assert.Empty(t, res.Warnings)
	assert.Contains(t, res.Recommendations, "Contact information available, ready for outreach")
	assert.Contains(t, res.Explanations[model.FactorUrgencyDays], "10 days to FORECLOSURE on 2026-03-24")
}

func TestEngine_Score_Deterministic(t *testing.T) {
	t.Parallel()

	e := NewEngine(DefaultRules())
	in := baseInput()
	in.Events = append(in.Events, activeEvent("e2", 2), activeEvent("e3", -4))
	first := e.Score(in, testNow)
	for range 20 {
		assert.Equal(t, first, e.Score(in, testNow))
	}
}

func TestEngine_Score_Clamp(t *testing.T) {
	t.Parallel()

	high := DefaultRules()
	high.Weights = model.Weights{HasContact: 500, InTargetCounty: 500, WithinDriveRadius: 500}
	res := NewEngine(high).Score(baseInput(), testNow)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, model.PriorityUrgent, res.Priority)

	in := baseInput()
	in.Contacts, in.Links, in.Events = nil, nil, nil
	in.Property.County = "Cheatham"
	in.Property.Within30MinNash = false
	in.Property.DataConfidence = 0
	res = NewEngine(DefaultRules()).Score(in, testNow)
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, 20.0, res.Factors[model.FactorDataConfidencePenalty])
	assert.Equal(t, model.PriorityLow, res.Priority)
}

func TestEngine_Score_UnknownCountyNeverMatches(t *testing.T) {
	t.Parallel()

	for _, targets := range [][]string{
		{"Davidson"},
		{"Unknown"},
		{"Unknown County", "unknown", "Davidson"},
	} {
		r := DefaultRules()
		r.TargetCounties = targets
		for _, county := range []string{model.UnknownCounty, "unknown", ""} {
			in := baseInput()
			in.Property.County = county
			res := NewEngine(r).Score(in, testNow)
			assert.Equal(t, 0.0, res.Factors[model.FactorInTargetCounty], "targets %v county %q", targets, county)
			assert.Contains(t, res.Warnings, WarnUnknownCounty)
		}
	}
}

func TestEngine_Score_CountySuffixAndCase(t *testing.T) {
	t.Parallel()

	in := baseInput()
	in.Property.County = "davidson county"
	res := NewEngine(DefaultRules()).Score(in, testNow)
	assert.Equal(t, 1.0, res.Factors[model.FactorInTargetCounty])
}

func TestEngine_Score_LocationNotVerified(t *testing.T) {
	t.Parallel()

	in := baseInput()
	in.Property.Lat, in.Property.Lon = nil, nil
	res := NewEngine(DefaultRules()).Score(in, testNow)

	assert.Equal(t, 0.0, res.Factors[model.FactorWithinDriveRadius])
	assert.Contains(t, res.Warnings, WarnLocation)
	assert.Equal(t, 45, res.Score)
}

func TestEngine_Score_OutsideRadius(t *testing.T) {
	t.Parallel()

	in := baseInput()
	in.Property.Within30MinNash = false
	res := NewEngine(DefaultRules()).Score(in, testNow)
	assert.Equal(t, 0.0, res.Factors[model.FactorWithinDriveRadius])
	assert.Contains(t, res.Warnings, "property is outside the 30-minute drive radius")
	assert.NotContains(t, res.Warnings, WarnLocation)
}

func TestEngine_Score_Contacts(t *testing.T) {
	t.Parallel()

	t.Run("unreachable contact", func(t *testing.T) {
		t.Parallel()
		in := baseInput()
		in.Contacts[0].Phones = nil
		res := NewEngine(DefaultRules()).Score(in, testNow)
		assert.Equal(t, 0.0, res.Factors[model.FactorHasContact])
		assert.Contains(t, res.Warnings, WarnNoContact)
		assert.Contains(t, res.Recommendations, "Run a skip trace to find owner contact information")
	})

	t.Run("unlinked contact", func(t *testing.T) {
		t.Parallel()
		in := baseInput()
		in.Links = nil
		res := NewEngine(DefaultRules()).Score(in, testNow)
		assert.Equal(t, 0.0, res.Factors[model.FactorHasContact])
	})

	t.Run("cap", func(t *testing.T) {
		t.Parallel()
		in := baseInput()
		for _, id := range []string{"c2", "c3"} {
			in.Contacts = append(in.Contacts, model.Contact{ID: id, Emails: []model.Email{{Email: id + "@example.com"}}})
			in.Links = append(in.Links, model.PropertyContact{PropertyID: "p1", ContactID: id, Role: model.RoleSkipTrace})
		}
		r := DefaultRules()
		r.ContactCap = 2
		res := NewEngine(r).Score(in, testNow)
		assert.Equal(t, 2.0, res.Factors[model.FactorHasContact])
		assert.Equal(t, 85, res.Score)
	})
}

func TestEngine_Score_NoEvents(t *testing.T) {
	t.Parallel()

	in := baseInput()
	in.Events = nil
	res := NewEngine(DefaultRules()).Score(in, testNow)

	assert.Nil(t, res.UrgencyDays)
	_, ok := res.Factors[model.FactorUrgencyDays]
	assert.False(t, ok)
	assert.Equal(t, 0.0, res.Factors[model.FactorUrgencyBonus])
	assert.Equal(t, 60, res.Score)
	assert.Contains(t, res.Warnings, WarnNoEvents)
}

func TestEngine_Score_PastEventNoBonus(t *testing.T) {
	t.Parallel()

	in := baseInput()
	in.Events = []model.DistressEvent{activeEvent("e1", -3)}
	res := NewEngine(DefaultRules()).Score(in, testNow)

	require.NotNil(t, res.UrgencyDays)
	assert.Equal(t, -3, *res.UrgencyDays)
	assert.Equal(t, 0.0, res.Factors[model.FactorUrgencyBonus])
	assert.Contains(t, res.Warnings, WarnEventPassed)
}

func TestEngine_Score_ShortTimelineWarnings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		days     int
		critical bool
		short    bool
	}{
		{0, true, true},
		{3, true, true},
		{5, false, true},
		{7, false, false},
		{20, false, false},
	}
	for _, tt := range tests {
		in := baseInput()
		in.Events = []model.DistressEvent{activeEvent("e", tt.days)}
		res := NewEngine(DefaultRules()).Score(in, testNow)
		assert.Equal(t, tt.critical, contains(res.Warnings, WarnCritical), "days %d", tt.days)
		assert.Equal(t, tt.short, contains(res.Warnings, WarnShortTimeline), "days %d", tt.days)
	}
}

func TestEngine_Score_EventTypeMultiplier(t *testing.T) {
	t.Parallel()

	in := baseInput()
	in.Events = []model.DistressEvent{activeEvent("e1", 5)}
	in.Events[0].EventType = model.EventTaxLien
	res := NewEngine(DefaultRules()).Score(in, testNow)
	assert.Equal(t, 20.0, res.Factors[model.FactorUrgencyBonus])
	assert.Equal(t, 80, res.Score)
}

func TestEngine_Score_PropertyTypeModes(t *testing.T) {
	t.Parallel()

	in := baseInput()
	in.Property.PropertyType = model.PropertyTypeLand
	res := NewEngine(DefaultRules()).Score(in, testNow)
	// 75 * 0.75
	assert.Equal(t, 56, res.Score)
	assert.Equal(t, 0.75, res.Factors[model.FactorPropertyTypeMultiplier])

	add := DefaultRules()
	add.PropertyTypeMode = model.PropertyTypeAdd
	add.PropertyTypeFactors = map[model.PropertyType]float64{model.PropertyTypeLand: 2, model.PropertyTypeSFR: 5}
	res = NewEngine(add).Score(in, testNow)
	assert.Equal(t, model.PriorityHigh, res.Priority)

	in.Property.PropertyType = model.PropertyTypeCondo
	res = NewEngine(add).Score(in, testNow)
	assert.Equal(t, 75, res.Score, "unlisted type is neutral in add mode")
}

func TestNewEngine_InvalidRulesFallBack(t *testing.T) {
	t.Parallel()

	bad := DefaultRules()
	bad.MaxDriveTimeMin = -5
	e := NewEngine(bad)

	assert.True(t, e.UsingDefaults())
	assert.Equal(t, RulesHash(DefaultRules()), e.RulesHash())
	assert.Equal(t, 30.0, e.Rules().MaxDriveTimeMin)

	res := e.Score(baseInput(), testNow)
	assert.Equal(t, 75, res.Score)
	assert.Contains(t, res.Warnings, WarnDefaultRulesUsed)
}

func TestNewFallbackEngine(t *testing.T) {
	t.Parallel()

	e := NewFallbackEngine()
	assert.True(t, e.UsingDefaults())
	assert.Equal(t, RulesHash(DefaultRules()), e.RulesHash())

	res := e.Score(baseInput(), testNow)
	assert.Equal(t, 75, res.Score)
	assert.Equal(t, WarnDefaultRulesUsed, res.Warnings[0])
}

func TestScore_DriveFlagWithoutLocation(t *testing.T) {
	t.Parallel()

	in := baseInput()
	in.Property.Lat = nil
	in.Property.Lon = nil
	in.Property.DistanceNashMi = nil
	in.Property.DistanceMtJulietMi = nil
	require.True(t, in.Property.Within30MinNash)

	res := NewEngine(DefaultRules()).Score(in, testNow)
	assert.Zero(t, res.Factors[model.FactorWithinDriveRadius])
	assert.Contains(t, res.Warnings, WarnLocation)

	in.Property.DistanceNashMi = model.Float64Ptr(8.4)
	res = NewEngine(DefaultRules()).Score(in, testNow)
	assert.Equal(t, 1.0, res.Factors[model.FactorWithinDriveRadius])
	assert.NotContains(t, res.Warnings, WarnLocation)
}

func TestNewEngine_SortsTiers(t *testing.T) {
	t.Parallel()

	r := DefaultRules()
	r.UrgencyTiers = []model.UrgencyTier{{MaxDays: 30, Bonus: 5}, {MaxDays: 7, Bonus: 25}, {MaxDays: 14, Bonus: 15}}
	in := baseInput()
	in.Events = []model.DistressEvent{activeEvent("e", 6)}
	assert.Equal(t, 25.0, NewEngine(r).Score(in, testNow).Factors[model.FactorUrgencyBonus])
}

func TestRulesHash(t *testing.T) {
	t.Parallel()

	a, b := DefaultRules(), DefaultRules()
	assert.Equal(t, RulesHash(a), RulesHash(b))
	assert.Len(t, RulesHash(a), 32)

	b.Weights.HasContact = 11
	assert.NotEqual(t, RulesHash(a), RulesHash(b))
}

func TestParseRules(t *testing.T) {
	t.Parallel()

	r, err := ParseRules([]byte(`
target_counties: [Rutherford, Williamson]
max_drive_time_min: 45
weights:
  has_contact: 15
  in_target_county: 20
  within_drive_radius: 30
  data_confidence_penalty: 10
property_type_factors:
  SFR: 1.0
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Rutherford", "Williamson"}, r.TargetCounties)
	assert.Equal(t, 45.0, r.MaxDriveTimeMin)
	assert.Equal(t, 15.0, r.Weights.HasContact)
	assert.Equal(t, map[model.PropertyType]float64{model.PropertyTypeSFR: 1.0}, r.PropertyTypeFactors)
	// Unset keys keep defaults.
	assert.Equal(t, DefaultRules().Thresholds, r.Thresholds)
	assert.Equal(t, DefaultRules().EventTypeMultipliers, r.EventTypeMultipliers)
}

func TestParseRules_Invalid(t *testing.T) {
	t.Parallel()

	_, err := ParseRules([]byte("max_drive_time_min: -1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MaxDriveTimeMin")

	_, err = ParseRules([]byte("weights: [1, 2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scorer: parse rules")
}

func TestLoadRulesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("label: Wide Box\nmax_drive_time_min: 60\n"), 0o600))

	r, err := LoadRulesFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Wide Box", r.Label)
	assert.Equal(t, 60.0, r.MaxDriveTimeMin)

	_, err = LoadRulesFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

type fixedResolver struct{ minutes float64 }

func (f fixedResolver) ResolveCounty(context.Context, string) string { return model.UnknownCounty }

func (f fixedResolver) ResolveDistance(context.Context, geo.Origin, geo.Hub) *geo.Distance {
	return &geo.Distance{Miles: 6, EstimatedDriveMinutes: f.minutes}
}

func TestEndToEnd_LegacyRecord(t *testing.T) {
	t.Parallel()

	rec := adapter.LegacyRecord{
		ID:      7,
		Address: "100 Oak St, Nashville, TN",
		County:  "Davidson",
		Date:    daysOut(6).Format(time.DateOnly),
	}
	rec.OwnerPhones[0] = "615-555-0000"

	b := adapter.LegacyAdapter{}.Convert(rec)
	require.Len(t, b.Events, 1)
	require.Len(t, b.Contacts, 1)
	require.Len(t, b.Links, 1)
	assert.Len(t, b.Contacts[0].Phones, 1)
	assert.Empty(t, b.Contacts[0].Emails)
	assert.Equal(t, model.RoleSkipTrace, b.Links[0].Role)
	assert.Equal(t, 0.7, b.Links[0].Confidence)

	rules := DefaultRules()
	geo.ApplyProximity(context.Background(), fixedResolver{minutes: 12}, &b.Property, geo.ProximityOptions{
		MaxDriveMinutes: rules.MaxDriveTimeMin,
		PrimaryOnly:     adapter.IsLegacyID(b.Property.ID),
	})
	assert.True(t, b.Property.Within30MinNash)
	assert.Nil(t, b.Property.DistanceMtJulietMi)

	e := NewEngine(rules)
	res := e.Score(InputFromBundle(b), testNow)

	assert.Equal(t, 1.0, res.Factors[model.FactorHasContact])
	assert.Equal(t, 1.0, res.Factors[model.FactorInTargetCounty])
	assert.Equal(t, 1.0, res.Factors[model.FactorWithinDriveRadius])
	assert.Equal(t, 6.0, res.Factors[model.FactorUrgencyDays])
	// 10 + 20 + 30 + 25 - 20*(1-0.8)
	assert.Equal(t, 81, res.Score)
	assert.Equal(t, model.PriorityUrgent, res.Priority)
	assert.Contains(t, res.Warnings, WarnShortTimeline)

	assert.Equal(t, res, e.Score(InputFromBundle(b), testNow))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
