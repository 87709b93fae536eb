// Package scorer turns a property, its distress events and its contacts into
// a deterministic 0-100 score with a priority tier and explainable factors.
package scorer

import (
	"github.com/sells-group/property-scorer/internal/model"
)

// DefaultRules returns the built-in buy box. Scoring works with zero
// configuration against these values.
func DefaultRules() model.InvestorRules {
	return model.InvestorRules{
		ID:              "default",
		Label:           "Default Buy Box",
		TargetCounties:  []string{"Davidson", "Sumner", "Wilson"},
		MaxDriveTimeMin: 30,
		Weights: model.Weights{
			HasContact:            10,
			InTargetCounty:        20,
			WithinDriveRadius:     30,
			DataConfidencePenalty: 20,
		},
		ContactCap: 1,
		UrgencyTiers: []model.UrgencyTier{
			{MaxDays: 7, Bonus: 25},
			{MaxDays: 14, Bonus: 15},
			{MaxDays: 30, Bonus: 5},
		},
		UrgencyBeyond:    0,
		PropertyTypeMode: model.PropertyTypeMultiply,
		PropertyTypeFactors: map[model.PropertyType]float64{
			model.PropertyTypeSFR:         1.0,
			model.PropertyTypeMultiFamily: 1.0,
			model.PropertyTypeCondo:       0.9,
			model.PropertyTypeOther:       0.85,
			model.PropertyTypeLand:        0.75,
		},
		EventTypeMultipliers: map[model.EventType]float64{
			model.EventForeclosure: 1.0,
			model.EventTaxLien:     0.8,
			model.EventProbate:     0.9,
		},
		Thresholds: model.Thresholds{Medium: 40, High: 60, Urgent: 80},
	}
}

// PriorityFor maps a score onto a tier using the rule thresholds.
func PriorityFor(score int, t model.Thresholds) model.Priority {
	s := float64(score)
	switch {
	case s >= t.Urgent:
		return model.PriorityUrgent
	case s >= t.High:
		return model.PriorityHigh
	case s >= t.Medium:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// propertyTypeFactor returns the configured factor for pt. Unlisted types use
// the neutral value of the mode: 1 when multiplying, 0 when adding.
func propertyTypeFactor(r model.InvestorRules, pt model.PropertyType) float64 {
	if f, ok := r.PropertyTypeFactors[pt]; ok {
		return f
	}
	if r.PropertyTypeMode == model.PropertyTypeAdd {
		return 0
	}
	return 1
}

// eventMultiplier scales the urgency bonus by event type; unlisted types use 1.
func eventMultiplier(r model.InvestorRules, et model.EventType) float64 {
	if m, ok := r.EventTypeMultipliers[et]; ok {
		return m
	}
	return 1
}

// urgencyBonus looks days up in the tier table. Tiers are sorted ascending
// by MaxDays after validation.
func urgencyBonus(r model.InvestorRules, days int) float64 {
	if days < 0 {
		return 0
	}
	for _, t := range r.UrgencyTiers {
		if days <= t.MaxDays {
			return t.Bonus
		}
	}
	return r.UrgencyBeyond
}
