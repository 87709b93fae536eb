// Package insight writes the narrative attached to property analyses: a
// rule-based template, optionally with an LLM-written summary.
package insight

import (
	"fmt"

	"github.com/sells-group/property-scorer/internal/address"
	"github.com/sells-group/property-scorer/internal/model"
)

const (
	insightWindowDays = 14
	shortTimelineDays = 7
)

var headlines = map[model.Priority]string{
	model.PriorityUrgent: "URGENT OPPORTUNITY",
	model.PriorityHigh:   "High-Value Opportunity",
	model.PriorityMedium: "Moderate Opportunity",
	model.PriorityLow:    "Low-Priority Opportunity",
}

var strategies = map[model.Priority]string{
	model.PriorityUrgent: "IMMEDIATE ACTION: Contact owner immediately, prepare for quick due diligence, and have financing ready. Consider competitive offer above minimum bid.",
	model.PriorityHigh:   "HIGH PRIORITY: Schedule property inspection within 2-3 days, contact owner if possible, and prepare financing. Good candidate for rental or flip strategy.",
	model.PriorityMedium: "MODERATE PRIORITY: Research property thoroughly, consider market conditions, and evaluate against other opportunities. May be good for buy-and-hold strategy.",
	model.PriorityLow:    "LOW PRIORITY: Monitor for changes in status or pricing. Consider only if no higher-priority opportunities are available.",
}

// Template builds the narrative from the property and its score alone.
func Template(p model.Property, s model.ScoreResult) model.AIAnalysis {
	return model.AIAnalysis{
		Summary:            Summary(p, s),
		MarketInsights:     marketInsights(p, s),
		RiskFactors:        riskFactors(p, s),
		InvestmentStrategy: strategy(s.Priority),
	}
}

// Summary is the one-line template summary.
func Summary(p model.Property, s model.ScoreResult) string {
	headline, ok := headlines[s.Priority]
	if !ok {
		headline = headlines[model.PriorityLow]
	}

	kind := string(p.PropertyType)
	if kind == "" {
		kind = "property"
	}

	location := "outside the primary target area"
	if p.Within30MinNash || p.Within30MinMtJuliet {
		location = "in a prime location"
	}

	return fmt.Sprintf("%s - This %s is %s %s. Score: %d/100.", headline, kind, location, timeline(s.UrgencyDays), s.Score)
}

func timeline(days *int) string {
	switch {
	case days == nil:
		return "with no immediate time pressure"
	case *days == 0:
		return "with the distress event scheduled today"
	case *days == 1:
		return "with 1 day until the distress event"
	case *days > 0:
		return fmt.Sprintf("with %d days until the distress event", *days)
	default:
		return fmt.Sprintf("%d days after the last distress event", -*days)
	}
}

func marketInsights(p model.Property, s model.ScoreResult) []string {
	out := []string{}
	if address.SameCounty(p.County, "Davidson") {
		out = append(out, "Davidson County has strong rental demand and appreciation potential")
	}
	if p.Within30MinNash {
		out = append(out, "Close proximity to Nashville provides good rental income potential")
	}
	if p.Within30MinMtJuliet {
		out = append(out, "Mt. Juliet area is experiencing significant growth and development")
	}
	if d := s.UrgencyDays; d != nil && *d >= 0 && *d <= insightWindowDays {
		out = append(out, "Limited time creates potential for below-market acquisition")
	}
	return out
}

func riskFactors(p model.Property, s model.ScoreResult) []string {
	out := []string{}
	if !p.Within30MinNash && !p.Within30MinMtJuliet {
		out = append(out, "Property location may limit rental demand and resale value")
	}
	if s.Factors[model.FactorHasContact] == 0 {
		out = append(out, "No owner contact information available - may require additional research")
	}
	if d := s.UrgencyDays; d != nil && *d >= 0 && *d <= shortTimelineDays {
		out = append(out, "Very short timeline may limit due diligence opportunities")
	}
	if !p.HasCoordinates() {
		out = append(out, "Property location not verified - requires additional research")
	}
	return out
}

func strategy(p model.Priority) string {
	if s, ok := strategies[p]; ok {
		return s
	}
	return strategies[model.PriorityLow]
}
