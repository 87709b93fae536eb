package scorer

import (
	"fmt"
	"strings"

	"github.com/sells-group/property-scorer/internal/model"
)

// Warning texts. Callers match on these, so keep them stable.
const (
	WarnNoContact        = "no owner contact information available"
	WarnLocation         = "property location not verified"
	WarnShortTimeline    = "very short timeline (<7 days) limits due diligence"
	WarnCritical         = "critical: distress event in 3 days or less"
	WarnNotTargetCounty  = "property is not in a target county"
	WarnUnknownCounty    = "county could not be resolved"
	WarnNoEvents         = "no distress events on record"
	WarnEventPassed      = "most recent active event date has passed"
	WarnDefaultRulesUsed = "investor rules invalid; default rules applied"
)

// scored carries one result through message generation.
type scored struct {
	in        *Input
	rules     *model.InvestorRules
	result    *model.ScoreResult
	urgency   urgency
	reachable int
	defaults  bool
}

func (s scored) factor(name string) float64 { return s.result.Factors[name] }

func (s scored) warnings() []string {
	p := &s.in.Property
	warns := []string{}

	if s.defaults {
		warns = append(warns, WarnDefaultRulesUsed)
	}
	if s.reachable == 0 {
		warns = append(warns, WarnNoContact)
	}
	if !p.LocationKnown() {
		warns = append(warns, WarnLocation)
	} else if s.factor(model.FactorWithinDriveRadius) == 0 {
		warns = append(warns, fmt.Sprintf("property is outside the %g-minute drive radius", s.rules.MaxDriveTimeMin))
	}
	if !p.CountyKnown() {
		warns = append(warns, WarnUnknownCounty)
	} else if s.factor(model.FactorInTargetCounty) == 0 {
		warns = append(warns, WarnNotTargetCounty)
	}

	if len(s.in.Events) == 0 {
		warns = append(warns, WarnNoEvents)
	}
	if d := s.urgency.days; d != nil {
		switch {
		case *d < 0:
			warns = append(warns, WarnEventPassed)
		case *d <= 3:
			warns = append(warns, WarnCritical, WarnShortTimeline)
		case *d < 7:
			warns = append(warns, WarnShortTimeline)
		}
	}
	if n := s.urgency.undated; n > 0 {
		warns = append(warns, fmt.Sprintf("%d active event(s) have no usable date", n))
	}
	return warns
}

func (s scored) recommendations() []string {
	var recs []string

	if d := s.urgency.days; d != nil && *d >= 0 {
		switch {
		case *d <= 7:
			recs = append(recs, "URGENT: contact the owner immediately, event in 7 days or less")
		case *d <= 14:
			recs = append(recs, "HIGH PRIORITY: contact the owner within 2-3 days")
		case *d <= 30:
			recs = append(recs, "MODERATE: schedule an evaluation and owner contact within 1 week")
		}
	}

	if s.factor(model.FactorHasContact) == 0 {
		recs = append(recs, "Run a skip trace to find owner contact information")
	} else {
		recs = append(recs, "Contact information available, ready for outreach")
	}
	if s.factor(model.FactorWithinDriveRadius) > 0 {
		recs = append(recs, "Good location for a rental or flip")
	}
	if s.factor(model.FactorInTargetCounty) > 0 {
		recs = append(recs, "Property is in a target county")
	}

	switch s.result.Priority {
	case model.PriorityUrgent:
		recs = append(recs, "TOP PRIORITY: scores in the top tier")
	case model.PriorityHigh:
		recs = append(recs, "HIGH VALUE: strong opportunity")
	case model.PriorityMedium:
		recs = append(recs, "MODERATE: review property details carefully")
	default:
		recs = append(recs, "LOW PRIORITY: consider if other opportunities are limited")
	}
	return recs
}

func (s scored) explanations() map[string]string {
	p := &s.in.Property
	w := s.rules.Weights
	out := make(map[string]string, len(s.result.Factors))

	if s.reachable > 0 {
		out[model.FactorHasContact] = fmt.Sprintf("%d reachable contact(s), %g points", s.reachable, w.HasContact*s.factor(model.FactorHasContact))
	} else {
		out[model.FactorHasContact] = "no reachable owner contact"
	}

	switch {
	case s.factor(model.FactorInTargetCounty) > 0:
		out[model.FactorInTargetCounty] = fmt.Sprintf("%s County is a target area, %g points", p.County, w.InTargetCounty)
	case p.CountyKnown():
		out[model.FactorInTargetCounty] = fmt.Sprintf("%s County is not a target area (targets: %s)", p.County, strings.Join(s.rules.TargetCounties, ", "))
	default:
		out[model.FactorInTargetCounty] = "county unknown"
	}

	if s.factor(model.FactorWithinDriveRadius) > 0 {
		out[model.FactorWithinDriveRadius] = fmt.Sprintf("within %g minutes of %s, %g points", s.rules.MaxDriveTimeMin, hubList(p), w.WithinDriveRadius)
	} else {
		out[model.FactorWithinDriveRadius] = fmt.Sprintf("not within %g minutes of a hub", s.rules.MaxDriveTimeMin)
	}

	if d := s.urgency.days; d != nil {
		label := "low urgency"
		switch {
		case *d < 0:
			label = "past"
		case *d <= 7:
			label = "very urgent"
		case *d <= 14:
			label = "urgent"
		case *d <= 30:
			label = "moderate urgency"
		}
		out[model.FactorUrgencyDays] = fmt.Sprintf("%s: %d days to %s on %s", label, *d, s.urgency.event.EventType, s.urgency.event.DateString())
		out[model.FactorUrgencyBonus] = fmt.Sprintf("%g points", s.factor(model.FactorUrgencyBonus))
	} else {
		out[model.FactorUrgencyBonus] = "no dated active event"
	}

	mode := "x"
	if s.rules.PropertyTypeMode == model.PropertyTypeAdd {
		mode = "+"
	}
	out[model.FactorPropertyTypeMultiplier] = fmt.Sprintf("%s %s%g", p.PropertyType, mode, s.factor(model.FactorPropertyTypeMultiplier))
	out[model.FactorDataConfidencePenalty] = fmt.Sprintf("data confidence %.2f, -%g points", p.DataConfidence, s.factor(model.FactorDataConfidencePenalty))
	return out
}

func hubList(p *model.Property) string {
	var hubs []string
	if p.Within30MinNash {
		hubs = append(hubs, "Nashville")
	}
	if p.Within30MinMtJuliet {
		hubs = append(hubs, "Mt. Juliet")
	}
	return strings.Join(hubs, " and ")
}
