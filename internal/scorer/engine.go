package scorer

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/property-scorer/internal/address"
	"github.com/sells-group/property-scorer/internal/model"
)

// Input is everything the engine reads for one property.
type Input struct {
	Property model.Property
	Events   []model.DistressEvent
	Contacts []model.Contact
	Links    []model.PropertyContact
}

// InputFromBundle builds an Input from an adapter bundle.
func InputFromBundle(b model.Bundle) Input {
	return Input{Property: b.Property, Events: b.Events, Contacts: b.Contacts, Links: b.Links}
}

// Engine scores properties against one immutable rules snapshot. It holds
// no mutable state and is safe for concurrent use.
type Engine struct {
	rules    model.InvestorRules
	hash     string
	defaults bool
}

// NewEngine validates rules and falls back to DefaultRules when they are
// invalid. The fallback is logged once here and reported as a warning on
// every result.
func NewEngine(rules model.InvestorRules) *Engine {
	e := &Engine{}
	if err := ValidateRules(rules); err != nil {
		zap.L().Warn("scorer: invalid investor rules, using defaults",
			zap.String("rules_id", rules.ID),
			zap.Error(err),
		)
		rules = DefaultRules()
		e.defaults = true
	}
	e.rules = rules.Clone()
	e.rules.UrgencyTiers = sortedTiers(e.rules.UrgencyTiers)
	e.hash = RulesHash(e.rules)
	return e
}

// NewFallbackEngine scores with DefaultRules and marks every result with
// WarnDefaultRulesUsed. Use it when configured rules could not be loaded.
func NewFallbackEngine() *Engine {
	e := NewEngine(DefaultRules())
	e.defaults = true
	return e
}

// Rules returns a copy of the rules in effect.
func (e *Engine) Rules() model.InvestorRules { return e.rules.Clone() }

// RulesHash is the fingerprint of the rules in effect.
func (e *Engine) RulesHash() string { return e.hash }

// UsingDefaults reports whether the configured rules were rejected.
func (e *Engine) UsingDefaults() bool { return e.defaults }

// Score computes the score of one property as of now. It performs no I/O
// and reads no clock; equal inputs always give equal results.
func (e *Engine) Score(in Input, now time.Time) model.ScoreResult {
	r := e.rules
	w := r.Weights
	p := in.Property

	reachable := 0
	for _, c := range model.LinkedContacts(p.ID, in.Contacts, in.Links) {
		if c.Reachable() {
			reachable++
		}
	}
	contacts := min(reachable, r.ContactCap)

	inCounty := 0.0
	if targetCounty(r.TargetCounties, p.County) {
		inCounty = 1
	}

	// A proximity flag counts only with coordinates or a hub distance behind it.
	withinDrive := 0.0
	if p.LocationKnown() && (p.Within30MinNash || p.Within30MinMtJuliet) {
		withinDrive = 1
	}

	u := selectUrgency(in.Events, now)
	bonus := 0.0
	if u.days != nil && *u.days >= 0 {
		bonus = urgencyBonus(r, *u.days) * eventMultiplier(r, u.event.EventType)
	}

	subtotal := w.HasContact*float64(contacts) +
		w.InTargetCounty*inCounty +
		w.WithinDriveRadius*withinDrive +
		bonus

	typeFactor := propertyTypeFactor(r, p.PropertyType)
	if r.PropertyTypeMode == model.PropertyTypeAdd {
		subtotal += typeFactor
	} else {
		subtotal *= typeFactor
	}

	confidence := math.Max(0, math.Min(1, p.DataConfidence))
	penalty := round2(w.DataConfidencePenalty * (1 - confidence))
	subtotal -= penalty

	score := int(math.Round(math.Max(0, math.Min(100, subtotal))))

	factors := map[string]float64{
		model.FactorHasContact:             float64(contacts),
		model.FactorInTargetCounty:         inCounty,
		model.FactorWithinDriveRadius:      withinDrive,
		model.FactorUrgencyBonus:           round2(bonus),
		model.FactorPropertyTypeMultiplier: typeFactor,
		model.FactorDataConfidencePenalty:  penalty,
	}
	if u.days != nil {
		factors[model.FactorUrgencyDays] = float64(*u.days)
	}

	res := model.ScoreResult{
		Score:       score,
		Priority:    PriorityFor(score, r.Thresholds),
		Factors:     factors,
		UrgencyDays: u.days,
	}
	sc := scored{in: &in, rules: &r, result: &res, urgency: u, reachable: reachable, defaults: e.defaults}
	res.Warnings = sc.warnings()
	res.Recommendations = sc.recommendations()
	res.Explanations = sc.explanations()
	return res
}

// targetCounty reports whether county is one of targets. Unknown and empty
// counties never match.
func targetCounty(targets []string, county string) bool {
	for _, t := range targets {
		if address.SameCounty(t, county) {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
