package scorer

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/sells-group/property-scorer/internal/model"
)

var validate = validator.New()

// ValidateRules checks that rules are internally consistent: struct tags
// (non-negative weights, a positive drive limit, a known property-type mode)
// plus ordering constraints the tags cannot express.
func ValidateRules(r model.InvestorRules) error {
	var errs []string

	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if len(r.TargetCounties) == 0 {
		errs = append(errs, "target_counties must not be empty")
	}

	t := r.Thresholds
	if !(t.Medium < t.High && t.High < t.Urgent) {
		errs = append(errs, fmt.Sprintf("thresholds must ascend: medium=%v high=%v urgent=%v", t.Medium, t.High, t.Urgent))
	}

	seen := make(map[int]bool, len(r.UrgencyTiers))
	for i, tier := range r.UrgencyTiers {
		if seen[tier.MaxDays] {
			errs = append(errs, fmt.Sprintf("urgency_tiers[%d]: duplicate max_days %d", i, tier.MaxDays))
		}
		seen[tier.MaxDays] = true
	}
	sorted := sortedTiers(r.UrgencyTiers)
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Bonus > sorted[i-1].Bonus {
			errs = append(errs, fmt.Sprintf("urgency bonus must not grow with distance (%d days: %v > %d days: %v)",
				sorted[i].MaxDays, sorted[i].Bonus, sorted[i-1].MaxDays, sorted[i-1].Bonus))
		}
	}
	if n := len(sorted); n > 0 && r.UrgencyBeyond > sorted[n-1].Bonus {
		errs = append(errs, "urgency_beyond must not exceed the last tier bonus")
	}

	for pt, f := range r.PropertyTypeFactors {
		if f < 0 {
			errs = append(errs, fmt.Sprintf("property_type_factors[%s] must be >= 0", pt))
		}
	}
	for et, m := range r.EventTypeMultipliers {
		if m < 0 {
			errs = append(errs, fmt.Sprintf("event_type_multipliers[%s] must be >= 0", et))
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("scorer: rules validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// sortedTiers returns a copy of tiers ordered by MaxDays.
func sortedTiers(tiers []model.UrgencyTier) []model.UrgencyTier {
	out := append([]model.UrgencyTier(nil), tiers...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].MaxDays < out[j].MaxDays })
	return out
}
