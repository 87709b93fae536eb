package scorer

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/property-scorer/internal/model"
)

// LoadRulesFile reads investor rules from a YAML file. Keys absent from the
// file keep their default values. The result is validated.
func LoadRulesFile(path string) (model.InvestorRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.InvestorRules{}, eris.Wrapf(err, "scorer: read rules %s", path)
	}
	return ParseRules(data)
}

// ParseRules decodes YAML rules over the defaults and validates them.
func ParseRules(data []byte) (model.InvestorRules, error) {
	r := DefaultRules()
	// Maps decode by merge; clear them so a file that lists factors
	// replaces the default table instead of extending it.
	var probe struct {
		PropertyTypeFactors  map[string]any `yaml:"property_type_factors"`
		EventTypeMultipliers map[string]any `yaml:"event_type_multipliers"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return model.InvestorRules{}, eris.Wrap(err, "scorer: parse rules")
	}
	if probe.PropertyTypeFactors != nil {
		r.PropertyTypeFactors = nil
	}
	if probe.EventTypeMultipliers != nil {
		r.EventTypeMultipliers = nil
	}

	if err := yaml.Unmarshal(data, &r); err != nil {
		return model.InvestorRules{}, eris.Wrap(err, "scorer: parse rules")
	}
	if err := ValidateRules(r); err != nil {
		return model.InvestorRules{}, err
	}
	return r, nil
}
