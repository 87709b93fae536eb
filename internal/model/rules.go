package model

// PropertyTypeMode selects how the property-type factor is applied.
type PropertyTypeMode string

// Property-type factor modes.
const (
	PropertyTypeMultiply PropertyTypeMode = "multiply"
	PropertyTypeAdd      PropertyTypeMode = "add"
)

// Weights holds the per-factor weights of the scoring engine.
type Weights struct {
	HasContact            float64 `json:"has_contact" yaml:"has_contact" mapstructure:"has_contact" validate:"gte=0"`
	InTargetCounty        float64 `json:"in_target_county" yaml:"in_target_county" mapstructure:"in_target_county" validate:"gte=0"`
	WithinDriveRadius     float64 `json:"within_drive_radius" yaml:"within_drive_radius" mapstructure:"within_drive_radius" validate:"gte=0"`
	DataConfidencePenalty float64 `json:"data_confidence_penalty" yaml:"data_confidence_penalty" mapstructure:"data_confidence_penalty" validate:"gte=0"`
}

// UrgencyTier awards Bonus when the event is at most MaxDays away.
type UrgencyTier struct {
	MaxDays int     `json:"max_days" yaml:"max_days" mapstructure:"max_days" validate:"gte=0"`
	Bonus   float64 `json:"bonus" yaml:"bonus" mapstructure:"bonus" validate:"gte=0"`
}

// Thresholds are the lower score bounds of the medium, high and urgent tiers.
type Thresholds struct {
	Medium float64 `json:"medium" yaml:"medium" mapstructure:"medium" validate:"gte=0,lte=100"`
	High   float64 `json:"high" yaml:"high" mapstructure:"high" validate:"gte=0,lte=100"`
	Urgent float64 `json:"urgent" yaml:"urgent" mapstructure:"urgent" validate:"gte=0,lte=100"`
}

// InvestorRules configures the scoring engine. Treat a loaded value as
// immutable; use Clone before modifying a shared copy.
type InvestorRules struct {
	ID                   string                   `json:"id,omitempty" yaml:"id" mapstructure:"id"`
	Label                string                   `json:"label,omitempty" yaml:"label" mapstructure:"label"`
	TargetCounties       []string                 `json:"target_counties" yaml:"target_counties" mapstructure:"target_counties" validate:"dive,required"`
	MaxDriveTimeMin      float64                  `json:"max_drive_time_min" yaml:"max_drive_time_min" mapstructure:"max_drive_time_min" validate:"gt=0"`
	Weights              Weights                  `json:"weights" yaml:"weights" mapstructure:"weights"`
	ContactCap           int                      `json:"contact_cap" yaml:"contact_cap" mapstructure:"contact_cap" validate:"gte=1"`
	UrgencyTiers         []UrgencyTier            `json:"urgency_tiers" yaml:"urgency_tiers" mapstructure:"urgency_tiers" validate:"dive"`
	UrgencyBeyond        float64                  `json:"urgency_beyond" yaml:"urgency_beyond" mapstructure:"urgency_beyond" validate:"gte=0"`
	PropertyTypeMode     PropertyTypeMode         `json:"property_type_mode" yaml:"property_type_mode" mapstructure:"property_type_mode" validate:"oneof=multiply add"`
	PropertyTypeFactors  map[PropertyType]float64 `json:"property_type_factors" yaml:"property_type_factors" mapstructure:"property_type_factors"`
	EventTypeMultipliers map[EventType]float64    `json:"event_type_multipliers" yaml:"event_type_multipliers" mapstructure:"event_type_multipliers"`
	Thresholds           Thresholds               `json:"thresholds" yaml:"thresholds" mapstructure:"thresholds"`
}

// Clone returns a deep copy of the rules.
func (r InvestorRules) Clone() InvestorRules {
	out := r
	out.TargetCounties = append([]string(nil), r.TargetCounties...)
	out.UrgencyTiers = append([]UrgencyTier(nil), r.UrgencyTiers...)
	if r.PropertyTypeFactors != nil {
		out.PropertyTypeFactors = make(map[PropertyType]float64, len(r.PropertyTypeFactors))
		for k, v := range r.PropertyTypeFactors {
			out.PropertyTypeFactors[k] = v
		}
	}
	if r.EventTypeMultipliers != nil {
		out.EventTypeMultipliers = make(map[EventType]float64, len(r.EventTypeMultipliers))
		for k, v := range r.EventTypeMultipliers {
			out.EventTypeMultipliers[k] = v
		}
	}
	return out
}

// Priority is the tier derived from a score.
type Priority string

// Priority tiers, lowest first.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var priorityRank = map[Priority]int{
	PriorityLow:    0,
	PriorityMedium: 1,
	PriorityHigh:   2,
	PriorityUrgent: 3,
}

// Rank orders priorities; unknown values rank below low.
func (p Priority) Rank() int {
	r, ok := priorityRank[p]
	if !ok {
		return -1
	}
	return r
}

// ParsePriority returns the Priority named by s and whether it is known.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(s)
	_, ok := priorityRank[p]
	return p, ok
}
