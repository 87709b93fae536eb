package model

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType classifies a distress occurrence.
type EventType string

// Distress event types.
const (
	EventForeclosure   EventType = "FORECLOSURE"
	EventProbate       EventType = "PROBATE"
	EventDivorce       EventType = "DIVORCE"
	EventTaxLien       EventType = "TAX_LIEN"
	EventBankruptcy    EventType = "BANKRUPTCY"
	EventCodeViolation EventType = "CODE_VIOLATION"
	EventOther         EventType = "OTHER"
)

// ParseEventType maps source text onto an EventType, defaulting to FORECLOSURE
// for empty input (every current source lists foreclosure sales) and OTHER
// for anything unrecognized.
func ParseEventType(s string) EventType {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	switch norm {
	case "":
		return EventForeclosure
	case "FORECLOSURE", "TRUSTEE_SALE", "AUCTION":
		return EventForeclosure
	case "PROBATE", "ESTATE":
		return EventProbate
	case "DIVORCE":
		return EventDivorce
	case "TAX_LIEN", "TAX_SALE", "TAX":
		return EventTaxLien
	case "BANKRUPTCY":
		return EventBankruptcy
	case "CODE_VIOLATION", "CODE":
		return EventCodeViolation
	default:
		return EventOther
	}
}

// EventStatus tracks the lifecycle of a distress event.
type EventStatus string

// Event statuses.
const (
	EventStatusActive    EventStatus = "active"
	EventStatusPostponed EventStatus = "postponed"
	EventStatusCancelled EventStatus = "cancelled"
	EventStatusCompleted EventStatus = "completed"
)

// ParseEventStatus maps source text onto an EventStatus, defaulting to active.
func ParseEventStatus(s string) EventStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postponed", "continued", "rescheduled":
		return EventStatusPostponed
	case "cancelled", "canceled", "withdrawn":
		return EventStatusCancelled
	case "completed", "sold", "closed":
		return EventStatusCompleted
	default:
		return EventStatusActive
	}
}

// DistressEvent is one dated distress occurrence tied to a Property.
type DistressEvent struct {
	ID         string      `json:"id"`
	PropertyID string      `json:"property_id"`
	EventType  EventType   `json:"event_type"`
	Source     string      `json:"source"`
	EventDate  *time.Time  `json:"event_date"`
	EventTime  string      `json:"event_time,omitempty"`
	Firm       string      `json:"firm,omitempty"`
	Status     EventStatus `json:"status"`

	// RawData is the original source record, kept for audit.
	RawData json.RawMessage `json:"raw_data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsActive reports whether the event is still pending.
func (e *DistressEvent) IsActive() bool {
	return e.Status == EventStatusActive
}

// DateString returns the event date as YYYY-MM-DD, or "" when unknown.
func (e *DistressEvent) DateString() string {
	if e.EventDate == nil {
		return ""
	}
	return e.EventDate.Format(time.DateOnly)
}

// SameDate reports whether two events carry the same calendar date
// (both nil counts as the same).
func SameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Format(time.DateOnly) == b.Format(time.DateOnly)
}

// Date builds a calendar date at UTC midnight.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
