package model

import (
	"encoding/json"
	"time"
)

// ChangeType classifies a property history entry.
type ChangeType string

// History change types.
const (
	ChangeCreated         ChangeType = "created"
	ChangeSaleDateChanged ChangeType = "sale_date_changed"
	ChangeStatusChanged   ChangeType = "status_changed"
	ChangeEnriched        ChangeType = "enriched"
	ChangeRescored        ChangeType = "rescored"
)

// HistoryEntry records one change to a property.
type HistoryEntry struct {
	ID         string          `json:"id"`
	PropertyID string          `json:"property_id"`
	ChangeType ChangeType      `json:"change_type"`
	OldValue   json.RawMessage `json:"old_value,omitempty"`
	NewValue   json.RawMessage `json:"new_value,omitempty"`
	ChangedBy  string          `json:"changed_by"`
	CreatedAt  time.Time       `json:"created_at"`
}
