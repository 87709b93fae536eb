// Package store persists properties, events, contacts, scores, the geocode
// cache and ingest failures in Postgres (production) or SQLite (local runs).
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/property-scorer/internal/geo"
	"github.com/sells-group/property-scorer/internal/model"
	"github.com/sells-group/property-scorer/internal/resilience"
)

// ErrNotFound is returned (wrapped) when a requested entity does not exist.
var ErrNotFound = eris.New("store: not found")

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return eris.Is(err, ErrNotFound) }

// PropertyFilter selects properties for listing.
type PropertyFilter struct {
	County   string         `json:"county,omitempty"`
	Priority model.Priority `json:"priority,omitempty"`
	MinScore *int           `json:"min_score,omitempty"`
	// StaleFor keeps properties never scored or scored under other rules.
	StaleFor string `json:"stale_for,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// PropertySummary is a property with its latest score, if any.
type PropertySummary struct {
	Property    model.Property `json:"property"`
	Score       *int           `json:"score,omitempty"`
	Priority    model.Priority `json:"priority,omitempty"`
	UrgencyDays *int           `json:"urgency_days,omitempty"`
	ScoredAt    *time.Time     `json:"scored_at,omitempty"`
}

// Stats are table counts for the health and stats endpoints.
type Stats struct {
	Properties   int            `json:"properties"`
	ActiveEvents int            `json:"active_events"`
	Contacts     int            `json:"contacts"`
	Scored       int            `json:"scored"`
	Failures     int            `json:"failures"`
	ByPriority   map[string]int `json:"by_priority"`
}

// Store defines the persistence interface.
type Store interface {
	// Bundles
	UpsertBundle(ctx context.Context, b model.Bundle, history []model.HistoryEntry) error
	LoadBundle(ctx context.Context, propertyID string) (*model.Bundle, error)
	GetProperty(ctx context.Context, id string) (*model.Property, error)
	FindPropertyByAddressKey(ctx context.Context, key string) (*model.Property, error)
	ListProperties(ctx context.Context, filter PropertyFilter) ([]PropertySummary, error)
	GetContact(ctx context.Context, id string) (*model.Contact, error)

	// Enrichment and history
	SaveEnrichment(ctx context.Context, c model.Contact, link model.PropertyContact, h model.HistoryEntry) error
	AppendHistory(ctx context.Context, entries ...model.HistoryEntry) error
	ListHistory(ctx context.Context, propertyID string, limit int) ([]model.HistoryEntry, error)

	// Scores
	SaveScores(ctx context.Context, records []model.ScoreRecord) error
	LatestScore(ctx context.Context, propertyID string) (*model.ScoreRecord, error)

	// Geocode cache
	GetGeocode(ctx context.Context, hash string) (*geo.CacheEntry, error)
	PutGeocode(ctx context.Context, entry geo.CacheEntry) error

	// Failures
	RecordFailure(ctx context.Context, f resilience.Failure) error
	ListFailures(ctx context.Context, filter resilience.FailureFilter) ([]resilience.Failure, error)
	RemoveFailure(ctx context.Context, id string) error

	Stats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
