package resilience

import (
	"encoding/json"
	"time"
)

// Failure is a raw record that could not be ingested, kept for inspection
// and replay.
type Failure struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	Mode       string          `json:"mode"`
	Record     json.RawMessage `json:"record"`
	Error      string          `json:"error"`
	ErrorType  string          `json:"error_type"` // "transient" or "permanent"
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
	CreatedAt  time.Time       `json:"created_at"`
	LastFailed time.Time       `json:"last_failed_at"`
}

// FailureFilter narrows a failure listing.
type FailureFilter struct {
	ErrorType string `json:"error_type,omitempty"`
	Source    string `json:"source,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// NewFailure builds a Failure for record, classifying err.
func NewFailure(id, source, mode string, record json.RawMessage, err error, maxRetries int, now time.Time) Failure {
	return Failure{
		ID:         id,
		Source:     source,
		Mode:       mode,
		Record:     record,
		Error:      err.Error(),
		ErrorType:  ClassifyError(err),
		MaxRetries: maxRetries,
		CreatedAt:  now,
		LastFailed: now,
	}
}

// CanRetry reports whether a transient failure still has retries left.
func (f *Failure) CanRetry() bool {
	return f.ErrorType == "transient" && f.RetryCount < f.MaxRetries
}
