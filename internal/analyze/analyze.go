// Package analyze turns stored properties into scored analyses.
package analyze

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/property-scorer/internal/adapter"
	"github.com/sells-group/property-scorer/internal/insight"
	"github.com/sells-group/property-scorer/internal/model"
	"github.com/sells-group/property-scorer/internal/scorer"
)

// BundleLoader loads the stored bundle of a property.
type BundleLoader interface {
	LoadBundle(ctx context.Context, propertyID string) (*model.Bundle, error)
}

// Analyzer composes the scoring engine and the narrator.
type Analyzer struct {
	loader   BundleLoader
	engine   *scorer.Engine
	narrator *insight.Narrator
	now      func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithNarrator attaches narratives to analyses. Without one, analyses carry
// no aiAnalysis and report aiEnabled false.
func WithNarrator(n *insight.Narrator) Option { return func(a *Analyzer) { a.narrator = n } }

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option { return func(a *Analyzer) { a.now = now } }

// New creates an Analyzer. loader may be nil when only Build is used.
func New(loader BundleLoader, engine *scorer.Engine, opts ...Option) *Analyzer {
	a := &Analyzer{loader: loader, engine: engine, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Engine returns the scoring engine in use.
func (a *Analyzer) Engine() *scorer.Engine { return a.engine }

// Analyze loads a stored property and scores it, narrative included.
func (a *Analyzer) Analyze(ctx context.Context, propertyID string) (*model.AnalysisResponse, error) {
	if a.loader == nil {
		return nil, eris.New("analyze: no bundle loader")
	}
	b, err := a.loader.LoadBundle(ctx, propertyID)
	if err != nil {
		return nil, eris.Wrapf(err, "analyze: load %s", propertyID)
	}
	resp := a.Score(*b)
	if a.narrator != nil {
		resp.AIAnalysis = a.narrator.Narrate(ctx, resp, b.Events)
	}
	return resp, nil
}

// Build scores a bundle that need not be stored, narrative included. Bundle
// warnings from the adapter are reported with the score warnings.
func (a *Analyzer) Build(ctx context.Context, b model.Bundle) *model.AnalysisResponse {
	resp := a.Score(b)
	resp.Score.Warnings = append(resp.Score.Warnings, b.Warnings...)
	if a.narrator != nil {
		resp.AIAnalysis = a.narrator.Narrate(ctx, resp, b.Events)
	}
	return resp
}

// Score scores a bundle without a narrative.
func (a *Analyzer) Score(b model.Bundle) *model.AnalysisResponse {
	now := a.now().UTC()
	return &model.AnalysisResponse{
		Property: b.Property,
		Score:    a.engine.Score(scorer.InputFromBundle(b), now),
		Metadata: model.AnalysisMetadata{
			AnalyzedAt:     now,
			ScoringVersion: ScoringVersion(b.Property.ID),
			AIEnabled:      a.narrator != nil,
			RulesHash:      a.engine.RulesHash(),
		},
	}
}

// ScoringVersion is v1.0-legacy for legacy-derived property IDs and v1.0
// otherwise.
func ScoringVersion(propertyID string) string {
	if adapter.IsLegacyID(propertyID) {
		return model.ScoringVersionLegacy
	}
	return model.ScoringVersion
}
