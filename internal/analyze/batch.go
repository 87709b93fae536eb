package analyze

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/property-scorer/internal/insight"
	"github.com/sells-group/property-scorer/internal/model"
	"github.com/sells-group/property-scorer/internal/store"
)

// Batch defaults.
const (
	DefaultConcurrency = 8
	DefaultPageSize    = 500
	scoreChunk         = 200
	changedBy          = "score"
)

// BatchStore is the persistence used by batch scoring.
type BatchStore interface {
	BundleLoader
	ListProperties(ctx context.Context, filter store.PropertyFilter) ([]store.PropertySummary, error)
	SaveScores(ctx context.Context, records []model.ScoreRecord) error
	AppendHistory(ctx context.Context, entries ...model.HistoryEntry) error
}

// BatchOptions selects and bounds a scoring run.
type BatchOptions struct {
	County string
	// All rescores every property; otherwise only those never scored or
	// scored under other rules.
	All         bool
	Limit       int
	Concurrency int
	PageSize    int
	// Narrate attaches narratives to the returned analyses.
	Narrate bool
	DryRun  bool
}

// BatchStats summarizes a scoring run.
type BatchStats struct {
	Selected int            `json:"selected"`
	Scored   int            `json:"scored"`
	Changed  int            `json:"changed"`
	Failed   int            `json:"failed"`
	ByTier   map[string]int `json:"by_priority"`
}

// BatchResult is the outcome of ScoreBatch. Analyses are ordered by score,
// highest first.
type BatchResult struct {
	Stats    BatchStats
	Analyses []*model.AnalysisResponse
}

type scored struct {
	analysis *model.AnalysisResponse
	events   []model.DistressEvent
	previous store.PropertySummary
}

// ScoreBatch scores the selected properties with bounded concurrency,
// persists the score snapshots and records a rescored history entry when a
// score or tier moved. A property that fails to load is counted and skipped.
func (a *Analyzer) ScoreBatch(ctx context.Context, st BatchStore, opts BatchOptions) (*BatchResult, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}

	targets, err := a.selectTargets(ctx, st, opts)
	if err != nil {
		return nil, err
	}
	stats := BatchStats{Selected: len(targets), ByTier: make(map[string]int)}
	zap.L().Info("analyze: scoring batch",
		zap.Int("properties", len(targets)),
		zap.Int("concurrency", opts.Concurrency),
		zap.Bool("all", opts.All),
	)

	var (
		mu      sync.Mutex
		results = make([]scored, 0, len(targets))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, t := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b, err := st.LoadBundle(gctx, t.Property.ID)
			if err != nil {
				zap.L().Warn("analyze: load failed", zap.String("property_id", t.Property.ID), zap.Error(err))
				mu.Lock()
				stats.Failed++
				mu.Unlock()
				return nil
			}
			resp := a.Score(*b)
			mu.Lock()
			results = append(results, scored{analysis: resp, events: b.Events, previous: t})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "analyze: score batch")
	}

	sort.Slice(results, func(i, j int) bool {
		si, sj := results[i].analysis.Score.Score, results[j].analysis.Score.Score
		if si != sj {
			return si > sj
		}
		return results[i].analysis.Property.ID < results[j].analysis.Property.ID
	})

	records := make([]model.ScoreRecord, 0, len(results))
	var history []model.HistoryEntry
	out := &BatchResult{Analyses: make([]*model.AnalysisResponse, 0, len(results))}
	for _, r := range results {
		stats.Scored++
		stats.ByTier[string(r.analysis.Score.Priority)]++
		records = append(records, model.NewScoreRecord(r.analysis))
		if h, ok := rescoredEntry(r.previous, r.analysis); ok {
			stats.Changed++
			history = append(history, h)
		}
		out.Analyses = append(out.Analyses, r.analysis)
	}

	if opts.Narrate && a.narrator != nil {
		items := make([]insight.BatchInput, len(results))
		for i, r := range results {
			items[i] = insight.BatchInput{Analysis: r.analysis, Events: r.events}
		}
		if err := a.narrator.NarrateBatch(ctx, items); err != nil {
			zap.L().Warn("analyze: batch narratives incomplete", zap.Error(err))
		}
	}

	if !opts.DryRun {
		for start := 0; start < len(records); start += scoreChunk {
			end := min(start+scoreChunk, len(records))
			if err := st.SaveScores(ctx, records[start:end]); err != nil {
				return nil, eris.Wrap(err, "analyze: save scores")
			}
		}
		if len(history) > 0 {
			if err := st.AppendHistory(ctx, history...); err != nil {
				return nil, eris.Wrap(err, "analyze: record rescored history")
			}
		}
	}

	out.Stats = stats
	zap.L().Info("analyze: batch complete",
		zap.Int("scored", stats.Scored),
		zap.Int("changed", stats.Changed),
		zap.Int("failed", stats.Failed),
		zap.Any("by_priority", stats.ByTier),
		zap.Bool("dry_run", opts.DryRun),
	)
	return out, nil
}

// selectTargets pages through the listing before any score is written, so
// the stale filter is evaluated against a stable snapshot.
func (a *Analyzer) selectTargets(ctx context.Context, st BatchStore, opts BatchOptions) ([]store.PropertySummary, error) {
	filter := store.PropertyFilter{County: opts.County, Limit: opts.PageSize}
	if !opts.All {
		filter.StaleFor = a.engine.RulesHash()
	}

	var out []store.PropertySummary
	for {
		if opts.Limit > 0 && len(out) >= opts.Limit {
			return out[:opts.Limit], nil
		}
		page, err := st.ListProperties(ctx, filter)
		if err != nil {
			return nil, eris.Wrap(err, "analyze: list properties")
		}
		out = append(out, page...)
		if len(page) < filter.Limit {
			break
		}
		filter.Offset += len(page)
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

type scoreSnapshot struct {
	Score    int            `json:"score"`
	Priority model.Priority `json:"priority"`
}

// rescoredEntry reports a history entry when a previously scored property
// changed score or tier.
func rescoredEntry(prev store.PropertySummary, a *model.AnalysisResponse) (model.HistoryEntry, bool) {
	if prev.Score == nil {
		return model.HistoryEntry{}, false
	}
	if *prev.Score == a.Score.Score && prev.Priority == a.Score.Priority {
		return model.HistoryEntry{}, false
	}
	oldV, _ := json.Marshal(scoreSnapshot{Score: *prev.Score, Priority: prev.Priority})
	newV, _ := json.Marshal(scoreSnapshot{Score: a.Score.Score, Priority: a.Score.Priority})
	return model.HistoryEntry{
		ID:         model.NewID(),
		PropertyID: a.Property.ID,
		ChangeType: model.ChangeRescored,
		OldValue:   oldV,
		NewValue:   newV,
		ChangedBy:  changedBy + ":" + a.Metadata.RulesHash,
		CreatedAt:  a.Metadata.AnalyzedAt,
	}, true
}
