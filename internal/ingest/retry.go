package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-scorer/internal/adapter"
	"github.com/sells-group/property-scorer/internal/resilience"
)

// Retry replays recorded ingest failures that still have retries left.
// Failures of other kinds (enrichment) are left alone. A record
// that now ingests is removed from the failure log; one that fails again
// has its retry count and error updated.
func (in *Ingester) Retry(ctx context.Context, filter resilience.FailureFilter) (*Stats, error) {
	failures, err := in.store.ListFailures(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: list failures")
	}

	st := &Stats{ByMode: map[string]int{}}
	for _, f := range failures {
		if ctx.Err() != nil {
			return st, eris.Wrap(ctx.Err(), "ingest: cancelled")
		}
		mode, err := adapter.ParseSchemaMode(f.Mode)
		if err != nil || !f.CanRetry() {
			continue
		}
		st.Retried++
		st.ByMode[f.Mode]++

		rec, err := DecodeRecord(mode, f.Source, f.Record)
		failed := in.ingest(ctx, f.Source, mode, []Item{{Record: rec, Raw: f.Record, Err: err}}, st)
		if len(failed) == 0 {
			st.Recovered++
			if in.dryRun {
				continue
			}
			if err := in.store.RemoveFailure(ctx, f.ID); err != nil {
				return st, eris.Wrapf(err, "ingest: remove failure %s", f.ID)
			}
			continue
		}

		if in.dryRun {
			continue
		}
		f.RetryCount++
		f.Error = failed[0].err.Error()
		f.ErrorType = resilience.ClassifyError(failed[0].err)
		f.LastFailed = in.now()
		if err := in.store.RecordFailure(ctx, f); err != nil {
			return st, eris.Wrapf(err, "ingest: update failure %s", f.ID)
		}
	}

	zap.L().Info("ingest: retry complete",
		zap.Int("retried", st.Retried),
		zap.Int("recovered", st.Recovered),
		zap.Int("failed", st.Failed),
	)
	return st, nil
}
