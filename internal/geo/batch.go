package geo

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/property-scorer/internal/model"
)

// DefaultConcurrency bounds concurrent resolutions in ResolveBatch.
const DefaultConcurrency = 8

// BatchResult summarizes a ResolveBatch run.
type BatchResult struct {
	Resolved int64
	Skipped  int64
}

// ResolveBatch applies proximity to every property with at most limit
// resolutions in flight. optsFor picks the options per property. A property
// that cannot be resolved keeps its fields; it never fails the batch. Only
// cancellation of ctx is reported as an error.
func ResolveBatch(ctx context.Context, r Resolver, props []*model.Property, limit int, optsFor func(*model.Property) ProximityOptions) (BatchResult, error) {
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	var resolved, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, p := range props {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				skipped.Add(1)
				return nil
			}
			before := p.LocationKnown()
			ApplyProximity(gctx, r, p, optsFor(p))
			if p.LocationKnown() || before {
				resolved.Add(1)
			} else {
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := BatchResult{Resolved: resolved.Load(), Skipped: skipped.Load()}
	zap.L().Info("geo: batch resolved",
		zap.Int("properties", len(props)),
		zap.Int64("resolved", res.Resolved),
		zap.Int64("skipped", res.Skipped),
	)
	return res, ctx.Err()
}
