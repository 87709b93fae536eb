package anthropic

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// PollOption configures PollBatch.
type PollOption func(*pollConfig)

type pollConfig struct {
	initial time.Duration
	max     time.Duration
	timeout time.Duration
}

// WithPollInterval sets the first wait between polls.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) { c.initial = d }
}

// WithPollCap caps the wait between polls.
func WithPollCap(d time.Duration) PollOption {
	return func(c *pollConfig) { c.max = d }
}

// WithPollTimeout bounds the whole poll when ctx has no deadline.
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) { c.timeout = d }
}

// PollBatch waits until the batch ends, doubling the interval (with 20%
// jitter) up to the cap. Expired or canceled batches are errors.
func PollBatch(ctx context.Context, client Client, batchID string, opts ...PollOption) (*BatchResponse, error) {
	cfg := pollConfig{initial: 2 * time.Second, max: 15 * time.Second, timeout: 30 * time.Minute}
	for _, o := range opts {
		o(&cfg)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	wait := cfg.initial
	for {
		b, err := client.GetBatch(ctx, batchID)
		if err != nil {
			return nil, eris.Wrapf(err, "anthropic: poll batch %s", batchID)
		}
		switch b.ProcessingStatus {
		case "ended":
			return b, nil
		case "expired":
			return b, eris.Errorf("anthropic: batch %s expired", batchID)
		case "canceling", "canceled":
			return b, eris.Errorf("anthropic: batch %s canceled", batchID)
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "anthropic: poll batch %s", batchID)
		case <-time.After(wait):
		}
		wait = nextWait(wait, cfg.max)
	}
}

func nextWait(cur, limit time.Duration) time.Duration {
	next := min(cur*2, limit)
	if span := int64(next) / 5; span > 0 {
		j := time.Duration(rand.Int64N(span))
		if rand.IntN(2) == 0 {
			return next + j
		}
		return next - j
	}
	return next
}

// BatchResults holds the drained results of a batch.
type BatchResults struct {
	Succeeded map[string]*MessageResponse
	// Failed maps custom IDs to their result type.
	Failed map[string]string
	Usage  TokenUsage
}

// CollectResults drains and closes iter.
func CollectResults(iter BatchResultIterator) (*BatchResults, error) {
	defer iter.Close() //nolint:errcheck

	res := &BatchResults{
		Succeeded: make(map[string]*MessageResponse),
		Failed:    make(map[string]string),
	}
	for iter.Next() {
		item := iter.Item()
		if item.Type == "succeeded" && item.Message != nil {
			res.Succeeded[item.CustomID] = item.Message
			res.Usage = res.Usage.Add(item.Message.Usage)
			continue
		}
		res.Failed[item.CustomID] = item.Type
	}
	if err := iter.Err(); err != nil {
		return nil, eris.Wrap(err, "anthropic: collect batch results")
	}
	if len(res.Failed) > 0 {
		zap.L().Warn("anthropic: batch items failed",
			zap.Int("succeeded", len(res.Succeeded)),
			zap.Int("failed", len(res.Failed)),
		)
	}
	return res, nil
}
