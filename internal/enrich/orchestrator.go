package enrich

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/property-scorer/internal/model"
	"github.com/sells-group/property-scorer/internal/resilience"
)

// Orchestrator defaults.
const (
	DefaultMaxConcurrent = 5
	DefaultTimeout       = 60 * time.Second
	failureSource        = "enrich"
)

// ErrNoProviders is returned when the registry is empty.
var ErrNoProviders = eris.New("enrich: no providers registered")

// Sink persists enrichment outcomes and failures.
type Sink interface {
	SaveEnrichment(ctx context.Context, c model.Contact, link model.PropertyContact, h model.HistoryEntry) error
	RecordFailure(ctx context.Context, f resilience.Failure) error
}

// Target is one property to enrich with the contacts already linked to it.
type Target struct {
	Property model.Property
	Contacts []model.Contact
	Owner    string
}

// Outcome is the result of enriching one property.
type Outcome struct {
	PropertyID string
	// Provider is the provider whose result was merged; empty when none had data.
	Provider string
	Merged   *Merged
	History  *model.HistoryEntry
	Err      error
}

// Found reports whether a contact was produced.
func (o Outcome) Found() bool { return o.Merged != nil }

// BatchStats summarizes EnrichBatch.
type BatchStats struct {
	Enriched int
	Empty    int
	Failed   int
}

// Orchestrator runs providers in order under retry, a per-provider circuit
// breaker and a per-call timeout. The first provider with data wins.
type Orchestrator struct {
	registry      *Registry
	merger        Merger
	breakers      *resilience.Breakers
	retry         resilience.RetryConfig
	timeout       time.Duration
	maxConcurrent int
	maxRetries    int
	sink          Sink
	now           func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMerger sets the link confidences.
func WithMerger(m Merger) Option { return func(o *Orchestrator) { o.merger = m } }

// WithRetry sets the retry policy per provider call.
func WithRetry(cfg resilience.RetryConfig) Option { return func(o *Orchestrator) { o.retry = cfg } }

// WithBreakers sets the per-provider circuit breakers.
func WithBreakers(b *resilience.Breakers) Option { return func(o *Orchestrator) { o.breakers = b } }

// WithTimeout bounds each provider call, retries included.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxConcurrent bounds concurrent lookups in EnrichBatch.
func WithMaxConcurrent(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

// WithSink persists outcomes and failures.
func WithSink(s Sink) Option { return func(o *Orchestrator) { o.sink = s } }

// WithMaxRetries sets the retry budget recorded on failures.
func WithMaxRetries(n int) Option { return func(o *Orchestrator) { o.maxRetries = n } }

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// NewOrchestrator creates an orchestrator over the registry.
func NewOrchestrator(reg *Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:      reg,
		breakers:      resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig()),
		retry:         resilience.DefaultRetryConfig(),
		timeout:       DefaultTimeout,
		maxConcurrent: DefaultMaxConcurrent,
		maxRetries:    3,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enrich looks the property up with each provider in order and merges the
// first non-empty result. Provider failures fall through to the next
// provider; the error is returned only when every provider failed.
func (o *Orchestrator) Enrich(ctx context.Context, t Target) Outcome {
	out := Outcome{PropertyID: t.Property.ID}
	providers := o.registry.Providers()
	if len(providers) == 0 {
		out.Err = ErrNoProviders
		return out
	}

	q := Query{PropertyID: t.Property.ID, Address: t.Property.FullAddress, OwnerName: t.Owner}
	var errs []error
	for _, p := range providers {
		res, err := o.lookup(ctx, p, q)
		if err != nil {
			zap.L().Warn("enrich: provider failed",
				zap.String("provider", p.Name()),
				zap.String("property_id", q.PropertyID),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		if res.Empty() {
			continue
		}

		now := o.now().UTC()
		existing := findContact(t.Contacts, ContactID(t.Property.ID, p.Name()))
		merged := o.merger.Merge(t.Property.ID, p.Name(), res, existing, now)
		out.Provider = p.Name()
		out.Merged = &merged
		h := enrichedEntry(t.Property.ID, p.Name(), existing, merged, now)
		out.History = &h
		return out
	}

	if len(errs) == len(providers) {
		out.Err = eris.Wrapf(errs[len(errs)-1], "enrich: all %d providers failed", len(errs))
	}
	return out
}

// TargetFor builds the enrichment target of a stored bundle.
func TargetFor(b model.Bundle) Target {
	return Target{Property: b.Property, Contacts: b.LinkedContacts()}
}

// Apply merges a result obtained outside the registry (a webhook or a
// manual lookup) as if provider had returned it, and persists it.
func (o *Orchestrator) Apply(ctx context.Context, t Target, provider string, res Result) (Outcome, error) {
	out := Outcome{PropertyID: t.Property.ID}
	if res.Empty() {
		return out, nil
	}
	now := o.now().UTC()
	existing := findContact(t.Contacts, ContactID(t.Property.ID, provider))
	merged := o.merger.Merge(t.Property.ID, provider, res, existing, now)
	h := enrichedEntry(t.Property.ID, provider, existing, merged, now)
	out.Provider = provider
	out.Merged = &merged
	out.History = &h
	return out, o.persist(ctx, t, out)
}

// Run enriches one property and persists the outcome through the sink.
func (o *Orchestrator) Run(ctx context.Context, t Target) (Outcome, error) {
	out := o.Enrich(ctx, t)
	return out, o.persist(ctx, t, out)
}

// EnrichBatch enriches targets with at most maxConcurrent lookups in flight.
// Per-property failures are recorded, never returned; only a sink write
// error or cancellation fails the batch.
func (o *Orchestrator) EnrichBatch(ctx context.Context, targets []Target) ([]Outcome, BatchStats, error) {
	outcomes := make([]Outcome, len(targets))
	var (
		mu    sync.Mutex
		stats BatchStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrent)
	for i, t := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := o.Enrich(gctx, t)
			outcomes[i] = out

			mu.Lock()
			switch {
			case out.Err != nil:
				stats.Failed++
			case out.Found():
				stats.Enriched++
			default:
				stats.Empty++
			}
			mu.Unlock()

			return o.persist(gctx, t, out)
		})
	}
	err := g.Wait()

	zap.L().Info("enrich: batch complete",
		zap.Int("properties", len(targets)),
		zap.Int("enriched", stats.Enriched),
		zap.Int("empty", stats.Empty),
		zap.Int("failed", stats.Failed),
	)
	return outcomes, stats, err
}

// BreakerStates reports provider circuit states for health checks.
func (o *Orchestrator) BreakerStates() map[string]resilience.CircuitState {
	return o.breakers.States()
}

func (o *Orchestrator) lookup(ctx context.Context, p Provider, q Query) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	retry := o.retry
	retry.OnRetry = resilience.RetryLogger(p.Name(), "lookup")
	return resilience.Guard(ctx, o.breakers.Get(p.Name()), retry, func(ctx context.Context) (Result, error) {
		return p.Lookup(ctx, q)
	})
}

func (o *Orchestrator) persist(ctx context.Context, t Target, out Outcome) error {
	if o.sink == nil {
		return nil
	}
	if out.Err != nil {
		record, _ := json.Marshal(t.Property)
		f := resilience.NewFailure(model.StableID("failure", failureSource, t.Property.ID), failureSource, "enrich", record, out.Err, o.maxRetries, o.now().UTC())
		if err := o.sink.RecordFailure(ctx, f); err != nil {
			return eris.Wrapf(err, "enrich: record failure for %s", t.Property.ID)
		}
		return nil
	}
	if !out.Found() {
		return nil
	}
	if err := o.sink.SaveEnrichment(ctx, out.Merged.Contact, out.Merged.Link, *out.History); err != nil {
		return eris.Wrapf(err, "enrich: save %s", t.Property.ID)
	}
	return nil
}

func findContact(contacts []model.Contact, id string) *model.Contact {
	for i := range contacts {
		if contacts[i].ID == id {
			c := contacts[i]
			return &c
		}
	}
	return nil
}

type contactSummary struct {
	Provider string   `json:"provider,omitempty"`
	Phones   int      `json:"phones"`
	Emails   int      `json:"emails"`
	Owners   []string `json:"owners,omitempty"`
}

func enrichedEntry(propertyID, provider string, before *model.Contact, m Merged, now time.Time) model.HistoryEntry {
	h := model.HistoryEntry{
		ID:         model.NewID(),
		PropertyID: propertyID,
		ChangeType: model.ChangeEnriched,
		ChangedBy:  failureSource + ":" + provider,
		CreatedAt:  now,
	}
	if before != nil {
		h.OldValue, _ = json.Marshal(contactSummary{Phones: len(before.Phones), Emails: len(before.Emails)})
	}
	after := contactSummary{Provider: provider, Phones: len(m.Contact.Phones), Emails: len(m.Contact.Emails)}
	for _, own := range m.Owners {
		after.Owners = append(after.Owners, own.FullName)
	}
	h.NewValue, _ = json.Marshal(after)
	return h
}
