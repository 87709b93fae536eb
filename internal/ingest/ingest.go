// Package ingest reads raw source records, converts them into bundles,
// resolves geography, detects changes against what is stored, and persists
// each bundle with its history. Records that fail are kept for replay.
package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-scorer/internal/adapter"
	"github.com/sells-group/property-scorer/internal/geo"
	"github.com/sells-group/property-scorer/internal/model"
	"github.com/sells-group/property-scorer/internal/resilience"
	"github.com/sells-group/property-scorer/internal/store"
)

// Store is the persistence the ingester needs.
type Store interface {
	UpsertBundle(ctx context.Context, b model.Bundle, history []model.HistoryEntry) error
	LoadBundle(ctx context.Context, propertyID string) (*model.Bundle, error)
	FindPropertyByAddressKey(ctx context.Context, key string) (*model.Property, error)
	RecordFailure(ctx context.Context, f resilience.Failure) error
	ListFailures(ctx context.Context, filter resilience.FailureFilter) ([]resilience.Failure, error)
	RemoveFailure(ctx context.Context, id string) error
}

// Stats summarizes an ingest run.
type Stats struct {
	Records           int             `json:"records"`
	Failed            int             `json:"failed"`
	UniqueAddresses   int             `json:"unique_addresses"`
	PropertiesCreated int             `json:"properties_created"`
	PropertiesUpdated int             `json:"properties_updated"`
	EventsCreated     int             `json:"events_created"`
	ContactsCreated   int             `json:"contacts_created"`
	LinksCreated      int             `json:"links_created"`
	SaleDateChanges   int             `json:"sale_date_changes"`
	StatusChanges     int             `json:"status_changes"`
	Warnings          int             `json:"warnings"`
	Geo               geo.BatchResult `json:"geo"`
	Errors            []string        `json:"errors,omitempty"`
	Retried           int             `json:"retried,omitempty"`
	Recovered         int             `json:"recovered,omitempty"`
	ByMode            map[string]int  `json:"by_mode,omitempty"`

	// History holds the entries written (or, on a dry run, that would be).
	History []model.HistoryEntry `json:"-"`
}

func (s *Stats) fail(err error) {
	s.Failed++
	if len(s.Errors) < maxReportedErrors {
		s.Errors = append(s.Errors, err.Error())
	}
}

const maxReportedErrors = 50

// Ingester runs records from a Reader through conversion and persistence.
type Ingester struct {
	store      Store
	mode       adapter.SchemaMode
	conv       adapter.Converter
	resolver   geo.Resolver
	proximity  geo.ProximityOptions
	geoLimit   int
	maxRetries int
	dryRun     bool
	now        func() time.Time
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithResolver resolves county and hub distances for properties that lack
// them, with at most limit lookups in flight.
func WithResolver(r geo.Resolver, opts geo.ProximityOptions, limit int) Option {
	return func(in *Ingester) {
		in.resolver = r
		in.proximity = opts
		in.geoLimit = limit
	}
}

// WithDryRun reports what would change without writing.
func WithDryRun(dry bool) Option {
	return func(in *Ingester) { in.dryRun = dry }
}

// WithMaxRetries sets the retry budget of recorded failures.
func WithMaxRetries(n int) Option {
	return func(in *Ingester) { in.maxRetries = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(in *Ingester) { in.now = now }
}

// New creates an Ingester for records of the given schema mode.
func New(s Store, mode adapter.SchemaMode, conv adapter.Converter, opts ...Option) *Ingester {
	in := &Ingester{
		store:      s,
		mode:       mode,
		conv:       conv,
		maxRetries: 3,
		now:        time.Now,
	}
	for _, o := range opts {
		o(in)
	}
	return in
}

// Run reads every record from r and ingests it. Record-level problems are
// counted and recorded as failures; only read and context errors abort.
func (in *Ingester) Run(ctx context.Context, r Reader) (*Stats, error) {
	var items []Item
	if err := r.Read(ctx, func(it Item) error {
		items = append(items, it)
		return nil
	}); err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", r.Name())
	}

	st := &Stats{ByMode: map[string]int{string(in.mode): len(items)}}
	failed := in.ingest(ctx, r.Name(), in.mode, items, st)
	if err := ctx.Err(); err != nil {
		return st, eris.Wrap(err, "ingest: cancelled")
	}

	now := in.now()
	for _, f := range failed {
		if in.dryRun {
			continue
		}
		rec := resilience.NewFailure(FailureID(r.Name(), f.raw), r.Name(), string(in.mode), f.raw, f.err, in.maxRetries, now)
		if err := in.store.RecordFailure(ctx, rec); err != nil {
			zap.L().Error("ingest: record failure", zap.String("source", r.Name()), zap.Error(err))
		}
	}

	in.logStats(r.Name(), st)
	return st, nil
}

// FailureID identifies a failed record so repeated failures of the same
// record update one entry.
func FailureID(source string, raw json.RawMessage) string {
	return model.StableID("failure", source, string(raw))
}

type failedItem struct {
	raw json.RawMessage
	err error
}

// pending is one grouped bundle on its way to the store, with the raw
// records it came from.
type pending struct {
	bundle   model.Bundle
	raws     []json.RawMessage
	existing *model.Bundle
}

func (in *Ingester) ingest(ctx context.Context, source string, mode adapter.SchemaMode, items []Item, st *Stats) []failedItem {
	now := in.now()
	conv := in.conv
	if conv.VNext.Now.IsZero() {
		conv.VNext.Now = now
	}

	var failed []failedItem
	var bundles []model.Bundle
	raws := make(map[string][]json.RawMessage)
	for _, it := range items {
		st.Records++
		if it.Err != nil {
			st.fail(it.Err)
			failed = append(failed, failedItem{raw: it.Raw, err: it.Err})
			continue
		}
		b, err := conv.Convert(mode, it.Record)
		if err != nil {
			st.fail(err)
			failed = append(failed, failedItem{raw: it.Raw, err: err})
			continue
		}
		st.Warnings += len(b.Warnings)
		k := groupKey(b)
		raws[k] = append(raws[k], it.Raw)
		bundles = append(bundles, b)
	}

	grouped := adapter.GroupBundles(bundles)
	st.UniqueAddresses += len(grouped)

	work := make([]*pending, 0, len(grouped))
	for _, b := range grouped {
		p := &pending{bundle: b, raws: raws[groupKey(b)]}
		if err := in.attachExisting(ctx, p); err != nil {
			st.fail(err)
			failed = append(failed, p.failures(err)...)
			continue
		}
		work = append(work, p)
	}

	in.resolve(ctx, mode, work, st)

	changedBy := "ingest:" + source
	for _, p := range work {
		if ctx.Err() != nil {
			break
		}
		stamp(&p.bundle, now)
		if err := p.bundle.Validate(); err != nil {
			st.fail(err)
			failed = append(failed, p.failures(err)...)
			continue
		}
		history := DetectChanges(p.existing, p.bundle, changedBy, now)
		if !in.dryRun {
			if err := in.store.UpsertBundle(ctx, p.bundle, history); err != nil {
				st.fail(err)
				failed = append(failed, p.failures(err)...)
				continue
			}
		}
		st.count(p, history)
	}
	return failed
}

func (p *pending) failures(err error) []failedItem {
	out := make([]failedItem, len(p.raws))
	for i, raw := range p.raws {
		out[i] = failedItem{raw: raw, err: err}
	}
	return out
}

func groupKey(b model.Bundle) string {
	if b.Property.AddressKey != "" {
		return "addr:" + b.Property.AddressKey
	}
	return "id:" + b.Property.ID
}

// attachExisting finds the stored property at the bundle's address and
// re-points the bundle onto it, keeping stored values the new record lacks.
func (in *Ingester) attachExisting(ctx context.Context, p *pending) error {
	id := p.bundle.Property.ID
	if key := p.bundle.Property.AddressKey; key != "" {
		// Stores report an unknown key as nil, nil.
		found, err := in.store.FindPropertyByAddressKey(ctx, key)
		if err != nil && !store.IsNotFound(err) {
			return eris.Wrapf(err, "ingest: find property %s", key)
		}
		if found != nil {
			id = found.ID
		}
	}

	existing, err := in.store.LoadBundle(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil
		}
		return eris.Wrapf(err, "ingest: load property %s", id)
	}
	Repoint(&p.bundle, id)
	MergeProperty(existing.Property, &p.bundle.Property)
	p.existing = existing
	return nil
}

func (in *Ingester) resolve(ctx context.Context, mode adapter.SchemaMode, work []*pending, st *Stats) {
	if in.resolver == nil {
		return
	}
	var props []*model.Property
	for _, p := range work {
		prop := &p.bundle.Property
		if !prop.CountyKnown() || !prop.HasProximity() {
			props = append(props, prop)
		}
	}
	if len(props) == 0 {
		return
	}
	opts := in.proximity
	opts.PrimaryOnly = mode == adapter.SchemaLegacy
	res, err := geo.ResolveBatch(ctx, in.resolver, props, in.geoLimit, func(*model.Property) geo.ProximityOptions {
		return opts
	})
	if err != nil {
		zap.L().Warn("ingest: geo resolution interrupted", zap.Error(err))
	}
	st.Geo.Resolved += res.Resolved
	st.Geo.Skipped += res.Skipped
}

func (st *Stats) count(p *pending, history []model.HistoryEntry) {
	if p.existing == nil {
		st.PropertiesCreated++
	} else {
		st.PropertiesUpdated++
	}

	events := make(map[string]bool)
	contacts := make(map[string]bool)
	links := make(map[string]bool)
	if p.existing != nil {
		for _, e := range p.existing.Events {
			events[e.ID] = true
		}
		for _, c := range p.existing.Contacts {
			contacts[c.ID] = true
		}
		for _, l := range p.existing.Links {
			links[l.Key()] = true
		}
	}
	for _, e := range p.bundle.Events {
		if !events[e.ID] {
			st.EventsCreated++
		}
	}
	for _, c := range p.bundle.Contacts {
		if !contacts[c.ID] {
			st.ContactsCreated++
		}
	}
	for _, l := range p.bundle.Links {
		if !links[l.Key()] {
			st.LinksCreated++
		}
	}

	for _, h := range history {
		switch h.ChangeType {
		case model.ChangeSaleDateChanged:
			st.SaleDateChanges++
		case model.ChangeStatusChanged:
			st.StatusChanges++
		}
	}
	st.History = append(st.History, history...)
}

func (in *Ingester) logStats(source string, st *Stats) {
	zap.L().Info("ingest: run complete",
		zap.String("source", source),
		zap.String("mode", string(in.mode)),
		zap.Bool("dry_run", in.dryRun),
		zap.Int("records", st.Records),
		zap.Int("failed", st.Failed),
		zap.Int("unique_addresses", st.UniqueAddresses),
		zap.Int("properties_created", st.PropertiesCreated),
		zap.Int("properties_updated", st.PropertiesUpdated),
		zap.Int("events_created", st.EventsCreated),
		zap.Int("contacts_created", st.ContactsCreated),
		zap.Int("sale_date_changes", st.SaleDateChanges),
	)
}

// stamp sets creation and update times the adapters leave unset.
func stamp(b *model.Bundle, now time.Time) {
	b.Property.Touch(now)
	for i := range b.Events {
		if b.Events[i].CreatedAt.IsZero() {
			b.Events[i].CreatedAt = now
		}
	}
	for i := range b.Contacts {
		if b.Contacts[i].CreatedAt.IsZero() {
			b.Contacts[i].CreatedAt = now
		}
		b.Contacts[i].UpdatedAt = now
	}
}
