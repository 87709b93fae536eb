package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-scorer/internal/adapter"
	"github.com/sells-group/property-scorer/internal/geo"
	"github.com/sells-group/property-scorer/internal/model"
	"github.com/sells-group/property-scorer/internal/resilience"
	"github.com/sells-group/property-scorer/internal/store"
)

var testNow = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const legacyCSV = `ID,Address,City,County,Date,Time,Firm,Distance Miles,Within 30min,Owner Phone 1,Owner 1 First Name,Owner 1 Last Name
7,"100 Oak St, Nashville, TN",Nashville,Davidson,2026-03-20,10:00 AM,Rubin Lublin,8.4,Y,615-555-0100,Jane,Doe
8,"100 Oak St, Nashville, TN",Nashville,Davidson,2026-04-02,11:00 AM,Rubin Lublin,8.4,Y,,,
9,"22 Elm Ave, Antioch, TN",Antioch,Davidson,2026-05-01,,Wilson,,N,,,
`

func legacyIngester(st Store, opts ...Option) *Ingester {
	opts = append([]Option{WithClock(clock)}, opts...)
	return New(st, adapter.SchemaLegacy, adapter.Converter{Legacy: adapter.LegacyAdapter{State: "TN"}}, opts...)
}

func TestRun_LegacyCSV(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)
	path := writeFile(t, "legacy.csv", legacyCSV)

	stats, err := legacyIngester(st).Run(ctx, &FileReader{Path: path, Mode: adapter.SchemaLegacy})
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Records)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, 2, stats.UniqueAddresses)
	assert.Equal(t, 2, stats.PropertiesCreated)
	assert.Equal(t, 3, stats.EventsCreated)
	assert.Equal(t, 1, stats.ContactsCreated)
	assert.Equal(t, 1, stats.LinksCreated)

	b, err := st.LoadBundle(ctx, "7")
	require.NoError(t, err)
	assert.Len(t, b.Events, 2)
	require.Len(t, b.Contacts, 1)
	assert.Equal(t, "Jane", b.Contacts[0].NameFirst)

	hist, err := st.ListHistory(ctx, "7", 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, model.ChangeCreated, hist[0].ChangeType)
	assert.Equal(t, "ingest:file", hist[0].ChangedBy)
}

func TestRun_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)
	path := writeFile(t, "legacy.csv", legacyCSV)
	in := legacyIngester(st)

	_, err := in.Run(ctx, &FileReader{Path: path, Mode: adapter.SchemaLegacy})
	require.NoError(t, err)
	again, err := in.Run(ctx, &FileReader{Path: path, Mode: adapter.SchemaLegacy})
	require.NoError(t, err)

	assert.Zero(t, again.PropertiesCreated)
	assert.Equal(t, 2, again.PropertiesUpdated)
	assert.Zero(t, again.EventsCreated)
	assert.Zero(t, again.SaleDateChanges)
	assert.Empty(t, again.History)
}

func TestRun_SaleDateChanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)
	in := legacyIngester(st)

	_, err := in.Run(ctx, &FileReader{Path: writeFile(t, "a.csv", legacyCSV), Mode: adapter.SchemaLegacy})
	require.NoError(t, err)

	moved := "ID,Address,City,County,Date\n7,\"100 Oak St, Nashville, TN\",Nashville,Davidson,2026-03-27\n"
	stats, err := in.Run(ctx, &FileReader{Path: writeFile(t, "b.csv", moved), Mode: adapter.SchemaLegacy})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SaleDateChanges)

	hist, err := st.ListHistory(ctx, "7", 10)
	require.NoError(t, err)
	var changed *model.HistoryEntry
	for i := range hist {
		if hist[i].ChangeType == model.ChangeSaleDateChanged {
			changed = &hist[i]
		}
	}
	require.NotNil(t, changed)
	assert.JSONEq(t, `{"sale_date":"2026-03-20"}`, string(changed.OldValue))
	assert.JSONEq(t, `{"sale_date":"2026-03-27","event_id":"legacy-7"}`, string(changed.NewValue))
}

func TestRun_RepointsToStoredAddress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)
	in := legacyIngester(st)

	_, err := in.Run(ctx, &FileReader{Path: writeFile(t, "a.csv", legacyCSV), Mode: adapter.SchemaLegacy})
	require.NoError(t, err)

	later := "ID,Address,City,County,Date\n42,\"22 Elm Ave, Antioch, TN\",Antioch,Davidson,2026-06-10\n"
	stats, err := in.Run(ctx, &FileReader{Path: writeFile(t, "b.csv", later), Mode: adapter.SchemaLegacy})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PropertiesUpdated)
	assert.Equal(t, 1, stats.EventsCreated)

	_, err = st.GetProperty(ctx, "42")
	assert.True(t, store.IsNotFound(err))

	b, err := st.LoadBundle(ctx, "9")
	require.NoError(t, err)
	assert.Len(t, b.Events, 2)
}

// notFoundStore reports unknown address keys as a wrapped ErrNotFound
// instead of nil, nil.
type notFoundStore struct {
	*store.SQLiteStore
}

func (s notFoundStore) FindPropertyByAddressKey(ctx context.Context, key string) (*model.Property, error) {
	p, err := s.SQLiteStore.FindPropertyByAddressKey(ctx, key)
	if err == nil && p == nil {
		return nil, eris.Wrapf(store.ErrNotFound, "store: address %s", key)
	}
	return p, err
}

func TestRun_NewAddressIntoEmptyStore(t *testing.T) {
	t.Parallel()
	one := "ID,Address,City,County,Date\n5,\"5 Pine St, Nashville, TN\",Nashville,Davidson,2026-03-20\n"

	tests := []struct {
		name  string
		store func(t *testing.T) Store
	}{
		{"unknown key is nil", func(t *testing.T) Store { return newStore(t) }},
		{"unknown key is not found", func(t *testing.T) Store { return notFoundStore{newStore(t)} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st := tt.store(t)

			stats, err := legacyIngester(st).Run(ctx, &FileReader{Path: writeFile(t, "a.csv", one), Mode: adapter.SchemaLegacy})
			require.NoError(t, err)
			assert.Zero(t, stats.Failed)
			assert.Equal(t, 1, stats.PropertiesCreated)

			b, err := st.LoadBundle(ctx, "5")
			require.NoError(t, err)
			assert.Equal(t, "5", b.Property.ID)
			assert.Len(t, b.Events, 1)
		})
	}
}

func TestRun_VNextStatusChange(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)
	in := New(st, adapter.SchemaVNext, adapter.Converter{VNext: adapter.VNextAdapter{State: "TN"}}, WithClock(clock))

	first := `[{"PropertyAddress":"500 Main St, Mt Juliet, TN 37122","SaleDate":"2026-04-10","SaleTime":"10:00 AM","County":"Wilson"}]`
	stats, err := in.Run(ctx, &FileReader{Path: writeFile(t, "a.json", first), Mode: adapter.SchemaVNext, Source: adapter.SourceWilsonAssociates})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PropertiesCreated)

	second := `{"source":"wilsonassociates","fields":{"PropertyAddress":"500 Main St, Mt Juliet, TN 37122","SaleDate":"2026-04-10","SaleTime":"10:00 AM","County":"Wilson","status":"cancelled"}}` + "\n"
	stats, err = in.Run(ctx, &FileReader{Path: writeFile(t, "b.ndjson", second), Mode: adapter.SchemaVNext})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.StatusChanges)
	require.Len(t, stats.History, 1)
	assert.Equal(t, model.ChangeStatusChanged, stats.History[0].ChangeType)
}

func TestRun_DryRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)

	stats, err := legacyIngester(st, WithDryRun(true)).Run(ctx, &FileReader{Path: writeFile(t, "a.csv", legacyCSV), Mode: adapter.SchemaLegacy})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PropertiesCreated)

	_, err = st.GetProperty(ctx, "7")
	assert.True(t, store.IsNotFound(err))
}

func TestRun_RecordsUndecodableRecords(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)

	data := `[{"id":7,"address":"100 Oak St, Nashville, TN","date":"2026-03-20"},"oops"]`
	stats, err := legacyIngester(st).Run(ctx, &FileReader{Path: writeFile(t, "a.json", data), Mode: adapter.SchemaLegacy, Source: "legacy-export"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.PropertiesCreated)

	failures, err := st.ListFailures(ctx, resilience.FailureFilter{})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "permanent", failures[0].ErrorType)
	assert.Equal(t, "legacy-export", failures[0].Source)
	assert.Equal(t, string(adapter.SchemaLegacy), failures[0].Mode)

	// Permanent failures are not replayed.
	retry, err := legacyIngester(st).Retry(ctx, resilience.FailureFilter{})
	require.NoError(t, err)
	assert.Zero(t, retry.Retried)
}

// flakyStore fails the first n bundle writes with a transient error.
type flakyStore struct {
	*store.SQLiteStore
	failures atomic.Int32
}

func (f *flakyStore) UpsertBundle(ctx context.Context, b model.Bundle, h []model.HistoryEntry) error {
	if f.failures.Add(-1) >= 0 {
		return resilience.NewTransientError(errors.New("database is locked"), 0)
	}
	return f.SQLiteStore.UpsertBundle(ctx, b, h)
}

func TestRetry_RecoversTransientFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs := &flakyStore{SQLiteStore: newStore(t)}
	fs.failures.Store(2)
	in := legacyIngester(fs)

	one := "ID,Address,City,County,Date\n7,\"100 Oak St, Nashville, TN\",Nashville,Davidson,2026-03-20\n"
	stats, err := in.Run(ctx, &FileReader{Path: writeFile(t, "a.csv", one), Mode: adapter.SchemaLegacy})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	failures, err := fs.ListFailures(ctx, resilience.FailureFilter{})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "transient", failures[0].ErrorType)

	// Second write still fails: the retry count moves.
	retry, err := in.Retry(ctx, resilience.FailureFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Retried)
	assert.Zero(t, retry.Recovered)
	failures, err = fs.ListFailures(ctx, resilience.FailureFilter{})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, 1, failures[0].RetryCount)

	retry, err = in.Retry(ctx, resilience.FailureFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Recovered)

	failures, err = fs.ListFailures(ctx, resilience.FailureFilter{})
	require.NoError(t, err)
	assert.Empty(t, failures)
	_, err = fs.GetProperty(ctx, "7")
	require.NoError(t, err)
}

func TestRun_ResolvesMissingGeography(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newStore(t)
	in := New(st, adapter.SchemaVNext, adapter.Converter{VNext: adapter.VNextAdapter{State: "TN"}},
		WithClock(clock),
		WithResolver(geo.StaticResolver{}, geo.ProximityOptions{MaxDriveMinutes: 30}, 2),
	)

	data := `{"address":"1 Broadway, Nashville, TN","date":"2026-04-01","lat":36.1612,"lon":-86.7775}` + "\n"
	stats, err := in.Run(ctx, &FileReader{Path: writeFile(t, "a.jsonl", data), Mode: adapter.SchemaVNext, Source: "manual"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Geo.Resolved)

	list, err := st.ListProperties(ctx, store.PropertyFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	p := list[0].Property
	require.NotNil(t, p.DistanceNashMi)
	assert.True(t, p.Within30MinNash)
	require.NotNil(t, p.DistanceMtJulietMi)
}

type fakeDataset struct {
	items []string
	err   error
}

func (f fakeDataset) IterateDataset(_ context.Context, _ string, _ int, fn func(json.RawMessage) error) error {
	for _, it := range f.items {
		if err := fn(json.RawMessage(it)); err != nil {
			return err
		}
	}
	return f.err
}

func TestDatasetReader(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r := &DatasetReader{
		Client:    fakeDataset{items: []string{`{"FULL_ADDRESS":"9 Pine Rd, Hermitage, TN","SALE_DATE":"04/15/2026"}`, `[1]`}},
		DatasetID: "ds1",
		Mode:      adapter.SchemaVNext,
		Source:    adapter.SourceWabiPowerBI,
	}
	var items []Item
	require.NoError(t, r.Read(ctx, func(it Item) error {
		items = append(items, it)
		return nil
	}))
	require.Len(t, items, 2)
	rec, ok := items[0].Record.(adapter.VNextRecord)
	require.True(t, ok)
	assert.Equal(t, adapter.SourceWabiPowerBI, rec.Source)
	assert.Error(t, items[1].Err)

	bad := &DatasetReader{Client: fakeDataset{err: errors.New("boom")}, DatasetID: "ds1", Mode: adapter.SchemaVNext}
	assert.Error(t, bad.Read(ctx, func(Item) error { return nil }))
	assert.Equal(t, "apify:ds1", bad.Name())

	assert.Error(t, (&DatasetReader{}).Read(ctx, func(Item) error { return nil }))
}

func TestDecodeRecord(t *testing.T) {
	t.Parallel()

	rec, err := DecodeRecord(adapter.SchemaLegacy, "", json.RawMessage(`{"id":"12","address":"1 A St","owner_phone_1":"6155550100"}`))
	require.NoError(t, err)
	legacy := rec.(adapter.LegacyRecord)
	assert.Equal(t, int64(12), legacy.ID)
	assert.Equal(t, "6155550100", legacy.OwnerPhones[0])

	rec, err = DecodeRecord(adapter.SchemaVNext, "tnledger", json.RawMessage(`{"address_detail":"1 A St"}`))
	require.NoError(t, err)
	assert.Equal(t, "tnledger", rec.(adapter.VNextRecord).Source)

	rec, err = DecodeRecord(adapter.SchemaVNext, "ignored", json.RawMessage(`{"source":"clearrecon","fields":{"PropertyAddress":"1 A St"}}`))
	require.NoError(t, err)
	assert.Equal(t, "clearrecon", rec.(adapter.VNextRecord).Source)

	_, err = DecodeRecord("bogus", "", json.RawMessage(`{}`))
	assert.Error(t, err)
}
