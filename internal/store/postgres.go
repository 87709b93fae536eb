package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-scorer/internal/db"
	"github.com/sells-group/property-scorer/internal/geo"
	"github.com/sells-group/property-scorer/internal/model"
	"github.com/sells-group/property-scorer/internal/resilience"
)

// PostgresStore implements Store on a pgx pool with PostGIS.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	d       dialect
}

// NewPostgres connects a pool and wraps it in a PostgresStore.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, d: postgresDialect}, nil
}

// NewPostgresFromPool wraps an existing pool. The caller keeps ownership.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, d: postgresDialect}
}

// Pool returns the underlying pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS properties (
	id                    TEXT PRIMARY KEY,
	full_address          TEXT NOT NULL,
	street                TEXT NOT NULL DEFAULT '',
	city                  TEXT NOT NULL DEFAULT '',
	state                 TEXT NOT NULL DEFAULT '',
	zip                   TEXT NOT NULL DEFAULT '',
	county                TEXT NOT NULL DEFAULT 'Unknown',
	parcel_apn            TEXT NOT NULL DEFAULT '',
	lat                   DOUBLE PRECISION,
	lon                   DOUBLE PRECISION,
	location              geometry(Point, 4326),
	distance_nash_mi      DOUBLE PRECISION,
	distance_mtjuliet_mi  DOUBLE PRECISION,
	within_30min_nash     BOOLEAN NOT NULL DEFAULT false,
	within_30min_mtjuliet BOOLEAN NOT NULL DEFAULT false,
	property_type         TEXT NOT NULL DEFAULT 'Other',
	beds                  INTEGER,
	baths                 DOUBLE PRECISION,
	sqft                  INTEGER,
	lot_sqft              INTEGER,
	data_confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
	address_key           TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_properties_address_key ON properties(address_key) WHERE address_key <> '';
CREATE INDEX IF NOT EXISTS idx_properties_county ON properties(LOWER(county));
CREATE INDEX IF NOT EXISTS idx_properties_location ON properties USING GIST(location);

CREATE TABLE IF NOT EXISTS distress_events (
	id          TEXT PRIMARY KEY,
	property_id TEXT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
	event_type  TEXT NOT NULL,
	source      TEXT NOT NULL,
	event_date  DATE,
	event_time  TEXT NOT NULL DEFAULT '',
	firm        TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'active',
	raw_data    JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_distress_events_property ON distress_events(property_id);
CREATE INDEX IF NOT EXISTS idx_distress_events_date ON distress_events(event_date) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS contacts (
	id              TEXT PRIMARY KEY,
	name_first      TEXT NOT NULL DEFAULT '',
	name_last       TEXT NOT NULL DEFAULT '',
	entity_name     TEXT NOT NULL DEFAULT '',
	contact_type    TEXT NOT NULL,
	phones          JSONB NOT NULL DEFAULT '[]',
	emails          JSONB NOT NULL DEFAULT '[]',
	mailing_address TEXT NOT NULL DEFAULT '',
	notes           TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS property_contacts (
	property_id       TEXT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
	contact_id        TEXT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
	role              TEXT NOT NULL,
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_validated_at TIMESTAMPTZ,
	PRIMARY KEY (property_id, contact_id, role)
);

CREATE TABLE IF NOT EXISTS property_history (
	id          TEXT PRIMARY KEY,
	property_id TEXT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
	change_type TEXT NOT NULL,
	old_value   JSONB,
	new_value   JSONB,
	changed_by  TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_property_history_property ON property_history(property_id, created_at DESC);

CREATE TABLE IF NOT EXISTS property_scores (
	property_id     TEXT PRIMARY KEY REFERENCES properties(id) ON DELETE CASCADE,
	score           INTEGER NOT NULL,
	priority        TEXT NOT NULL,
	factors         JSONB NOT NULL,
	urgency_days    INTEGER,
	rules_hash      TEXT NOT NULL,
	scoring_version TEXT NOT NULL,
	scored_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_property_scores_priority ON property_scores(priority, score DESC);

CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash TEXT PRIMARY KEY,
	county       TEXT NOT NULL DEFAULT '',
	lat          DOUBLE PRECISION,
	lon          DOUBLE PRECISION,
	source       TEXT NOT NULL DEFAULT '',
	matched      BOOLEAN NOT NULL DEFAULT false,
	cached_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ingest_failures (
	id             TEXT PRIMARY KEY,
	source         TEXT NOT NULL,
	mode           TEXT NOT NULL DEFAULT '',
	record         JSONB,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ingest_failures_type ON ingest_failures(error_type, last_failed_at DESC);
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Close releases the pool when the store owns it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// UpsertBundle writes the property, its events, contacts and links, then
// appends history, in one transaction.
func (s *PostgresStore) UpsertBundle(ctx context.Context, b model.Bundle, history []model.HistoryEntry) error {
	stmts, err := s.d.bundleStatements(b)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin bundle tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, st := range stmts {
		if _, err := tx.Exec(ctx, st.sql, st.args...); err != nil {
			return eris.Wrapf(err, "postgres: upsert bundle %s", b.Property.ID)
		}
	}
	if len(history) > 0 {
		if _, err := db.CopyFrom(ctx, tx, "property_history", historyCols, historyRows(history)); err != nil {
			return eris.Wrapf(err, "postgres: copy history for %s", b.Property.ID)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit bundle")
	}
	return nil
}

func historyRows(entries []model.HistoryEntry) [][]any {
	rows := make([][]any, len(entries))
	for i, h := range entries {
		rows[i] = []any{
			h.ID, h.PropertyID, string(h.ChangeType),
			postgresDialect.json(h.OldValue), postgresDialect.json(h.NewValue),
			h.ChangedBy, h.CreatedAt,
		}
	}
	return rows
}

// GetProperty returns a property or a wrapped ErrNotFound.
func (s *PostgresStore) GetProperty(ctx context.Context, id string) (*model.Property, error) {
	st, err := render(s.d.selectProperty().Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	p, err := scanProperty(s.pool.QueryRow(ctx, st.sql, st.args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("property", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get property %s", id)
	}
	return &p, nil
}

// FindPropertyByAddressKey returns nil, nil when no property has the key.
func (s *PostgresStore) FindPropertyByAddressKey(ctx context.Context, key string) (*model.Property, error) {
	if key == "" {
		return nil, nil
	}
	st, err := render(s.d.selectProperty().Where("address_key = ?", key))
	if err != nil {
		return nil, err
	}
	p, err := scanProperty(s.pool.QueryRow(ctx, st.sql, st.args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find property by address key")
	}
	return &p, nil
}

// LoadBundle assembles a property with its events, linked contacts and links.
func (s *PostgresStore) LoadBundle(ctx context.Context, propertyID string) (*model.Bundle, error) {
	p, err := s.GetProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	b := &model.Bundle{Property: *p}

	if b.Events, err = pgQuery(ctx, s.pool, s.d.listEvents, propertyID, scanEvent, "events"); err != nil {
		return nil, err
	}
	if b.Contacts, err = pgQuery(ctx, s.pool, s.d.linkedContacts, propertyID, scanContact, "contacts"); err != nil {
		return nil, err
	}
	if b.Links, err = pgQuery(ctx, s.pool, s.d.listLinks, propertyID, scanLink, "links"); err != nil {
		return nil, err
	}
	return b, nil
}

func pgQuery[A, T any](ctx context.Context, pool db.Pool, build func(A) (statement, error), arg A, scan func(scannable) (T, error), what string) ([]T, error) {
	st, err := build(arg)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, st.sql, st.args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query %s", what)
	}
	defer rows.Close()
	return collect(rows, scan, what)
}

// ListProperties returns properties with their latest score, best first.
func (s *PostgresStore) ListProperties(ctx context.Context, f PropertyFilter) ([]PropertySummary, error) {
	return pgQuery(ctx, s.pool, s.d.listProperties, f, scanSummary, "properties")
}

// GetContact returns a contact or a wrapped ErrNotFound.
func (s *PostgresStore) GetContact(ctx context.Context, id string) (*model.Contact, error) {
	st, err := render(sq.Select(contactCols...).From("contacts").Where("id = ?", id).PlaceholderFormat(s.d.ph))
	if err != nil {
		return nil, err
	}
	c, err := scanContact(s.pool.QueryRow(ctx, st.sql, st.args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("contact", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get contact %s", id)
	}
	return &c, nil
}

// SaveEnrichment upserts an enriched contact and its link and records the
// change, in one transaction.
func (s *PostgresStore) SaveEnrichment(ctx context.Context, c model.Contact, link model.PropertyContact, h model.HistoryEntry) error {
	var stmts []statement
	for _, build := range []func() (statement, error){
		func() (statement, error) { return s.d.upsertContact(c) },
		func() (statement, error) { return s.d.upsertLink(link) },
		func() (statement, error) { return s.d.insertHistory(h) },
	} {
		st, err := build()
		if err != nil {
			return err
		}
		stmts = append(stmts, st)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin enrichment tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, st := range stmts {
		if _, err := tx.Exec(ctx, st.sql, st.args...); err != nil {
			return eris.Wrapf(err, "postgres: save enrichment for %s", link.PropertyID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit enrichment")
}

// AppendHistory bulk-loads history entries with COPY.
func (s *PostgresStore) AppendHistory(ctx context.Context, entries ...model.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := db.CopyFrom(ctx, s.pool, "property_history", historyCols, historyRows(entries))
	return eris.Wrap(err, "postgres: append history")
}

// ListHistory returns a property's history, newest first.
func (s *PostgresStore) ListHistory(ctx context.Context, propertyID string, limit int) ([]model.HistoryEntry, error) {
	return pgQuery(ctx, s.pool, func(id string) (statement, error) { return s.d.listHistory(id, limit) }, propertyID, scanHistory, "history")
}

// SaveScores replaces the latest score of each property with one bulk upsert.
func (s *PostgresStore) SaveScores(ctx context.Context, records []model.ScoreRecord) error {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		factors, err := json.Marshal(r.Factors)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal factors of %s", r.PropertyID)
		}
		rows = append(rows, []any{
			r.PropertyID, r.Score, string(r.Priority), factors, r.UrgencyDays,
			r.RulesHash, r.ScoringVersion, r.ScoredAt,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "property_scores",
		Columns:      scoreCols,
		ConflictKeys: []string{"property_id"},
	}, rows)
	if err != nil {
		return eris.Wrap(err, "postgres: save scores")
	}
	zap.L().Debug("postgres: scores saved", zap.Int("records", len(records)), zap.Int64("rows", n))
	return nil
}

// LatestScore returns nil, nil for a property never scored.
func (s *PostgresStore) LatestScore(ctx context.Context, propertyID string) (*model.ScoreRecord, error) {
	st, err := render(sq.Select(scoreCols...).From("property_scores").Where("property_id = ?", propertyID).PlaceholderFormat(s.d.ph))
	if err != nil {
		return nil, err
	}
	r, err := scanScore(s.pool.QueryRow(ctx, st.sql, st.args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest score %s", propertyID)
	}
	return &r, nil
}

// GetGeocode implements geo.Cache. A miss returns nil, nil.
func (s *PostgresStore) GetGeocode(ctx context.Context, hash string) (*geo.CacheEntry, error) {
	st, err := render(sq.Select(geocodeCols...).From("geocode_cache").Where("address_hash = ?", hash).PlaceholderFormat(s.d.ph))
	if err != nil {
		return nil, err
	}
	e, err := scanGeocode(s.pool.QueryRow(ctx, st.sql, st.args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get geocode")
	}
	return &e, nil
}

// PutGeocode implements geo.Cache.
func (s *PostgresStore) PutGeocode(ctx context.Context, e geo.CacheEntry) error {
	return s.exec(ctx, "put geocode", func() (statement, error) { return s.d.upsertGeocode(e) })
}

// RecordFailure inserts a failure or updates the retry state of an existing one.
func (s *PostgresStore) RecordFailure(ctx context.Context, f resilience.Failure) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	if f.LastFailed.IsZero() {
		f.LastFailed = f.CreatedAt
	}
	return s.exec(ctx, "record failure", func() (statement, error) { return s.d.upsertFailure(f) })
}

// ListFailures returns failures, most recent first.
func (s *PostgresStore) ListFailures(ctx context.Context, f resilience.FailureFilter) ([]resilience.Failure, error) {
	return pgQuery(ctx, s.pool, s.d.listFailures, f, scanFailure, "failures")
}

// RemoveFailure deletes a failure after a successful retry.
func (s *PostgresStore) RemoveFailure(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ingest_failures WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: remove failure %s", id)
	}
	if tag.RowsAffected() == 0 {
		return notFound("failure", id)
	}
	return nil
}

// Stats returns table counts and the score breakdown by priority.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByPriority: map[string]int{}}
	if err := s.pool.QueryRow(ctx, statsQuery).Scan(&st.Properties, &st.ActiveEvents, &st.Contacts, &st.Scored, &st.Failures); err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	rows, err := s.pool.Query(ctx, priorityCountsQuery)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: priority counts")
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan priority count")
		}
		st.ByPriority[p] = n
	}
	return st, eris.Wrap(rows.Err(), "postgres: iterate priority counts")
}

func (s *PostgresStore) exec(ctx context.Context, what string, build func() (statement, error)) error {
	st, err := build()
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, st.sql, st.args...); err != nil {
		return eris.Wrapf(err, "postgres: %s", what)
	}
	return nil
}
