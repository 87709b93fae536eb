package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/property-scorer/internal/geo"
	"github.com/sells-group/property-scorer/internal/model"
	"github.com/sells-group/property-scorer/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite. Locations are kept
// as EWKB blobs; there is no spatial index.
type SQLiteStore struct {
	db *sql.DB
	d  dialect
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, d: sqliteDialect}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS properties (
	id                    TEXT PRIMARY KEY,
	full_address          TEXT NOT NULL,
	street                TEXT NOT NULL DEFAULT '',
	city                  TEXT NOT NULL DEFAULT '',
	state                 TEXT NOT NULL DEFAULT '',
	zip                   TEXT NOT NULL DEFAULT '',
	county                TEXT NOT NULL DEFAULT 'Unknown',
	parcel_apn            TEXT NOT NULL DEFAULT '',
	lat                   REAL,
	lon                   REAL,
	location              BLOB,
	distance_nash_mi      REAL,
	distance_mtjuliet_mi  REAL,
	within_30min_nash     BOOLEAN NOT NULL DEFAULT 0,
	within_30min_mtjuliet BOOLEAN NOT NULL DEFAULT 0,
	property_type         TEXT NOT NULL DEFAULT 'Other',
	beds                  INTEGER,
	baths                 REAL,
	sqft                  INTEGER,
	lot_sqft              INTEGER,
	data_confidence       REAL NOT NULL DEFAULT 0,
	address_key           TEXT NOT NULL DEFAULT '',
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_properties_address_key ON properties(address_key) WHERE address_key <> '';

CREATE TABLE IF NOT EXISTS distress_events (
	id          TEXT PRIMARY KEY,
	property_id TEXT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
	event_type  TEXT NOT NULL,
	source      TEXT NOT NULL,
	event_date  TEXT,
	event_time  TEXT NOT NULL DEFAULT '',
	firm        TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'active',
	raw_data    TEXT,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_distress_events_property ON distress_events(property_id);

CREATE TABLE IF NOT EXISTS contacts (
	id              TEXT PRIMARY KEY,
	name_first      TEXT NOT NULL DEFAULT '',
	name_last       TEXT NOT NULL DEFAULT '',
	entity_name     TEXT NOT NULL DEFAULT '',
	contact_type    TEXT NOT NULL,
	phones          TEXT NOT NULL DEFAULT '[]',
	emails          TEXT NOT NULL DEFAULT '[]',
	mailing_address TEXT NOT NULL DEFAULT '',
	notes           TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS property_contacts (
	property_id       TEXT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
	contact_id        TEXT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
	role              TEXT NOT NULL,
	confidence        REAL NOT NULL DEFAULT 0,
	last_validated_at DATETIME,
	PRIMARY KEY (property_id, contact_id, role)
);

CREATE TABLE IF NOT EXISTS property_history (
	id          TEXT PRIMARY KEY,
	property_id TEXT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
	change_type TEXT NOT NULL,
	old_value   TEXT,
	new_value   TEXT,
	changed_by  TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_property_history_property ON property_history(property_id, created_at);

CREATE TABLE IF NOT EXISTS property_scores (
	property_id     TEXT PRIMARY KEY REFERENCES properties(id) ON DELETE CASCADE,
	score           INTEGER NOT NULL,
	priority        TEXT NOT NULL,
	factors         TEXT NOT NULL,
	urgency_days    INTEGER,
	rules_hash      TEXT NOT NULL,
	scoring_version TEXT NOT NULL,
	scored_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash TEXT PRIMARY KEY,
	county       TEXT NOT NULL DEFAULT '',
	lat          REAL,
	lon          REAL,
	source       TEXT NOT NULL DEFAULT '',
	matched      BOOLEAN NOT NULL DEFAULT 0,
	cached_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ingest_failures (
	id             TEXT PRIMARY KEY,
	source         TEXT NOT NULL,
	mode           TEXT NOT NULL DEFAULT '',
	record         TEXT,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	last_failed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertBundle writes the bundle and its history in one transaction.
func (s *SQLiteStore) UpsertBundle(ctx context.Context, b model.Bundle, history []model.HistoryEntry) error {
	stmts, err := s.d.bundleStatements(b)
	if err != nil {
		return err
	}
	for _, h := range history {
		st, err := s.d.insertHistory(h)
		if err != nil {
			return err
		}
		stmts = append(stmts, st)
	}
	return eris.Wrapf(s.inTx(ctx, stmts), "sqlite: upsert bundle %s", b.Property.ID)
}

func (s *SQLiteStore) inTx(ctx context.Context, stmts []statement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.sql, st.args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetProperty returns a property or a wrapped ErrNotFound.
func (s *SQLiteStore) GetProperty(ctx context.Context, id string) (*model.Property, error) {
	st, err := render(s.d.selectProperty().Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	p, err := scanProperty(s.db.QueryRowContext(ctx, st.sql, st.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("property", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get property %s", id)
	}
	return &p, nil
}

// FindPropertyByAddressKey returns nil, nil when no property has the key.
func (s *SQLiteStore) FindPropertyByAddressKey(ctx context.Context, key string) (*model.Property, error) {
	if key == "" {
		return nil, nil
	}
	st, err := render(s.d.selectProperty().Where("address_key = ?", key))
	if err != nil {
		return nil, err
	}
	p, err := scanProperty(s.db.QueryRowContext(ctx, st.sql, st.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find property by address key")
	}
	return &p, nil
}

// LoadBundle assembles a property with its events, linked contacts and links.
func (s *SQLiteStore) LoadBundle(ctx context.Context, propertyID string) (*model.Bundle, error) {
	p, err := s.GetProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	b := &model.Bundle{Property: *p}

	if b.Events, err = sqliteQuery(ctx, s.db, s.d.listEvents, propertyID, scanEvent, "events"); err != nil {
		return nil, err
	}
	if b.Contacts, err = sqliteQuery(ctx, s.db, s.d.linkedContacts, propertyID, scanContact, "contacts"); err != nil {
		return nil, err
	}
	if b.Links, err = sqliteQuery(ctx, s.db, s.d.listLinks, propertyID, scanLink, "links"); err != nil {
		return nil, err
	}
	return b, nil
}

func sqliteQuery[A, T any](ctx context.Context, db *sql.DB, build func(A) (statement, error), arg A, scan func(scannable) (T, error), what string) ([]T, error) {
	st, err := build(arg)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, st.sql, st.args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query %s", what)
	}
	defer rows.Close()
	return collect(rows, scan, what)
}

// ListProperties returns properties with their latest score, best first.
func (s *SQLiteStore) ListProperties(ctx context.Context, f PropertyFilter) ([]PropertySummary, error) {
	return sqliteQuery(ctx, s.db, s.d.listProperties, f, scanSummary, "properties")
}

// GetContact returns a contact or a wrapped ErrNotFound.
func (s *SQLiteStore) GetContact(ctx context.Context, id string) (*model.Contact, error) {
	st, err := render(sq.Select(contactCols...).From("contacts").Where("id = ?", id).PlaceholderFormat(s.d.ph))
	if err != nil {
		return nil, err
	}
	c, err := scanContact(s.db.QueryRowContext(ctx, st.sql, st.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("contact", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get contact %s", id)
	}
	return &c, nil
}

// SaveEnrichment upserts an enriched contact and its link and records the change.
func (s *SQLiteStore) SaveEnrichment(ctx context.Context, c model.Contact, link model.PropertyContact, h model.HistoryEntry) error {
	contact, err := s.d.upsertContact(c)
	if err != nil {
		return err
	}
	l, err := s.d.upsertLink(link)
	if err != nil {
		return err
	}
	hist, err := s.d.insertHistory(h)
	if err != nil {
		return err
	}
	return eris.Wrapf(s.inTx(ctx, []statement{contact, l, hist}), "sqlite: save enrichment for %s", link.PropertyID)
}

// AppendHistory inserts history entries in one transaction.
func (s *SQLiteStore) AppendHistory(ctx context.Context, entries ...model.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	stmts := make([]statement, 0, len(entries))
	for _, h := range entries {
		st, err := s.d.insertHistory(h)
		if err != nil {
			return err
		}
		stmts = append(stmts, st)
	}
	return eris.Wrap(s.inTx(ctx, stmts), "sqlite: append history")
}

// ListHistory returns a property's history, newest first.
func (s *SQLiteStore) ListHistory(ctx context.Context, propertyID string, limit int) ([]model.HistoryEntry, error) {
	return sqliteQuery(ctx, s.db, func(id string) (statement, error) { return s.d.listHistory(id, limit) }, propertyID, scanHistory, "history")
}

// SaveScores replaces the latest score of each property.
func (s *SQLiteStore) SaveScores(ctx context.Context, records []model.ScoreRecord) error {
	if len(records) == 0 {
		return nil
	}
	stmts := make([]statement, 0, len(records))
	for _, r := range records {
		st, err := s.d.upsertScore(r)
		if err != nil {
			return err
		}
		stmts = append(stmts, st)
	}
	return eris.Wrap(s.inTx(ctx, stmts), "sqlite: save scores")
}

// LatestScore returns nil, nil for a property never scored.
func (s *SQLiteStore) LatestScore(ctx context.Context, propertyID string) (*model.ScoreRecord, error) {
	st, err := render(sq.Select(scoreCols...).From("property_scores").Where("property_id = ?", propertyID).PlaceholderFormat(s.d.ph))
	if err != nil {
		return nil, err
	}
	r, err := scanScore(s.db.QueryRowContext(ctx, st.sql, st.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest score %s", propertyID)
	}
	return &r, nil
}

// GetGeocode implements geo.Cache. A miss returns nil, nil.
func (s *SQLiteStore) GetGeocode(ctx context.Context, hash string) (*geo.CacheEntry, error) {
	st, err := render(sq.Select(geocodeCols...).From("geocode_cache").Where("address_hash = ?", hash).PlaceholderFormat(s.d.ph))
	if err != nil {
		return nil, err
	}
	e, err := scanGeocode(s.db.QueryRowContext(ctx, st.sql, st.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get geocode")
	}
	return &e, nil
}

// PutGeocode implements geo.Cache.
func (s *SQLiteStore) PutGeocode(ctx context.Context, e geo.CacheEntry) error {
	st, err := s.d.upsertGeocode(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, st.sql, st.args...)
	return eris.Wrap(err, "sqlite: put geocode")
}

// RecordFailure inserts a failure or updates the retry state of an existing one.
func (s *SQLiteStore) RecordFailure(ctx context.Context, f resilience.Failure) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	if f.LastFailed.IsZero() {
		f.LastFailed = f.CreatedAt
	}
	st, err := s.d.upsertFailure(f)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, st.sql, st.args...)
	return eris.Wrap(err, "sqlite: record failure")
}

// ListFailures returns failures, most recent first.
func (s *SQLiteStore) ListFailures(ctx context.Context, f resilience.FailureFilter) ([]resilience.Failure, error) {
	return sqliteQuery(ctx, s.db, s.d.listFailures, f, scanFailure, "failures")
}

// RemoveFailure deletes a failure after a successful retry.
func (s *SQLiteStore) RemoveFailure(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ingest_failures WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: remove failure %s", id)
	}
	return checkRowsAffected(res, "failure", id)
}

// Stats returns table counts and the score breakdown by priority.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByPriority: map[string]int{}}
	if err := s.db.QueryRowContext(ctx, statsQuery).Scan(&st.Properties, &st.ActiveEvents, &st.Contacts, &st.Scored, &st.Failures); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	rows, err := s.db.QueryContext(ctx, priorityCountsQuery)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: priority counts")
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan priority count")
		}
		st.ByPriority[p] = n
	}
	return st, eris.Wrap(rows.Err(), "sqlite: iterate priority counts")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
