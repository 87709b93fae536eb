package store

import (
	"encoding/json"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"

	"github.com/sells-group/property-scorer/internal/geo"
	"github.com/sells-group/property-scorer/internal/model"
	"github.com/sells-group/property-scorer/internal/resilience"
)

// dialect captures what differs between the Postgres and SQLite schemas.
// Statements are otherwise shared: both accept ON CONFLICT ... excluded.
type dialect struct {
	ph sq.PlaceholderFormat
	// point renders the location argument from EWKB.
	point func(ewkb []byte) any
	// json renders a JSON document argument.
	json func(data []byte) any
	// date renders a calendar date argument.
	date func(t *time.Time) any
}

var postgresDialect = dialect{
	ph: sq.Dollar,
	point: func(ewkb []byte) any {
		return sq.Expr("ST_GeomFromEWKB(?)", ewkb)
	},
	json: func(data []byte) any {
		if len(data) == 0 {
			return nil
		}
		return data
	},
	date: func(t *time.Time) any {
		if t == nil {
			return nil
		}
		return *t
	},
}

var sqliteDialect = dialect{
	ph:    sq.Question,
	point: func(ewkb []byte) any { return ewkb },
	json: func(data []byte) any {
		if len(data) == 0 {
			return nil
		}
		return string(data)
	},
	date: func(t *time.Time) any {
		if t == nil {
			return nil
		}
		return t.Format(time.DateOnly)
	},
}

// statement is one rendered SQL statement.
type statement struct {
	sql  string
	args []any
}

var (
	propertyCols = []string{
		"id", "full_address", "street", "city", "state", "zip", "county", "parcel_apn",
		"lat", "lon", "distance_nash_mi", "distance_mtjuliet_mi",
		"within_30min_nash", "within_30min_mtjuliet",
		"property_type", "beds", "baths", "sqft", "lot_sqft",
		"data_confidence", "address_key", "created_at", "updated_at",
	}
	eventCols = []string{
		"id", "property_id", "event_type", "source", "event_date", "event_time",
		"firm", "status", "raw_data", "created_at",
	}
	contactCols = []string{
		"id", "name_first", "name_last", "entity_name", "contact_type",
		"phones", "emails", "mailing_address", "notes", "created_at", "updated_at",
	}
	linkCols    = []string{"property_id", "contact_id", "role", "confidence", "last_validated_at"}
	historyCols = []string{"id", "property_id", "change_type", "old_value", "new_value", "changed_by", "created_at"}
	scoreCols   = []string{
		"property_id", "score", "priority", "factors", "urgency_days",
		"rules_hash", "scoring_version", "scored_at",
	}
	geocodeCols = []string{"address_hash", "county", "lat", "lon", "source", "matched", "cached_at"}
	failureCols = []string{
		"id", "source", "mode", "record", "error", "error_type",
		"retry_count", "max_retries", "created_at", "last_failed_at",
	}
)

// conflictSet renders "ON CONFLICT (keys) DO UPDATE SET c = excluded.c" for
// every column not listed in keys or keep.
func conflictSet(cols, keys []string, keep ...string) string {
	skip := make(map[string]bool, len(keys)+len(keep))
	for _, k := range keys {
		skip[k] = true
	}
	for _, k := range keep {
		skip[k] = true
	}
	var sets []string
	for _, c := range cols {
		if !skip[c] {
			sets = append(sets, c+" = excluded."+c)
		}
	}
	return "ON CONFLICT (" + strings.Join(keys, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

func render(b sq.Sqlizer) (statement, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return statement{}, eris.Wrap(err, "store: build sql")
	}
	return statement{sql: query, args: args}, nil
}

func (d dialect) upsertProperty(p model.Property) (statement, error) {
	cols := append(append([]string{}, propertyCols...), "location")
	return render(sq.Insert("properties").
		Columns(cols...).
		Values(
			p.ID, p.FullAddress, p.Street, p.City, p.State, p.Zip, p.County, p.ParcelAPN,
			p.Lat, p.Lon, p.DistanceNashMi, p.DistanceMtJulietMi,
			p.Within30MinNash, p.Within30MinMtJuliet,
			string(p.PropertyType), p.Beds, p.Baths, p.Sqft, p.LotSqft,
			p.DataConfidence, p.AddressKey, p.CreatedAt, p.UpdatedAt,
			d.point(geo.PropertyPoint(p.Lat, p.Lon)),
		).
		Suffix(conflictSet(cols, []string{"id"}, "created_at")).
		PlaceholderFormat(d.ph))
}

func (d dialect) upsertEvent(e model.DistressEvent) (statement, error) {
	return render(sq.Insert("distress_events").
		Columns(eventCols...).
		Values(
			e.ID, e.PropertyID, string(e.EventType), e.Source, d.date(e.EventDate), e.EventTime,
			e.Firm, string(e.Status), d.json(e.RawData), e.CreatedAt,
		).
		Suffix(conflictSet(eventCols, []string{"id"}, "created_at")).
		PlaceholderFormat(d.ph))
}

func (d dialect) upsertContact(c model.Contact) (statement, error) {
	phones, err := json.Marshal(nonNil(c.Phones))
	if err != nil {
		return statement{}, eris.Wrap(err, "store: marshal phones")
	}
	emails, err := json.Marshal(nonNil(c.Emails))
	if err != nil {
		return statement{}, eris.Wrap(err, "store: marshal emails")
	}
	return render(sq.Insert("contacts").
		Columns(contactCols...).
		Values(
			c.ID, c.NameFirst, c.NameLast, c.EntityName, string(c.ContactType),
			d.json(phones), d.json(emails), c.MailingAddress, c.Notes, c.CreatedAt, c.UpdatedAt,
		).
		Suffix(conflictSet(contactCols, []string{"id"}, "created_at")).
		PlaceholderFormat(d.ph))
}

// upsertLink keeps an earlier validation time when the new link has none.
func (d dialect) upsertLink(l model.PropertyContact) (statement, error) {
	return render(sq.Insert("property_contacts").
		Columns(linkCols...).
		Values(l.PropertyID, l.ContactID, string(l.Role), l.Confidence, l.LastValidatedAt).
		Suffix("ON CONFLICT (property_id, contact_id, role) DO UPDATE SET " +
			"confidence = excluded.confidence, " +
			"last_validated_at = COALESCE(excluded.last_validated_at, property_contacts.last_validated_at)").
		PlaceholderFormat(d.ph))
}

func (d dialect) insertHistory(h model.HistoryEntry) (statement, error) {
	return render(sq.Insert("property_history").
		Columns(historyCols...).
		Values(h.ID, h.PropertyID, string(h.ChangeType), d.json(h.OldValue), d.json(h.NewValue), h.ChangedBy, h.CreatedAt).
		Suffix("ON CONFLICT (id) DO NOTHING").
		PlaceholderFormat(d.ph))
}

func (d dialect) upsertScore(r model.ScoreRecord) (statement, error) {
	factors, err := json.Marshal(r.Factors)
	if err != nil {
		return statement{}, eris.Wrap(err, "store: marshal factors")
	}
	return render(sq.Insert("property_scores").
		Columns(scoreCols...).
		Values(r.PropertyID, r.Score, string(r.Priority), d.json(factors), r.UrgencyDays,
			r.RulesHash, r.ScoringVersion, r.ScoredAt).
		Suffix(conflictSet(scoreCols, []string{"property_id"})).
		PlaceholderFormat(d.ph))
}

func (d dialect) upsertGeocode(e geo.CacheEntry) (statement, error) {
	return render(sq.Insert("geocode_cache").
		Columns(geocodeCols...).
		Values(e.AddressHash, e.County, e.Lat, e.Lon, e.Source, e.Matched, e.CachedAt).
		Suffix(conflictSet(geocodeCols, []string{"address_hash"})).
		PlaceholderFormat(d.ph))
}

func (d dialect) upsertFailure(f resilience.Failure) (statement, error) {
	return render(sq.Insert("ingest_failures").
		Columns(failureCols...).
		Values(f.ID, f.Source, f.Mode, d.json(f.Record), f.Error, f.ErrorType,
			f.RetryCount, f.MaxRetries, f.CreatedAt, f.LastFailed).
		Suffix(conflictSet(failureCols, []string{"id"}, "created_at", "record", "source", "mode")).
		PlaceholderFormat(d.ph))
}

// bundleStatements renders every write of UpsertBundle except history, which
// Postgres loads with COPY.
func (d dialect) bundleStatements(b model.Bundle) ([]statement, error) {
	var stmts []statement
	add := func(s statement, err error) error {
		if err != nil {
			return err
		}
		stmts = append(stmts, s)
		return nil
	}

	if err := add(d.upsertProperty(b.Property)); err != nil {
		return nil, err
	}
	for _, e := range b.Events {
		if err := add(d.upsertEvent(e)); err != nil {
			return nil, err
		}
	}
	for _, c := range b.Contacts {
		if err := add(d.upsertContact(c)); err != nil {
			return nil, err
		}
	}
	for _, l := range b.Links {
		if err := add(d.upsertLink(l)); err != nil {
			return nil, err
		}
	}
	return stmts, nil
}

func qualified(prefix string, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + "." + c
	}
	return out
}

func (d dialect) selectProperty() sq.SelectBuilder {
	return sq.Select(propertyCols...).From("properties").PlaceholderFormat(d.ph)
}

func (d dialect) listProperties(f PropertyFilter) (statement, error) {
	cols := append(qualified("p", propertyCols), "s.score", "s.priority", "s.urgency_days", "s.scored_at")
	q := sq.Select(cols...).
		From("properties p").
		LeftJoin("property_scores s ON s.property_id = p.id").
		OrderBy("COALESCE(s.score, -1) DESC", "p.id").
		PlaceholderFormat(d.ph)

	if f.County != "" {
		q = q.Where(sq.Expr("LOWER(p.county) = LOWER(?)", f.County))
	}
	if f.Priority != "" {
		q = q.Where(sq.Eq{"s.priority": string(f.Priority)})
	}
	if f.MinScore != nil {
		q = q.Where(sq.GtOrEq{"s.score": *f.MinScore})
	}
	if f.StaleFor != "" {
		q = q.Where(sq.Or{sq.Eq{"s.rules_hash": nil}, sq.NotEq{"s.rules_hash": f.StaleFor}})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return render(q)
}

func (d dialect) listEvents(propertyID string) (statement, error) {
	return render(sq.Select(eventCols...).
		From("distress_events").
		Where(sq.Eq{"property_id": propertyID}).
		OrderBy("event_date", "id").
		PlaceholderFormat(d.ph))
}

func (d dialect) listLinks(propertyID string) (statement, error) {
	return render(sq.Select(linkCols...).
		From("property_contacts").
		Where(sq.Eq{"property_id": propertyID}).
		OrderBy("contact_id", "role").
		PlaceholderFormat(d.ph))
}

func (d dialect) linkedContacts(propertyID string) (statement, error) {
	return render(sq.Select(qualified("c", contactCols)...).
		Distinct().
		From("contacts c").
		Join("property_contacts l ON l.contact_id = c.id").
		Where(sq.Eq{"l.property_id": propertyID}).
		OrderBy("c.id").
		PlaceholderFormat(d.ph))
}

func (d dialect) listHistory(propertyID string, limit int) (statement, error) {
	q := sq.Select(historyCols...).
		From("property_history").
		Where(sq.Eq{"property_id": propertyID}).
		OrderBy("created_at DESC", "id").
		PlaceholderFormat(d.ph)
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return render(q)
}

func (d dialect) listFailures(f resilience.FailureFilter) (statement, error) {
	q := sq.Select(failureCols...).
		From("ingest_failures").
		OrderBy("last_failed_at DESC", "id").
		PlaceholderFormat(d.ph)
	if f.ErrorType != "" {
		q = q.Where(sq.Eq{"error_type": f.ErrorType})
	}
	if f.Source != "" {
		q = q.Where(sq.Eq{"source": f.Source})
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	return render(q.Limit(uint64(limit)))
}

const statsQuery = `SELECT
	(SELECT COUNT(*) FROM properties),
	(SELECT COUNT(*) FROM distress_events WHERE status = 'active'),
	(SELECT COUNT(*) FROM contacts),
	(SELECT COUNT(*) FROM property_scores),
	(SELECT COUNT(*) FROM ingest_failures)`

const priorityCountsQuery = `SELECT priority, COUNT(*) FROM property_scores GROUP BY priority`

// scannable is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanProperty(row scannable, extra ...any) (model.Property, error) {
	var p model.Property
	var ptype string
	dest := []any{
		&p.ID, &p.FullAddress, &p.Street, &p.City, &p.State, &p.Zip, &p.County, &p.ParcelAPN,
		&p.Lat, &p.Lon, &p.DistanceNashMi, &p.DistanceMtJulietMi,
		&p.Within30MinNash, &p.Within30MinMtJuliet,
		&ptype, &p.Beds, &p.Baths, &p.Sqft, &p.LotSqft,
		&p.DataConfidence, &p.AddressKey, &p.CreatedAt, &p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return p, err
	}
	p.PropertyType = model.PropertyType(ptype)
	return p, nil
}

func scanSummary(row scannable) (PropertySummary, error) {
	var s PropertySummary
	var priority *string
	p, err := scanProperty(row, &s.Score, &priority, &s.UrgencyDays, &s.ScoredAt)
	if err != nil {
		return s, err
	}
	s.Property = p
	if priority != nil {
		s.Priority = model.Priority(*priority)
	}
	return s, nil
}

func scanEvent(row scannable) (model.DistressEvent, error) {
	var e model.DistressEvent
	var etype, status string
	var date any
	var raw []byte
	if err := row.Scan(&e.ID, &e.PropertyID, &etype, &e.Source, &date, &e.EventTime,
		&e.Firm, &status, &raw, &e.CreatedAt); err != nil {
		return e, err
	}
	e.EventType = model.EventType(etype)
	e.Status = model.EventStatus(status)
	e.EventDate = toDate(date)
	if len(raw) > 0 {
		e.RawData = raw
	}
	return e, nil
}

// toDate accepts what the drivers return for a date column: time.Time from
// pgx, a string or time.Time from SQLite.
func toDate(v any) *time.Time {
	var s string
	switch t := v.(type) {
	case time.Time:
		d := model.Date(t.Year(), t.Month(), t.Day())
		return &d
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return nil
	}
	if len(s) < len(time.DateOnly) {
		return nil
	}
	d, err := time.Parse(time.DateOnly, s[:len(time.DateOnly)])
	if err != nil {
		return nil
	}
	return &d
}

func scanContact(row scannable) (model.Contact, error) {
	var c model.Contact
	var ctype string
	var phones, emails []byte
	if err := row.Scan(&c.ID, &c.NameFirst, &c.NameLast, &c.EntityName, &ctype,
		&phones, &emails, &c.MailingAddress, &c.Notes, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return c, err
	}
	c.ContactType = model.ContactType(ctype)
	if len(phones) > 0 {
		if err := json.Unmarshal(phones, &c.Phones); err != nil {
			return c, eris.Wrapf(err, "store: unmarshal phones of contact %s", c.ID)
		}
	}
	if len(emails) > 0 {
		if err := json.Unmarshal(emails, &c.Emails); err != nil {
			return c, eris.Wrapf(err, "store: unmarshal emails of contact %s", c.ID)
		}
	}
	return c, nil
}

func scanLink(row scannable) (model.PropertyContact, error) {
	var l model.PropertyContact
	var role string
	if err := row.Scan(&l.PropertyID, &l.ContactID, &role, &l.Confidence, &l.LastValidatedAt); err != nil {
		return l, err
	}
	l.Role = model.Role(role)
	return l, nil
}

func scanHistory(row scannable) (model.HistoryEntry, error) {
	var h model.HistoryEntry
	var ctype string
	var oldVal, newVal []byte
	if err := row.Scan(&h.ID, &h.PropertyID, &ctype, &oldVal, &newVal, &h.ChangedBy, &h.CreatedAt); err != nil {
		return h, err
	}
	h.ChangeType = model.ChangeType(ctype)
	if len(oldVal) > 0 {
		h.OldValue = oldVal
	}
	if len(newVal) > 0 {
		h.NewValue = newVal
	}
	return h, nil
}

func scanScore(row scannable) (model.ScoreRecord, error) {
	var r model.ScoreRecord
	var priority string
	var factors []byte
	if err := row.Scan(&r.PropertyID, &r.Score, &priority, &factors, &r.UrgencyDays,
		&r.RulesHash, &r.ScoringVersion, &r.ScoredAt); err != nil {
		return r, err
	}
	r.Priority = model.Priority(priority)
	if len(factors) > 0 {
		if err := json.Unmarshal(factors, &r.Factors); err != nil {
			return r, eris.Wrapf(err, "store: unmarshal factors of %s", r.PropertyID)
		}
	}
	return r, nil
}

func scanGeocode(row scannable) (geo.CacheEntry, error) {
	var e geo.CacheEntry
	err := row.Scan(&e.AddressHash, &e.County, &e.Lat, &e.Lon, &e.Source, &e.Matched, &e.CachedAt)
	return e, err
}

func scanFailure(row scannable) (resilience.Failure, error) {
	var f resilience.Failure
	var record []byte
	if err := row.Scan(&f.ID, &f.Source, &f.Mode, &record, &f.Error, &f.ErrorType,
		&f.RetryCount, &f.MaxRetries, &f.CreatedAt, &f.LastFailed); err != nil {
		return f, err
	}
	if len(record) > 0 {
		f.Record = record
	}
	return f, nil
}

// rowIter is the part of pgx.Rows and *sql.Rows the collectors need.
type rowIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collect[T any](rows rowIter, scan func(scannable) (T, error), what string) ([]T, error) {
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "store: scan %s", what)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "store: iterate %s", what)
	}
	return out, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func notFound(entity, id string) error {
	return eris.Wrapf(ErrNotFound, "store: %s %s", entity, id)
}
