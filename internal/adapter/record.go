// Package adapter converts raw source records into canonical property bundles.
package adapter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/property-scorer/internal/model"
)

// SchemaMode selects which record shape a conversion expects.
type SchemaMode string

// Schema modes.
const (
	SchemaLegacy SchemaMode = "legacy"
	SchemaVNext  SchemaMode = "vnext"
)

// ParseSchemaMode validates a mode name.
func ParseSchemaMode(s string) (SchemaMode, error) {
	switch m := SchemaMode(strings.ToLower(strings.TrimSpace(s))); m {
	case SchemaLegacy, SchemaVNext:
		return m, nil
	default:
		return "", eris.Errorf("adapter: unknown schema mode %q", s)
	}
}

// RawSourceRecord is a record in one of the supported source schemas.
// Only LegacyRecord and VNextRecord implement it.
type RawSourceRecord interface {
	schema() SchemaMode
}

// OwnerSlots is the number of inlined owner phone/email columns.
const OwnerSlots = 5

// LegacyRecord is one row of the flat legacy table: one row per event,
// with owner contact columns inlined.
type LegacyRecord struct {
	ID              int64              `json:"id"`
	Address         string             `json:"address"`
	City            string             `json:"city"`
	County          string             `json:"county"`
	Source          string             `json:"source"`
	Date            string             `json:"date"`
	Time            string             `json:"time"`
	Firm            string             `json:"firm"`
	DistanceMiles   *float64           `json:"distance_miles"`
	Within30Min     string             `json:"within_30min"`
	OwnerPhones     [OwnerSlots]string `json:"-"`
	OwnerEmails     [OwnerSlots]string `json:"-"`
	Owner1FirstName string             `json:"owner_1_first_name"`
	Owner1LastName  string             `json:"owner_1_last_name"`

	// Audit-only columns carried by the legacy table.
	ClosestCity   string `json:"closest_city,omitempty"`
	EstDriveTime  string `json:"est_drive_time,omitempty"`
	GeocodeMethod string `json:"geocode_method,omitempty"`
}

func (LegacyRecord) schema() SchemaMode { return SchemaLegacy }

type legacyAlias LegacyRecord

// MarshalJSON writes the flat legacy shape with owner_phone_N/owner_email_N keys.
func (r LegacyRecord) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(legacyAlias(r))
	if err != nil {
		return nil, err
	}
	var flat map[string]any
	if err := json.Unmarshal(base, &flat); err != nil {
		return nil, err
	}
	for i := 0; i < OwnerSlots; i++ {
		flat[fmt.Sprintf("owner_phone_%d", i+1)] = r.OwnerPhones[i]
		flat[fmt.Sprintf("owner_email_%d", i+1)] = r.OwnerEmails[i]
	}
	return json.Marshal(flat)
}

// UnmarshalJSON reads the flat legacy shape. Slot values may be strings or
// numbers; ids may be numbers or numeric strings.
func (r *LegacyRecord) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return eris.Wrap(err, "adapter: decode legacy record")
	}
	row := make(map[string]string, len(flat))
	for k, v := range flat {
		row[k] = stringify(v)
	}
	*r = LegacyRecordFromRow(row)
	return nil
}

// LegacyRecordFromRow builds a LegacyRecord from a column→value row as read
// from CSV or XLSX exports. Column names are matched case-insensitively.
// Unparseable numbers degrade to zero values.
func LegacyRecordFromRow(row map[string]string) LegacyRecord {
	get := func(key string) string {
		if v, ok := row[key]; ok {
			return strings.TrimSpace(v)
		}
		for k, v := range row {
			if strings.EqualFold(strings.TrimSpace(k), key) {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	rec := LegacyRecord{
		Address:         get("address"),
		City:            get("city"),
		County:          get("county"),
		Source:          get("source"),
		Date:            get("date"),
		Time:            get("time"),
		Firm:            get("firm"),
		Within30Min:     get("within_30min"),
		Owner1FirstName: get("owner_1_first_name"),
		Owner1LastName:  get("owner_1_last_name"),
		ClosestCity:     get("closest_city"),
		EstDriveTime:    get("est_drive_time"),
		GeocodeMethod:   get("geocode_method"),
	}
	if id, err := strconv.ParseFloat(get("id"), 64); err == nil {
		rec.ID = int64(id)
	}
	if d, err := strconv.ParseFloat(get("distance_miles"), 64); err == nil {
		rec.DistanceMiles = &d
	}
	for i := 0; i < OwnerSlots; i++ {
		rec.OwnerPhones[i] = get(fmt.Sprintf("owner_phone_%d", i+1))
		rec.OwnerEmails[i] = get(fmt.Sprintf("owner_email_%d", i+1))
	}
	return rec
}

// VNextRecord is a record from a vNext source: the source identifier plus
// the source's own field names.
type VNextRecord struct {
	Source string         `json:"source"`
	Fields map[string]any `json:"fields"`
}

func (VNextRecord) schema() SchemaMode { return SchemaVNext }

// Converter dispatches raw records to the adapter for a schema mode.
type Converter struct {
	Legacy LegacyAdapter
	VNext  VNextAdapter
}

// Convert converts rec under mode. It fails only when the record's schema
// disagrees with mode; conversion itself is total.
func (c Converter) Convert(mode SchemaMode, rec RawSourceRecord) (model.Bundle, error) {
	if rec == nil {
		return model.Bundle{}, eris.New("adapter: nil record")
	}
	if rec.schema() != mode {
		return model.Bundle{}, eris.Errorf("adapter: %s record under %s mode", rec.schema(), mode)
	}
	switch r := rec.(type) {
	case LegacyRecord:
		return c.Legacy.Convert(r), nil
	case *LegacyRecord:
		return c.Legacy.Convert(*r), nil
	case VNextRecord:
		return c.VNext.Convert(r), nil
	case *VNextRecord:
		return c.VNext.Convert(*r), nil
	default:
		return model.Bundle{}, eris.Errorf("adapter: unsupported record %T", rec)
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
