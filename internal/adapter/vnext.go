package adapter

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sells-group/property-scorer/internal/address"
	"github.com/sells-group/property-scorer/internal/enrich"
	"github.com/sells-group/property-scorer/internal/geo"
	"github.com/sells-group/property-scorer/internal/model"
)

// vNext confidence model.
const (
	VNextBaseConfidence  = 0.95
	VNextMinConfidence   = 0.5
	penaltyUnknownCounty = 0.15
	penaltyUnparsedDate  = 0.10
	penaltyUnknownCity   = 0.05
)

// VNextAdapter converts vNext source records.
type VNextAdapter struct {
	// State is the state code for every property; defaults to TN.
	State string
	// Counties resolves counties for sources without a county field.
	// Nil uses geo.DefaultCountyTable.
	Counties geo.CountyTable
	// Now dates records from sources that carry no event date
	// (connectedinvestors). Zero leaves those dates unset.
	Now time.Time
	// Merger folds owner contact data carried on the record.
	Merger enrich.Merger
}

// Convert maps one vNext record onto a bundle. It never fails; degraded
// fields are reported in Bundle.Warnings and lower DataConfidence.
func (a VNextAdapter) Convert(rec VNextRecord) model.Bundle {
	state := a.State
	if state == "" {
		state = defaultState
	}
	counties := a.Counties
	if counties == nil {
		counties = geo.DefaultCountyTable()
	}
	source := strings.ToLower(strings.TrimSpace(rec.Source))
	f := ExtractFields(source, rec.Fields)
	raw, _ := json.Marshal(rec.Fields)

	var b model.Bundle
	confidence := VNextBaseConfidence

	addr := strings.TrimSpace(f.Address)
	key := address.Normalize(addr)
	var propertyID string
	if key == "" {
		b.Warn(fmt.Sprintf("%s record has no address", sourceLabel(source)))
		propertyID = model.StableID("property", source, string(raw))
	} else {
		propertyID = model.StableID("property", key)
	}

	city := strings.TrimSpace(f.City)
	if city == "" {
		city = address.Unknown
	}
	if city == address.Unknown {
		confidence -= penaltyUnknownCity
	}

	county := address.StripCountySuffix(f.County)
	if county == "" || strings.EqualFold(county, model.UnknownCounty) {
		county = model.UnknownCounty
		if c, ok := counties.ForAddress(addr); ok {
			county = c
		} else if c, ok := counties.Lookup(city); ok {
			county = c
		}
	}
	if county == model.UnknownCounty {
		confidence -= penaltyUnknownCounty
		b.Warn("county could not be determined")
	}

	propertyType := model.PropertyTypeSFR
	if f.PropertyType != "" {
		propertyType = model.ParsePropertyType(f.PropertyType)
	}

	b.Property = model.Property{
		ID:           propertyID,
		FullAddress:  addr,
		Street:       address.Street(addr),
		City:         city,
		State:        state,
		Zip:          f.Zip,
		County:       county,
		ParcelAPN:    f.ParcelAPN,
		Lat:          f.Lat,
		Lon:          f.Lon,
		PropertyType: propertyType,
		Beds:         f.Beds,
		Baths:        f.Baths,
		Sqft:         f.Sqft,
		AddressKey:   key,
	}

	ev := model.DistressEvent{
		PropertyID: propertyID,
		EventType:  model.ParseEventType(f.EventType),
		Source:     source,
		Firm:       f.Firm,
		Status:     model.ParseEventStatus(f.Status),
		RawData:    raw,
	}
	parsed := ParseEventDate(f.Date)
	ev.EventDate = parsed.Date
	if parsed.Postponed && ev.Status == model.EventStatusActive {
		ev.Status = model.EventStatusPostponed
	}
	if ev.EventDate == nil && !parsed.Invalid && source == SourceConnectedInvestors && !a.Now.IsZero() {
		d := time.Date(a.Now.Year(), a.Now.Month(), a.Now.Day(), 0, 0, 0, 0, time.UTC)
		ev.EventDate = &d
	}
	if ev.EventDate == nil {
		confidence -= penaltyUnparsedDate
		if parsed.Invalid {
			b.Warn(fmt.Sprintf("unparseable event date %q", f.Date))
		} else {
			b.Warn("event has no date")
		}
	}

	if t, ok := ParseEventTime(f.Time); ok && t != "" {
		ev.EventTime = t
	} else {
		if !ok {
			b.Warn(fmt.Sprintf("unparseable event time %q", f.Time))
		}
		ev.EventTime = DefaultEventTime
	}
	ev.ID = model.StableID("event", source, propertyID, eventDateKey(ev.EventDate, f.Date))
	b.Events = []model.DistressEvent{ev}

	res := enrich.Result{Emails: f.Emails, Phones: f.Phones, OwnerNamesRaw: f.OwnerNames}
	if !res.Empty() {
		merged := a.Merger.Merge(propertyID, source, res, nil, a.Now)
		b.Contacts = []model.Contact{merged.Contact}
		b.Links = []model.PropertyContact{merged.Link}
		b.Warnings = append(b.Warnings, merged.Warnings...)
	}

	b.Property.DataConfidence = math.Max(VNextMinConfidence, math.Round(confidence*100)/100)
	return b
}

func eventDateKey(d *time.Time, raw string) string {
	if d != nil {
		return d.Format(time.DateOnly)
	}
	return strings.TrimSpace(raw)
}

func sourceLabel(source string) string {
	if source == "" {
		return "vnext"
	}
	return source
}
