package adapter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sells-group/property-scorer/internal/address"
	"github.com/sells-group/property-scorer/internal/model"
)

// Legacy conversion constants.
const (
	LegacyDataConfidence    = 0.8
	LegacyContactConfidence = 0.7
	LegacySource            = "legacy"
	legacyContactNotes      = "Migrated from legacy system"
	defaultState            = "TN"
)

// LegacyAdapter converts flat legacy rows. The zero value uses state TN.
type LegacyAdapter struct {
	State string
}

// LegacyPropertyID returns the canonical property ID of a legacy row.
func LegacyPropertyID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// IsLegacyID reports whether a property ID was produced by LegacyAdapter.
func IsLegacyID(id string) bool {
	if id == "" {
		return false
	}
	_, err := strconv.ParseInt(id, 10, 64)
	return err == nil
}

// Convert maps one legacy row onto a bundle. It never fails; degraded
// fields are reported in Bundle.Warnings.
func (a LegacyAdapter) Convert(rec LegacyRecord) model.Bundle {
	state := a.State
	if state == "" {
		state = defaultState
	}
	id := LegacyPropertyID(rec.ID)

	var b model.Bundle
	addr := strings.TrimSpace(rec.Address)
	if addr == "" {
		b.Warn(fmt.Sprintf("legacy record %s has no address", id))
	}
	county := strings.TrimSpace(rec.County)
	if county == "" {
		county = model.UnknownCounty
	}

	b.Property = model.Property{
		ID:                  id,
		FullAddress:         addr,
		Street:              address.Street(addr),
		City:                strings.TrimSpace(rec.City),
		State:               state,
		County:              county,
		DistanceNashMi:      rec.DistanceMiles,
		DistanceMtJulietMi:  nil,
		Within30MinNash:     strings.EqualFold(strings.TrimSpace(rec.Within30Min), "Y"),
		Within30MinMtJuliet: false,
		PropertyType:        model.PropertyTypeSFR,
		DataConfidence:      LegacyDataConfidence,
		AddressKey:          address.Normalize(addr),
	}

	b.Events = []model.DistressEvent{a.event(id, rec, &b)}

	if c, link, ok := legacyContact(id, rec); ok {
		b.Contacts = []model.Contact{c}
		b.Links = []model.PropertyContact{link}
	}
	return b
}

func (a LegacyAdapter) event(propertyID string, rec LegacyRecord, b *model.Bundle) model.DistressEvent {
	source := strings.TrimSpace(rec.Source)
	if source == "" {
		source = LegacySource
	}
	ev := model.DistressEvent{
		ID:         "legacy-" + propertyID,
		PropertyID: propertyID,
		EventType:  model.EventForeclosure,
		Source:     source,
		Firm:       strings.TrimSpace(rec.Firm),
		Status:     model.EventStatusActive,
	}

	parsed := ParseEventDate(rec.Date)
	ev.EventDate = parsed.Date
	switch {
	case parsed.Invalid:
		b.Warn(fmt.Sprintf("unparseable event date %q", rec.Date))
	case parsed.Date == nil:
		b.Warn("event has no date")
	}

	if t, ok := ParseEventTime(rec.Time); ok {
		ev.EventTime = t
	} else {
		b.Warn(fmt.Sprintf("unparseable event time %q", rec.Time))
	}

	if raw, err := json.Marshal(rec); err == nil {
		ev.RawData = raw
	}
	return ev
}

// legacyContact builds the skip-trace contact for a row. A contact exists
// only when the first phone or first email slot is filled.
func legacyContact(propertyID string, rec LegacyRecord) (model.Contact, model.PropertyContact, bool) {
	if strings.TrimSpace(rec.OwnerPhones[0]) == "" && strings.TrimSpace(rec.OwnerEmails[0]) == "" {
		return model.Contact{}, model.PropertyContact{}, false
	}

	c := model.Contact{
		ID:          "legacy-contact-" + propertyID,
		NameFirst:   strings.TrimSpace(rec.Owner1FirstName),
		NameLast:    strings.TrimSpace(rec.Owner1LastName),
		ContactType: model.ContactSkipTrace,
		Phones:      []model.Phone{},
		Emails:      []model.Email{},
		Notes:       legacyContactNotes,
	}
	for i, p := range rec.OwnerPhones {
		if p = strings.TrimSpace(p); p != "" {
			c.Phones = append(c.Phones, model.Phone{Number: p, Label: slotLabel(i), Source: LegacySource})
		}
	}
	for i, e := range rec.OwnerEmails {
		if e = strings.TrimSpace(e); e != "" {
			c.Emails = append(c.Emails, model.Email{Email: e, Label: slotLabel(i), Source: LegacySource})
		}
	}

	link := model.PropertyContact{
		PropertyID: propertyID,
		ContactID:  c.ID,
		Role:       model.RoleSkipTrace,
		Confidence: LegacyContactConfidence,
	}
	return c, link, true
}

func slotLabel(i int) string {
	if i == 0 {
		return model.LabelPrimary
	}
	return model.LabelSecondary
}
