package enrich

import (
	"strings"
	"time"

	"github.com/sells-group/property-scorer/internal/model"
)

// Default link confidences for skip-trace contacts.
const (
	DefaultConfidence      = 0.7
	DefaultNamedConfidence = 0.8
)

// Merger folds enrichment results into contacts. The zero value uses the
// default confidences.
type Merger struct {
	// Confidence is the link confidence when no owner name was parsed.
	Confidence float64
	// NamedConfidence is the link confidence when an owner name was parsed.
	NamedConfidence float64
}

// Merged is the outcome of one merge.
type Merged struct {
	Contact  model.Contact
	Link     model.PropertyContact
	Owners   []OwnerName
	Warnings []string
}

// ContactID is the deterministic ID of the contact a provider produces
// for a property.
func ContactID(propertyID, provider string) string {
	return model.StableID("contact", propertyID, provider)
}

// Merge folds res into existing (or a new contact when existing is nil)
// and returns the contact plus its skiptrace link to propertyID. Phones
// and emails already on the contact are kept; new ones are appended once.
func (m Merger) Merge(propertyID, provider string, res Result, existing *model.Contact, now time.Time) Merged {
	var out Merged

	var c model.Contact
	if existing != nil {
		c = *existing
		c.Phones = append([]model.Phone(nil), existing.Phones...)
		c.Emails = append([]model.Email(nil), existing.Emails...)
	} else {
		c = model.Contact{
			ID:          ContactID(propertyID, provider),
			ContactType: model.ContactSkipTrace,
			CreatedAt:   now,
		}
	}
	if c.Phones == nil {
		c.Phones = []model.Phone{}
	}
	if c.Emails == nil {
		c.Emails = []model.Email{}
	}

	phones, warns := NormalizePhones(res.Phones)
	out.Warnings = append(out.Warnings, warns...)
	have := make(map[string]bool, len(c.Phones))
	for _, p := range c.Phones {
		have[PhoneKey(p.Number)] = true
	}
	for _, p := range phones {
		if have[PhoneKey(p)] {
			continue
		}
		have[PhoneKey(p)] = true
		c.Phones = append(c.Phones, model.Phone{Number: p, Label: nextLabel(len(c.Phones)), Source: provider})
	}

	emails, warns := NormalizeEmails(res.Emails)
	out.Warnings = append(out.Warnings, warns...)
	haveEmail := make(map[string]bool, len(c.Emails))
	for _, e := range c.Emails {
		haveEmail[NormalizeEmail(e.Email)] = true
	}
	for _, e := range emails {
		if haveEmail[e] {
			continue
		}
		haveEmail[e] = true
		c.Emails = append(c.Emails, model.Email{Email: e, Label: nextLabel(len(c.Emails)), Source: provider})
	}

	out.Owners = ParseOwnerNames(res.OwnerNamesRaw)
	if len(out.Owners) > 0 && c.NameFirst == "" && c.NameLast == "" && c.EntityName == "" {
		c.NameFirst = out.Owners[0].FirstName
		c.NameLast = out.Owners[0].LastName
	}
	if len(out.Owners) > 1 {
		note := "Co-owner: " + out.Owners[1].FullName
		if !strings.Contains(c.Notes, note) {
			c.Notes = joinNotes(c.Notes, note)
		}
	}
	c.UpdatedAt = now

	conf := m.Confidence
	if conf <= 0 {
		conf = DefaultConfidence
	}
	if len(out.Owners) > 0 || c.NameFirst != "" || c.NameLast != "" {
		conf = m.NamedConfidence
		if conf <= 0 {
			conf = DefaultNamedConfidence
		}
	}
	validated := now
	out.Contact = c
	out.Link = model.PropertyContact{
		PropertyID:      propertyID,
		ContactID:       c.ID,
		Role:            model.RoleSkipTrace,
		Confidence:      conf,
		LastValidatedAt: &validated,
	}
	return out
}

func nextLabel(n int) string {
	if n == 0 {
		return model.LabelPrimary
	}
	return model.LabelSecondary
}

func joinNotes(existing, note string) string {
	if strings.TrimSpace(existing) == "" {
		return note
	}
	return existing + "\n" + note
}
