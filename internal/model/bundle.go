package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Bundle is the output of one adapter call: a property with the events,
// contacts and links produced alongside it. It is persisted as a unit.
type Bundle struct {
	Property Property          `json:"property"`
	Events   []DistressEvent   `json:"events"`
	Contacts []Contact         `json:"contacts"`
	Links    []PropertyContact `json:"links"`
	Warnings []string          `json:"warnings,omitempty"`
}

// Warn appends a warning.
func (b *Bundle) Warn(msg string) {
	b.Warnings = append(b.Warnings, msg)
}

// Validate reports references that point outside the bundle.
func (b *Bundle) Validate() error {
	if b.Property.ID == "" {
		return eris.New("model: bundle property has no id")
	}

	contacts := make(map[string]bool, len(b.Contacts))
	for _, c := range b.Contacts {
		if c.ID == "" {
			return eris.New("model: bundle contact has no id")
		}
		contacts[c.ID] = true
	}

	var problems []string
	for _, c := range b.Contacts {
		if !ValidContactType(c.ContactType) {
			problems = append(problems, "contact "+c.ID+" has type "+string(c.ContactType))
		}
	}
	for _, e := range b.Events {
		if e.PropertyID != b.Property.ID {
			problems = append(problems, "event "+e.ID+" references property "+e.PropertyID)
		}
	}
	seen := make(map[string]bool, len(b.Links))
	for _, l := range b.Links {
		if l.PropertyID != b.Property.ID {
			problems = append(problems, "link references property "+l.PropertyID)
		}
		if !contacts[l.ContactID] {
			problems = append(problems, "link references contact "+l.ContactID)
		}
		if seen[l.Key()] {
			problems = append(problems, "duplicate link "+l.Key())
		}
		seen[l.Key()] = true
	}
	if len(problems) > 0 {
		return eris.Errorf("model: invalid bundle %s: %s", b.Property.ID, strings.Join(problems, "; "))
	}
	return nil
}

// LinkedContacts returns the contacts linked to the bundle's property.
func (b *Bundle) LinkedContacts() []Contact {
	return LinkedContacts(b.Property.ID, b.Contacts, b.Links)
}

// LinkedContacts returns the contacts referenced by a link to propertyID,
// each at most once, in contact order.
func LinkedContacts(propertyID string, contacts []Contact, links []PropertyContact) []Contact {
	linked := make(map[string]bool, len(links))
	for _, l := range links {
		if l.PropertyID == propertyID {
			linked[l.ContactID] = true
		}
	}
	var out []Contact
	for _, c := range contacts {
		if linked[c.ID] {
			out = append(out, c)
			delete(linked, c.ID)
		}
	}
	return out
}
