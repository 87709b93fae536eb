package model

import "time"

// ContactType describes who a contact is relative to a property.
type ContactType string

// Contact types.
const (
	ContactOwner     ContactType = "owner"
	ContactExecutor  ContactType = "executor"
	ContactSkipTrace ContactType = "skiptrace_result"
	ContactTypeOther ContactType = "other"
)

// ValidContactType reports whether t is one of the known contact types.
func ValidContactType(t ContactType) bool {
	switch t {
	case ContactOwner, ContactExecutor, ContactSkipTrace, ContactTypeOther:
		return true
	}
	return false
}

// Phone and email labels.
const (
	LabelPrimary   = "primary"
	LabelSecondary = "secondary"
)

// Phone is one phone number on a contact.
type Phone struct {
	Number   string `json:"number"`
	Label    string `json:"label,omitempty"`
	Verified bool   `json:"verified"`
	Source   string `json:"source,omitempty"`
}

// Email is one email address on a contact.
type Email struct {
	Email    string `json:"email"`
	Label    string `json:"label,omitempty"`
	Verified bool   `json:"verified"`
	Source   string `json:"source,omitempty"`
}

// Contact is a person or entity reachable about a property.
type Contact struct {
	ID             string      `json:"id"`
	NameFirst      string      `json:"name_first,omitempty"`
	NameLast       string      `json:"name_last,omitempty"`
	EntityName     string      `json:"entity_name,omitempty"`
	ContactType    ContactType `json:"contact_type"`
	Phones         []Phone     `json:"phones"`
	Emails         []Email     `json:"emails"`
	MailingAddress string      `json:"mailing_address,omitempty"`
	Notes          string      `json:"notes,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Reachable reports whether the contact has at least one phone or email.
func (c *Contact) Reachable() bool {
	return len(c.Phones) > 0 || len(c.Emails) > 0
}

// Role is the relationship between a contact and a property.
type Role string

// Property-contact roles.
const (
	RoleOwner     Role = "owner"
	RoleSkipTrace Role = "skiptrace"
	RoleExecutor  Role = "executor"
	RoleOther     Role = "other"
)

// PropertyContact links a contact to a property.
type PropertyContact struct {
	PropertyID      string     `json:"property_id"`
	ContactID       string     `json:"contact_id"`
	Role            Role       `json:"role"`
	Confidence      float64    `json:"confidence"`
	LastValidatedAt *time.Time `json:"last_validated_at,omitempty"`
}

// Key identifies the link; at most one link exists per key.
func (pc PropertyContact) Key() string {
	return pc.PropertyID + "|" + pc.ContactID + "|" + string(pc.Role)
}

// UpsertLink adds link to links, or updates confidence and validation time
// of the existing link with the same key.
func UpsertLink(links []PropertyContact, link PropertyContact) []PropertyContact {
	for i := range links {
		if links[i].Key() == link.Key() {
			links[i].Confidence = link.Confidence
			if link.LastValidatedAt != nil {
				links[i].LastValidatedAt = link.LastValidatedAt
			}
			return links
		}
	}
	return append(links, link)
}
