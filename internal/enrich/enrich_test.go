package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-scorer/internal/model"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestParseOwnerNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  []string
		want []OwnerName
	}{
		{
			name: "capped at two",
			raw:  []string{"Jane Doe and John Doe", "Third Person"},
			want: []OwnerName{
				{FirstName: "Jane", LastName: "Doe", FullName: "Jane Doe"},
				{FirstName: "John", LastName: "Doe", FullName: "John Doe"},
			},
		},
		{
			name: "prefix and ampersand",
			raw:  []string{"Owner: Mary Ann Smith & Bob Smith"},
			want: []OwnerName{
				{FirstName: "Mary", LastName: "Smith", FullName: "Mary Ann Smith"},
				{FirstName: "Bob", LastName: "Smith", FullName: "Bob Smith"},
			},
		},
		{
			name: "plus and single word",
			raw:  []string{"name:Cher + X"},
			want: []OwnerName{{LastName: "Cher", FullName: "Cher"}},
		},
		{
			name: "across strings",
			raw:  []string{"  ", "Contact: Lee Park", "Ann Wu"},
			want: []OwnerName{
				{FirstName: "Lee", LastName: "Park", FullName: "Lee Park"},
				{FirstName: "Ann", LastName: "Wu", FullName: "Ann Wu"},
			},
		},
		{name: "empty", raw: nil, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseOwnerNames(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), MaxOwners)
		})
	}
}

func TestParseOwnerNames_DoesNotSplitInsideWords(t *testing.T) {
	t.Parallel()

	got := ParseOwnerNames([]string{"Sandra Anderson"})
	require.Len(t, got, 1)
	assert.Equal(t, "Sandra Anderson", got[0].FullName)
}

func TestFormatPhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"615-555-0100", "(615) 555-0100", true},
		{"1 (615) 555 0100", "(615) 555-0100", true},
		{"+16155550100", "(615) 555-0100", true},
		{"555.0100", "555-0100", true},
		{"12345", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := FormatPhone(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNormalizePhones(t *testing.T) {
	t.Parallel()

	got, warns := NormalizePhones([]string{"615-555-0100", "(615) 555-0100", "16155550100", "abc", "555-0199", ""})
	assert.Equal(t, []string{"(615) 555-0100", "555-0199"}, got)
	require.Len(t, warns, 2)
	assert.Contains(t, warns[0], `invalid phone number "abc"`)
	assert.Contains(t, warns[1], "missing area code")
}

func TestNormalizeEmails(t *testing.T) {
	t.Parallel()

	got, warns := NormalizeEmails([]string{"Jane@Example.com", "jane@example.com ", "not-an-email", "bob@gmial.com"})
	assert.Equal(t, []string{"jane@example.com", "bob@gmial.com"}, got)
	require.Len(t, warns, 2)
	assert.Contains(t, warns[0], "invalid email")
	assert.Contains(t, warns[1], "did you mean bob@gmail.com?")
}

func TestResult_Empty(t *testing.T) {
	t.Parallel()

	assert.True(t, Result{}.Empty())
	assert.True(t, Result{Phones: []string{" "}, OwnerNamesRaw: []string{"Jane"}}.Empty())
	assert.False(t, Result{Emails: []string{"a@b.co"}}.Empty())
}

func TestMerge_NewContact(t *testing.T) {
	t.Parallel()

	res := Result{
		Emails:        []string{"JANE@example.com", "jane@example.com"},
		Phones:        []string{"615-555-0100", "6155550100"},
		OwnerNamesRaw: []string{"Jane Doe and John Doe"},
	}
	m := Merger{}.Merge("p1", "skiptrace", res, nil, testNow)

	c := m.Contact
	assert.Equal(t, ContactID("p1", "skiptrace"), c.ID)
	assert.Equal(t, model.ContactSkipTrace, c.ContactType)
	assert.Equal(t, "Jane", c.NameFirst)
	assert.Equal(t, "Doe", c.NameLast)
	assert.Contains(t, c.Notes, "Co-owner: John Doe")
	require.Len(t, c.Phones, 1)
	assert.Equal(t, "(615) 555-0100", c.Phones[0].Number)
	assert.Equal(t, model.LabelPrimary, c.Phones[0].Label)
	require.Len(t, c.Emails, 1)
	assert.Equal(t, "jane@example.com", c.Emails[0].Email)

	assert.Equal(t, "p1", m.Link.PropertyID)
	assert.Equal(t, c.ID, m.Link.ContactID)
	assert.Equal(t, model.RoleSkipTrace, m.Link.Role)
	assert.Equal(t, DefaultNamedConfidence, m.Link.Confidence)
	require.NotNil(t, m.Link.LastValidatedAt)
	assert.Equal(t, testNow, *m.Link.LastValidatedAt)
}

func TestMerge_Existing(t *testing.T) {
	t.Parallel()

	existing := &model.Contact{
		ID:        "c1",
		NameFirst: "Mary",
		Phones:    []model.Phone{{Number: "(615) 555-0100", Label: model.LabelPrimary}},
		CreatedAt: testNow.Add(-time.Hour),
	}
	m := Merger{}.Merge("p1", "skiptrace", Result{
		Phones:        []string{"+1 615 555 0100", "615-555-0200"},
		OwnerNamesRaw: []string{"Jane Doe"},
	}, existing, testNow)

	assert.Equal(t, "c1", m.Contact.ID)
	assert.Equal(t, "Mary", m.Contact.NameFirst, "existing name is kept")
	require.Len(t, m.Contact.Phones, 2)
	assert.Equal(t, model.LabelSecondary, m.Contact.Phones[1].Label)
	assert.Equal(t, "skiptrace", m.Contact.Phones[1].Source)
	assert.Len(t, existing.Phones, 1, "input contact is not mutated")
	assert.Equal(t, testNow.Add(-time.Hour), m.Contact.CreatedAt)
	assert.Equal(t, testNow, m.Contact.UpdatedAt)
}

func TestMerge_Confidence(t *testing.T) {
	t.Parallel()

	m := Merger{}.Merge("p1", "x", Result{Phones: []string{"6155550100"}}, nil, testNow)
	assert.Equal(t, DefaultConfidence, m.Link.Confidence)
	assert.NotNil(t, m.Contact.Emails)

	custom := Merger{Confidence: 0.5, NamedConfidence: 0.9}
	assert.Equal(t, 0.5, custom.Merge("p1", "x", Result{Phones: []string{"6155550100"}}, nil, testNow).Link.Confidence)
	assert.Equal(t, 0.9, custom.Merge("p1", "x", Result{OwnerNamesRaw: []string{"Al Bo"}}, nil, testNow).Link.Confidence)
}

func TestContactID_Deterministic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ContactID("p1", "skiptrace"), ContactID("p1", "skiptrace"))
	assert.NotEqual(t, ContactID("p1", "skiptrace"), ContactID("p2", "skiptrace"))
	assert.NotEqual(t, ContactID("p1", "skiptrace"), ContactID("p1", "other"))
}
