package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in        string
		want      string
		postponed bool
		invalid   bool
	}{
		{"2026-03-20", "2026-03-20", false, false},
		{"2026-03-20T15:00:00-05:00", "2026-03-20", false, false},
		{"3/20/2026", "2026-03-20", false, false},
		{"03/05/26", "2026-03-05", false, false},
		{"03/05/31", "1931-03-05", false, false},
		{"3/20/2026 10:00 AM", "2026-03-20", false, false},
		{"3/20/2026 postponed", "2026-03-20", true, false},
		{"3/20/2026 (Postponed)", "2026-03-20", true, false},
		{"March 20, 2026", "2026-03-20", false, false},
		{"Mar 20, 2026", "2026-03-20", false, false},
		{"2/30/2026", "", false, true},
		{"13/01/2026", "", false, true},
		{"whenever", "", false, true},
		{"postponed", "", true, false},
		{"", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got := ParseEventDate(tt.in)
			assert.Equal(t, tt.postponed, got.Postponed)
			assert.Equal(t, tt.invalid, got.Invalid)
			if tt.want == "" {
				assert.Nil(t, got.Date)
				return
			}
			require.NotNil(t, got.Date)
			assert.Equal(t, tt.want, got.Date.Format("2006-01-02"))
			assert.Equal(t, 0, got.Date.Hour())
		})
	}
}

func TestParseEventTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"10:00 AM", "10:00:00", true},
		{"10:30 a.m.", "10:30:00", true},
		{"1:15 PM", "13:15:00", true},
		{"12:00 PM", "12:00:00", true},
		{"12:05 AM", "00:05:00", true},
		{"2 PM", "14:00:00", true},
		{"14:30", "14:30:00", true},
		{"9:05:07", "09:05:07", true},
		{"", "", true},
		{"25:00", "", false},
		{"13:00 PM", "", false},
		{"noon", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseEventTime(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
