package adapter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultEventTime is used by vNext sources that publish no sale time.
const DefaultEventTime = "00:00:00"

var (
	postponedRe = regexp.MustCompile(`(?i)[\s,(-]*\bpostponed\b[^\d]*`)
	slashDateRe = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2,4})`)
	time12Re    = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(AM|PM)$`)
	time24Re    = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)
	dateLayouts = []string{
		time.DateOnly,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"January 2, 2006",
		"Jan 2, 2006",
		"Monday, January 2, 2006",
		"01-02-2006",
	}
)

// ParsedDate is the outcome of ParseEventDate.
type ParsedDate struct {
	// Date is the calendar date at UTC midnight, nil when absent or unparseable.
	Date *time.Time
	// Postponed is set when the raw text carried a "postponed" marker.
	Postponed bool
	// Invalid is set when non-empty text could not be parsed.
	Invalid bool
}

// ParseEventDate parses the date formats seen across sources. Two-digit
// years up to 30 map to 20xx, the rest to 19xx.
func ParseEventDate(raw string) ParsedDate {
	var out ParsedDate
	s := strings.TrimSpace(raw)
	if s == "" {
		return out
	}
	if postponedRe.MatchString(s) {
		out.Postponed = true
		s = strings.TrimSpace(postponedRe.ReplaceAllString(s, " "))
		if s == "" {
			return out
		}
	}

	if m := slashDateRe.FindStringSubmatch(s); m != nil {
		if d, ok := slashDate(m[1], m[2], m[3]); ok {
			out.Date = &d
			return out
		}
		out.Invalid = true
		return out
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			out.Date = &d
			return out
		}
	}
	out.Invalid = true
	return out
}

func slashDate(mm, dd, yy string) (time.Time, bool) {
	month, _ := strconv.Atoi(mm)
	day, _ := strconv.Atoi(dd)
	year, _ := strconv.Atoi(yy)
	switch len(yy) {
	case 2:
		if year <= 30 {
			year += 2000
		} else {
			year += 1900
		}
	case 4:
	default:
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// Reject rollovers such as 2/30.
	if d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

// ParseEventTime normalizes "10:00 a.m.", "2 PM", "14:30" and "14:30:15"
// to HH:MM:SS. It returns false for non-empty text it cannot parse.
func ParseEventTime(raw string) (string, bool) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), ".", ""))
	if s == "" {
		return "", true
	}

	if m := time12Re.FindStringSubmatch(s); m != nil {
		hours, _ := strconv.Atoi(m[1])
		minutes := 0
		if m[2] != "" {
			minutes, _ = strconv.Atoi(m[2])
		}
		if hours < 1 || hours > 12 || minutes > 59 {
			return "", false
		}
		switch {
		case m[3] == "PM" && hours != 12:
			hours += 12
		case m[3] == "AM" && hours == 12:
			hours = 0
		}
		return fmt.Sprintf("%02d:%02d:00", hours, minutes), true
	}

	if m := time24Re.FindStringSubmatch(s); m != nil {
		hours, _ := strconv.Atoi(m[1])
		minutes, _ := strconv.Atoi(m[2])
		seconds := 0
		if m[3] != "" {
			seconds, _ = strconv.Atoi(m[3])
		}
		if hours > 23 || minutes > 59 || seconds > 59 {
			return "", false
		}
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds), true
	}
	return "", false
}
