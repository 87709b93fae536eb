package enrich

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate = validator.New()
	nonDigit = regexp.MustCompile(`\D`)

	emailTypos = []struct {
		re  *regexp.Regexp
		fix string
	}{
		{regexp.MustCompile(`(?i)@gmial\.`), "@gmail."},
		{regexp.MustCompile(`(?i)@yahooo\.`), "@yahoo."},
		{regexp.MustCompile(`(?i)@hotmial\.`), "@hotmail."},
		{regexp.MustCompile(`(?i)\.cmo$`), ".com"},
		{regexp.MustCompile(`(?i)\.con$`), ".com"},
	}
)

// PhoneKey reduces a phone number to its comparison digits: a leading 1
// of an 11-digit number is dropped.
func PhoneKey(raw string) string {
	d := nonDigit.ReplaceAllString(raw, "")
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	return d
}

// FormatPhone formats a US number as (XXX) XXX-XXXX, or XXX-XXXX when the
// area code is missing. It returns false when the digits fit neither form.
func FormatPhone(raw string) (string, bool) {
	d := PhoneKey(raw)
	switch len(d) {
	case 10:
		return fmt.Sprintf("(%s) %s-%s", d[:3], d[3:6], d[6:]), true
	case 7:
		return fmt.Sprintf("%s-%s", d[:3], d[3:]), true
	default:
		return "", false
	}
}

// NormalizePhones formats and dedupes phone numbers, preserving first-seen
// order. Invalid numbers are dropped with a warning.
func NormalizePhones(raw []string) ([]string, []string) {
	var out, warnings []string
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		formatted, ok := FormatPhone(r)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("invalid phone number %q", r))
			continue
		}
		key := PhoneKey(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		if len(key) == 7 {
			warnings = append(warnings, fmt.Sprintf("phone number %s appears to be missing area code", formatted))
		}
		out = append(out, formatted)
	}
	return out, warnings
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ValidEmail reports whether e is a syntactically valid address.
func ValidEmail(e string) bool {
	return validate.Var(e, "required,email") == nil
}

// EmailTypoHint suggests a correction for common domain typos.
func EmailTypoHint(e string) (string, bool) {
	for _, t := range emailTypos {
		if t.re.MatchString(e) {
			return t.re.ReplaceAllString(e, t.fix), true
		}
	}
	return "", false
}

// NormalizeEmails lowercases, validates and dedupes emails, preserving
// first-seen order. Invalid addresses are dropped with a warning; likely
// typos are kept with a hint.
func NormalizeEmails(raw []string) ([]string, []string) {
	var out, warnings []string
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		e := NormalizeEmail(r)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		if !ValidEmail(e) {
			warnings = append(warnings, fmt.Sprintf("invalid email address %q", r))
			continue
		}
		if hint, ok := EmailTypoHint(e); ok {
			warnings = append(warnings, fmt.Sprintf("possible typo in email %s: did you mean %s?", e, hint))
		}
		out = append(out, e)
	}
	return out, warnings
}
