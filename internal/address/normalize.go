// Package address normalizes and parses free-form US street addresses.
package address

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Unknown is returned when a component cannot be derived.
const Unknown = "Unknown"

var (
	punctRe       = regexp.MustCompile(`[^\w\s]`)
	spaceRe       = regexp.MustCompile(`\s+`)
	suffixRe      = regexp.MustCompile(`\b(street|st|road|rd|avenue|ave|drive|dr|lane|ln|court|ct|circle|cir|boulevard|blvd|place|pl|way|parkway|pkwy|trail|trl)\b`)
	directionalRe = regexp.MustCompile(`\b(north|south|east|west|n|s|e|w)\b`)
	stateSuffixRe = regexp.MustCompile(`\s+[A-Z]{2}$`)
	lettersRe     = regexp.MustCompile(`^[A-Za-z\s]+$`)
	wordRe        = regexp.MustCompile(`^[A-Za-z]+$`)
)

// Normalize reduces an address to its dedup key: lowercase, no punctuation,
// no street suffixes or directionals, single spaces.
func Normalize(addr string) string {
	s := strings.ToLower(strings.TrimSpace(addr))
	if s == "" {
		return ""
	}
	s = punctRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	s = suffixRe.ReplaceAllString(s, "")
	s = directionalRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Compact lowercases and collapses whitespace without dropping any words.
// Use it for lookups that must keep the full address text.
func Compact(addr string) string {
	s := strings.ToLower(strings.TrimSpace(addr))
	s = strings.NewReplacer(".", "", ",", "").Replace(s)
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// ProperCase title-cases every word: "MT JULIET" becomes "Mt Juliet".
func ProperCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return cases.Title(language.AmericanEnglish).String(s)
}
