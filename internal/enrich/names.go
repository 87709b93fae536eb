package enrich

import (
	"regexp"
	"strings"
)

// MaxOwners caps the parsed owners per property. Longer co-owner lists
// are truncated.
const MaxOwners = 2

// OwnerName is one parsed owner.
type OwnerName struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	FullName  string `json:"fullName"`
}

var (
	ownerPrefixRe = regexp.MustCompile(`(?i)^\s*(owner|name|contact)\s*:\s*`)
	ownerSplitRe  = regexp.MustCompile(`(?i)\s+and\s+|\s*&\s*|\s*\+\s*`)
)

// ParseOwnerNames splits raw owner strings on and/&/+ into at most
// MaxOwners names. The first word is the first name and the last word the
// last name; a single word is treated as a last name.
func ParseOwnerNames(raw []string) []OwnerName {
	var out []OwnerName
	for _, r := range raw {
		r = ownerPrefixRe.ReplaceAllString(strings.TrimSpace(r), "")
		for _, part := range ownerSplitRe.Split(r, -1) {
			part = strings.Join(strings.Fields(part), " ")
			if len(part) < 2 {
				continue
			}
			out = append(out, splitName(part))
			if len(out) == MaxOwners {
				return out
			}
		}
	}
	return out
}

func splitName(full string) OwnerName {
	words := strings.Fields(full)
	if len(words) == 1 {
		return OwnerName{LastName: words[0], FullName: full}
	}
	return OwnerName{
		FirstName: words[0],
		LastName:  words[len(words)-1],
		FullName:  full,
	}
}
