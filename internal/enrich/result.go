// Package enrich folds skip-trace results into canonical contacts.
package enrich

import "strings"

// Result is the provider-neutral shape of an enrichment lookup.
type Result struct {
	Emails        []string `json:"emails"`
	Phones        []string `json:"phones"`
	OwnerNamesRaw []string `json:"ownerNamesRaw"`
}

// Empty reports whether the result carries no phone or email.
func (r Result) Empty() bool {
	for _, p := range r.Phones {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	for _, e := range r.Emails {
		if strings.TrimSpace(e) != "" {
			return false
		}
	}
	return true
}
