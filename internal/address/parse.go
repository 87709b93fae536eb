package address

import "strings"

// Street returns the text before the first comma.
func Street(addr string) string {
	street, _, _ := strings.Cut(addr, ",")
	return strings.TrimSpace(street)
}

// City extracts the city from a comma-separated address.
//
// With three or more parts the city is the second-to-last part minus a
// trailing two-letter state code. With exactly two parts the city is taken
// from the trailing words of the street part. Otherwise Unknown.
func City(addr string) string {
	parts := strings.Split(addr, ",")

	switch {
	case len(parts) >= 3:
		cityState := strings.TrimSpace(parts[len(parts)-2])
		city := strings.TrimSpace(stateSuffixRe.ReplaceAllString(cityState, ""))
		if city == "" {
			return Unknown
		}
		return ProperCase(city)
	case len(parts) == 2:
		words := strings.Fields(parts[0])
		if len(words) < 2 {
			return Unknown
		}
		lastTwo := strings.Join(words[len(words)-2:], " ")
		if lettersRe.MatchString(lastTwo) {
			return ProperCase(lastTwo)
		}
		if last := words[len(words)-1]; wordRe.MatchString(last) {
			return ProperCase(last)
		}
	}
	return Unknown
}

// StripCountySuffix trims a trailing " County" and surrounding space.
func StripCountySuffix(county string) string {
	c := strings.TrimSpace(county)
	if len(c) > len(" county") && strings.EqualFold(c[len(c)-len(" county"):], " county") {
		c = strings.TrimSpace(c[:len(c)-len(" county")])
	}
	return c
}

// SameCounty compares county names ignoring case and a " County" suffix.
// Empty and Unknown never match anything.
func SameCounty(a, b string) bool {
	a, b = StripCountySuffix(a), StripCountySuffix(b)
	if a == "" || b == "" || strings.EqualFold(a, Unknown) || strings.EqualFold(b, Unknown) {
		return false
	}
	return strings.EqualFold(a, b)
}
