package deref

import (
	"strings"
	"unicode"
)

// GetSearchTerms splits a query into whitespace separated terms.
func GetSearchTerms(text string) []string {
	return strings.FieldsFunc(text, unicode.IsSpace)
}

// ContainsFold reports whether substr occurs in s, ignoring case.
func ContainsFold(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// MatchesAll reports whether every term occurs in at least one of values.
// An empty term list matches nothing.
func MatchesAll(terms []string, values ...string) bool {
	if len(terms) == 0 {
		return false
	}
	for _, t := range terms {
		found := false
		for _, v := range values {
			if ContainsFold(v, t) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
