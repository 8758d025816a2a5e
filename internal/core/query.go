package core

import "strings"

const maxQueryTerms = 12

// Terms splits a search query into folded terms. At most twelve terms are
// kept.
func Terms(query string) []string {
	fields := strings.Fields(Fold(query))
	if len(fields) > maxQueryTerms {
		fields = fields[:maxQueryTerms]
	}
	return fields
}

// MatchTerms reports whether every term occurs in folded.
func MatchTerms(folded string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	for _, t := range terms {
		if !strings.Contains(folded, t) {
			return false
		}
	}
	return true
}
