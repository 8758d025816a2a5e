package core

import (
	"fmt"
	"regexp"
	"strings"
)

// PrivacyFilter decides which text clips must never be recorded.
// A nil filter ignores nothing.
type PrivacyFilter struct {
	rules []*regexp.Regexp
}

// NewPrivacyFilter compiles patterns. Plain patterns are matched as
// case-insensitive substrings; with useRegex they are regular expressions.
func NewPrivacyFilter(patterns []string, useRegex bool) (*PrivacyFilter, error) {
	pf := &PrivacyFilter{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		expr := "(?i)" + regexp.QuoteMeta(p)
		if useRegex {
			expr = p
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("ignore pattern %q: %w", p, err)
		}
		pf.rules = append(pf.rules, re)
	}
	return pf, nil
}

func (pf *PrivacyFilter) ShouldIgnore(text string) bool {
	if pf == nil {
		return false
	}
	for _, re := range pf.rules {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Len reports the number of active rules.
func (pf *PrivacyFilter) Len() int {
	if pf == nil {
		return 0
	}
	return len(pf.rules)
}
