package core

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const MaxTitleRunes = 100

// Title returns the first non-blank line of text, trimmed and capped at
// MaxTitleRunes runes.
func Title(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimFunc(line, unicode.IsSpace)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) <= MaxTitleRunes {
			return line
		}
		r := []rune(line)
		return string(r[:MaxTitleRunes])
	}
	return ""
}

// Fold lowercases text for case-insensitive matching.
func Fold(s string) string {
	return strings.ToLower(s)
}

// ImageTitle is the title stored for image clips.
func ImageTitle(hash string) string {
	if len(hash) > 12 {
		hash = hash[:12]
	}
	return "Image: " + hash
}
