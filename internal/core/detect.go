package core

import (
	"net/url"
	"strings"
)

// DetectType guesses what kind of text a clip holds. It is a display hint
// only and never affects dedupe.
func DetectType(text string) ContentType {
	s := strings.TrimSpace(text)
	if s == "" {
		return ContentTypeText
	}

	if !strings.ContainsAny(s, " \t\n") {
		if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Host != "" {
			return ContentTypeURL
		}
	}

	if looksLikeCommand(s) {
		return ContentTypeCommand
	}
	if looksLikeCode(s) {
		return ContentTypeCode
	}
	return ContentTypeText
}

var commandPrefixes = []string{"$ ", "sudo ", "git ", "go ", "docker ", "kubectl ", "cd ", "ls "}

func looksLikeCommand(s string) bool {
	if strings.Contains(s, "\n") {
		return false
	}
	for _, p := range commandPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return strings.Contains(s, " --") || strings.Contains(s, " | ") || strings.Contains(s, " && ")
}

func looksLikeCode(s string) bool {
	if strings.Contains(s, "{") && strings.Contains(s, "}") {
		return true
	}
	for _, kw := range []string{"func ", "function ", "package ", "import ", "def ", "class "} {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return strings.Contains(s, ";") && strings.Contains(s, "=")
}
