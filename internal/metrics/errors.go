package metrics

import (
	"strings"
	"unicode"
)

var friendlyKinds = map[string]string{
	"TIMEOUT":            "Request timed out",
	"DNS":                "DNS lookup failed",
	"CONNECTION_REFUSED": "Connection refused",
	"CONNECTION_RESET":   "Connection reset",
	"TLS":                "TLS handshake failed",
	"TRANSPORT":          "Transport error",
	"BUILD":              "Request could not be built",
	"PANIC":              "Worker panic",
}

// FriendlyErrorName returns a human-friendly label for an error kind or
// status bucket code.
func FriendlyErrorName(kind string) string {
	cleaned := strings.TrimSpace(kind)
	if cleaned == "" {
		return "Unknown error"
	}
	if alias, ok := friendlyKinds[strings.ToUpper(cleaned)]; ok {
		return alias
	}
	if isDigits(cleaned) {
		return "HTTP " + cleaned
	}
	return humanizeKind(cleaned)
}

// humanizeKind turns SOME_KIND into "Some kind".
func humanizeKind(kind string) string {
	words := strings.FieldsFunc(kind, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	if len(words) == 0 {
		return kind
	}
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	runes := []rune(strings.Join(words, " "))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
