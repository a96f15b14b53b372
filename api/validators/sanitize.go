package validators

import (
	"strings"
	"unicode"
)

// Length caps for operator free text, counted in runes like the validate
// tags on request bodies.
const (
	MaxNotesLength = 500
	MaxLabelLength = 120
)

// SanitizeString trims input, drops control characters other than newline and
// tab, and cuts the result to maxLen runes. maxLen <= 0 disables the cut.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxLen <= 0 {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) <= maxLen {
		return cleaned
	}
	return strings.TrimSpace(string(runes[:maxLen]))
}
