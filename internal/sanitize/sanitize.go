package sanitize

import "strings"

// MaxLength bounds inbound message text after cleaning.
const MaxLength = 1000

// Clean normalizes untrusted inbound text: angle brackets are stripped so
// user input cannot smuggle markup into downstream rendering, surrounding
// whitespace is trimmed, and the result is capped at MaxLength runes.
// Clean is idempotent.
func Clean(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '<' || r == '>' {
			return -1
		}
		return r
	}, raw)

	cleaned = strings.TrimSpace(cleaned)

	runes := []rune(cleaned)
	if len(runes) > MaxLength {
		cleaned = strings.TrimSpace(string(runes[:MaxLength]))
	}
	return cleaned
}
