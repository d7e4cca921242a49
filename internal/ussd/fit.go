package ussd

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars is the per-screen budget of most aggregators.
const DefaultMaxChars = 182

// Fit shortens msg to at most limit runes, dropping whole trailing lines first
// and cutting the last remaining line only when it alone is too long.
func Fit(msg string, limit int) string {
	if limit <= 0 {
		limit = DefaultMaxChars
	}
	msg = strings.TrimSpace(msg)
	if utf8.RuneCountInString(msg) <= limit {
		return msg
	}
	lines := strings.Split(msg, "\n")
	for len(lines) > 1 {
		lines = lines[:len(lines)-1]
		joined := strings.TrimRight(strings.Join(lines, "\n"), "\n ")
		if utf8.RuneCountInString(joined) <= limit {
			return joined
		}
	}
	runes := []rune(lines[0])
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}
