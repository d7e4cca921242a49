package ussd

import "strings"

// Separator joins the choices an aggregator resends on every round.
const Separator = "*"

// Tokenize splits the cumulative USSD text into ordered choices. Empty input
// yields no tokens; empty segments are kept so the graph can reject them.
func Tokenize(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, Separator)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
