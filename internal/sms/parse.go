// Package sms answers free-text harvest reports sent by SMS.
package sms

import (
	"regexp"
	"strconv"
	"strings"

	"harvestlink/internal/domain"
)

const (
	DefaultLocation = "Other"
	DefaultStorage  = "traditional"
	DefaultWeather  = "dry"
)

var (
	cropPattern     = regexp.MustCompile(`\b(maize|corn|rice|wheat|beans|tomatoes|millet|sorghum|cassava)\b`)
	quantityPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(kgs?|kilos?|tons?|tonnes?)\b`)
	locationPattern = regexp.MustCompile(`\b(nairobi|mombasa|kisumu|nakuru|eldoret|thika|meru|kakamega|kisii|nyeri)\b`)
	storagePattern  = regexp.MustCompile(`\b(traditional|improved|cold[_ ]storage|silo|hermetic|barn|open)\b`)
	weatherPattern  = regexp.MustCompile(`\b(dry|humid|rainy|stormy|drought|wet|damp)\b`)
)

var synonyms = map[string]string{
	"corn":         "maize",
	"cold storage": "cold_storage",
	"barn":         "improved",
	"open":         "traditional",
	"wet":          "rainy",
	"damp":         "humid",
}

func canonical(v string) string {
	if s, ok := synonyms[v]; ok {
		return s
	}
	return v
}

// Parse extracts a harvest query from a message such as
// "maize 50kg Nairobi traditional dry". A message is usable only when it
// names a crop and a quantity with a unit; other fields fall back to
// defaults.
func Parse(message string) (domain.HarvestQuery, bool) {
	msg := strings.ToLower(strings.TrimSpace(message))
	var q domain.HarvestQuery

	if m := cropPattern.FindStringSubmatch(msg); m != nil {
		q.Crop = canonical(m[1])
	}
	if m := quantityPattern.FindStringSubmatch(msg); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil && v > 0 {
			if strings.HasPrefix(m[2], "ton") {
				v *= 1000
			}
			q.Quantity = v
		}
	}
	if q.Crop == "" || q.Quantity <= 0 {
		return domain.HarvestQuery{}, false
	}

	q.Location = DefaultLocation
	if m := locationPattern.FindStringSubmatch(msg); m != nil {
		q.Location = strings.ToUpper(m[1][:1]) + m[1][1:]
	}
	q.Storage = DefaultStorage
	if m := storagePattern.FindStringSubmatch(msg); m != nil {
		q.Storage = canonical(m[1])
	}
	q.Weather = DefaultWeather
	if m := weatherPattern.FindStringSubmatch(msg); m != nil {
		q.Weather = canonical(m[1])
	}
	return q, true
}
