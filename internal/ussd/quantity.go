package ussd

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrNoQuantity       = errors.New("no quantity found")
	ErrNonPositiveValue = errors.New("quantity must be greater than zero")
)

var quantityPattern = regexp.MustCompile(`(?i)(-?\d+(?:\.\d+)?)\s*(kgs?|kilos?|kilograms?|tons?|tonnes?)?`)

// ParseQuantity reads "50kg", "2 tons" or a bare number and returns kilograms.
func ParseQuantity(text string) (float64, error) {
	m := quantityPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, ErrNoQuantity
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, ErrNoQuantity
	}
	if v <= 0 {
		return 0, ErrNonPositiveValue
	}
	if strings.HasPrefix(strings.ToLower(m[2]), "ton") {
		v *= 1000
	}
	return v, nil
}
