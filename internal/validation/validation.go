package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrCityRequired is returned when the city is missing or whitespace-only.
var ErrCityRequired = errors.New("city is required")

// ErrCityTooLong is returned when the city exceeds the configured rune limit.
var ErrCityTooLong = errors.New("city too long")

// ErrCityInvalidChars is returned when the city contains control characters.
var ErrCityInvalidChars = errors.New("city contains invalid characters")

// ValidateCity trims the input and enforces a maximum length in runes (0 = unbounded).
// Only control characters are rejected; provider-side names use apostrophes,
// dots and commas ("Xi'an", "St. John's", "London,GB").
func ValidateCity(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrCityRequired
	}
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrCityTooLong
	}
	for _, c := range r {
		if unicode.IsControl(c) {
			return "", ErrCityInvalidChars
		}
	}
	return s, nil
}

// NormalizeCity returns the cache key for a city: trimmed and lowercased.
func NormalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
