package common

import (
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Round2 rounds v half away from zero to two decimal places.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}

// Title upper-cases the first letter of every word and lower-cases the rest,
// e.g. "light rain" -> "Light Rain".
func Title(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return cases.Title(language.Und).String(s)
}
