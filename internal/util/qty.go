package util

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	numberPattern   = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)
	thousandsDot    = regexp.MustCompile(`^\d{1,3}(?:\.\d{3}){2,}$`)
	thousandsComma  = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
	onlyDigitsComma = regexp.MustCompile(`^\d+,\d{1,2}$`)
)

// ParseNumber reads the first number in input. Accepts "1,000", "1,000.50",
// "12.5" and "12,5". ok is false when no number is present.
func ParseNumber(input string) (float64, bool) {
	token := numberPattern.FindString(strings.ReplaceAll(input, "\u00a0", " "))
	if token == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(normalizeNumericToken(token), 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// ParseWholeNumber parses a count such as a quantity or a number of days,
// rounding fractional values. Missing or non-numeric input yields
// -1 and false.
func ParseWholeNumber(input string) (int, bool) {
	f, ok := ParseNumber(input)
	if !ok || f > math.MaxInt32 {
		return -1, false
	}
	return int(math.Round(f)), true
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	if thousandsDot.MatchString(compact) {
		return strings.ReplaceAll(compact, ".", "")
	}
	if thousandsComma.MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}
	if onlyDigitsComma.MatchString(compact) {
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}
