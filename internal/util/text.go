package util

import (
	"regexp"
	"strings"
)

var reSpaces = regexp.MustCompile(`\s+`)

// NormalizeName canonicalizes a free-text name or code for comparison:
// upper case, trimmed, internal whitespace collapsed to one space. The stored
// display form is never replaced by this value.
func NormalizeName(input string) string {
	return strings.ToUpper(CollapseSpaces(input))
}

// CollapseSpaces trims and folds every whitespace run into a single space.
func CollapseSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// NormalizeEmail lowercases and trims an address. Empty when the input does
// not look like an address at all.
func NormalizeEmail(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	if !strings.Contains(s, "@") || strings.ContainsAny(s, " \t") {
		return ""
	}
	return s
}

// SplitPersonName splits "FIRST REST OF NAME" at the first space.
func SplitPersonName(full string) (first, last string) {
	full = CollapseSpaces(full)
	if full == "" {
		return "", ""
	}
	first, last, _ = strings.Cut(full, " ")
	return first, last
}

// LooksLikeCageCode reports whether token has the shape of a CAGE code:
// exactly five letters/digits with at least one digit.
func LooksLikeCageCode(token string) bool {
	if len(token) != 5 {
		return false
	}
	hasDigit := false
	for _, r := range token {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		default:
			return false
		}
	}
	return hasDigit
}

func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func StringPtr(v string) *string { return &v }

func IntPtr(v int) *int { return &v }

func Int64Ptr(v int64) *int64 { return &v }

func FloatPtr(v float64) *float64 { return &v }
