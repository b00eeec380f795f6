// Package phone canonicalizes user-entered phone numbers.
package phone

import "strings"

// Normalize trims surrounding whitespace and drops every character that is
// not a digit or '+'. Empty input is returned as is.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsPhoneNumber reports whether s looks like a phone number as typed by a
// person: digits with optional '+', parentheses, dashes and spaces, and
// nothing else. Handlers reject anything that fails it as malformed.
func IsPhoneNumber(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}

	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+', r == '(', r == ')', r == '-', r == ' ', r == '\t':
		default:
			return false
		}
	}
	return digits > 0
}
