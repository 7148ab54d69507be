// Package plate - Plate text normalization, scoring and transliteration.
package plate

import (
	"strings"
	"unicode/utf8"
)

// Alphabet lists every rune Clean keeps.
const Alphabet = "০১২৩৪৫৬৭৮৯0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// IsAllowed reports whether r belongs to the plate alphabet: Bengali digits
// ০-৯, ASCII digits 0-9 and Latin letters A-Z, a-z.
func IsAllowed(r rune) bool {
	switch {
	case r >= '০' && r <= '৯':
		return true
	case r >= '0' && r <= '9':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	}
	return false
}

// Clean drops every rune outside the plate alphabet. Dropped runes are not
// replaced.
//
// Arguments:
//   - text: Raw OCR output.
//
// Returns:
//   - string: The retained runes in their original order.
//
// @example
// plate.Clean("AB-12৩৪!") // "AB12৩৪"
func Clean(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if IsAllowed(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CleanAny is Clean for untyped OCR payloads. Anything that is not a string
// yields "".
func CleanAny(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return Clean(s)
}

// Length is the number of characters in text, counted in runes so that a
// Bengali digit counts once.
func Length(text string) int {
	return utf8.RuneCountInString(text)
}
