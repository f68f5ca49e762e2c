package shared

import (
	"strings"
	"unicode"
)

// NormalizeTrackKey builds a lowercase, whitespace-collapsed "title|artist" key.
func NormalizeTrackKey(title, artist string) string {
	return collapse(title) + "|" + collapse(artist)
}

// Alphanumeric lowercases s and drops every rune that is not a letter or digit.
func Alphanumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// StripBrackets removes every parenthesised segment, e.g. "Song (feat. X)" becomes "Song".
func StripBrackets(s string) string {
	for {
		start := strings.Index(s, "(")
		if start < 0 {
			break
		}
		end := strings.Index(s[start:], ")")
		if end < 0 {
			break
		}
		s = strings.TrimSpace(s[:start]) + " " + strings.TrimSpace(s[start+end+1:])
	}
	return strings.TrimSpace(s)
}

// SameTitle reports whether two titles match after normalisation, with or without bracketed segments.
func SameTitle(a, b string) bool {
	if Alphanumeric(a) == Alphanumeric(b) && Alphanumeric(a) != "" {
		return true
	}
	sa, sb := Alphanumeric(StripBrackets(a)), Alphanumeric(StripBrackets(b))
	return sa != "" && sa == sb
}

func collapse(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
