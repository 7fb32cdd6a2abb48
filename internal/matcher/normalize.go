// Package matcher decides whether an incoming game record refers to a game
// already in the catalog. External numeric ids are trusted blindly; titles
// never are.
package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize converts a title to its comparison form: lowercase, no
// diacritics, no possessive apostrophes, punctuation as spaces, single
// spaces, trimmed.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))

	prevSpace := true
	for _, r := range s {
		switch {
		case r == '\'' || r == '’' || r == '`':
			// "Assassin's" -> "assassins"
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevSpace = false
		default:
			if !prevSpace {
				b.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Slugify derives a URL-safe slug from a title.
func Slugify(title string) string {
	s := strings.ReplaceAll(Normalize(title), " ", "-")
	if s == "" {
		return "game"
	}
	return s
}
