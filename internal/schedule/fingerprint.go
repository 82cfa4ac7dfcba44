package schedule

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize collapses internal whitespace runs to single spaces, trims, and
// lowercases. Used for display-insensitive comparisons of addresses and
// cache keys; not Unicode-aware beyond simple lowercasing.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Fingerprint reduces free text to a compact comparison key: NFKC
// normalization, full Unicode case folding, then every rune that is not a
// letter, digit or underscore is dropped. Empty input fingerprints to "".
//
// The key is used for duplicate matching only, never for display.
// Fingerprint is idempotent: Fingerprint(Fingerprint(s)) == Fingerprint(s).
func Fingerprint(s string) string {
	if s == "" {
		return ""
	}
	folded := cases.Fold().String(norm.NFKC.String(s))

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
