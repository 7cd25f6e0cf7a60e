// Package fingerprint derives the canonical identity key used to join
// albums across metadata providers, cache entries, and feedback events.
// The key is derived purely from (artist, title); provider-native IDs are
// never part of it.
package fingerprint

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const separator = "::"

// Key returns the stable fingerprint for an album. It is a pure, total
// function: unknown characters are stripped, never rejected, and keying an
// already-normalized pair is a no-op.
func Key(artist, title string) string {
	return Normalize(artist) + separator + Normalize(title)
}

// Normalize lower-cases the input, folds diacritics, strips punctuation
// and collapses whitespace. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	folded := foldDiacritics(s)

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
			continue
		}
		// Punctuation, symbols and whitespace all act as a single
		// separator so "AC/DC" and "AC DC" collapse to the same key.
		pendingSpace = true
	}
	return b.String()
}

func foldDiacritics(s string) string {
	// The chain carries per-call state, so build it fresh rather than
	// sharing one transformer across goroutines.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}
