package datastore

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ł and Ł have no canonical decomposition, so NFD folding misses them.
var strokeFolder = strings.NewReplacer("ł", "l", "Ł", "L", "đ", "d", "Đ", "D", "ø", "o", "Ø", "O")

// foldDiacritics strips combining marks ("zażółć" -> "zazolc").
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strokeFolder.Replace(s))
	if err != nil {
		return s
	}
	return out
}

// Slugify converts a title to a URL-safe slug: diacritics are folded to
// ASCII, letters and digits are lowercased, and every other run of
// characters collapses to a single hyphen.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(foldDiacritics(s)))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
