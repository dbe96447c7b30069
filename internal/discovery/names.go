package discovery

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldSpecial maps letters that do not decompose under NFD.
var foldSpecial = strings.NewReplacer(
	"ß", "ss", "ø", "o", "Ø", "o", "ł", "l", "Ł", "l", "æ", "ae", "Æ", "ae",
	"œ", "oe", "Œ", "oe", "đ", "d", "Đ", "d", "þ", "th",
)

// Transliterate strips diacritics so "José Núñez" becomes "Jose Nunez".
func Transliterate(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, foldSpecial.Replace(s))
	if err != nil {
		return s
	}
	return out
}

// SplitName returns the lowercase ASCII first and last name tokens used to build
// addresses. Hyphens and apostrophes are dropped inside a token ("O'Neil" -> "oneil").
// last is empty for single-token names.
func SplitName(name string) (first, last string) {
	var tokens []string
	for _, f := range strings.Fields(Transliterate(name)) {
		var b strings.Builder
		for _, r := range strings.ToLower(f) {
			if r >= 'a' && r <= 'z' {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
		}
	}
	switch len(tokens) {
	case 0:
		return "", ""
	case 1:
		return tokens[0], ""
	default:
		return tokens[0], tokens[len(tokens)-1]
	}
}
