package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// PostalCodeLength is the length of a French postal code.
const PostalCodeLength = 5

// ExtractPostalCode returns the first run of five consecutive digits in
// address, scanning left to right. The result is a heuristic: house numbers,
// phone fragments and SIRET excerpts match too, so later stages must cope
// with false positives.
func ExtractPostalCode(address string) (string, bool) {
	run := 0
	for i := 0; i < len(address); i++ {
		c := address[i]
		if c < '0' || c > '9' {
			run = 0
			continue
		}
		run++
		if run == PostalCodeLength {
			return address[i-PostalCodeLength+1 : i+1], true
		}
	}
	return "", false
}

// Fold uppercases s and strips diacritics, e.g. "Saint-Étienne" becomes
// "SAINT-ETIENNE". Both sides of the commune match go through Fold.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToUpper(ligatures.Replace(folded))
}

// ligatures are not decomposed by NFD.
var ligatures = strings.NewReplacer("œ", "oe", "Œ", "OE", "æ", "ae", "Æ", "AE")

// IsBlank reports whether s has no content after trimming.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
