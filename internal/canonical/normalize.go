// Package canonical normalizes free-text substance names, resolves known
// synonyms, and deduplicates import batches.
package canonical

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	parenRe      = regexp.MustCompile(`\s*[(\[][^)\]]*[)\]]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	slugStripRe  = regexp.MustCompile(`[^a-z0-9]+`)
)

// stripAccents removes combining marks after NFD decomposition, so
// "Ayahuasca" and "ayahuascá" normalize to the same token stream.
var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName trims, case-folds, strips parenthetical qualifiers, and
// transliterates accents. "KRATOM (extract)" and "kratom " both normalize
// to "kratom".
func NormalizeName(raw string) string {
	s := strings.TrimSpace(raw)
	s = parenRe.ReplaceAllString(s, "")
	if out, _, err := transform.String(stripAccents, s); err == nil {
		s = out
	}
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// Slugify derives the URL-safe natural key from a canonical name.
func Slugify(name string) string {
	s := NormalizeName(name)
	s = slugStripRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// DisplayName trims a raw name for display without altering its casing.
func DisplayName(raw string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(raw), " ")
}
