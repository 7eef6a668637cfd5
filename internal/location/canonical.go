// Package location normalizes free-text travel locations into comparison
// tokens and resolves airport codes to city names.
package location

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	parenCodeRe  = regexp.MustCompile(`\([A-Z]{3}\)`)
	codePrefixRe = regexp.MustCompile(`^[A-Z]{3}\s*[-–]\s*`)
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	multiSpaceRe = regexp.MustCompile(`\s+`)
)

// Canonicalize reduces a location to a token suitable for equality checks:
//  1. Fold accents ("São Paulo" → "Sao Paulo")
//  2. Strip "(XXX)" airport codes
//  3. Strip a leading "XXX -" code prefix
//  4. Lowercase
//  5. Replace punctuation with spaces
//  6. Collapse whitespace and trim
//
// Codes are matched before lowercasing and only in uppercase, so a
// hyphenated name such as "Rio-de-Janeiro" keeps its first word.
// The second return is false when nothing is left.
func Canonicalize(loc string) (string, bool) {
	s := foldAccents(strings.TrimSpace(loc))
	s = parenCodeRe.ReplaceAllString(s, " ")
	s = codePrefixRe.ReplaceAllString(strings.TrimSpace(s), "")
	s = strings.ToLower(s)
	s = punctRe.ReplaceAllString(s, " ")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}

// CanonicalizePtr is Canonicalize for nullable locations.
func CanonicalizePtr(loc *string) (string, bool) {
	if loc == nil {
		return "", false
	}
	return Canonicalize(*loc)
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
