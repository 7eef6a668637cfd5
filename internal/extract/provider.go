package extract

import (
	"regexp"
	"strings"
)

// providerAfterRe matches "... with Air France is confirmed"; providerBeforeRe
// matches "SNCF booking confirmation #ABC123".
var (
	providerAfterRe  = regexp.MustCompile(`\b(?:[Ww]ith|[Bb]y)\s+([A-Z][\w&'.-]*(?:\s+[A-Z][\w&'.-]*)*)`)
	providerBeforeRe = regexp.MustCompile(`^([A-Z][\w&'.-]*(?:\s+[A-Z][\w&'.-]*)*)\s+(?i:booking|reservation|confirmation|itinerary|e-ticket|ticket|receipt|trip)\b`)
	flightNumberRe   = regexp.MustCompile(`^\s*([A-Z0-9]{2})\s?\d{1,4}[A-Z]?\b`)
)

var providerStopWords = map[string]struct{}{
	"your": {}, "the": {}, "a": {}, "an": {}, "my": {}, "our": {},
	"booking": {}, "reservation": {}, "confirmation": {}, "itinerary": {},
	"re": {}, "fw": {}, "fwd": {},
}

// ProviderFromSubject guesses the booking provider from a subject line, or
// returns "" when none is apparent.
func ProviderFromSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ""
	}

	if m := providerAfterRe.FindStringSubmatch(subject); m != nil {
		if p := cleanProvider(m[1]); p != "" {
			return p
		}
	}
	if m := providerBeforeRe.FindStringSubmatch(subject); m != nil {
		return cleanProvider(m[1])
	}
	return ""
}

// cleanProvider drops stop words at either end and trailing punctuation.
func cleanProvider(s string) string {
	words := strings.Fields(s)
	for len(words) > 0 && isStopWord(words[0]) {
		words = words[1:]
	}
	for len(words) > 0 && isStopWord(words[len(words)-1]) {
		words = words[:len(words)-1]
	}
	return strings.TrimRight(strings.Join(words, " "), ".,:;-")
}

func isStopWord(w string) bool {
	_, ok := providerStopWords[strings.ToLower(strings.Trim(w, ".:"))]
	return ok
}

// IATAFromFlight returns the two-character airline designator of a flight
// number such as "AF1234" or "DL 567", or "" when s is not a flight number.
func IATAFromFlight(s string) string {
	m := flightNumberRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	code := m[1]
	if strings.IndexFunc(code, func(r rune) bool { return r >= 'A' && r <= 'Z' }) < 0 {
		return ""
	}
	return code
}
