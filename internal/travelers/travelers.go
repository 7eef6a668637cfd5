// Package travelers normalizes traveler names and scores overlap between
// the travelers on a document and the travelers on a trip.
package travelers

import (
	"strings"

	"github.com/sells-group/tripmatch/internal/model"
)

// NormalizeName lowercases a name and collapses internal whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Set is a set of normalized traveler names.
type Set map[string]struct{}

// NewSet builds a Set from display names. Blank names are skipped.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		if key := NormalizeName(n); key != "" {
			s[key] = struct{}{}
		}
	}
	return s
}

// FromItems builds a Set from every traveler on every item.
func FromItems(items []model.Item) Set {
	s := make(Set)
	for _, it := range items {
		for _, n := range it.TravelerNames {
			if key := NormalizeName(n); key != "" {
				s[key] = struct{}{}
			}
		}
	}
	return s
}

// Contains reports whether name, once normalized, is in the set.
func (s Set) Contains(name string) bool {
	_, ok := s[NormalizeName(name)]
	return ok
}

// SharedCount counts the entries of names whose normalized form is in s.
// Duplicate entries in names are each counted.
func (s Set) SharedCount(names []string) int {
	n := 0
	for _, name := range names {
		if s.Contains(name) {
			n++
		}
	}
	return n
}

// Collect returns the unique, trimmed traveler names across items in the
// order they first appear. Uniqueness is by exact trimmed value.
func Collect(items []model.Item) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, it := range items {
		for _, n := range it.TravelerNames {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}
