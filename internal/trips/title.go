package trips

import (
	"regexp"
	"strings"

	"github.com/sells-group/tripmatch/internal/model"
)

var (
	parenCodeRe    = regexp.MustCompile(`\s*\([A-Z]{3}\)\s*`)
	codePrefixRe   = regexp.MustCompile(`^[A-Z]{3}(?:\s*[-–]\s*|$)`)
	defaultTitleRe = regexp.MustCompile(`(?i)^(Trip\s*-|Trip to|Untitled)`)
)

const untitled = "Untitled Trip"

// SuggestTitle builds a title for a new trip from its first item, e.g.
// "Trip to Paris - Mar 2026", or "Trip - Mar 2026" without a location.
func SuggestTitle(item model.Item) string {
	monthYear := item.StartDate.Time().Format("Jan 2006")
	if loc := cleanLocation(item.Destination()); loc != "" {
		return "Trip to " + loc + " - " + monthYear
	}
	return "Trip - " + monthYear
}

// FallbackName names a trip after up to three of its destinations joined
// with arrows. Without destinations it falls back to "Trip - Mon YYYY".
func FallbackName(items []model.Item) string {
	if len(items) == 0 {
		return untitled
	}

	var dests []string
	seen := make(map[string]struct{})
	for _, it := range items {
		loc := cleanLocation(it.Destination())
		if loc == "" {
			continue
		}
		if _, ok := seen[loc]; ok {
			continue
		}
		seen[loc] = struct{}{}
		dests = append(dests, loc)
	}

	if len(dests) == 0 {
		return "Trip - " + items[0].StartDate.Time().Format("Jan 2006")
	}
	if len(dests) > 3 {
		dests = dests[:3]
	}
	return strings.Join(dests, " → ")
}

// IsDefaultTitle reports whether title is a generated placeholder that may
// be replaced by a better name.
func IsDefaultTitle(title string) bool {
	return defaultTitleRe.MatchString(title)
}

// ExpandRange widens a trip's range so it covers item.
func ExpandRange(start, end *model.Date, item model.Item) (model.Date, model.Date) {
	newStart, newEnd := item.StartDate, item.LastDate()
	if start != nil && start.Before(newStart) {
		newStart = *start
	}
	if end != nil && end.After(newEnd) {
		newEnd = *end
	}
	return newStart, newEnd
}

// PrimaryLocation returns the most frequent destination across items. Ties
// go to the location seen first; nil when no item has a location.
func PrimaryLocation(items []model.Item) *string {
	counts := make(map[string]int)
	var order []string
	for _, it := range items {
		loc := it.Destination()
		if loc == "" {
			continue
		}
		if counts[loc] == 0 {
			order = append(order, loc)
		}
		counts[loc]++
	}
	if len(order) == 0 {
		return nil
	}

	best := order[0]
	for _, loc := range order[1:] {
		if counts[loc] > counts[best] {
			best = loc
		}
	}
	return &best
}

func cleanLocation(loc string) string {
	loc = parenCodeRe.ReplaceAllString(loc, " ")
	loc = codePrefixRe.ReplaceAllString(strings.TrimSpace(loc), "")
	return strings.TrimSpace(loc)
}
