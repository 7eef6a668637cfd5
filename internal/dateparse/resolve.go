package dateparse

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sells-group/tripmatch/internal/model"
)

// DefaultHorizon bounds the forward search for a year-ambiguous date. It has
// to span at least one leap cycle so Feb 29 can resolve.
const DefaultHorizon = 8

// Resolve turns parsed parts into a calendar date. The parsed year is kept
// only when the source text spells out this month and day together with that
// year; otherwise the date is projected to its next occurrence on or after
// the reference day, searching at most horizon years ahead.
func Resolve(p Parts, nctx model.NormalizeContext, horizon int) (model.Date, bool) {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}

	if HasExplicitYear(nctx.SourceText, p) {
		return p.Date()
	}

	ref := nctx.Reference
	for y := ref.Year; y <= ref.Year+horizon; y++ {
		d, ok := model.NewDate(y, p.Month, p.Day)
		if ok && !d.Before(ref) {
			return d, true
		}
	}
	return model.Date{}, false
}

// ParseAndResolve parses a phrase using the reference year as fallback and
// resolves its year against the context.
func ParseAndResolve(s string, nctx model.NormalizeContext, horizon int) (model.Date, bool) {
	p, ok := Parse(s, nctx.Reference.Year)
	if !ok {
		return model.Date{}, false
	}
	return Resolve(p, nctx, horizon)
}

// HasExplicitYear reports whether text contains the month and day of p
// written together with p's year, as four digits or the two-digit suffix.
func HasExplicitYear(text string, p Parts) bool {
	if strings.TrimSpace(text) == "" || p.Year <= 0 {
		return false
	}
	for _, re := range explicitYearPatterns(p) {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func explicitYearPatterns(p Parts) []*regexp.Regexp {
	year := fmt.Sprintf("(?:%04d|%02d)", p.Year, p.Year%100)
	month := fmt.Sprintf("0?%d", int(p.Month))
	day := fmt.Sprintf("0?%d", p.Day)
	name := monthNamePattern(p.Month)
	const sep = `[/.\-]`
	const ord = `(?:st|nd|rd|th)?`

	return []*regexp.Regexp{
		regexp.MustCompile(`\b` + month + sep + day + sep + year + `\b`),
		regexp.MustCompile(`\b` + day + sep + month + sep + year + `\b`),
		regexp.MustCompile(`\b` + year + sep + month + sep + day + `\b`),
		regexp.MustCompile(`(?i)\b` + name + `\.?\s+` + day + ord + `,?\s+'?` + year + `\b`),
		regexp.MustCompile(`(?i)\b` + day + ord + `\s+` + name + `\.?,?\s+'?` + year + `\b`),
	}
}

// monthNamePattern matches the full name or any accepted abbreviation of m.
func monthNamePattern(m time.Month) string {
	var names []string
	for name, month := range monthNames {
		if month == m {
			names = append(names, name)
		}
	}
	// Longest first so "september" wins over "sep".
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	return "(?:" + strings.Join(names, "|") + ")"
}
