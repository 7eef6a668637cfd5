// Package dateparse turns free-text date phrases from travel documents into
// calendar dates and decides which year an ambiguous phrase refers to.
package dateparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/tripmatch/internal/model"
)

// Parts is a parsed date phrase. HasYear is false when the phrase carried no
// year and Year holds the caller's fallback.
type Parts struct {
	Year    int
	Month   time.Month
	Day     int
	HasYear bool
}

// Date validates the parts as a calendar date.
func (p Parts) Date() (model.Date, bool) {
	return model.NewDate(p.Year, p.Month, p.Day)
}

var (
	isoRe        = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})[-/](\d{1,2})(?:[t\s].*)?$`)
	monthFirstRe = regexp.MustCompile(`^([a-z]+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}|\d{2}))?` + timeSuffix + `$`)
	dayFirstRe   = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?\s+([a-z]+)\.?(?:,?\s+(\d{4}|\d{2}))?` + timeSuffix + `$`)
	numericRe    = regexp.MustCompile(`^(\d{1,2})[./-](\d{1,2})(?:[./-](\d{4}|\d{2}))?$`)
	weekdayRe    = regexp.MustCompile(`^(?:mon|tue|tues|wed|thu|thur|thurs|fri|sat|sun)[a-z]*\.?,?\s+`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

const timeSuffix = `(?:,?\s+(?:at\s+)?\d{1,2}:\d{2}(?:\s*[ap]\.?m\.?)?)?`

// fallbackLayouts are tried with time.Parse when no pattern matches.
var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Monday, January 2, 2006",
	"Monday, 2 January 2006",
	"Mon, Jan 2, 2006",
	"Mon, 2 Jan 2006",
	"Mon Jan 2 2006",
	"January 2 2006 15:04",
	"20060102",
}

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"jun": time.June, "jul": time.July, "aug": time.August, "sep": time.September,
	"sept": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// MonthByName returns the month for a full English month name or its
// three-letter abbreviation, case-insensitively.
func MonthByName(name string) (time.Month, bool) {
	m, ok := monthNames[strings.ToLower(strings.TrimSuffix(name, "."))]
	return m, ok
}

// ExpandYear turns a year token into a four-digit year. Two-digit tokens at
// or above 70 are 19xx, the rest 20xx.
func ExpandYear(token string) (int, bool) {
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0, false
	}
	if len(token) == 2 {
		if n >= 70 {
			return 1900 + n, true
		}
		return 2000 + n, true
	}
	return n, true
}

// Parse reads a date phrase. fallbackYear fills in the year for phrases that
// omit one. The second return is false for anything that is not a real
// calendar day.
func Parse(s string, fallbackYear int) (Parts, bool) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Parts{}, false
	}
	lower := spaceRe.ReplaceAllString(strings.ToLower(raw), " ")

	if m := isoRe.FindStringSubmatch(lower); m != nil {
		year, _ := strconv.Atoi(m[1])
		return validate(year, atoi(m[2]), atoi(m[3]), true)
	}

	phrase := weekdayRe.ReplaceAllString(lower, "")

	if m := monthFirstRe.FindStringSubmatch(phrase); m != nil {
		if month, ok := MonthByName(m[1]); ok {
			year, hasYear := yearOr(m[3], fallbackYear)
			return validate(year, int(month), atoi(m[2]), hasYear)
		}
	}

	if m := dayFirstRe.FindStringSubmatch(phrase); m != nil {
		if month, ok := MonthByName(m[2]); ok {
			year, hasYear := yearOr(m[3], fallbackYear)
			return validate(year, int(month), atoi(m[1]), hasYear)
		}
	}

	if m := numericRe.FindStringSubmatch(phrase); m != nil {
		a, b := atoi(m[1]), atoi(m[2])
		month, day := a, b
		if a > 12 {
			day, month = a, b
		}
		year, hasYear := yearOr(m[3], fallbackYear)
		return validate(year, month, day, hasYear)
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			y, mo, d := t.Date()
			return validate(y, int(mo), d, true)
		}
	}

	return Parts{}, false
}

// validate rebuilds the date from its parts. Phrases without a year are
// checked against a leap year so "Feb 29" survives until year resolution.
func validate(year, month, day int, hasYear bool) (Parts, bool) {
	checkYear := year
	if !hasYear {
		checkYear = leapYear
	}
	if _, ok := model.NewDate(checkYear, time.Month(month), day); !ok {
		return Parts{}, false
	}
	return Parts{Year: year, Month: time.Month(month), Day: day, HasYear: hasYear}, true
}

const leapYear = 2000

func yearOr(token string, fallback int) (int, bool) {
	if token == "" {
		return fallback, false
	}
	y, ok := ExpandYear(token)
	if !ok {
		return fallback, false
	}
	return y, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
