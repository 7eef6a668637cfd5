// Package trips decides whether a document's items belong to an existing
// trip, either one of the account's own trips or a trip owned by another
// account in the same travel group.
package trips

import "github.com/sells-group/tripmatch/internal/model"

// DefaultToleranceDays is how many days two ranges may miss each other by
// and still count as the same trip.
const DefaultToleranceDays = 1

// RangesOverlap reports whether two date ranges overlap once each is widened
// outward by tol days. A nil start on either side never overlaps; a nil end
// is treated as that range's start.
func RangesOverlap(aStart, aEnd, bStart, bEnd *model.Date, tol int) bool {
	return overlaps(aStart, aEnd, tol, bStart, bEnd, tol)
}

func overlaps(aStart, aEnd *model.Date, aTol int, bStart, bEnd *model.Date, bTol int) bool {
	if aStart == nil || bStart == nil {
		return false
	}
	if aEnd == nil {
		aEnd = aStart
	}
	if bEnd == nil {
		bEnd = bStart
	}
	if aTol < 0 {
		aTol = 0
	}
	if bTol < 0 {
		bTol = 0
	}

	lowA, highA := aStart.AddDays(-aTol), aEnd.AddDays(aTol)
	lowB, highB := bStart.AddDays(-bTol), bEnd.AddDays(bTol)
	return !lowA.After(highB) && !highA.Before(lowB)
}

// Span returns the earliest start date and the latest end-or-start date
// across items. ok is false when items is empty.
func Span(items []model.Item) (start, end model.Date, ok bool) {
	for i, it := range items {
		last := it.LastDate()
		if i == 0 {
			start, end = it.StartDate, last
			continue
		}
		if it.StartDate.Before(start) {
			start = it.StartDate
		}
		if last.After(end) {
			end = last
		}
	}
	return start, end, len(items) > 0
}
