package trips

import (
	"context"
	"sort"

	"github.com/sells-group/tripmatch/internal/model"
)

// OwnMatch is the result of matching one item against the account's own
// trips. An empty TripID means no match; SuggestedTitle is then set.
type OwnMatch struct {
	TripID         string
	SuggestedTitle string
}

// Matched reports whether an own trip was found.
func (m OwnMatch) Matched() bool {
	return m.TripID != ""
}

// OwnMatcher matches one item against the account's own trips.
type OwnMatcher interface {
	Match(ctx context.Context, item model.Item, trips []model.TripCandidate) (OwnMatch, error)
}

// GapMatcher matches an item to any own trip whose range, widened by
// ToleranceDays, overlaps the item's dates. With several hits the trip
// starting closest to the item wins.
type GapMatcher struct {
	ToleranceDays int
}

// Match implements OwnMatcher. It never fails.
func (g GapMatcher) Match(_ context.Context, item model.Item, trips []model.TripCandidate) (OwnMatch, error) {
	start := item.StartDate
	end := item.LastDate()

	var hits []model.TripCandidate
	for _, t := range trips {
		if overlaps(&start, &end, 0, t.StartDate, t.EndDate, g.ToleranceDays) {
			hits = append(hits, t)
		}
	}
	if len(hits) == 0 {
		return OwnMatch{SuggestedTitle: SuggestTitle(item)}, nil
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return dayDistance(start, hits[i].StartDate) < dayDistance(start, hits[j].StartDate)
	})
	return OwnMatch{TripID: hits[0].ID}, nil
}
