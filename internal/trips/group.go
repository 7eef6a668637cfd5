package trips

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tripmatch/internal/location"
	"github.com/sells-group/tripmatch/internal/model"
	"github.com/sells-group/tripmatch/internal/travelers"
)

// GroupMatcher picks the trip, owned by another account in the same travel
// group, that a document's items most likely belong to.
type GroupMatcher struct {
	Resolver      location.Resolver
	ToleranceDays int
}

// NewGroupMatcher returns a GroupMatcher. A negative tolerance is replaced
// with DefaultToleranceDays.
func NewGroupMatcher(resolver location.Resolver, toleranceDays int) *GroupMatcher {
	if toleranceDays < 0 {
		toleranceDays = DefaultToleranceDays
	}
	return &GroupMatcher{Resolver: resolver, ToleranceDays: toleranceDays}
}

// Match filters candidates by date overlap, destination and shared
// travelers, then keeps the one with the most shared travelers. Ties go to
// the candidate whose start is closest to the document's earliest start.
//
// A document with no travelers or no resolvable destination never matches.
// Resolver errors are returned as-is to the caller.
func (g *GroupMatcher) Match(ctx context.Context, items []model.Item, candidates []model.TripCandidate) (model.MatchResult, error) {
	names := travelers.FromItems(items)
	if len(names) == 0 {
		zap.L().Debug("trips: no travelers on document, skipping group match")
		return model.MatchResult{}, nil
	}

	spanStart, spanEnd, ok := Span(items)
	if !ok {
		return model.MatchResult{}, nil
	}

	destinations, err := g.destinations(ctx, items)
	if err != nil {
		return model.MatchResult{}, err
	}
	if len(destinations) == 0 {
		zap.L().Debug("trips: no destination tokens, skipping group match")
		return model.MatchResult{}, nil
	}

	var best model.MatchResult
	for i := range candidates {
		c := &candidates[i]

		if !RangesOverlap(&spanStart, &spanEnd, c.StartDate, c.EndDate, g.ToleranceDays) {
			rejected(c, "dates")
			continue
		}
		token, ok := location.CanonicalizePtr(c.PrimaryLocation)
		if !ok {
			rejected(c, "no_location")
			continue
		}
		if _, ok := destinations[token]; !ok {
			rejected(c, "location")
			continue
		}
		shared := names.SharedCount(c.TravelerNames)
		if shared == 0 {
			rejected(c, "travelers")
			continue
		}

		res := model.MatchResult{Trip: c, SharedTravelers: shared, DayDistance: dayDistance(spanStart, c.StartDate)}
		if better(res, best) {
			best = res
		}
	}

	if best.Matched() {
		zap.L().Debug("trips: group trip matched",
			zap.String("trip_id", best.Trip.ID),
			zap.String("owner_id", best.Trip.OwnerID),
			zap.Int("shared_travelers", best.SharedTravelers),
			zap.Int("day_distance", best.DayDistance),
		)
	}
	return best, nil
}

func (g *GroupMatcher) destinations(ctx context.Context, items []model.Item) (map[string]struct{}, error) {
	tokens := make(map[string]struct{})
	for _, it := range items {
		raw := it.Destination()
		if raw == "" {
			continue
		}
		place := raw
		if g.Resolver != nil {
			resolved, err := g.Resolver.Resolve(ctx, raw)
			if err != nil {
				return nil, eris.Wrapf(err, "trips: resolve location %q", raw)
			}
			place = resolved
		}
		if token, ok := location.Canonicalize(place); ok {
			tokens[token] = struct{}{}
		}
	}
	return tokens, nil
}

// better reports whether a should replace the current best b.
func better(a, b model.MatchResult) bool {
	if !b.Matched() {
		return true
	}
	if a.SharedTravelers != b.SharedTravelers {
		return a.SharedTravelers > b.SharedTravelers
	}
	return a.DayDistance < b.DayDistance
}

func dayDistance(from model.Date, start *model.Date) int {
	if start == nil {
		return math.MaxInt
	}
	d := from.DaysUntil(*start)
	if d < 0 {
		return -d
	}
	return d
}

func rejected(c *model.TripCandidate, reason string) {
	zap.L().Debug("trips: candidate rejected",
		zap.String("trip_id", c.ID),
		zap.String("reason", reason),
	)
}
