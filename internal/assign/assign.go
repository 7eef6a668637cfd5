// Package assign decides, once per inbound document, whether its items go
// to one of the account's own trips, to a trip shared through the travel
// group, or to a new trip.
package assign

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tripmatch/internal/extract"
	"github.com/sells-group/tripmatch/internal/model"
	"github.com/sells-group/tripmatch/internal/travelers"
	"github.com/sells-group/tripmatch/internal/trips"
)

// ErrUnprocessable is returned when a document normalizes to zero items.
// It is terminal: retrying the same payload gives the same result.
var ErrUnprocessable = eris.New("assign: document has no travel items")

// TripSource supplies read-only trip snapshots.
type TripSource interface {
	OwnTrips(ctx context.Context, accountID string) ([]model.TripCandidate, error)
	GroupTrips(ctx context.Context, groupID, excludeAccountID string) ([]model.TripCandidate, error)
}

// Result is the normalized extraction plus the assignment decision.
type Result struct {
	Extraction model.Extraction `json:"extraction"`
	Decision   model.Decision   `json:"decision"`
}

// Orchestrator sequences normalization, own-trip matching and group-trip
// matching. It never creates or updates trips.
type Orchestrator struct {
	Normalizer extract.Normalizer
	Trips      TripSource
	Own        trips.OwnMatcher
	Group      *trips.GroupMatcher

	// Routing picks the item matched against own trips. Zero is RouteFirstItem.
	Routing RoutingPolicy

	// Location sets the calendar day used as the reference date. Nil means UTC.
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

// NormalizeContext builds the context for doc with today's date in o.Location.
func (o *Orchestrator) NormalizeContext(doc model.Document) model.NormalizeContext {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	loc := o.Location
	if loc == nil {
		loc = time.UTC
	}
	return model.NormalizeContext{
		Reference:  model.DateOf(now().In(loc)),
		SourceText: doc.SourceText(),
		Subject:    doc.Subject,
	}
}

// Assign runs a single decision for doc given the raw extraction text.
func (o *Orchestrator) Assign(ctx context.Context, doc model.Document, llmText string) (Result, error) {
	return o.NewRun(doc, llmText).Decide(ctx)
}

// Run is one triggering event for one document. Decide evaluates at most
// once; later calls return the memoized result.
type Run struct {
	o    *Orchestrator
	doc  model.Document
	text string

	once   sync.Once
	result Result
	err    error
}

// NewRun prepares a decision for doc.
func (o *Orchestrator) NewRun(doc model.Document, llmText string) *Run {
	return &Run{o: o, doc: doc, text: llmText}
}

// Decide returns the assignment decision, computing it on the first call.
func (r *Run) Decide(ctx context.Context) (Result, error) {
	r.once.Do(func() {
		r.result, r.err = r.o.decide(ctx, r.doc, r.text)
	})
	return r.result, r.err
}

func (o *Orchestrator) decide(ctx context.Context, doc model.Document, text string) (Result, error) {
	log := zap.L().With(zap.String("document_id", doc.ID), zap.String("account_id", doc.AccountID))

	ext := o.Normalizer.ParseResponse(text, o.NormalizeContext(doc))
	res := Result{Extraction: ext}
	if len(ext.Items) == 0 {
		log.Warn("assign: no items extracted")
		return res, ErrUnprocessable
	}

	own, err := o.Trips.OwnTrips(ctx, doc.AccountID)
	if err != nil {
		return res, eris.Wrapf(err, "assign: load own trips for %s", doc.AccountID)
	}
	var group []model.TripCandidate
	if doc.GroupID != "" && o.Group != nil {
		group, err = o.Trips.GroupTrips(ctx, doc.GroupID, doc.AccountID)
		if err != nil {
			return res, eris.Wrapf(err, "assign: load group trips for %s", doc.GroupID)
		}
	}

	routing := o.Routing.Item(ext.Items)

	ownMatch, err := o.Own.Match(ctx, routing, own)
	if err != nil {
		return res, eris.Wrap(err, "assign: own trip match")
	}
	if ownMatch.Matched() {
		res.Decision = model.Decision{Outcome: model.OutcomeOwnTrip, TripID: ownMatch.TripID, Items: ext.Items}
		log.Info("assign: own trip matched", zap.String("trip_id", ownMatch.TripID))
		return res, nil
	}

	if len(group) > 0 {
		gm, err := o.Group.Match(ctx, ext.Items, group)
		if err != nil {
			return res, eris.Wrap(err, "assign: group trip match")
		}
		if gm.Matched() {
			res.Decision = model.Decision{
				Outcome:         model.OutcomeGroupTrip,
				TripID:          gm.Trip.ID,
				OwnerAccountID:  gm.Trip.OwnerID,
				SharedTravelers: gm.SharedTravelers,
				Items:           ext.Items,
			}
			log.Info("assign: group trip matched",
				zap.String("trip_id", gm.Trip.ID),
				zap.String("owner_id", gm.Trip.OwnerID),
				zap.Int("shared_travelers", gm.SharedTravelers),
			)
			return res, nil
		}
	}

	title := ownMatch.SuggestedTitle
	if title == "" {
		title = trips.SuggestTitle(routing)
	}
	res.Decision = model.Decision{
		Outcome:         model.OutcomeCreateTrip,
		CreateNew:       true,
		SuggestedTitle:  title,
		PrimaryLocation: trips.PrimaryLocation(ext.Items),
		Travelers:       travelers.Collect(ext.Items),
		Items:           ext.Items,
	}
	log.Info("assign: no trip matched, create new", zap.String("title", title))
	return res, nil
}

// RoutingPolicy selects the item that routes a whole document.
type RoutingPolicy string

const (
	// RouteFirstItem routes on the first extracted item.
	RouteFirstItem RoutingPolicy = "first_item"
	// RouteByKind routes on the first item of the highest-priority kind,
	// with transport ahead of stays.
	RouteByKind RoutingPolicy = "by_kind"
)

// ParseRoutingPolicy validates a configured policy. Empty means RouteFirstItem.
func ParseRoutingPolicy(s string) (RoutingPolicy, error) {
	switch p := RoutingPolicy(s); p {
	case "":
		return RouteFirstItem, nil
	case RouteFirstItem, RouteByKind:
		return p, nil
	}
	return "", eris.Errorf("assign: unknown routing policy %q", s)
}

// Item returns the routing item of a non-empty item list.
func (p RoutingPolicy) Item(items []model.Item) model.Item {
	if p == RouteByKind {
		return RoutingItemByKind(items)
	}
	return RoutingItem(items)
}

// RoutingItem is the first item.
func RoutingItem(items []model.Item) model.Item {
	return items[0]
}

// RoutingItemByKind picks the first item of the highest-priority kind.
func RoutingItemByKind(items []model.Item) model.Item {
	best := 0
	for i := 1; i < len(items); i++ {
		if routingRank(items[i].Kind) < routingRank(items[best].Kind) {
			best = i
		}
	}
	return items[best]
}

func routingRank(k model.Kind) int {
	switch k {
	case model.KindFlight, model.KindTrain, model.KindCar:
		return 0
	case model.KindHotel:
		return 1
	case model.KindActivity, model.KindRestaurant:
		return 2
	case model.KindOther:
		return 3
	}
	return 3
}
