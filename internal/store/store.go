// Package store persists trips, attached items, processed-document claims
// and few-shot extraction examples.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tripmatch/internal/model"
)

// ErrAlreadyProcessed is returned by Persist when the idempotency key was
// claimed before. Nothing is written.
var ErrAlreadyProcessed = eris.New("store: document already processed")

// DefaultExampleLimit caps SelectExamples when no limit is given.
const DefaultExampleLimit = 3

// NewTrip holds the fields of a trip being created.
type NewTrip struct {
	OwnerID         string
	GroupID         string
	Title           string
	StartDate       *model.Date
	EndDate         *model.Date
	PrimaryLocation *string
	TravelerNames   []string
}

// Write is everything one processed document persists. Persist commits all
// of it or none of it, so a failed write leaves the document unclaimed and
// no trip behind.
type Write struct {
	// IdempotencyKey is claimed when non-empty.
	IdempotencyKey string
	DocumentID     string
	// TripID receives the items unless NewTrip is set.
	TripID  string
	NewTrip *NewTrip
	Items   []model.Item
}

// Store defines the persistence interface for trip assignment.
type Store interface {
	// Trips
	OwnTrips(ctx context.Context, accountID string) ([]model.TripCandidate, error)
	GroupTrips(ctx context.Context, groupID, excludeAccountID string) ([]model.TripCandidate, error)
	CreateTrip(ctx context.Context, trip NewTrip) (*model.TripCandidate, error)
	AttachItems(ctx context.Context, tripID, documentID string, items []model.Item) error
	// Persist applies w in one transaction and returns the trip the items
	// went to, or "" for a claim with no trip.
	Persist(ctx context.Context, w Write) (string, error)

	// Documents
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Few-shot examples
	SelectExamples(ctx context.Context, senderDomain string, limit int) ([]model.Example, error)
	SaveExample(ctx context.Context, ex model.Example) (string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
