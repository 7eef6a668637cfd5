// Package pipeline processes one inbound document end to end: duplicate
// check, extraction call, assignment decision and persistence.
package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tripmatch/internal/assign"
	"github.com/sells-group/tripmatch/internal/model"
	"github.com/sells-group/tripmatch/internal/store"
	"github.com/sells-group/tripmatch/internal/trips"
)

// Extractor produces the raw extraction text for a document.
type Extractor interface {
	Extract(ctx context.Context, doc model.Document, examples []model.Example) (string, error)
}

// Status is the terminal state of one pipeline run.
type Status string

const (
	StatusAssigned      Status = "assigned"
	StatusDuplicate     Status = "duplicate"
	StatusUnprocessable Status = "unprocessable"
)

// Result describes what happened to one document.
type Result struct {
	DocumentID string           `json:"document_id"`
	Status     Status           `json:"status"`
	TripID     string           `json:"trip_id,omitempty"`
	Extraction model.Extraction `json:"extraction"`
	Decision   *model.Decision  `json:"decision,omitempty"`
}

// Pipeline wires the extraction call, the orchestrator and the store.
type Pipeline struct {
	store        store.Store
	extractor    Extractor
	orchestrator *assign.Orchestrator
	exampleLimit int
}

// New creates a Pipeline. The orchestrator reads trips from st unless it
// already has a TripSource.
func New(st store.Store, extractor Extractor, orch *assign.Orchestrator, exampleLimit int) *Pipeline {
	if orch.Trips == nil {
		orch.Trips = st
	}
	return &Pipeline{
		store:        st,
		extractor:    extractor,
		orchestrator: orch,
		exampleLimit: exampleLimit,
	}
}

// Run processes doc. A document whose idempotency key was already claimed
// returns StatusDuplicate without touching any trip; one with no travel
// items returns StatusUnprocessable. Both are successful runs.
//
// The key is claimed in the same store transaction that writes the trip and
// items, so a run that fails at any step can be retried.
func (p *Pipeline) Run(ctx context.Context, doc model.Document) (*Result, error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	log := zap.L().With(zap.String("document_id", doc.ID), zap.String("account_id", doc.AccountID))
	log.Info("pipeline: processing document", zap.String("subject", doc.Subject))

	result := &Result{DocumentID: doc.ID}
	key := doc.IdempotencyKey()

	done, err := p.store.IsProcessed(ctx, key)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: check document")
	}
	if done {
		log.Info("pipeline: duplicate document skipped")
		result.Status = StatusDuplicate
		return result, nil
	}

	examples, err := p.store.SelectExamples(ctx, doc.SenderDomain(), p.exampleLimit)
	if err != nil {
		log.Warn("pipeline: examples unavailable, extracting without them", zap.Error(err))
		examples = nil
	}

	text, err := p.extractor.Extract(ctx, doc, examples)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: extract")
	}

	res, err := p.orchestrator.Assign(ctx, doc, text)
	result.Extraction = res.Extraction
	if errors.Is(err, assign.ErrUnprocessable) {
		// Claim the key so a redelivery skips the extraction call.
		_, err := p.store.Persist(ctx, store.Write{IdempotencyKey: key, DocumentID: doc.ID})
		if err != nil && !errors.Is(err, store.ErrAlreadyProcessed) {
			return nil, eris.Wrap(err, "pipeline: claim document")
		}
		log.Warn("pipeline: no travel items extracted")
		result.Status = StatusUnprocessable
		return result, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: assign")
	}

	tripID, err := p.persist(ctx, doc, key, res.Decision)
	if errors.Is(err, store.ErrAlreadyProcessed) {
		log.Info("pipeline: document claimed by a concurrent run, nothing written")
		result.Status = StatusDuplicate
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	result.Status = StatusAssigned
	result.TripID = tripID
	result.Decision = &res.Decision
	log.Info("pipeline: document assigned",
		zap.String("outcome", string(res.Decision.Outcome)),
		zap.String("trip_id", tripID),
		zap.Int("items", len(res.Decision.Items)),
	)
	return result, nil
}

// persist writes a decision and the document's claim in one store transaction.
func (p *Pipeline) persist(ctx context.Context, doc model.Document, key string, d model.Decision) (string, error) {
	w := store.Write{
		IdempotencyKey: key,
		DocumentID:     doc.ID,
		TripID:         d.TripID,
		Items:          d.Items,
	}
	if d.Outcome == model.OutcomeCreateTrip {
		nt := NewTripFor(doc, d)
		w.NewTrip = &nt
	}

	tripID, err := p.store.Persist(ctx, w)
	if errors.Is(err, store.ErrAlreadyProcessed) {
		return "", err
	}
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: persist %s decision", d.Outcome)
	}
	return tripID, nil
}

// NewTripFor builds the trip a create_trip decision asks for, spanning the
// decision's items.
func NewTripFor(doc model.Document, d model.Decision) store.NewTrip {
	nt := store.NewTrip{
		OwnerID:         doc.AccountID,
		GroupID:         doc.GroupID,
		Title:           d.SuggestedTitle,
		PrimaryLocation: d.PrimaryLocation,
		TravelerNames:   d.Travelers,
	}
	if nt.Title == "" {
		nt.Title = trips.FallbackName(d.Items)
	}
	if start, end, ok := trips.Span(d.Items); ok {
		nt.StartDate, nt.EndDate = &start, &end
	}
	return nt
}
