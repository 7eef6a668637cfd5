package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/tripmatch/internal/assign"
	"github.com/sells-group/tripmatch/internal/location"
	"github.com/sells-group/tripmatch/internal/model"
	"github.com/sells-group/tripmatch/internal/store"
	"github.com/sells-group/tripmatch/internal/trips"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, doc model.Document, examples []model.Example) (string, error) {
	args := m.Called(ctx, doc, examples)
	return args.String(0), args.Error(1)
}

const tokyoTrip = `{
  "doc_type": "travel_confirmation",
  "items": [
    {"kind": "hotel", "traveler_names": ["Alex Rogers"], "start_date": "Jun 3", "end_date": "Jun 6",
     "start_location": "Tokyo", "confidence": 0.9, "status": "confirmed"},
    {"kind": "flight", "traveler_names": ["Alex Rogers"], "start_date": "Jun 2",
     "start_location": "SFO", "end_location": "HND", "confidence": 0.95, "status": "confirmed"}
  ]
}`

const tokyoDinner = `{
  "doc_type": "reservation",
  "items": [
    {"kind": "restaurant", "traveler_names": ["Alex Rogers"], "start_date": "June 4",
     "start_location": "Tokyo", "confidence": 0.8}
  ]
}`

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newOrchestrator() *assign.Orchestrator {
	return &assign.Orchestrator{
		Own:   trips.GapMatcher{ToleranceDays: trips.DefaultToleranceDays},
		Group: trips.NewGroupMatcher(location.NewAirportResolver(nil), trips.DefaultToleranceDays),
		Now:   func() time.Time { return time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC) },
	}
}

func document(subject string) model.Document {
	return model.Document{
		AccountID:  "acct-a",
		Sender:     "Trips <noreply@airline.example>",
		Subject:    subject,
		Body:       "Your booking is confirmed.",
		ReceivedAt: time.Date(2026, time.April, 30, 18, 0, 0, 0, time.UTC),
	}
}

func TestPipeline_CreatesTripThenReusesIt(t *testing.T) {
	st := newTestStore(t)
	ext := &mockExtractor{}
	ctx := context.Background()

	first := document("Flight and hotel confirmation")
	second := document("Dinner reservation")
	ext.On("Extract", mock.Anything, mock.MatchedBy(func(d model.Document) bool { return d.Subject == first.Subject }), mock.Anything).
		Return(tokyoTrip, nil).Once()
	ext.On("Extract", mock.Anything, mock.MatchedBy(func(d model.Document) bool { return d.Subject == second.Subject }), mock.Anything).
		Return(tokyoDinner, nil).Once()

	p := New(st, ext, newOrchestrator(), 3)

	res, err := p.Run(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, res.Status)
	assert.NotEmpty(t, res.DocumentID)
	require.NotNil(t, res.Decision)
	assert.Equal(t, model.OutcomeCreateTrip, res.Decision.Outcome)
	assert.Len(t, res.Extraction.Items, 2)

	own, err := st.OwnTrips(ctx, "acct-a")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, res.TripID, own[0].ID)
	assert.Equal(t, "2026-06-02", own[0].StartDate.String())
	assert.Equal(t, "2026-06-06", own[0].EndDate.String())
	require.NotNil(t, own[0].PrimaryLocation)
	assert.Equal(t, "Tokyo", *own[0].PrimaryLocation)
	assert.Equal(t, []string{"Alex Rogers"}, own[0].TravelerNames)

	res2, err := p.Run(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, res2.Status)
	assert.Equal(t, model.OutcomeOwnTrip, res2.Decision.Outcome)
	assert.Equal(t, res.TripID, res2.TripID)

	own, err = st.OwnTrips(ctx, "acct-a")
	require.NoError(t, err)
	assert.Len(t, own, 1)
	ext.AssertExpectations(t)
}

func TestPipeline_GroupTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tokyo := "Tokyo"
	start := model.Date{Year: 2026, Month: time.June, Day: 1}
	end := model.Date{Year: 2026, Month: time.June, Day: 7}
	sibling, err := st.CreateTrip(ctx, store.NewTrip{
		OwnerID:         "acct-b",
		GroupID:         "grp-1",
		Title:           "Tokyo",
		StartDate:       &start,
		EndDate:         &end,
		PrimaryLocation: &tokyo,
		TravelerNames:   []string{"alex rogers", "Sam Rogers"},
	})
	require.NoError(t, err)

	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return(tokyoTrip, nil)

	doc := document("Flight and hotel confirmation")
	doc.GroupID = "grp-1"

	res, err := New(st, ext, newOrchestrator(), 3).Run(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeGroupTrip, res.Decision.Outcome)
	assert.Equal(t, sibling.ID, res.TripID)
	assert.Equal(t, "acct-b", res.Decision.OwnerAccountID)

	own, err := st.OwnTrips(ctx, "acct-a")
	require.NoError(t, err)
	assert.Empty(t, own)
}

func TestPipeline_DuplicateSkipped(t *testing.T) {
	st := newTestStore(t)
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return(tokyoTrip, nil)
	p := New(st, ext, newOrchestrator(), 3)
	ctx := context.Background()

	doc := document("Flight and hotel confirmation")
	res, err := p.Run(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, res.Status)

	res, err = p.Run(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, res.Status)
	assert.Nil(t, res.Decision)
	ext.AssertNumberOfCalls(t, "Extract", 1)

	own, err := st.OwnTrips(ctx, "acct-a")
	require.NoError(t, err)
	assert.Len(t, own, 1)
}

func TestPipeline_Unprocessable(t *testing.T) {
	st := newTestStore(t)
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return("I could not find any bookings.", nil)

	p := New(st, ext, newOrchestrator(), 3)
	res, err := p.Run(context.Background(), document("Newsletter"))
	require.NoError(t, err)
	assert.Equal(t, StatusUnprocessable, res.Status)
	assert.Empty(t, res.Extraction.Items)
	assert.Equal(t, "unknown", res.Extraction.DocType)

	res, err = p.Run(context.Background(), document("Newsletter"))
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, res.Status)
	ext.AssertNumberOfCalls(t, "Extract", 1)
}

func TestPipeline_ExtractError(t *testing.T) {
	st := newTestStore(t)
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("overloaded"))
	p := New(st, ext, newOrchestrator(), 3)
	ctx := context.Background()

	doc := document("Flight and hotel confirmation")
	_, err := p.Run(ctx, doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: extract")

	// The failed attempt must not claim the document.
	done, err := st.IsProcessed(ctx, doc.IdempotencyKey())
	require.NoError(t, err)
	assert.False(t, done)
}

func TestPipeline_PassesExamplesForSender(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.SaveExample(ctx, model.Example{SenderDomain: "airline.example", Subject: "Your flight", UsageCount: 3})
	require.NoError(t, err)
	_, err = st.SaveExample(ctx, model.Example{SenderDomain: "hotel.example", Subject: "Your stay"})
	require.NoError(t, err)

	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything, mock.MatchedBy(func(ex []model.Example) bool {
		return len(ex) == 1 && ex[0].Subject == "Your flight"
	})).Return(tokyoTrip, nil)

	_, err = New(st, ext, newOrchestrator(), 3).Run(ctx, document("Flight and hotel confirmation"))
	require.NoError(t, err)
	ext.AssertExpectations(t)
}

// flakyStore fails the first call to failOn with a transient error.
type flakyStore struct {
	*store.SQLiteStore
	failOn string
	calls  map[string]int
}

func newFlakyStore(t *testing.T, failOn string) *flakyStore {
	return &flakyStore{SQLiteStore: newTestStore(t), failOn: failOn, calls: map[string]int{}}
}

func (f *flakyStore) fail(method string) error {
	f.calls[method]++
	if method == f.failOn && f.calls[method] == 1 {
		return errors.New("database is locked")
	}
	return nil
}

func (f *flakyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	if err := f.fail("IsProcessed"); err != nil {
		return false, err
	}
	return f.SQLiteStore.IsProcessed(ctx, key)
}

func (f *flakyStore) OwnTrips(ctx context.Context, accountID string) ([]model.TripCandidate, error) {
	if err := f.fail("OwnTrips"); err != nil {
		return nil, err
	}
	return f.SQLiteStore.OwnTrips(ctx, accountID)
}

func (f *flakyStore) Persist(ctx context.Context, w store.Write) (string, error) {
	if err := f.fail("Persist"); err != nil {
		return "", err
	}
	return f.SQLiteStore.Persist(ctx, w)
}

func TestPipeline_RetrySucceedsAfterTransientStoreError(t *testing.T) {
	tests := []struct {
		failOn  string
		wantErr string
	}{
		{"IsProcessed", "pipeline: check document"},
		{"OwnTrips", "pipeline: assign"},
		{"Persist", "pipeline: persist create_trip decision"},
	}

	for _, tt := range tests {
		t.Run(tt.failOn, func(t *testing.T) {
			st := newFlakyStore(t, tt.failOn)
			ext := &mockExtractor{}
			ext.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return(tokyoTrip, nil)
			p := New(st, ext, newOrchestrator(), 3)
			ctx := context.Background()
			doc := document("Flight and hotel confirmation")

			_, err := p.Run(ctx, doc)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			own, err := st.OwnTrips(ctx, "acct-a")
			require.NoError(t, err)
			assert.Empty(t, own)

			res, err := p.Run(ctx, doc)
			require.NoError(t, err)
			assert.Equal(t, StatusAssigned, res.Status)
			assert.Equal(t, model.OutcomeCreateTrip, res.Decision.Outcome)

			own, err = st.OwnTrips(ctx, "acct-a")
			require.NoError(t, err)
			require.Len(t, own, 1)
			assert.Equal(t, res.TripID, own[0].ID)
		})
	}
}

// staleCheckStore never reports a document as processed, as when two
// deliveries of one document pass the check before either commits.
type staleCheckStore struct {
	*store.SQLiteStore
}

func (staleCheckStore) IsProcessed(context.Context, string) (bool, error) {
	return false, nil
}

func TestPipeline_ConcurrentDuplicateWritesNothing(t *testing.T) {
	st := staleCheckStore{newTestStore(t)}
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return(tokyoTrip, nil)
	p := New(st, ext, newOrchestrator(), 3)
	ctx := context.Background()
	doc := document("Flight and hotel confirmation")

	res, err := p.Run(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, res.Status)

	res, err = p.Run(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, res.Status)
	assert.Empty(t, res.TripID)

	own, err := st.OwnTrips(ctx, "acct-a")
	require.NoError(t, err)
	assert.Len(t, own, 1)
}

func TestNewTripFor(t *testing.T) {
	end := model.Date{Year: 2026, Month: time.June, Day: 9}
	doc := model.Document{AccountID: "acct-a", GroupID: "grp-1"}
	d := model.Decision{
		Outcome: model.OutcomeCreateTrip,
		Items: []model.Item{
			{Kind: model.KindHotel, StartDate: model.Date{Year: 2026, Month: time.June, Day: 5}, EndDate: &end, EndLocation: strPtr("Lisbon")},
			{Kind: model.KindFlight, StartDate: model.Date{Year: 2026, Month: time.June, Day: 4}},
		},
	}

	nt := NewTripFor(doc, d)
	assert.Equal(t, "acct-a", nt.OwnerID)
	assert.Equal(t, "grp-1", nt.GroupID)
	assert.Equal(t, "Lisbon", nt.Title)
	assert.Equal(t, "2026-06-04", nt.StartDate.String())
	assert.Equal(t, "2026-06-09", nt.EndDate.String())

	d.SuggestedTitle = "Trip to Lisbon - Jun 2026"
	assert.Equal(t, "Trip to Lisbon - Jun 2026", NewTripFor(doc, d).Title)
}

func strPtr(s string) *string {
	return &s
}
