package trips

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tripmatch/internal/location"
	"github.com/sells-group/tripmatch/internal/model"
)

func docItems(names []string, start, end *model.Date, dest string) []model.Item {
	return []model.Item{{
		Kind:          model.KindFlight,
		TravelerNames: names,
		StartDate:     *start,
		EndDate:       end,
		StartLocation: strPtr("SFO"),
		EndLocation:   strPtr(dest),
		Details:       map[string]any{},
	}}
}

func tokyoTrip(id string, names []string, start, end *model.Date) model.TripCandidate {
	return model.TripCandidate{
		ID:              id,
		OwnerID:         "sibling-" + id,
		Title:           "Tokyo",
		StartDate:       start,
		EndDate:         end,
		PrimaryLocation: strPtr("Tokyo"),
		TravelerNames:   names,
	}
}

func TestGroupMatcher_SiblingTripMatched(t *testing.T) {
	t.Parallel()

	g := NewGroupMatcher(location.NewAirportResolver(nil), DefaultToleranceDays)
	items := docItems([]string{"alex rogers"}, d(2026, 6, 2), d(2026, 6, 6), "HND")
	cands := []model.TripCandidate{tokyoTrip("t1", []string{"Alex Rogers"}, d(2026, 6, 1), d(2026, 6, 7))}

	res, err := g.Match(context.Background(), items, cands)
	require.NoError(t, err)
	require.True(t, res.Matched())
	assert.Equal(t, "t1", res.Trip.ID)
	assert.Equal(t, "sibling-t1", res.Trip.OwnerID)
	assert.Equal(t, 1, res.SharedTravelers)
	assert.Equal(t, 1, res.DayDistance)
}

func TestGroupMatcher_NoSharedTravelers(t *testing.T) {
	t.Parallel()

	g := NewGroupMatcher(location.NewAirportResolver(nil), DefaultToleranceDays)
	items := docItems([]string{"Jo Rogers"}, d(2026, 6, 1), d(2026, 6, 7), "Tokyo")
	cands := []model.TripCandidate{tokyoTrip("t1", []string{"Alex Rogers"}, d(2026, 6, 1), d(2026, 6, 7))}

	res, err := g.Match(context.Background(), items, cands)
	require.NoError(t, err)
	assert.False(t, res.Matched())
}

func TestGroupMatcher_EarlyExits(t *testing.T) {
	t.Parallel()

	cands := []model.TripCandidate{tokyoTrip("t1", []string{"Alex Rogers"}, d(2026, 6, 1), d(2026, 6, 7))}

	t.Run("no travelers", func(t *testing.T) {
		t.Parallel()
		r := new(mockResolver)
		g := NewGroupMatcher(r, 1)
		res, err := g.Match(context.Background(), docItems([]string{}, d(2026, 6, 2), nil, "Tokyo"), cands)
		require.NoError(t, err)
		assert.False(t, res.Matched())
		r.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	})

	t.Run("no destinations", func(t *testing.T) {
		t.Parallel()
		items := []model.Item{{TravelerNames: []string{"Alex Rogers"}, StartDate: *d(2026, 6, 2)}}
		res, err := NewGroupMatcher(nil, 1).Match(context.Background(), items, cands)
		require.NoError(t, err)
		assert.False(t, res.Matched())
	})

	t.Run("resolver returns nothing", func(t *testing.T) {
		t.Parallel()
		r := new(mockResolver)
		r.On("Resolve", mock.Anything, "Tokyo").Return("", nil)
		res, err := NewGroupMatcher(r, 1).Match(context.Background(), docItems([]string{"Alex Rogers"}, d(2026, 6, 2), nil, "Tokyo"), cands)
		require.NoError(t, err)
		assert.False(t, res.Matched())
		r.AssertExpectations(t)
	})

	t.Run("no items", func(t *testing.T) {
		t.Parallel()
		res, err := NewGroupMatcher(nil, 1).Match(context.Background(), nil, cands)
		require.NoError(t, err)
		assert.False(t, res.Matched())
	})
}

func TestGroupMatcher_ResolverError(t *testing.T) {
	t.Parallel()

	r := new(mockResolver)
	r.On("Resolve", mock.Anything, "Tokyo").Return("", errors.New("geocoder down"))

	g := NewGroupMatcher(r, 1)
	_, err := g.Match(context.Background(), docItems([]string{"Alex Rogers"}, d(2026, 6, 2), nil, "Tokyo"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geocoder down")
	r.AssertExpectations(t)
}

func TestGroupMatcher_Filters(t *testing.T) {
	t.Parallel()

	g := NewGroupMatcher(location.NewAirportResolver(nil), 1)
	items := docItems([]string{"Alex Rogers"}, d(2026, 6, 2), d(2026, 6, 6), "Tokyo")

	wrongDates := tokyoTrip("dates", []string{"Alex Rogers"}, d(2026, 7, 1), d(2026, 7, 7))
	wrongPlace := tokyoTrip("place", []string{"Alex Rogers"}, d(2026, 6, 1), d(2026, 6, 7))
	wrongPlace.PrimaryLocation = strPtr("Osaka")
	noPlace := tokyoTrip("noplace", []string{"Alex Rogers"}, d(2026, 6, 1), d(2026, 6, 7))
	noPlace.PrimaryLocation = nil
	noStart := tokyoTrip("nostart", []string{"Alex Rogers"}, nil, d(2026, 6, 7))

	res, err := g.Match(context.Background(), items, []model.TripCandidate{wrongDates, wrongPlace, noPlace, noStart})
	require.NoError(t, err)
	assert.False(t, res.Matched())
}

func TestGroupMatcher_LocationVariants(t *testing.T) {
	t.Parallel()

	g := NewGroupMatcher(location.NewAirportResolver(nil), 1)
	items := docItems([]string{"Alex Rogers"}, d(2026, 3, 10), nil, "CDG - Paris")
	cand := tokyoTrip("paris", []string{"alex  rogers"}, d(2026, 3, 9), d(2026, 3, 12))
	cand.PrimaryLocation = strPtr("Paris (CDG)")

	res, err := g.Match(context.Background(), items, []model.TripCandidate{cand})
	require.NoError(t, err)
	require.True(t, res.Matched())
	assert.Equal(t, "paris", res.Trip.ID)
}

func TestGroupMatcher_TieBreaks(t *testing.T) {
	t.Parallel()

	g := NewGroupMatcher(location.NewAirportResolver(nil), 1)
	items := docItems([]string{"Alex Rogers", "Sam Rogers"}, d(2026, 6, 4), d(2026, 6, 6), "Tokyo")

	t.Run("more shared travelers wins", func(t *testing.T) {
		t.Parallel()
		one := tokyoTrip("one", []string{"Alex Rogers"}, d(2026, 6, 4), d(2026, 6, 6))
		two := tokyoTrip("two", []string{"Alex Rogers", "Sam Rogers"}, d(2026, 6, 1), d(2026, 6, 7))
		res, err := g.Match(context.Background(), items, []model.TripCandidate{one, two})
		require.NoError(t, err)
		require.True(t, res.Matched())
		assert.Equal(t, "two", res.Trip.ID)
		assert.Equal(t, 2, res.SharedTravelers)
	})

	t.Run("closer start wins on tie", func(t *testing.T) {
		t.Parallel()
		far := tokyoTrip("far", []string{"Alex Rogers"}, d(2026, 6, 1), d(2026, 6, 7))
		near := tokyoTrip("near", []string{"Sam Rogers"}, d(2026, 6, 5), d(2026, 6, 8))
		res, err := g.Match(context.Background(), items, []model.TripCandidate{far, near})
		require.NoError(t, err)
		require.True(t, res.Matched())
		assert.Equal(t, "near", res.Trip.ID)
		assert.Equal(t, 1, res.DayDistance)
	})

	t.Run("first candidate kept on full tie", func(t *testing.T) {
		t.Parallel()
		a := tokyoTrip("a", []string{"Alex Rogers"}, d(2026, 6, 3), d(2026, 6, 7))
		b := tokyoTrip("b", []string{"Sam Rogers"}, d(2026, 6, 5), d(2026, 6, 7))
		res, err := g.Match(context.Background(), items, []model.TripCandidate{a, b})
		require.NoError(t, err)
		require.True(t, res.Matched())
		assert.Equal(t, "a", res.Trip.ID)
	})
}

func TestGroupMatcher_NeverZeroShared(t *testing.T) {
	t.Parallel()

	g := NewGroupMatcher(nil, 1)
	items := docItems([]string{"Alex Rogers"}, d(2026, 6, 2), nil, "Tokyo")

	var cands []model.TripCandidate
	for i, names := range [][]string{{"Jo"}, {}, {"Alex Rogers"}, {"Kim", "Lee"}} {
		cands = append(cands, tokyoTrip(string(rune('a'+i)), names, d(2026, 6, 1), d(2026, 6, 3)))
	}

	res, err := g.Match(context.Background(), items, cands)
	require.NoError(t, err)
	require.True(t, res.Matched())
	assert.Equal(t, "c", res.Trip.ID)
	assert.Positive(t, res.SharedTravelers)
}

func TestNewGroupMatcher_NegativeTolerance(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultToleranceDays, NewGroupMatcher(nil, -1).ToleranceDays)
	assert.Equal(t, 0, NewGroupMatcher(nil, 0).ToleranceDays)
}
