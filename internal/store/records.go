package store

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tripmatch/internal/model"
	"github.com/sells-group/tripmatch/internal/travelers"
	"github.com/sells-group/tripmatch/internal/trips"
)

// itemColumns is the column order of trip_items rows built by itemRows.
var itemColumns = []string{"id", "trip_id", "document_id", "kind", "start_date", "end_date", "item"}

type scannable interface {
	Scan(dest ...any) error
}

// scanTrip reads the seven trip columns selected by both stores. Dates,
// location and travelers arrive as text so both drivers share one path.
func scanTrip(row scannable) (*model.TripCandidate, error) {
	var t model.TripCandidate
	var start, end, loc, names string
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &start, &end, &loc, &names); err != nil {
		return nil, err
	}

	var err error
	if t.StartDate, err = parseOptionalDate(start); err != nil {
		return nil, err
	}
	if t.EndDate, err = parseOptionalDate(end); err != nil {
		return nil, err
	}
	if loc != "" {
		t.PrimaryLocation = &loc
	}
	t.TravelerNames = []string{}
	if names != "" {
		if err := json.Unmarshal([]byte(names), &t.TravelerNames); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal traveler names")
		}
	}
	return &t, nil
}

func parseOptionalDate(s string) (*model.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// dateText is the nullable YYYY-MM-DD form of d.
func dateText(d *model.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func optionalText(s *string) any {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return *s
}

func marshalNames(names []string) ([]byte, error) {
	if names == nil {
		names = []string{}
	}
	b, err := json.Marshal(names)
	return b, eris.Wrap(err, "store: marshal traveler names")
}

// applyItems widens the trip's date range to cover items and appends any
// traveler not already on the trip.
func applyItems(t *model.TripCandidate, items []model.Item) {
	for _, it := range items {
		start, end := trips.ExpandRange(t.StartDate, t.EndDate, it)
		t.StartDate, t.EndDate = &start, &end
	}

	known := travelers.NewSet(t.TravelerNames...)
	for _, name := range travelers.Collect(items) {
		if known.Contains(name) {
			continue
		}
		known[travelers.NormalizeName(name)] = struct{}{}
		t.TravelerNames = append(t.TravelerNames, name)
	}
}

// itemRows builds one trip_items row per item in itemColumns order. dateFn
// converts dates to the driver's parameter form.
func itemRows(tripID, documentID string, items []model.Item, dateFn func(*model.Date) any) ([][]any, error) {
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		payload, err := json.Marshal(it)
		if err != nil {
			return nil, eris.Wrap(err, "store: marshal item")
		}
		start := it.StartDate
		rows = append(rows, []any{
			uuid.New().String(),
			tripID,
			documentID,
			string(it.Kind),
			dateFn(&start),
			dateFn(it.EndDate),
			payload,
		})
	}
	return rows, nil
}

func unmarshalExtraction(raw string) (map[string]any, error) {
	out := map[string]any{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal corrected extraction")
	}
	return out, nil
}

func marshalExtraction(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	b, err := json.Marshal(m)
	return b, eris.Wrap(err, "store: marshal corrected extraction")
}

func scanExample(row scannable) (*model.Example, error) {
	var ex model.Example
	var corrected string
	err := row.Scan(&ex.ID, &ex.SenderDomain, &ex.Subject, &ex.BodySnippet, &ex.AttachmentSnippet,
		&corrected, &ex.ProviderPattern, &ex.ItemKind, &ex.UsageCount)
	if err != nil {
		return nil, err
	}
	if ex.CorrectedExtraction, err = unmarshalExtraction(corrected); err != nil {
		return nil, err
	}
	return &ex, nil
}

func newTripCandidate(id string, trip NewTrip) *model.TripCandidate {
	names := trip.TravelerNames
	if names == nil {
		names = []string{}
	}
	var loc *string
	if trip.PrimaryLocation != nil && strings.TrimSpace(*trip.PrimaryLocation) != "" {
		l := *trip.PrimaryLocation
		loc = &l
	}
	return &model.TripCandidate{
		ID:              id,
		OwnerID:         trip.OwnerID,
		Title:           trip.Title,
		StartDate:       trip.StartDate,
		EndDate:         trip.EndDate,
		PrimaryLocation: loc,
		TravelerNames:   names,
	}
}
