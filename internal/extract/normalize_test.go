package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/tripmatch/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func nctx(ref string, text string) model.NormalizeContext {
	d, err := model.ParseDate(ref)
	if err != nil {
		panic(err)
	}
	return model.NormalizeContext{Reference: d, SourceText: text}
}

func str(s string) *string {
	return &s
}

func TestCleanJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Here is the data:\n{\"a\":{\"b\":2}}\nLet me know!", `{"a":{"b":2}}`},
		{"no object", "I could not find any reservations.", ""},
		{"reversed braces", "} nothing {", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CleanJSON(tt.input))
		})
	}
}

func TestDefaultItem(t *testing.T) {
	t.Parallel()

	ref := model.Date{Year: 2026, Month: time.December, Day: 20}
	it := DefaultItem(ref)
	assert.Equal(t, model.KindOther, it.Kind)
	assert.Equal(t, model.StatusUnknown, it.Status)
	assert.Equal(t, DefaultConfidence, it.Confidence)
	assert.True(t, it.NeedsReview)
	assert.Equal(t, ref, it.StartDate)
	assert.Nil(t, it.EndDate)
	assert.NotNil(t, it.TravelerNames)
	assert.NotNil(t, it.Details)

	it.Details["x"] = 1
	assert.Empty(t, DefaultItem(ref).Details)
}

func TestNormalizeItem_InvalidEnums(t *testing.T) {
	t.Parallel()

	it := NormalizeItem(model.RawItem{
		Kind:       "invalid_kind",
		Status:     "mystery_status",
		Confidence: 0.9,
		StartDate:  str("2026-03-15"),
	}, nctx("2026-01-01", ""))

	assert.Equal(t, model.KindOther, it.Kind)
	assert.Equal(t, model.StatusUnknown, it.Status)
	assert.False(t, it.NeedsReview)
}

func TestNormalizeItem_Confidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		confidence any
		flag       any
		want       float64
		review     bool
	}{
		{"out of range high", 2.0, nil, 0.5, true},
		{"out of range low", -0.1, nil, 0.5, true},
		{"string", "0.9", nil, 0.5, true},
		{"missing", nil, nil, 0.5, true},
		{"bool", true, nil, 0.5, true},
		{"lower bound", 0.0, nil, 0.0, true},
		{"upper bound", 1.0, nil, 1.0, false},
		{"just below threshold", 0.649, false, 0.649, true},
		{"at threshold", 0.65, nil, 0.65, false},
		{"high but flagged", 0.95, true, 0.95, true},
		{"flag not bool", 0.95, "yes", 0.95, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			it := NormalizeItem(model.RawItem{Confidence: tt.confidence, NeedsReview: tt.flag}, nctx("2026-01-01", ""))
			assert.InDelta(t, tt.want, it.Confidence, 1e-9)
			assert.GreaterOrEqual(t, it.Confidence, 0.0)
			assert.LessOrEqual(t, it.Confidence, 1.0)
			assert.Equal(t, tt.review, it.NeedsReview)
		})
	}
}

func TestNormalizer_CustomThreshold(t *testing.T) {
	t.Parallel()

	n := Normalizer{ReviewThreshold: 0.9}
	it := n.NormalizeItem(model.RawItem{Confidence: 0.8}, nctx("2026-01-01", ""))
	assert.True(t, it.NeedsReview)

	it = Normalizer{ReviewThreshold: 5}.NormalizeItem(model.RawItem{Confidence: 0.8}, nctx("2026-01-01", ""))
	assert.False(t, it.NeedsReview, "invalid threshold falls back to default")
}

func TestNormalizeItem_Dates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ref       string
		text      string
		start     *string
		end       *string
		wantStart string
		wantEnd   string
	}{
		{"year ambiguous projects forward", "2026-12-20", "Your flight on Jan 5", str("Jan 5"), nil, "2027-01-05", ""},
		{"explicit past year preserved", "2026-12-20", "Departure: Jan 5, 2026", str("Jan 5 2026"), nil, "2026-01-05", ""},
		{"unparsable falls back to reference", "2026-12-20", "", str("sometime soon"), nil, "2026-12-20", ""},
		{"missing falls back to reference", "2026-12-20", "", nil, nil, "2026-12-20", ""},
		{"end resolved", "2026-05-01", "", str("June 1"), str("June 7"), "2026-06-01", "2026-06-07"},
		{"unparsable end stays nil", "2026-05-01", "", str("June 1"), str("later"), "2026-06-01", ""},
		{"iso with explicit text", "2026-05-01", "Check-in 2025-06-01", str("2025-06-01"), nil, "2025-06-01", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			it := NormalizeItem(model.RawItem{StartDate: tt.start, EndDate: tt.end}, nctx(tt.ref, tt.text))
			assert.Equal(t, tt.wantStart, it.StartDate.String())
			if tt.wantEnd == "" {
				assert.Nil(t, it.EndDate)
				return
			}
			require.NotNil(t, it.EndDate)
			assert.Equal(t, tt.wantEnd, it.EndDate.String())
		})
	}
}

func TestNormalizeItem_TravelersAndDetails(t *testing.T) {
	t.Parallel()

	c := nctx("2026-01-01", "")

	it := NormalizeItem(model.RawItem{TravelerNames: []any{" Alex Rogers ", 7, "", "Sam Rogers", nil}}, c)
	assert.Equal(t, []string{"Alex Rogers", "Sam Rogers"}, it.TravelerNames)

	it = NormalizeItem(model.RawItem{TravelerNames: "Alex Rogers"}, c)
	assert.Equal(t, []string{}, it.TravelerNames)

	it = NormalizeItem(model.RawItem{TravelerNames: []string{"Jo"}}, c)
	assert.Equal(t, []string{"Jo"}, it.TravelerNames)

	it = NormalizeItem(model.RawItem{}, c)
	assert.NotNil(t, it.TravelerNames)
	assert.Equal(t, map[string]any{}, it.Details)

	it = NormalizeItem(model.RawItem{Details: map[string]any{"room_type": "King"}}, c)
	assert.Equal(t, "King", it.Details["room_type"])
}

func TestNormalizeItem_Supplements(t *testing.T) {
	t.Parallel()

	c := nctx("2026-01-01", "")
	c.Subject = "Your itinerary with Air France is confirmed"

	it := NormalizeItem(model.RawItem{
		Kind:    "flight",
		Details: map[string]any{"flight_number": "AF1234"},
	}, c)
	require.NotNil(t, it.Provider)
	assert.Equal(t, "Air France", *it.Provider)
	assert.Equal(t, "AF", it.Details["airline_code"])

	it = NormalizeItem(model.RawItem{
		Kind:     "flight",
		Provider: str(" Delta "),
		Details:  map[string]any{"flight_number": "DL 567", "airline_code": "XX"},
	}, c)
	assert.Equal(t, "Delta", *it.Provider)
	assert.Equal(t, "XX", it.Details["airline_code"])

	it = NormalizeItem(model.RawItem{Kind: "train", Details: map[string]any{"flight_number": "AF1"}}, c)
	assert.NotContains(t, it.Details, "airline_code")

	it = NormalizeItem(model.RawItem{Provider: str("   ")}, nctx("2026-01-01", ""))
	assert.Nil(t, it.Provider)
}

func TestNormalizeItem_DoesNotMutateRawDetails(t *testing.T) {
	t.Parallel()

	raw := model.RawItem{
		Kind:    "flight",
		Details: map[string]any{"flight_number": "AF1234"},
	}
	it := NormalizeItem(raw, nctx("2026-01-01", ""))

	assert.Equal(t, "AF", it.Details["airline_code"])
	assert.Equal(t, map[string]any{"flight_number": "AF1234"}, raw.Details)

	it.Details["seat"] = "12A"
	assert.NotContains(t, raw.Details, "seat")
}

func TestNormalizeDocument(t *testing.T) {
	t.Parallel()

	c := nctx("2026-01-01", "")

	doc := NormalizeDocument(model.RawExtraction{
		Items: []model.RawItem{{Confidence: 0.9}, {Confidence: 0.7}, {Confidence: "bad"}},
	}, c)
	assert.Equal(t, UnknownDocType, doc.DocType)
	assert.InDelta(t, (0.9+0.7+0.5)/3, doc.OverallConfidence, 1e-9)
	assert.Len(t, doc.Items, 3)

	doc = NormalizeDocument(model.RawExtraction{DocType: str("itinerary"), OverallConfidence: 0.42, Items: []model.RawItem{{Confidence: 0.9}}}, c)
	assert.Equal(t, "itinerary", doc.DocType)
	assert.InDelta(t, 0.42, doc.OverallConfidence, 1e-9)

	doc = NormalizeDocument(model.RawExtraction{DocType: str("  ")}, c)
	assert.Equal(t, UnknownDocType, doc.DocType)
	assert.Zero(t, doc.OverallConfidence)
	assert.NotNil(t, doc.Items)
	assert.Empty(t, doc.Items)
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	text := "Sure! Here is the extraction:\n```json\n" + `{
  "doc_type": "travel_confirmation",
  "items": [
    {
      "kind": "flight",
      "provider": "ANA",
      "confirmation_code": "X7K2P9",
      "traveler_names": ["Alex Rogers"],
      "start_date": "Jun 2",
      "end_date": null,
      "start_location": "SFO",
      "end_location": "HND",
      "status": "confirmed",
      "confidence": 0.92,
      "needs_review": false,
      "details": {"flight_number": "NH7"}
    },
    "not an item",
    {
      "kind": "hotel",
      "start_date": 20260602,
      "traveler_names": "Alex",
      "confidence": 2
    }
  ]
}` + "\n```"

	got := ParseResponse(text, nctx("2026-05-01", ""))
	assert.Equal(t, "travel_confirmation", got.DocType)
	require.Len(t, got.Items, 2)

	flight := got.Items[0]
	assert.Equal(t, model.KindFlight, flight.Kind)
	assert.Equal(t, model.StatusConfirmed, flight.Status)
	assert.Equal(t, "2026-06-02", flight.StartDate.String())
	assert.Equal(t, []string{"Alex Rogers"}, flight.TravelerNames)
	assert.Equal(t, "NH", flight.Details["airline_code"])
	assert.False(t, flight.NeedsReview)

	hotel := got.Items[1]
	assert.Equal(t, model.KindHotel, hotel.Kind)
	assert.Equal(t, "2026-05-01", hotel.StartDate.String())
	assert.Equal(t, []string{}, hotel.TravelerNames)
	assert.InDelta(t, 0.5, hotel.Confidence, 1e-9)
	assert.True(t, hotel.NeedsReview)

	assert.InDelta(t, (0.92+0.5)/2, got.OverallConfidence, 1e-9)
}

func TestParseResponse_Malformed(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		"",
		"I'm sorry, I couldn't find any travel reservations in this email.",
		"{not json at all}",
		`["a", "list"]`,
	} {
		got := ParseResponse(text, nctx("2026-05-01", ""))
		assert.Equal(t, EmptyExtraction(), got, "input %q", text)
	}
}

func TestDecodeRaw_Errors(t *testing.T) {
	t.Parallel()

	_, err := DecodeRaw("no braces")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract: no JSON object")

	_, err = DecodeRaw("{bad}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract: decode response")

	raw, err := DecodeRaw(`{"doc_type": 5, "items": {"kind": "flight"}}`)
	require.NoError(t, err)
	assert.Nil(t, raw.DocType)
	assert.Empty(t, raw.Items)
}
