// Package extract turns the text returned by the extraction call into
// normalized, validated travel items.
package extract

import (
	"encoding/json"
	"maps"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/tripmatch/internal/dateparse"
	"github.com/sells-group/tripmatch/internal/model"
)

const (
	// DefaultReviewThreshold is the confidence below which an item always
	// needs review.
	DefaultReviewThreshold = 0.65

	// DefaultConfidence replaces a missing, non-numeric or out-of-range confidence.
	DefaultConfidence = 0.5

	// UnknownDocType labels documents without a usable doc_type.
	UnknownDocType = "unknown"
)

// Normalizer coerces raw extraction payloads into model types. The zero
// value uses the package defaults.
type Normalizer struct {
	ReviewThreshold float64
	YearHorizon     int
}

func (n Normalizer) threshold() float64 {
	if n.ReviewThreshold <= 0 || n.ReviewThreshold > 1 {
		return DefaultReviewThreshold
	}
	return n.ReviewThreshold
}

func (n Normalizer) horizon() int {
	if n.YearHorizon <= 0 {
		return dateparse.DefaultHorizon
	}
	return n.YearHorizon
}

// EmptyExtraction is the result for a payload that could not be parsed.
func EmptyExtraction() model.Extraction {
	return model.Extraction{DocType: UnknownDocType, OverallConfidence: 0, Items: []model.Item{}}
}

// DefaultItem is the fallback item every normalization starts from: kind
// other, status unknown, default confidence, dated on ref.
func DefaultItem(ref model.Date) model.Item {
	return model.Item{
		Kind:          model.KindOther,
		TravelerNames: []string{},
		StartDate:     ref,
		Status:        model.StatusUnknown,
		Confidence:    DefaultConfidence,
		NeedsReview:   DefaultConfidence < DefaultReviewThreshold,
		Details:       map[string]any{},
	}
}

// CleanJSON strips markdown fences and surrounding prose, returning the
// first '{' through the last '}'.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)
	for _, fence := range []string{"```json", "```JSON", "```"} {
		if strings.HasPrefix(text, fence) {
			text = strings.TrimPrefix(text, fence)
			if idx := strings.LastIndex(text, "```"); idx >= 0 {
				text = text[:idx]
			}
			break
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}

// ParseResponse normalizes the raw text of an extraction call with the
// default Normalizer.
func ParseResponse(text string, nctx model.NormalizeContext) model.Extraction {
	return Normalizer{}.ParseResponse(text, nctx)
}

// NormalizeDocument normalizes a decoded payload with the default Normalizer.
func NormalizeDocument(raw model.RawExtraction, nctx model.NormalizeContext) model.Extraction {
	return Normalizer{}.NormalizeDocument(raw, nctx)
}

// NormalizeItem normalizes one raw item with the default Normalizer.
func NormalizeItem(raw model.RawItem, nctx model.NormalizeContext) model.Item {
	return Normalizer{}.NormalizeItem(raw, nctx)
}

// ParseResponse extracts the embedded JSON object from text and normalizes
// it. It never fails: a payload without a usable object yields EmptyExtraction.
func (n Normalizer) ParseResponse(text string, nctx model.NormalizeContext) model.Extraction {
	raw, err := DecodeRaw(text)
	if err != nil {
		zap.L().Warn("extract: unparsable extraction payload",
			zap.Error(err),
			zap.Int("response_len", len(text)),
		)
		return EmptyExtraction()
	}
	return n.NormalizeDocument(raw, nctx)
}

// DecodeRaw decodes the first JSON object in text into a RawExtraction.
// Fields with unexpected JSON types are dropped rather than failing the
// whole payload.
func DecodeRaw(text string) (model.RawExtraction, error) {
	cleaned := CleanJSON(text)
	if cleaned == "" {
		return model.RawExtraction{}, eris.New("extract: no JSON object in response")
	}

	var root map[string]any
	if err := json.Unmarshal([]byte(cleaned), &root); err != nil {
		return model.RawExtraction{}, eris.Wrap(err, "extract: decode response")
	}

	raw := model.RawExtraction{
		DocType:           stringField(root, "doc_type"),
		OverallConfidence: root["overall_confidence"],
	}
	if items, ok := root["items"].([]any); ok {
		for i, v := range items {
			m, ok := v.(map[string]any)
			if !ok {
				zap.L().Debug("extract: skipping non-object item", zap.Int("index", i))
				continue
			}
			raw.Items = append(raw.Items, rawItem(m))
		}
	}
	return raw, nil
}

// NormalizeDocument normalizes every item and fills in the document-level
// fields.
func (n Normalizer) NormalizeDocument(raw model.RawExtraction, nctx model.NormalizeContext) model.Extraction {
	out := model.Extraction{DocType: UnknownDocType, Items: make([]model.Item, 0, len(raw.Items))}
	if raw.DocType != nil && strings.TrimSpace(*raw.DocType) != "" {
		out.DocType = strings.TrimSpace(*raw.DocType)
	}

	var sum float64
	for _, ri := range raw.Items {
		it := n.NormalizeItem(ri, nctx)
		sum += it.Confidence
		out.Items = append(out.Items, it)
	}

	switch c, ok := raw.OverallConfidence.(float64); {
	case ok:
		out.OverallConfidence = c
	case len(out.Items) > 0:
		out.OverallConfidence = sum / float64(len(out.Items))
	}
	return out
}

// NormalizeItem coerces one raw item. Unknown kinds and statuses fall back
// to other and unknown, bad confidences to DefaultConfidence, and an
// unparsable start date to the reference date.
func (n Normalizer) NormalizeItem(raw model.RawItem, nctx model.NormalizeContext) model.Item {
	it := DefaultItem(nctx.Reference)

	it.Kind = model.ParseKind(raw.Kind)
	it.Status = model.ParseStatus(raw.Status)
	it.Provider = trimmed(raw.Provider)
	it.ConfirmationCode = trimmed(raw.ConfirmationCode)
	it.StartTS = trimmed(raw.StartTS)
	it.EndTS = trimmed(raw.EndTS)
	it.StartLocation = trimmed(raw.StartLocation)
	it.EndLocation = trimmed(raw.EndLocation)
	it.Summary = trimmed(raw.Summary)

	if c, ok := raw.Confidence.(float64); ok && c >= 0 && c <= 1 {
		it.Confidence = c
	}
	flagged, _ := raw.NeedsReview.(bool)
	it.NeedsReview = flagged || it.Confidence < n.threshold()

	if d, ok := n.resolveDate(raw.StartDate, nctx); ok {
		it.StartDate = d
	} else if raw.StartDate != nil {
		zap.L().Debug("extract: unparsable start date, using reference date",
			zap.String("start_date", *raw.StartDate),
			zap.Stringer("reference", nctx.Reference),
		)
	}
	if d, ok := n.resolveDate(raw.EndDate, nctx); ok {
		it.EndDate = &d
	}

	it.TravelerNames = travelerNames(raw.TravelerNames)
	if raw.Details != nil {
		it.Details = maps.Clone(raw.Details)
	}

	if it.Provider == nil {
		if p := ProviderFromSubject(nctx.Subject); p != "" {
			it.Provider = &p
		}
	}
	if it.Kind == model.KindFlight {
		fillAirlineCode(it.Details)
	}
	return it
}

func (n Normalizer) resolveDate(s *string, nctx model.NormalizeContext) (model.Date, bool) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return model.Date{}, false
	}
	return dateparse.ParseAndResolve(*s, nctx, n.horizon())
}

// fillAirlineCode sets details["airline_code"] from the flight number when
// the extraction did not supply one.
func fillAirlineCode(details map[string]any) {
	if _, ok := details["airline_code"]; ok {
		return
	}
	fn, _ := details["flight_number"].(string)
	if code := IATAFromFlight(fn); code != "" {
		details["airline_code"] = code
	}
}

func travelerNames(v any) []string {
	var list []any
	switch t := v.(type) {
	case []any:
		list = t
	case []string:
		for _, s := range t {
			list = append(list, s)
		}
	default:
		return []string{}
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		s, ok := e.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func stringField(m map[string]any, key string) *string {
	s, ok := m[key].(string)
	if !ok {
		return nil
	}
	return &s
}

func rawItem(m map[string]any) model.RawItem {
	details, _ := m["details"].(map[string]any)
	return model.RawItem{
		Kind:             m["kind"],
		Provider:         stringField(m, "provider"),
		ConfirmationCode: stringField(m, "confirmation_code"),
		TravelerNames:    m["traveler_names"],
		StartDate:        stringField(m, "start_date"),
		EndDate:          stringField(m, "end_date"),
		StartTS:          stringField(m, "start_ts"),
		EndTS:            stringField(m, "end_ts"),
		StartLocation:    stringField(m, "start_location"),
		EndLocation:      stringField(m, "end_location"),
		Summary:          stringField(m, "summary"),
		Status:           m["status"],
		Confidence:       m["confidence"],
		NeedsReview:      m["needs_review"],
		Details:          details,
	}
}
