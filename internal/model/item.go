package model

import "strings"

// Kind is the category of a bookable item.
type Kind string

const (
	KindFlight     Kind = "flight"
	KindHotel      Kind = "hotel"
	KindTrain      Kind = "train"
	KindCar        Kind = "car"
	KindRestaurant Kind = "restaurant"
	KindActivity   Kind = "activity"
	KindOther      Kind = "other"
)

// AllKinds lists every Kind in declaration order.
func AllKinds() []Kind {
	return []Kind{KindFlight, KindHotel, KindTrain, KindCar, KindRestaurant, KindActivity, KindOther}
}

// ParseKind coerces an untrusted value into a Kind. Anything that is not an
// exact known kind becomes KindOther.
func ParseKind(v any) Kind {
	s, ok := v.(string)
	if !ok {
		return KindOther
	}
	for _, k := range AllKinds() {
		if string(k) == s {
			return k
		}
	}
	return KindOther
}

// IsTransport reports whether items of this kind move the traveler between places.
func (k Kind) IsTransport() bool {
	return k == KindFlight || k == KindTrain || k == KindCar
}

// Status is the booking state of an item.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusChanged   Status = "changed"
	StatusPending   Status = "pending"
	StatusUnknown   Status = "unknown"
)

// AllStatuses lists every Status in declaration order.
func AllStatuses() []Status {
	return []Status{StatusConfirmed, StatusCancelled, StatusChanged, StatusPending, StatusUnknown}
}

// ParseStatus coerces an untrusted value into a Status, defaulting to StatusUnknown.
func ParseStatus(v any) Status {
	s, ok := v.(string)
	if !ok {
		return StatusUnknown
	}
	for _, st := range AllStatuses() {
		if string(st) == s {
			return st
		}
	}
	return StatusUnknown
}

// RawItem is one line item as produced by the extraction call. Nothing in it
// is trusted; fields that may arrive with the wrong JSON type are typed as any.
type RawItem struct {
	Kind             any            `json:"kind"`
	Provider         *string        `json:"provider"`
	ConfirmationCode *string        `json:"confirmation_code"`
	TravelerNames    any            `json:"traveler_names"`
	StartDate        *string        `json:"start_date"`
	EndDate          *string        `json:"end_date"`
	StartTS          *string        `json:"start_ts"`
	EndTS            *string        `json:"end_ts"`
	StartLocation    *string        `json:"start_location"`
	EndLocation      *string        `json:"end_location"`
	Summary          *string        `json:"summary"`
	Status           any            `json:"status"`
	Confidence       any            `json:"confidence"`
	NeedsReview      any            `json:"needs_review"`
	Details          map[string]any `json:"details"`
}

// RawExtraction is the document-level payload from the extraction call.
type RawExtraction struct {
	DocType           *string   `json:"doc_type"`
	OverallConfidence any       `json:"overall_confidence"`
	Items             []RawItem `json:"items"`
}

// Item is a normalized, validated line item. StartDate is never zero,
// TravelerNames and Details are never nil.
type Item struct {
	Kind             Kind           `json:"kind"`
	Provider         *string        `json:"provider"`
	ConfirmationCode *string        `json:"confirmation_code"`
	TravelerNames    []string       `json:"traveler_names"`
	StartDate        Date           `json:"start_date"`
	EndDate          *Date          `json:"end_date"`
	StartTS          *string        `json:"start_ts"`
	EndTS            *string        `json:"end_ts"`
	StartLocation    *string        `json:"start_location"`
	EndLocation      *string        `json:"end_location"`
	Summary          *string        `json:"summary"`
	Status           Status         `json:"status"`
	Confidence       float64        `json:"confidence"`
	NeedsReview      bool           `json:"needs_review"`
	Details          map[string]any `json:"details"`
}

// LastDate returns the end date when present, otherwise the start date.
func (it Item) LastDate() Date {
	if it.EndDate != nil {
		return *it.EndDate
	}
	return it.StartDate
}

// Destination returns the arrival location, falling back to the departure
// location. Blank values count as absent.
func (it Item) Destination() string {
	if it.EndLocation != nil && strings.TrimSpace(*it.EndLocation) != "" {
		return *it.EndLocation
	}
	if it.StartLocation != nil && strings.TrimSpace(*it.StartLocation) != "" {
		return *it.StartLocation
	}
	return ""
}

// Extraction is the normalized result for one document.
type Extraction struct {
	DocType           string  `json:"doc_type"`
	OverallConfidence float64 `json:"overall_confidence"`
	Items             []Item  `json:"items"`
}

// NormalizeContext carries what normalization needs beyond the payload itself.
type NormalizeContext struct {
	// Reference is the processing day; dates without a trusted year are
	// projected forward from it.
	Reference Date
	// SourceText is subject + body + attachment text, searched for explicit years.
	SourceText string
	// Subject is the document subject, used to infer a provider.
	Subject string
}
