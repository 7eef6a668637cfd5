package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// TripCandidate is a read-only snapshot of a persisted trip used for matching.
type TripCandidate struct {
	ID              string   `json:"id"`
	OwnerID         string   `json:"owner_id"`
	Title           string   `json:"title"`
	StartDate       *Date    `json:"start_date"`
	EndDate         *Date    `json:"end_date"`
	PrimaryLocation *string  `json:"primary_location"`
	TravelerNames   []string `json:"traveler_names"`
}

// MatchResult is the outcome of cross-account matching. A nil Trip means no match.
type MatchResult struct {
	Trip            *TripCandidate `json:"trip,omitempty"`
	SharedTravelers int            `json:"shared_travelers"`
	DayDistance     int            `json:"day_distance"`
}

// Matched reports whether a trip was selected.
func (m MatchResult) Matched() bool {
	return m.Trip != nil
}

// Outcome is the terminal state of an assignment decision.
type Outcome string

const (
	OutcomeOwnTrip    Outcome = "own_trip"
	OutcomeGroupTrip  Outcome = "group_trip"
	OutcomeCreateTrip Outcome = "create_trip"
)

// Decision tells the caller where a document's items go. Items are always
// populated so the caller can persist them whichever branch fired.
type Decision struct {
	Outcome         Outcome `json:"outcome"`
	TripID          string  `json:"trip_id,omitempty"`
	OwnerAccountID  string  `json:"owning_account_id,omitempty"`
	SharedTravelers int     `json:"shared_travelers,omitempty"`

	CreateNew       bool     `json:"create_new,omitempty"`
	SuggestedTitle  string   `json:"suggested_title,omitempty"`
	PrimaryLocation *string  `json:"primary_location,omitempty"`
	Travelers       []string `json:"travelers,omitempty"`

	Items []Item `json:"items"`
}

// Document is one inbound travel confirmation.
type Document struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"account_id"`
	GroupID        string    `json:"group_id,omitempty"`
	Sender         string    `json:"sender"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	AttachmentText string    `json:"attachment_text,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}

// SourceText joins every text part of the document, used for explicit-year lookups.
func (d Document) SourceText() string {
	parts := []string{d.Subject, d.Body}
	if d.AttachmentText != "" {
		parts = append(parts, d.AttachmentText)
	}
	return strings.Join(parts, "\n")
}

// SenderDomain returns the lowercase domain of the sender address, or "".
func (d Document) SenderDomain() string {
	at := strings.LastIndex(d.Sender, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.Trim(d.Sender[at+1:], "> "))
}

// IdempotencyKey identifies a document across redeliveries: a hash of the
// sender, the receive timestamp and the subject.
func (d Document) IdempotencyKey() string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(d.Sender))))
	h.Write([]byte{0})
	h.Write([]byte(d.ReceivedAt.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(d.Subject)))
	return hex.EncodeToString(h.Sum(nil))
}
