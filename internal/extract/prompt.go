package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/tripmatch/internal/model"
)

// SystemPrompt instructs the model how to read a travel confirmation.
const SystemPrompt = `You extract structured travel reservations from confirmation emails.

Rules:
1. List every traveler named in the booking, not only the recipient.
2. Keep times in the local time of the itinerary and include the timezone abbreviation when shown.
3. Flights: departure and arrival airports (IATA codes such as "SFO" when possible), times, flight number, airline, terminal and gate.
4. Hotels: check-in and check-out dates and times, hotel name, address, room type, confirmation number.
5. Trains: departure and arrival stations, times, train number, operator, carriage and seat.
6. Car rentals: pickup and dropoff locations and times, rental company, vehicle type.
7. Restaurants: reservation time, restaurant name, party size.
8. Activities: name, date and time, location, provider.
9. Set confidence between 0.0 and 1.0:
   - 1.0 when every field is clear
   - 0.8 to 0.9 when a few details are uncertain
   - 0.6 to 0.7 when several fields are missing or ambiguous
   - below 0.6 when the booking is incomplete
10. Set needs_review to true when anything is ambiguous or confidence is below 0.65.
11. status is one of "confirmed", "cancelled", "changed", "pending" or "unknown".
12. Write dates as YYYY-MM-DD exactly as printed in the email; do not invent a year that is not shown. Timestamps are ISO 8601 with offset.

Return only JSON matching the requested schema, with no other text.`

const userPromptTemplate = `Extract the travel reservations from this email.

Return JSON in exactly this shape:
{
  "doc_type": "travel_confirmation" | "receipt" | "itinerary" | "cancellation" | "unknown",
  "overall_confidence": number,
  "items": [
    {
      "kind": "flight" | "hotel" | "train" | "car" | "restaurant" | "activity" | "other",
      "provider": "airline, hotel chain, rail operator...",
      "confirmation_code": "string or null",
      "traveler_names": ["every traveler"],
      "start_date": "YYYY-MM-DD",
      "end_date": "YYYY-MM-DD or null",
      "start_ts": "ISO 8601 timestamp or null",
      "end_ts": "ISO 8601 timestamp or null",
      "start_location": "airport code, hotel name, address...",
      "end_location": "destination for flights and trains, else null",
      "summary": "one line description",
      "status": "confirmed" | "cancelled" | "changed" | "pending" | "unknown",
      "confidence": number,
      "needs_review": boolean,
      "details": {
        "flight_number": "...", "airline": "...", "departure_airport": "IATA", "arrival_airport": "IATA",
        "departure_terminal": "...", "arrival_terminal": "...", "departure_gate": "...", "cabin_class": "...", "seat": "...",
        "hotel_name": "...", "address": "...", "room_type": "...", "check_in_time": "HH:MM", "check_out_time": "HH:MM",
        "train_number": "...", "operator": "...", "departure_station": "...", "arrival_station": "...", "carriage": "...",
        "rental_company": "...", "pickup_location": "...", "dropoff_location": "...", "vehicle_type": "..."
      }
    }
  ]
}

EMAIL CONTENT:
---
Subject: %s

%s
%s---`

// BuildPrompt renders the user prompt for one email.
func BuildPrompt(subject, body, attachmentText string) string {
	if strings.TrimSpace(subject) == "" {
		subject = "(no subject)"
	}
	if strings.TrimSpace(body) == "" {
		body = "(no body)"
	}
	var attachments string
	if strings.TrimSpace(attachmentText) != "" {
		attachments = "\nATTACHMENT CONTENT:\n" + attachmentText + "\n"
	}
	return fmt.Sprintf(userPromptTemplate, subject, body, attachments)
}

// BuildSystemPrompt appends corrected examples to base as a few-shot
// section. With no examples base is returned unchanged.
func BuildSystemPrompt(base string, examples []model.Example) string {
	if len(examples) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n## Learning Examples\n")
	b.WriteString("These are correct extractions of similar emails. Follow their patterns, especially for confirmation codes, flight numbers, times and locations.\n\n")

	for i, ex := range examples {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&b, "### Example %d", i+1)
		if ex.ItemKind != "" {
			fmt.Fprintf(&b, " (%s)", ex.ItemKind)
		}
		if ex.ProviderPattern != "" {
			fmt.Fprintf(&b, " from %s", ex.ProviderPattern)
		}

		subject := ex.Subject
		if subject == "" {
			subject = "(no subject)"
		}
		fmt.Fprintf(&b, "\n\nInput email:\n\"\"\"\nSubject: %s\n%s", subject, ex.BodySnippet)
		if ex.AttachmentSnippet != "" {
			fmt.Fprintf(&b, "\n\nPDF attachment content:\n%s", ex.AttachmentSnippet)
		}
		b.WriteString("\n\"\"\"\n\nCorrect extraction:\n```json\n")

		corrected, err := json.MarshalIndent(ex.CorrectedExtraction, "", "  ")
		if err != nil {
			corrected = []byte("{}")
		}
		b.Write(corrected)
		b.WriteString("\n```")
	}

	b.WriteString("\n\n---\nNow extract from the provided email using these patterns.")
	return b.String()
}
