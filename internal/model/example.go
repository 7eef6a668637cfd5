package model

// Example is a past extraction corrected by a user, replayed to the model as
// a few-shot example for similar senders.
type Example struct {
	ID                  string         `json:"id"`
	SenderDomain        string         `json:"sender_domain,omitempty"`
	Subject             string         `json:"email_subject"`
	BodySnippet         string         `json:"email_body_snippet"`
	AttachmentSnippet   string         `json:"attachment_text_snippet,omitempty"`
	CorrectedExtraction map[string]any `json:"corrected_extraction"`
	ProviderPattern     string         `json:"provider_pattern,omitempty"`
	ItemKind            string         `json:"item_kind,omitempty"`
	UsageCount          int            `json:"usage_count"`
}
