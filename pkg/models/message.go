package models

import "time"

// AdmittedMessage is the envelope published downstream once an inbound
// message has cleared signature, structure, sanitization, and rate checks.
// Text carries the sanitized content, never the raw provider payload.
type AdmittedMessage struct {
	ID                 string   `json:"id"`
	From               string   `json:"from"`
	Type               string   `json:"type"`
	Text               string   `json:"text,omitempty"`
	InteractiveReplyID string   `json:"interactive_reply_id,omitempty"`
	ContactName        string   `json:"contact_name,omitempty"`
	ReceivedAt         string   `json:"received_at"`
	Metadata           Metadata `json:"metadata"`
}

type Metadata struct {
	RequestID      string    `json:"request_id,omitempty"`
	OriginalLength int       `json:"original_length"`
	SanitizedAt    time.Time `json:"sanitized_at"`
}
