package webhook

// StructureResult carries every structural problem found in one pass, so a
// single report covers all of them instead of failing on the first.
type StructureResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// MessageType classifies an extracted message by its payload shape.
const (
	MessageTypeText        = "text"
	MessageTypeInteractive = "interactive"
	MessageTypeUnknown     = "unknown"
)

// ExtractedMessage is the normalized view of the first message in a
// delivery. Fields other than MessageID and From are shape-dependent.
type ExtractedMessage struct {
	MessageID          string `json:"message_id"`
	From               string `json:"from"`
	Type               string `json:"type"`
	TextBody           string `json:"text_body,omitempty"`
	InteractiveReplyID string `json:"interactive_reply_id,omitempty"`
	ContactName        string `json:"contact_name,omitempty"`
}
