package admission

// Error kinds recorded on a verdict. Signature and structure problems are
// surfaced to the caller as HTTP rejections; the content-level kinds are
// swallowed into logs so the provider never retries a dropped message.
const (
	ErrorKindSignatureInvalid  = "signature_invalid"
	ErrorKindPayloadMalformed  = "payload_malformed"
	ErrorKindValidationFailed  = "validation_failed"
	ErrorKindRateLimitExceeded = "rate_limit_exceeded"
	ErrorKindStorageDegraded   = "storage_degraded"
	ErrorKindDuplicateDelivery = "duplicate_delivery"
)

// Verdict is the single output of the admission pipeline. It is assembled
// once per message or request and not mutated afterwards.
type Verdict struct {
	Admitted       bool     `json:"admitted"`
	Identity       string   `json:"identity,omitempty"`
	SanitizedText  string   `json:"sanitized_text,omitempty"`
	ContactName    string   `json:"contact_name,omitempty"`
	OriginalLength int      `json:"original_length,omitempty"`
	Errors         []string `json:"errors,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

func rejected(kind string, warnings ...string) *Verdict {
	return &Verdict{
		Admitted: false,
		Errors:   []string{kind},
		Warnings: warnings,
	}
}
