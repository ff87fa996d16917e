package sanitize

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"gavel/internal/config"
	"gavel/internal/logger"
	apperrors "gavel/pkg/errors"
	"gavel/pkg/metrics"
)

// Pattern checks run on unescaped text. Escaping happens last so that
// encoded markup cannot slip past the blocklist.
var (
	dangerousPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
		regexp.MustCompile(`(?i)<script`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)vbscript:`),
		regexp.MustCompile(`(?i)\bon\w+\s*=`),
		regexp.MustCompile(`(?i)<(iframe|object|embed)\b`),
		regexp.MustCompile(`(?i)data:text/html`),
	}

	sqlPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(select|insert|update|delete|drop|union|alter|create|truncate|exec|execute)\b`),
		regexp.MustCompile("['\"`]"),
		regexp.MustCompile(`--`),
		regexp.MustCompile(`(?s)/\*.*?\*/`),
	}

	whitespaceRun = regexp.MustCompile(`\s+`)
	phoneStrip    = regexp.MustCompile(`[\s\-().]`)
	e164Shape     = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	emailShape    = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)
	nameShape     = regexp.MustCompile(`^[\p{L} .'\-]{2,100}$`)
)

type Sanitizer struct {
	maxTextLength  int
	maxJSONLeafLen int
	logger         logger.Logger
}

func NewSanitizer(cfg config.SanitizerConfig, log logger.Logger) *Sanitizer {
	return &Sanitizer{
		maxTextLength:  cfg.MaxTextLength,
		maxJSONLeafLen: cfg.MaxJSONLeafLength,
		logger:         log,
	}
}

// SanitizeText decodes HTML entities, collapses whitespace, validates the
// result against the injection blocklists, then HTML-escapes it. maxLength
// <= 0 falls back to the configured default. The result is stable under
// repeated application.
func (s *Sanitizer) SanitizeText(text string, maxLength int) (string, error) {
	if maxLength <= 0 {
		maxLength = s.maxTextLength
	}

	// Undo any entity encoding before normalizing, so encoded whitespace
	// (&#10;, &#9;) collapses like literal whitespace and a previously
	// escaped (or attacker-encoded) string is matched in decoded form.
	decoded := html.UnescapeString(text)
	trimmed := strings.TrimSpace(whitespaceRun.ReplaceAllString(decoded, " "))

	if utf8.RuneCountInString(trimmed) > maxLength {
		metrics.SanitizerRejectionsTotal.WithLabelValues("text", "too_long").Inc()
		return "", apperrors.ErrValidation.
			WithDetail("field", "text").
			WithDetail("reason", "too_long").
			WithDetail("message", fmt.Sprintf("text exceeds maximum length of %d characters", maxLength))
	}

	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(trimmed) {
			metrics.SanitizerRejectionsTotal.WithLabelValues("text", "dangerous_content").Inc()
			return "", apperrors.ErrValidation.
				WithDetail("field", "text").
				WithDetail("reason", "dangerous_content").
				WithDetail("message", "text contains potentially dangerous content")
		}
	}

	for _, pattern := range sqlPatterns {
		if pattern.MatchString(trimmed) {
			metrics.SanitizerRejectionsTotal.WithLabelValues("text", "sql_pattern").Inc()
			return "", apperrors.ErrValidation.
				WithDetail("field", "text").
				WithDetail("reason", "sql_pattern").
				WithDetail("message", "text contains SQL injection indicators")
		}
	}

	return html.EscapeString(trimmed), nil
}

// NormalizePhone strips formatting and validates the result against the
// E.164 shape. A missing leading + is added when the digit count is
// plausible for an international number.
func (s *Sanitizer) NormalizePhone(phone string) (string, error) {
	stripped := phoneStrip.ReplaceAllString(strings.TrimSpace(phone), "")

	if !strings.HasPrefix(stripped, "+") {
		digitCount := len(stripped)
		if digitCount >= 8 && digitCount <= 15 && isAllDigits(stripped) {
			stripped = "+" + stripped
		}
	}

	if !e164Shape.MatchString(stripped) {
		metrics.SanitizerRejectionsTotal.WithLabelValues("phone", "invalid_format").Inc()
		return "", apperrors.ErrValidation.
			WithDetail("field", "phone").
			WithDetail("reason", "invalid_format").
			WithDetail("message", "phone number is not a valid E.164 number")
	}

	return stripped, nil
}

func (s *Sanitizer) NormalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))

	if !emailShape.MatchString(normalized) {
		metrics.SanitizerRejectionsTotal.WithLabelValues("email", "invalid_format").Inc()
		return "", apperrors.ErrValidation.
			WithDetail("field", "email").
			WithDetail("reason", "invalid_format").
			WithDetail("message", "email address is not valid")
	}

	return normalized, nil
}

func (s *Sanitizer) NormalizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(whitespaceRun.ReplaceAllString(name, " "))

	if !nameShape.MatchString(trimmed) {
		metrics.SanitizerRejectionsTotal.WithLabelValues("name", "invalid_format").Inc()
		return "", apperrors.ErrValidation.
			WithDetail("field", "name").
			WithDetail("reason", "invalid_format").
			WithDetail("message", "name must be 2-100 letters, spaces, hyphens, apostrophes or periods")
	}

	return titleCase(trimmed), nil
}

// SanitizeJSON bounds the size of a raw JSON string before parsing, then
// applies SanitizeText to every string leaf. Non-string leaves pass through
// untouched.
func (s *Sanitizer) SanitizeJSON(data interface{}, maxSize int) (interface{}, error) {
	if raw, ok := data.(string); ok {
		if maxSize > 0 && len(raw) > maxSize {
			metrics.SanitizerRejectionsTotal.WithLabelValues("json", "too_large").Inc()
			return nil, apperrors.ErrValidation.
				WithDetail("field", "json").
				WithDetail("reason", "too_large").
				WithDetail("message", fmt.Sprintf("JSON payload exceeds maximum size of %d bytes", maxSize))
		}

		var parsed interface{}
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			metrics.SanitizerRejectionsTotal.WithLabelValues("json", "malformed").Inc()
			return nil, apperrors.ErrValidation.
				WithDetail("field", "json").
				WithDetail("reason", "malformed").
				WithCause(err)
		}
		data = parsed
	}

	return s.sanitizeValue(data)
}

func (s *Sanitizer) sanitizeValue(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return s.SanitizeText(v, s.maxJSONLeafLen)
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, item := range v {
			sanitized, err := s.sanitizeValue(item)
			if err != nil {
				return nil, err
			}
			result[key] = sanitized
		}
		return result, nil
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			sanitized, err := s.sanitizeValue(item)
			if err != nil {
				return nil, err
			}
			result[i] = sanitized
		}
		return result, nil
	default:
		return value, nil
	}
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func titleCase(s string) string {
	words := strings.Split(s, " ")
	for i, word := range words {
		runes := []rune(word)
		for j, r := range runes {
			if j == 0 {
				runes[j] = unicode.ToUpper(r)
			} else {
				runes[j] = unicode.ToLower(r)
			}
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
