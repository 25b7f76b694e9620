package logutil

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// IsSensitiveLogField returns true when a key likely contains sensitive data.
func IsSensitiveLogField(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")

	switch {
	case normalized == "authorization":
		return true
	case strings.Contains(normalized, "token"):
		return true
	case strings.Contains(normalized, "secret"):
		return true
	case strings.Contains(normalized, "password"):
		return true
	case strings.Contains(normalized, "apikey"):
		return true
	case strings.Contains(normalized, "accesskey"):
		return true
	case strings.Contains(normalized, "cookie"):
		return true
	default:
		return false
	}
}

// RedactValue redacts a value when the key looks sensitive.
func RedactValue(key, value string) string {
	if value == "" {
		return ""
	}
	if IsSensitiveLogField(key) {
		return "[REDACTED]"
	}
	return value
}

// RedactBodyForLog redacts sensitive fields from JSON payloads; non-JSON bodies are returned as-is.
func RedactBodyForLog(contentType string, body []byte) string {
	text := string(body)
	if !strings.Contains(strings.ToLower(contentType), "json") {
		return text
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return text
	}

	var redact func(v any)
	redact = func(v any) {
		switch typed := v.(type) {
		case map[string]any:
			for k, child := range typed {
				if IsSensitiveLogField(k) {
					typed[k] = "[REDACTED]"
					continue
				}
				redact(child)
			}
		case []any:
			for _, child := range typed {
				redact(child)
			}
		}
	}

	redact(payload)
	safeJSON, err := json.Marshal(payload)
	if err != nil {
		return text
	}
	return string(safeJSON)
}

// FormatBodyForLog truncates and redacts body text for safe logging.
func FormatBodyForLog(contentType string, body []byte, maxBytes int) string {
	if len(body) == 0 {
		return ""
	}
	truncated := false
	textBytes := body
	if maxBytes > 0 && len(textBytes) > maxBytes {
		textBytes = textBytes[:maxBytes]
		truncated = true
	}
	text := RedactBodyForLog(contentType, textBytes)
	if truncated {
		return text + " [truncated]"
	}
	return text
}

// TruncateForLog returns a single-line preview of at most maxChars runes
// followed by "...". Page text is mostly Spanish, so the cut never splits
// a multi-byte rune.
func TruncateForLog(value string, maxChars int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	normalized := strings.Join(strings.Fields(trimmed), " ")
	if maxChars <= 0 || utf8.RuneCountInString(normalized) <= maxChars {
		return normalized
	}
	runes := []rune(normalized)
	return string(runes[:maxChars]) + "..."
}
