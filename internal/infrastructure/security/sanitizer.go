package security

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Sensitive header names whose values are masked.
var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"x-auth-token":        true,
	"proxy-authorization": true,
}

// Sensitive field names in JSON bodies and query strings that are redacted.
var sensitiveFields = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"api_key",
	"apikey",
	"client_id",
	"credential",
	"auth",
}

// Phone-bearing field names whose values are masked down to the last digits.
var phoneFields = []string{
	"phone",
}

const redactedValue = "[REDACTED]"

// MaskPhone hides all but the last four digits of a phone number.
func MaskPhone(phone string) string {
	return maskLast4(phone)
}

// MaskAuthorization masks a credential, preserving its scheme.
func MaskAuthorization(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	parts := strings.Fields(value)
	if len(parts) == 2 && (strings.EqualFold(parts[0], "Bearer") || strings.EqualFold(parts[0], "Basic")) {
		return parts[0] + " " + maskLast4(parts[1])
	}
	return redactedValue
}

// SanitizeHeaders returns a flattened copy of headers with credentials masked.
func SanitizeHeaders(headers http.Header) map[string]string {
	sanitized := make(map[string]string, len(headers))
	for key, values := range headers {
		joined := strings.Join(values, ", ")
		lowerKey := strings.ToLower(key)
		switch {
		case lowerKey == "authorization" || lowerKey == "proxy-authorization":
			sanitized[key] = MaskAuthorization(joined)
		case sensitiveHeaders[lowerKey]:
			sanitized[key] = redactedValue
		default:
			sanitized[key] = joined
		}
	}
	return sanitized
}

// SanitizeBody redacts credentials and masks phone numbers in a JSON body.
// Gzip bodies are decompressed first, binary bodies are wrapped as base64,
// non-JSON text is wrapped as a raw string and bodies above maxSize are
// truncated to a preview.
func SanitizeBody(body []byte, maxSize int) json.RawMessage {
	if len(body) == 0 {
		return nil
	}

	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		decompressed, err := decompressGzip(body)
		if err != nil {
			return wrapJSON(map[string]any{
				"_binary": true,
				"_format": "gzip-compressed (decompression failed)",
				"_size":   len(body),
				"_base64": base64.StdEncoding.EncodeToString(body),
			})
		}
		body = decompressed
	}

	if !utf8.Valid(body) {
		return wrapJSON(map[string]any{
			"_binary": true,
			"_format": "binary (non-UTF8)",
			"_size":   len(body),
			"_base64": base64.StdEncoding.EncodeToString(body),
		})
	}

	if maxSize > 0 && len(body) > maxSize {
		return wrapJSON(map[string]any{
			"_truncated": true,
			"_size":      len(body),
			"_preview":   string(body[:maxSize]),
		})
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return wrapJSON(map[string]any{
			"_raw":    string(body),
			"_format": "text",
		})
	}

	return wrapJSON(sanitizeValue(data))
}

// SanitizeURL redacts credentials and masks phone numbers in the query string,
// keeping parameter order.
func SanitizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return rawURL
	}

	pairs := strings.Split(u.RawQuery, "&")
	for i, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		name, err := url.QueryUnescape(key)
		if err != nil {
			name = key
		}
		switch {
		case isSensitive(name):
			pairs[i] = key + "=" + redactedValue
		case isPhone(name):
			decoded, err := url.QueryUnescape(value)
			if err != nil {
				decoded = value
			}
			pairs[i] = key + "=" + MaskPhone(decoded)
		}
	}

	u.RawQuery = strings.Join(pairs, "&")
	return u.String()
}

func decompressGzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

func wrapJSON(v any) json.RawMessage {
	result, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return json.RawMessage(result)
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		sanitized := make(map[string]any, len(val))
		for key, value := range val {
			switch {
			case isSensitive(key):
				sanitized[key] = redactedValue
			case isPhone(key):
				if s, ok := value.(string); ok {
					sanitized[key] = MaskPhone(s)
				} else {
					sanitized[key] = sanitizeValue(value)
				}
			default:
				sanitized[key] = sanitizeValue(value)
			}
		}
		return sanitized
	case []any:
		sanitized := make([]any, len(val))
		for i, value := range val {
			sanitized[i] = sanitizeValue(value)
		}
		return sanitized
	default:
		return val
	}
}

func isSensitive(name string) bool {
	return containsAny(strings.ToLower(name), sensitiveFields)
}

func isPhone(name string) bool {
	return containsAny(strings.ToLower(name), phoneFields)
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

func maskLast4(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
