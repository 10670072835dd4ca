package security

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"net/http"
	"testing"
)

func TestSanitizeHeaders(t *testing.T) {
	tests := []struct {
		name     string
		headers  http.Header
		expected map[string]string
	}{
		{
			name: "credentials are masked",
			headers: http.Header{
				"Authorization": []string{"Bearer secret-token-9f3a"},
				"Cookie":        []string{"session=abc123"},
				"Content-Type":  []string{"application/json"},
			},
			expected: map[string]string{
				"Authorization": "Bearer ****9f3a",
				"Cookie":        "[REDACTED]",
				"Content-Type":  "application/json",
			},
		},
		{
			name: "basic auth keeps scheme",
			headers: http.Header{
				"Authorization": []string{"Basic dXNlcjpwYXNz"},
			},
			expected: map[string]string{
				"Authorization": "Basic ****YXNz",
			},
		},
		{
			name: "multiple values are joined",
			headers: http.Header{
				"Accept": []string{"application/json", "text/html"},
			},
			expected: map[string]string{
				"Accept": "application/json, text/html",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeHeaders(tt.headers)
			for key, want := range tt.expected {
				if result[key] != want {
					t.Errorf("header %s: expected %q, got %q", key, want, result[key])
				}
			}
		})
	}
}

func TestSanitizeBody(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		maxSize     int
		expectation func(t *testing.T, result json.RawMessage)
	}{
		{
			name:    "empty body returns nil",
			body:    []byte{},
			maxSize: 1000,
			expectation: func(t *testing.T, result json.RawMessage) {
				if result != nil {
					t.Errorf("expected nil, got %s", result)
				}
			},
		},
		{
			name:    "oauth credentials are redacted",
			body:    []byte(`{"grant_type":"client_credentials","client_id":"abc","client_secret":"xyz"}`),
			maxSize: 1000,
			expectation: func(t *testing.T, result json.RawMessage) {
				data := decode(t, result)
				if data["client_secret"] != redactedValue || data["client_id"] != redactedValue {
					t.Errorf("expected credentials to be redacted, got %v", data)
				}
				if data["grant_type"] != "client_credentials" {
					t.Errorf("expected grant_type to remain, got %v", data["grant_type"])
				}
			},
		},
		{
			name:    "phone numbers are masked",
			body:    []byte(`{"phone":"551199999999","name":"Ana","bot_id":"b1"}`),
			maxSize: 1000,
			expectation: func(t *testing.T, result json.RawMessage) {
				data := decode(t, result)
				if data["phone"] != "****9999" {
					t.Errorf("expected masked phone, got %v", data["phone"])
				}
				if data["name"] != "Ana" || data["bot_id"] != "b1" {
					t.Errorf("expected other fields to remain, got %v", data)
				}
			},
		},
		{
			name:    "nested arrays are sanitized",
			body:    []byte(`[{"PayerPhone":"11987654321","access_token":"t"}]`),
			maxSize: 1000,
			expectation: func(t *testing.T, result json.RawMessage) {
				var data []map[string]any
				if err := json.Unmarshal(result, &data); err != nil {
					t.Fatalf("failed to unmarshal result: %v", err)
				}
				if data[0]["PayerPhone"] != "****4321" {
					t.Errorf("expected masked payer phone, got %v", data[0]["PayerPhone"])
				}
				if data[0]["access_token"] != redactedValue {
					t.Errorf("expected token to be redacted, got %v", data[0]["access_token"])
				}
			},
		},
		{
			name:    "non json text is wrapped",
			body:    []byte("Bad Gateway"),
			maxSize: 1000,
			expectation: func(t *testing.T, result json.RawMessage) {
				data := decode(t, result)
				if data["_raw"] != "Bad Gateway" {
					t.Errorf("expected raw text, got %v", data)
				}
			},
		},
		{
			name:    "body is truncated if too large",
			body:    []byte(`{"data":"very long string with lots of content"}`),
			maxSize: 20,
			expectation: func(t *testing.T, result json.RawMessage) {
				data := decode(t, result)
				if data["_truncated"] != true {
					t.Errorf("expected truncated marker, got %v", data)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeBody(tt.body, tt.maxSize)
			tt.expectation(t, result)
		})
	}
}

func TestSanitizeBody_Gzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(`{"password":"p","ok":true}`))
	zw.Close()

	data := decode(t, SanitizeBody(buf.Bytes(), 1000))
	if data["password"] != redactedValue || data["ok"] != true {
		t.Errorf("expected decompressed and sanitized body, got %v", data)
	}
}

func TestSanitizeURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		expected string
	}{
		{
			name:     "url without sensitive params unchanged",
			url:      "https://api.example.com/payment/list?subscriber_id=acme&from=2024-01-01",
			expected: "https://api.example.com/payment/list?subscriber_id=acme&from=2024-01-01",
		},
		{
			name:     "phone param is masked",
			url:      "https://api.sendpulse.com/whatsapp/contacts/getByPhone?phone=551199999999&bot_id=b1",
			expected: "https://api.sendpulse.com/whatsapp/contacts/getByPhone?phone=****9999&bot_id=b1",
		},
		{
			name:     "token param is redacted",
			url:      "https://api.example.com/data?token=abc123&format=json",
			expected: "https://api.example.com/data?token=[REDACTED]&format=json",
		},
		{
			name:     "url without query unchanged",
			url:      "https://api.sendpulse.com/oauth/access_token",
			expected: "https://api.sendpulse.com/oauth/access_token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeURL(tt.url)
			if result != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestMaskPhone(t *testing.T) {
	if got := MaskPhone("551199999999"); got != "****9999" {
		t.Errorf("expected ****9999, got %q", got)
	}
	if got := MaskPhone("123"); got != "****" {
		t.Errorf("expected short values fully masked, got %q", got)
	}
	if got := MaskPhone(""); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func decode(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("failed to unmarshal result %s: %v", raw, err)
	}
	return data
}
