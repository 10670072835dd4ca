package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"oralplatinum/cobranca/internal/core/audit"
	ctxutil "oralplatinum/cobranca/internal/infrastructure/context"
	"oralplatinum/cobranca/internal/testutil"
)

type mockAuditRepo struct {
	saved   []audit.ProviderAuditLog
	ctxErrs []error
	saveErr error
}

func (m *mockAuditRepo) Save(ctx context.Context, log audit.ProviderAuditLog) error {
	m.saved = append(m.saved, log)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	return m.saveErr
}

func (m *mockAuditRepo) FindByRunID(ctx context.Context, runID string) ([]audit.ProviderAuditLog, error) {
	var results []audit.ProviderAuditLog
	for _, log := range m.saved {
		if log.RunID == runID {
			results = append(results, log)
		}
	}
	return results, nil
}

func newTestClient(repo audit.Repository) *TracedClient {
	return NewTracedClient(&TracedClientConfig{
		AuditEnabled:    true,
		LogRequestBody:  true,
		LogResponseBody: true,
		MaxBodySize:     1024,
	}, testutil.NewNullLogger(), repo, "sendpulse")
}

func TestTracedClientDo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Correlation-ID"); got != "run-123" {
			t.Errorf("expected X-Correlation-ID run-123, got %q", got)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	repo := &mockAuditRepo{}
	client := newTestClient(repo)

	ctx := ctxutil.WithStage(ctxutil.WithRunID(context.Background(), "run-123"), "contact_resolver")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/whatsapp/contacts/getByPhone?phone=551199999999", nil)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "success") {
		t.Error("response body not properly restored")
	}

	if len(repo.saved) != 1 {
		t.Fatalf("expected 1 audit log saved before Do returned, got %d", len(repo.saved))
	}
	saved := repo.saved[0]
	if saved.RunID != "run-123" || saved.Stage != "contact_resolver" {
		t.Errorf("expected run-123/contact_resolver, got %s/%s", saved.RunID, saved.Stage)
	}
	if saved.Provider != "sendpulse" || saved.Operation != "GetByPhone" {
		t.Errorf("expected sendpulse/GetByPhone, got %s/%s", saved.Provider, saved.Operation)
	}
	if strings.Contains(saved.RequestURL, "551199999999") {
		t.Errorf("expected phone to be masked in audit URL, got %s", saved.RequestURL)
	}
	if saved.ResponseStatus == nil || *saved.ResponseStatus != http.StatusOK {
		t.Errorf("expected response status 200, got %v", saved.ResponseStatus)
	}
}

func TestTracedClientDoWithRequestBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"name":"Ana"`) {
			t.Errorf("request body not properly forwarded, got %s", body)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":42}`))
	}))
	defer server.Close()

	repo := &mockAuditRepo{}
	client := newTestClient(repo)

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/whatsapp/contacts", strings.NewReader(`{"phone":"551199999999","name":"Ana"}`))
	req.Header.Set("Authorization", "Bearer abcdefgh1234")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	saved := repo.saved[0]
	if saved.RequestHeaders["Authorization"] != "Bearer ****1234" {
		t.Errorf("expected masked authorization, got %q", saved.RequestHeaders["Authorization"])
	}
	if strings.Contains(string(saved.RequestBody), "551199999999") {
		t.Errorf("expected phone to be masked in audit body, got %s", saved.RequestBody)
	}
	if req.Header.Get("X-Correlation-ID") != "" {
		t.Error("expected no correlation header without a run ID")
	}
}

func TestTracedClient_AuditSurvivesCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := &mockAuditRepo{}
	client := newTestClient(repo)

	ctx, cancel := context.WithCancel(ctxutil.WithRunID(context.Background(), "already-cancelled"))
	cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/payment/list", nil)

	_, err := client.Do(req)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}

	if len(repo.saved) != 1 {
		t.Fatalf("expected failed call to be audited, got %d", len(repo.saved))
	}
	if repo.ctxErrs[0] != nil {
		t.Errorf("expected audit save context to be live, got %v", repo.ctxErrs[0])
	}
	if repo.saved[0].ResponseStatus != nil {
		t.Error("expected no response status for a failed call")
	}
	if repo.saved[0].ErrorMessage == "" {
		t.Error("expected error message to be recorded")
	}
}

func TestTracedClient_AuditFailureDoesNotFailRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	repo := &mockAuditRepo{saveErr: errors.New("db down")}
	client := newTestClient(repo)

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/whatsapp/contacts/getByPhone", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", resp.StatusCode)
	}
}

func TestTracedClient_AuditDisabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := &mockAuditRepo{}
	client := NewTracedClient(&TracedClientConfig{}, testutil.NewNullLogger(), repo, "clinicorp")

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	if _, err := client.Do(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.saved) != 0 {
		t.Errorf("expected nothing audited, got %d", len(repo.saved))
	}

	nilRepoClient := NewTracedClient(&TracedClientConfig{AuditEnabled: true}, testutil.NewNullLogger(), nil, "clinicorp")
	req, _ = http.NewRequest(http.MethodGet, server.URL, nil)
	if _, err := nilRepoClient.Do(req); err != nil {
		t.Fatalf("unexpected error with nil repository: %v", err)
	}
}

func TestTracedClientExtractOperation(t *testing.T) {
	client := NewTracedClient(&TracedClientConfig{}, testutil.NewNullLogger(), nil, "sendpulse")

	tests := []struct {
		name     string
		url      string
		method   string
		expected string
	}{
		{
			name:     "last path segment",
			url:      "https://api.sendpulse.com/whatsapp/contacts/sendTemplate",
			method:   "POST",
			expected: "SendTemplate",
		},
		{
			name:     "handles trailing slash",
			url:      "https://api.clinicorp.com/rest/v1/payment/list/",
			method:   "GET",
			expected: "List",
		},
		{
			name:     "falls back to method",
			url:      "https://api.sendpulse.com/",
			method:   "DELETE",
			expected: "DELETE_sendpulse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, tt.url, nil)
			if got := client.extractOperation(req); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestNewTracedClient_Defaults(t *testing.T) {
	client := NewTracedClient(&TracedClientConfig{}, testutil.NewNullLogger(), nil, "clinicorp")

	if client.client.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", client.client.Timeout)
	}
	if _, ok := client.client.Transport.(*http.Transport); !ok {
		t.Errorf("expected default *http.Transport, got %T", client.client.Transport)
	}
	if client.maxBodySize != defaultMaxBodySize {
		t.Errorf("expected default max body size %d, got %d", defaultMaxBodySize, client.maxBodySize)
	}
}

func TestNewTracedClient_CustomTransport(t *testing.T) {
	var seen []*http.Request
	transport := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		seen = append(seen, req)
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`[]`)),
			Request:    req,
		}, nil
	})

	repo := &mockAuditRepo{}
	client := NewTracedClient(&TracedClientConfig{
		Timeout:      5 * time.Second,
		Transport:    transport,
		AuditEnabled: true,
	}, testutil.NewNullLogger(), repo, "clinicorp")

	if client.client.Timeout != 5*time.Second {
		t.Errorf("expected provider timeout 5s, got %v", client.client.Timeout)
	}

	ctx := ctxutil.WithRunID(context.Background(), "run-9")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.clinicorp.test/rest/v1/payment/list", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `[]` {
		t.Errorf("expected body from transport, got %q", body)
	}

	if len(seen) != 1 || seen[0].Header.Get("X-Correlation-ID") != "run-9" {
		t.Fatalf("expected one request through the custom transport, got %d", len(seen))
	}
	if len(repo.saved) != 1 || repo.saved[0].Provider != "clinicorp" || repo.saved[0].Operation != "List" {
		t.Errorf("unexpected audit rows %+v", repo.saved)
	}
}

func TestTracedClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	repo := &mockAuditRepo{}
	client := NewTracedClient(&TracedClientConfig{
		Timeout:      50 * time.Millisecond,
		AuditEnabled: true,
	}, testutil.NewNullLogger(), repo, "sendpulse")

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/whatsapp/contacts/getByPhone", nil)
	if _, err := client.Do(req); err == nil {
		t.Fatal("expected timeout error")
	}
	if len(repo.saved) != 1 || repo.saved[0].ErrorMessage == "" || repo.saved[0].ResponseStatus != nil {
		t.Errorf("expected the failed call audited without a status, got %+v", repo.saved)
	}
}
