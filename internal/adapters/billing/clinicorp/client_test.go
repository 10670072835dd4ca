package clinicorp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"oralplatinum/cobranca/internal/core/charge"
	"oralplatinum/cobranca/internal/testutil"
)

var _ charge.Provider = (*Client)(nil)

func testQuery() charge.PaymentQuery {
	return charge.PaymentQuery{
		SubscriberID: "clinic",
		From:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:           time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestClient_ListPayments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/payment/list" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		expected := map[string]string{
			"subscriber_id": "clinic",
			"from":          "2024-01-01",
			"to":            "2024-03-01",
			"search_type":   "DUE_DATE",
		}
		for k, v := range expected {
			if q.Get(k) != v {
				t.Errorf("query %s: expected %q, got %q", k, v, q.Get(k))
			}
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "svc" || pass != "token" {
			t.Errorf("expected basic auth svc/token, got %q/%q", user, pass)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"PayerName":"Ana","PayerPhone":"(11) 99999-9999","BoletoUrl":"http://x/1","DueDate":"2024-01-10T00:00:00.000Z","ExternalStatus":"OPEN","BoletoDigitalLine":"123"},
			{"PayerName":"Bruno","PayerPhone":null,"BoletoUrl":null,"DueDate":"2024-01-09T00:00:00.000Z"}
		]`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/rest/v1", "svc", "token", server.Client(), testutil.NewNullLogger())

	payments, err := client.ListPayments(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(payments))
	}
	if payments[0].PayerPhone != "(11) 99999-9999" || payments[0].BoletoURL != "http://x/1" {
		t.Errorf("unexpected first payment: %+v", payments[0])
	}
	if payments[1].PayerPhone != "" {
		t.Errorf("expected null phone to decode as empty, got %q", payments[1].PayerPhone)
	}
}

func TestClient_ListPayments_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			body:    `{"error":"bad credentials"}`,
			wantErr: "unexpected status code 401",
		},
		{
			name:    "server error",
			status:  http.StatusBadGateway,
			body:    "Bad Gateway",
			wantErr: "unexpected status code 502",
		},
		{
			name:    "not an array",
			status:  http.StatusOK,
			body:    `{"data":[]}`,
			wantErr: "unmarshal payments",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, "svc", "token", server.Client(), testutil.NewNullLogger())
			_, err := client.ListPayments(context.Background(), testQuery())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestClient_ListPayments_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "svc", "token", server.Client(), testutil.NewNullLogger())
	payments, err := client.ListPayments(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payments) != 0 {
		t.Errorf("expected no payments, got %d", len(payments))
	}
}

func TestClient_ListPayments_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL, "svc", "token", &http.Client{}, testutil.NewNullLogger())
	if _, err := client.ListPayments(context.Background(), testQuery()); err == nil {
		t.Error("expected transport error")
	}
}
