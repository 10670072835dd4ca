package postgres

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"oralplatinum/cobranca/internal/core/audit"
	"oralplatinum/cobranca/internal/infrastructure/database"
	"oralplatinum/cobranca/internal/testutil"
)

var _ audit.Repository = (*Repository)(nil)

func TestMarshalHeaders(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{
			name:     "nil headers become an empty object",
			headers:  nil,
			expected: "{}",
		},
		{
			name:     "headers are kept",
			headers:  map[string]string{"Content-Type": "application/json"},
			expected: `{"Content-Type":"application/json"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := marshalHeaders(tt.headers)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestNullableJSON(t *testing.T) {
	if got := nullableJSON(nil); got != nil {
		t.Errorf("expected nil for empty body, got %v", got)
	}
	got, ok := nullableJSON(json.RawMessage(`{"a":1}`)).([]byte)
	if !ok || string(got) != `{"a":1}` {
		t.Errorf("expected raw bytes, got %v", got)
	}
}

// TestRepositoryIntegration runs against the database named by
// AUDIT_TEST_DATABASE_URL and is skipped when it is unset.
func TestRepositoryIntegration(t *testing.T) {
	dsn := os.Getenv("AUDIT_TEST_DATABASE_URL")
	if dsn == "" || testing.Short() {
		t.Skip("AUDIT_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, testutil.NewNullLogger()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := NewRepository(pool, testutil.NewNullLogger())
	runID := "it-" + time.Now().Format("20060102150405.000000000")
	status := 200

	entries := []audit.ProviderAuditLog{
		{
			RunID:          runID,
			Stage:          "contact_resolver",
			Provider:       "sendpulse",
			Operation:      "GetByPhone",
			RequestMethod:  "GET",
			RequestURL:     "https://api.sendpulse.com/whatsapp/contacts/getByPhone?phone=****9999",
			RequestHeaders: map[string]string{"Authorization": "Bearer ****abcd"},
			ResponseStatus: &status,
			ResponseBody:   json.RawMessage(`{"success":true}`),
			DurationMs:     12,
		},
		{
			RunID:         runID,
			Stage:         "contact_resolver",
			Provider:      "sendpulse",
			Operation:     "Contacts",
			RequestMethod: "POST",
			RequestURL:    "https://api.sendpulse.com/whatsapp/contacts",
			RequestBody:   json.RawMessage(`{"name":"Ana"}`),
			ErrorMessage:  "connection reset",
		},
	}
	for _, e := range entries {
		if err := repo.Save(ctx, e); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	logs, err := repo.FindByRunID(ctx, runID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 audit logs, got %d", len(logs))
	}
	if logs[0].Operation != "GetByPhone" || logs[1].Operation != "Contacts" {
		t.Errorf("expected insertion order, got %s then %s", logs[0].Operation, logs[1].Operation)
	}
	if logs[0].ResponseStatus == nil || *logs[0].ResponseStatus != 200 {
		t.Errorf("expected status 200, got %v", logs[0].ResponseStatus)
	}
	if logs[1].ResponseStatus != nil {
		t.Errorf("expected nil status for failed call, got %v", *logs[1].ResponseStatus)
	}
	if logs[0].RequestHeaders["Authorization"] != "Bearer ****abcd" {
		t.Errorf("expected headers to round trip, got %v", logs[0].RequestHeaders)
	}
	if logs[1].ErrorMessage != "connection reset" {
		t.Errorf("expected error message, got %q", logs[1].ErrorMessage)
	}
}
