package audit

import (
	"context"
	"encoding/json"
	"time"
)

// ProviderAuditLog is the audit record of one call to the billing or
// messaging provider. Headers and bodies are stored already sanitized.
type ProviderAuditLog struct {
	ID              int64
	RunID           string
	Stage           string
	Provider        string
	Operation       string
	RequestMethod   string
	RequestURL      string
	RequestHeaders  map[string]string
	RequestBody     json.RawMessage
	ResponseStatus  *int
	ResponseHeaders map[string]string
	ResponseBody    json.RawMessage
	DurationMs      int64
	ErrorMessage    string
	CreatedAt       time.Time
}

// Repository persists audit records.
type Repository interface {
	Save(ctx context.Context, log ProviderAuditLog) error

	// FindByRunID returns every call made during one pipeline run, oldest first.
	FindByRunID(ctx context.Context, runID string) ([]ProviderAuditLog, error)
}
