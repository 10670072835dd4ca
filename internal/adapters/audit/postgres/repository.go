package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"oralplatinum/cobranca/internal/core/audit"
)

const insertAuditLog = `
	INSERT INTO provider_audit_log (
		run_id, stage, provider, operation, request_method, request_url,
		request_headers, request_body, response_status, response_headers,
		response_body, duration_ms, error_message
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`

const selectAuditLogsByRun = `
	SELECT id, run_id, stage, provider, operation, request_method, request_url,
	       request_headers, request_body, response_status, response_headers,
	       response_body, duration_ms, error_message, created_at
	FROM provider_audit_log
	WHERE run_id = $1
	ORDER BY id ASC
`

// Repository implements audit.Repository on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewRepository creates a PostgreSQL audit repository. log may be nil.
func NewRepository(pool *pgxpool.Pool, log *slog.Logger) *Repository {
	return &Repository{pool: pool, log: log}
}

// Save inserts one audit record.
func (r *Repository) Save(ctx context.Context, entry audit.ProviderAuditLog) error {
	requestHeaders, err := marshalHeaders(entry.RequestHeaders)
	if err != nil {
		return fmt.Errorf("marshal request headers: %w", err)
	}
	responseHeaders, err := marshalHeaders(entry.ResponseHeaders)
	if err != nil {
		return fmt.Errorf("marshal response headers: %w", err)
	}

	_, err = r.pool.Exec(ctx, insertAuditLog,
		entry.RunID,
		entry.Stage,
		entry.Provider,
		entry.Operation,
		entry.RequestMethod,
		entry.RequestURL,
		requestHeaders,
		nullableJSON(entry.RequestBody),
		entry.ResponseStatus,
		responseHeaders,
		nullableJSON(entry.ResponseBody),
		entry.DurationMs,
		entry.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}

	if r.log != nil {
		r.log.Debug("audit log saved",
			"run_id", entry.RunID,
			"provider", entry.Provider,
			"operation", entry.Operation,
			"response_status", entry.ResponseStatus,
		)
	}
	return nil
}

// FindByRunID retrieves the audit records of one run in insertion order.
func (r *Repository) FindByRunID(ctx context.Context, runID string) ([]audit.ProviderAuditLog, error) {
	rows, err := r.pool.Query(ctx, selectAuditLogsByRun, runID)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []audit.ProviderAuditLog
	for rows.Next() {
		var entry audit.ProviderAuditLog
		var requestHeaders, responseHeaders []byte
		var requestBody, responseBody []byte

		err := rows.Scan(
			&entry.ID,
			&entry.RunID,
			&entry.Stage,
			&entry.Provider,
			&entry.Operation,
			&entry.RequestMethod,
			&entry.RequestURL,
			&requestHeaders,
			&requestBody,
			&entry.ResponseStatus,
			&responseHeaders,
			&responseBody,
			&entry.DurationMs,
			&entry.ErrorMessage,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}

		if err := json.Unmarshal(requestHeaders, &entry.RequestHeaders); err != nil {
			return nil, fmt.Errorf("unmarshal request headers: %w", err)
		}
		if err := json.Unmarshal(responseHeaders, &entry.ResponseHeaders); err != nil {
			return nil, fmt.Errorf("unmarshal response headers: %w", err)
		}
		entry.RequestBody = requestBody
		entry.ResponseBody = responseBody

		logs = append(logs, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return logs, nil
}

func marshalHeaders(headers map[string]string) ([]byte, error) {
	if headers == nil {
		headers = map[string]string{}
	}
	return json.Marshal(headers)
}

// nullableJSON maps an empty body to SQL NULL.
func nullableJSON(body json.RawMessage) any {
	if len(body) == 0 {
		return nil
	}
	return []byte(body)
}
