package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"oralplatinum/cobranca/internal/core/audit"
	ctxutil "oralplatinum/cobranca/internal/infrastructure/context"
	"oralplatinum/cobranca/internal/infrastructure/security"
)

const (
	defaultMaxBodySize = 102400
	defaultTimeout     = 30 * time.Second
	auditSaveTimeout   = 10 * time.Second
)

// TracedClient wraps an HTTP client so every provider call is logged with
// sanitized request/response details and, when enabled, written to the
// audit trail before Do returns.
type TracedClient struct {
	client       *http.Client
	log          *slog.Logger
	auditRepo    audit.Repository
	provider     string
	auditEnabled bool
	logReqBody   bool
	logRespBody  bool
	maxBodySize  int
}

// TracedClientConfig holds configuration for the traced HTTP client.
type TracedClientConfig struct {
	Timeout         time.Duration
	Transport       http.RoundTripper
	AuditEnabled    bool
	LogRequestBody  bool
	LogResponseBody bool
	MaxBodySize     int
}

// NewTracedClient creates a traced client for one provider. A zero timeout
// means 30s. auditRepo may be nil, in which case nothing is persisted.
func NewTracedClient(cfg *TracedClientConfig, log *slog.Logger, auditRepo audit.Repository, provider string) *TracedClient {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = defaultMaxBodySize
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	return &TracedClient{
		client:       &http.Client{Timeout: timeout, Transport: transport},
		log:          log.With("provider", provider),
		auditRepo:    auditRepo,
		provider:     provider,
		auditEnabled: cfg.AuditEnabled,
		logReqBody:   cfg.LogRequestBody,
		logRespBody:  cfg.LogResponseBody,
		maxBodySize:  maxBodySize,
	}
}

// Do executes req, tracing it. The response body is buffered and handed back
// to the caller unread.
func (c *TracedClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	runID := ctxutil.GetRunID(ctx)
	operation := c.extractOperation(req)
	start := time.Now()

	if runID != "" {
		req.Header.Set("X-Correlation-ID", runID)
	}

	var requestBody []byte
	if req.Body != nil {
		var err error
		requestBody, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(requestBody))
	}

	c.logRequest(runID, operation, req, requestBody)

	resp, err := c.client.Do(req)
	duration := time.Since(start)

	var responseBody []byte
	if resp != nil && resp.Body != nil {
		var readErr error
		responseBody, readErr = io.ReadAll(resp.Body)
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(responseBody))
		if readErr != nil && err == nil {
			err = fmt.Errorf("read response body: %w", readErr)
		}
	}

	c.logResponse(runID, operation, req, resp, err, duration, responseBody)

	if c.auditEnabled && c.auditRepo != nil {
		// The save outlives a cancelled request context but not the timeout.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditSaveTimeout)
		c.persistAuditLog(saveCtx, runID, operation, req, resp, err, duration, requestBody, responseBody)
		cancel()
	}

	return resp, err
}

func (c *TracedClient) logRequest(runID, operation string, req *http.Request, body []byte) {
	attrs := []any{
		"run_id", runID,
		"operation", operation,
		"method", req.Method,
		"url", security.SanitizeURL(req.URL.String()),
	}

	if c.logReqBody && len(body) > 0 {
		attrs = append(attrs, "request_body", string(security.SanitizeBody(body, c.maxBodySize)))
	}

	c.log.Debug("provider_request", attrs...)
}

func (c *TracedClient) logResponse(runID, operation string, req *http.Request, resp *http.Response, err error, duration time.Duration, body []byte) {
	attrs := []any{
		"run_id", runID,
		"operation", operation,
		"method", req.Method,
		"url", security.SanitizeURL(req.URL.String()),
		"duration_ms", duration.Milliseconds(),
	}

	if err != nil {
		attrs = append(attrs, "error", err.Error())
		c.log.Error("provider_request_failed", attrs...)
		return
	}

	attrs = append(attrs, "status", resp.StatusCode, "response_size_bytes", len(body))

	if c.logRespBody && len(body) > 0 {
		attrs = append(attrs, "response_body", string(security.SanitizeBody(body, c.maxBodySize)))
	}

	switch {
	case resp.StatusCode >= 500:
		c.log.Error("provider_response", attrs...)
	case resp.StatusCode >= 400:
		c.log.Warn("provider_response", attrs...)
	default:
		c.log.Info("provider_response", attrs...)
	}
}

func (c *TracedClient) persistAuditLog(ctx context.Context, runID, operation string, req *http.Request, resp *http.Response, err error, duration time.Duration, requestBody, responseBody []byte) {
	entry := audit.ProviderAuditLog{
		RunID:          runID,
		Stage:          ctxutil.GetStage(ctx),
		Provider:       c.provider,
		Operation:      operation,
		RequestMethod:  req.Method,
		RequestURL:     security.SanitizeURL(req.URL.String()),
		RequestHeaders: security.SanitizeHeaders(req.Header),
		DurationMs:     duration.Milliseconds(),
	}

	if len(requestBody) > 0 {
		entry.RequestBody = security.SanitizeBody(requestBody, c.maxBodySize)
	}

	if resp != nil {
		status := resp.StatusCode
		entry.ResponseStatus = &status
		entry.ResponseHeaders = security.SanitizeHeaders(resp.Header)
		if len(responseBody) > 0 {
			entry.ResponseBody = security.SanitizeBody(responseBody, c.maxBodySize)
		}
	}

	if err != nil {
		entry.ErrorMessage = err.Error()
	}

	if saveErr := c.auditRepo.Save(ctx, entry); saveErr != nil {
		c.log.Error("failed to persist audit log",
			"error", saveErr,
			"run_id", runID,
			"operation", operation,
		)
	}
}

// extractOperation names the call after the last path segment, e.g.
// "GetByPhone" for /whatsapp/contacts/getByPhone.
func (c *TracedClient) extractOperation(req *http.Request) string {
	parts := strings.Split(strings.Trim(req.URL.Path, "/"), "/")

	if last := parts[len(parts)-1]; last != "" {
		return strings.ToUpper(last[:1]) + last[1:]
	}

	return fmt.Sprintf("%s_%s", req.Method, c.provider)
}
