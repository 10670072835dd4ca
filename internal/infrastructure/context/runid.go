package context

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

// RunIDKey is the context key for the pipeline run identifier.
const RunIDKey contextKey = "run_id"

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// WithRunID adds a run identifier to the context. Every provider call made
// during the run is tagged with it, in logs and in the audit trail.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRunID retrieves the run identifier from the context, or "" when absent.
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey).(string); ok {
		return id
	}
	return ""
}

// StageKey is the context key for the pipeline stage name.
const StageKey contextKey = "stage"

// WithStage records which stage issues the provider calls made with ctx.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, StageKey, stage)
}

// GetStage retrieves the stage name from the context, or "" when absent.
func GetStage(ctx context.Context) string {
	if s, ok := ctx.Value(StageKey).(string); ok {
		return s
	}
	return ""
}
