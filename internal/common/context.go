package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRunID    contextKey = "run_id"
	ContextKeyRecordID contextKey = "record_id"
)

// WithRunID adds a batch run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// RunIDFromContext extracts the run ID from context
func RunIDFromContext(ctx context.Context) string {
	if runID, ok := ctx.Value(ContextKeyRunID).(string); ok {
		return runID
	}
	return ""
}

// WithRecordID adds the record (content hash) being processed to the context
func WithRecordID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyRecordID, id)
}

// RecordIDFromContext extracts the record ID from context
func RecordIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyRecordID).(string); ok {
		return id
	}
	return ""
}
