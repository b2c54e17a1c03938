package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across reportlib.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Messaging
	FieldAction        = "action"
	FieldChannel       = "channel"
	FieldCorrelationID = "correlation_id"
	FieldOrigin        = "origin"
	FieldSuccess       = "success"
	FieldListeners     = "listeners"
	FieldPending       = "pending"

	// Session
	FieldReportID = "report_id"
	FieldState    = "state"
	FieldClientID = "client_id"

	// Components
	FieldComponent = "component"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount = "count"
	FieldSize  = "size"

	// Network
	FieldAddress = "address"
	FieldURL     = "url"
	FieldPath    = "path"
)

type contextKey string

const (
	correlationIDKey contextKey = "logger_correlation_id"
	componentKey     contextKey = "logger_component"
)

// WithCorrelationID adds a correlation ID to the context for logging
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if id, ok := ctx.Value(correlationIDKey).(string); ok && id != "" {
		fields = append(fields, FieldCorrelationID, id)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// LoggerFromContext returns a logger enriched with context fields
func LoggerFromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
