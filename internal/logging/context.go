package logging

import (
	"context"
	"log/slog"

	"ripperbot/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldCaptureID is the standardized structured logging key for capture identifiers.
	FieldCaptureID = "capture_id"
	// FieldState is the standardized structured logging key for capture machine states.
	FieldState = "state"
	// FieldEventType classifies a log line for filtering (e.g. "pickup_not_found").
	FieldEventType = "event_type"
	// FieldErrorHint carries the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for the physical consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags faults that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := services.CaptureIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCaptureID, id))
	}
	if state, ok := services.StateFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldState, state))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
