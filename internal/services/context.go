package services

import "context"

type contextKey string

const (
	captureIDKey contextKey = "capture_id"
	stateKey     contextKey = "state"
)

// WithCaptureID annotates context with the in-flight capture identifier.
func WithCaptureID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, captureIDKey, id)
}

// CaptureIDFromContext extracts the capture identifier if present.
func CaptureIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(captureIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithState annotates context with the capture state machine state.
func WithState(ctx context.Context, state string) context.Context {
	if state == "" {
		return ctx
	}
	return context.WithValue(ctx, stateKey, state)
}

// StateFromContext returns the state name if present.
func StateFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stateKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
