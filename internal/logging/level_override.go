package logging

import (
	"context"
	"log/slog"
)

// levelGate drops records below floor before they reach next. The shared
// handler underneath runs at the most verbose level any component asked
// for, so a gate may only be as permissive as that handler.
type levelGate struct {
	next  slog.Handler
	floor slog.Level
}

func (g *levelGate) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= g.floor && g.next.Enabled(ctx, level)
}

func (g *levelGate) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < g.floor {
		return nil
	}
	return g.next.Handle(ctx, record)
}

func (g *levelGate) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelGate{next: g.next.WithAttrs(attrs), floor: g.floor}
}

func (g *levelGate) WithGroup(name string) slog.Handler {
	return &levelGate{next: g.next.WithGroup(name), floor: g.floor}
}

// regate applies floor to h. An existing gate is replaced rather than nested,
// which is what lets a component run below the global level. Tee handlers
// are regated per branch so a capture log follows the same override.
func regate(h slog.Handler, floor slog.Level) slog.Handler {
	switch v := h.(type) {
	case nil:
		return NoopHandler{}
	case NoopHandler:
		return v
	case *levelGate:
		return &levelGate{next: v.next, floor: floor}
	case *fanoutHandler:
		branches := make([]slog.Handler, len(v.handlers))
		for i, branch := range v.handlers {
			branches[i] = regate(branch, floor)
		}
		return &fanoutHandler{handlers: branches}
	default:
		return &levelGate{next: h, floor: floor}
	}
}

// WithLevelOverride returns logger with floor as its level, keeping its
// attributes and outputs.
func WithLevelOverride(logger *slog.Logger, floor slog.Level) *slog.Logger {
	if logger == nil {
		return slog.New(NoopHandler{})
	}
	return slog.New(regate(logger.Handler(), floor))
}
