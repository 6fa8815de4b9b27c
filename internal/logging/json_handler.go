package logging

import (
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// newJSONHandler writes one JSON object per record. Capture logs and the
// json console format share it, so keys stay stable for tooling that reads
// either: ts, level, msg, src, and durations in milliseconds.
func newJSONHandler(w io.Writer, lvl slog.Leveler, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   addSource,
		ReplaceAttr: replaceJSONAttr,
	})
}

func replaceJSONAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) == 0 {
		switch attr.Key {
		case slog.TimeKey:
			if attr.Value.Kind() == slog.KindTime {
				return slog.String("ts", attr.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return slog.Attr{Key: "ts", Value: attr.Value}
		case slog.LevelKey:
			return slog.String("level", strings.ToLower(attr.Value.String()))
		case slog.MessageKey:
			return slog.Attr{Key: "msg", Value: attr.Value}
		case slog.SourceKey:
			if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
				return slog.String("src", filepath.Base(src.File)+":"+strconv.Itoa(src.Line))
			}
		}
	}
	if attr.Value.Kind() == slog.KindDuration {
		attr.Key += "_ms"
		attr.Value = slog.Int64Value(attr.Value.Duration().Milliseconds())
	}
	return attr
}
