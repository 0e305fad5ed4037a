package redact

import (
	"context"
	"log/slog"
)

// LogHandler is a slog.Handler wrapper that redacts the message and every
// string attribute before delegating. Events carrying PII stay useful in
// log streams without leaking it.
type LogHandler struct {
	inner slog.Handler
}

// NewLogHandler wraps inner with PII redaction.
func NewLogHandler(inner slog.Handler) *LogHandler {
	return &LogHandler{inner: inner}
}

func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *LogHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, Redact(rec.Message), rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &LogHandler{inner: h.inner.WithAttrs(redacted)}
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	return &LogHandler{inner: h.inner.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, Redact(a.Value.String()))
	case slog.KindGroup:
		group := a.Value.Group()
		redacted := make([]any, 0, len(group))
		for _, ga := range group {
			redacted = append(redacted, redactAttr(ga))
		}
		return slog.Group(a.Key, redacted...)
	default:
		return a
	}
}
