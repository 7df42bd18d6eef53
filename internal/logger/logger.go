package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// Setup installs the default slog logger. Production writes JSON, everything
// else writes text.
func Setup(w io.Writer, production bool, level string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if production {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(NewContextHandler(handler)))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ContextHandler adds the Fields stored in the record's context.
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := FieldsFrom(ctx)
	if fields.UpdateID != "" {
		r.AddAttrs(slog.String("update_id", fields.UpdateID))
	}
	if fields.ActorID != 0 {
		r.AddAttrs(slog.Int64("actor_id", fields.ActorID))
	}
	if fields.ChatID != 0 {
		r.AddAttrs(slog.Int64("chat_id", fields.ChatID))
	}
	if fields.RequestID != 0 {
		r.AddAttrs(slog.Int64("request_id", fields.RequestID))
	}
	if fields.Component != "" {
		r.AddAttrs(slog.String("component", fields.Component))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// Audit records a business event. It never fails the caller.
func Audit(ctx context.Context, event string, attrs ...any) {
	slog.InfoContext(ctx, event, slog.Group("audit", attrs...))
}
