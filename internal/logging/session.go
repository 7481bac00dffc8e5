package logging

import (
	"context"
	"log/slog"
)

// SessionProvider returns attributes describing the running session at the
// moment a record is written, e.g. the session id and current frame.
type SessionProvider func() []slog.Attr

// SessionHandler injects SessionProvider attributes into every record.
type SessionHandler struct {
	inner    slog.Handler
	provider SessionProvider
}

func NewSessionHandler(inner slog.Handler, provider SessionProvider) *SessionHandler {
	return &SessionHandler{inner: inner, provider: provider}
}

func (h *SessionHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *SessionHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil {
		r.AddAttrs(h.provider()...)
	}
	return h.inner.Handle(ctx, r)
}

func (h *SessionHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SessionHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider}
}

func (h *SessionHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &SessionHandler{inner: h.inner.WithGroup(name), provider: h.provider}
}

// FrameAttrs is a SessionProvider for a replay or recording loop.
func FrameAttrs(sessionID string, frame func() int) SessionProvider {
	return func() []slog.Attr {
		return []slog.Attr{
			slog.String("session", sessionID),
			slog.Int("frame", frame()),
		}
	}
}
