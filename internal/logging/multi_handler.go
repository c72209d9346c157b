package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// MultiHandler combines several slog handlers into one. A record is
// delivered to every handler whose level admits it, and nil handlers
// are skipped so callers can pass optional sinks unconditionally.
func MultiHandler(handlers ...slog.Handler) slog.Handler {
	active := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			active = append(active, h)
		}
	}
	if len(active) == 0 {
		return slog.NewTextHandler(io.Discard, nil)
	}
	return multiHandler(active)
}

type multiHandler []slog.Handler

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs error
	for _, h := range m {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		errs = errors.Join(errs, h.Handle(ctx, record))
	}
	return errs
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, 0, len(m))
	for _, h := range m {
		next = append(next, h.WithAttrs(attrs))
	}
	return multiHandler(next)
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, 0, len(m))
	for _, h := range m {
		next = append(next, h.WithGroup(name))
	}
	return multiHandler(next)
}
