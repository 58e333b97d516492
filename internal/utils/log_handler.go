package utils

import (
	"context"
	"errors"
	"log/slog"
)

// FanoutHandler sends every record to each wrapped handler that accepts its level.
// Used to log to the console and a rotating file at the same time.
type FanoutHandler []slog.Handler

func NewFanoutHandler(handlers ...slog.Handler) FanoutHandler {
	return FanoutHandler(handlers)
}

func (h FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, inner := range h {
		if inner.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h FanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, inner := range h {
		if !inner.Enabled(ctx, r.Level) {
			continue
		}
		// each handler gets its own copy, handlers may retain the record
		if err := inner.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.each(func(inner slog.Handler) slog.Handler { return inner.WithAttrs(attrs) })
}

func (h FanoutHandler) WithGroup(name string) slog.Handler {
	return h.each(func(inner slog.Handler) slog.Handler { return inner.WithGroup(name) })
}

func (h FanoutHandler) each(fn func(slog.Handler) slog.Handler) FanoutHandler {
	out := make(FanoutHandler, len(h))
	for i, inner := range h {
		out[i] = fn(inner)
	}
	return out
}
