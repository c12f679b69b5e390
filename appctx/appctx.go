// Package appctx carries request-scoped logging through context so the
// service packages and the request executor share one logger without
// threading it through every call.
package appctx

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// WithLogger attaches a logger to the context.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// With attaches a child logger carrying the given attributes, so every
// log line downstream of this call includes them.
func With(ctx context.Context, args ...any) context.Context {
	return WithLogger(ctx, GetLogger(ctx).With(args...))
}

// LoggerFromContext returns the logger from the context (if present).
func LoggerFromContext(ctx context.Context) (*slog.Logger, bool) {
	l, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	return l, ok && l != nil
}

// GetLogger returns the logger from the context, or slog.Default() if missing.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := LoggerFromContext(ctx); ok {
		return l
	}
	return slog.Default()
}
