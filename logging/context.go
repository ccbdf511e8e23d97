package logging

import (
	"context"
	"log/slog"
)

type loggerContextKey struct{}

// WithLogger returns a context carrying the logger for the current invocation
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// FromContext returns the invocation logger, or the default logger if ctx has none
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerContextKey{}).(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}
