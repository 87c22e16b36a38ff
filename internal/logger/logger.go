package logger

import (
	"context"
	"log/slog"
	"os"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	tradeIDKey   contextKey = "trade_id"
)

var log *slog.Logger

// Init builds the package-level logger: a ColorHandler for human-readable
// terminal output in every environment (debug level outside "production"),
// wrapped in an OtelHandler so every line carries trace_id/span_id when the
// call is part of a traced operation. Called from this package's init with
// APP_ENV.
func Init(env string) {
	level := slog.LevelInfo
	if env != "production" {
		level = slog.LevelDebug
	}
	base := NewColorHandler(level, os.Stdout, os.Stderr)
	log = slog.New(NewOtelHandler(base))
}

func init() {
	Init(os.Getenv("APP_ENV"))
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func WithTradeID(ctx context.Context, tradeID string) context.Context {
	return context.WithValue(ctx, tradeIDKey, tradeID)
}

func contextAttrs(ctx context.Context) []any {
	var attrs []any
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		attrs = append(attrs, "request_id", requestID)
	}
	if tradeID, ok := ctx.Value(tradeIDKey).(string); ok {
		attrs = append(attrs, "trade_id", tradeID)
	}
	return attrs
}

func Info(ctx context.Context, msg string, args ...any) {
	log.InfoContext(ctx, msg, append(contextAttrs(ctx), args...)...)
}

func Error(ctx context.Context, msg string, err error, args ...any) {
	all := append(contextAttrs(ctx), "error", err)
	log.ErrorContext(ctx, msg, append(all, args...)...)
}

func Debug(ctx context.Context, msg string, args ...any) {
	log.DebugContext(ctx, msg, append(contextAttrs(ctx), args...)...)
}

func Warn(ctx context.Context, msg string, args ...any) {
	log.WarnContext(ctx, msg, append(contextAttrs(ctx), args...)...)
}

func Fatal(ctx context.Context, msg string, err error, args ...any) {
	all := append(contextAttrs(ctx), "error", err)
	log.ErrorContext(ctx, msg, append(all, args...)...)
	os.Exit(1)
}
