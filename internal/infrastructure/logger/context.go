package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey    contextKey = "logger"
	requestIDKey contextKey = "request_id"
	syncIDKey    contextKey = "sync_id"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from context, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID tags ctx with the HTTP request id
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey).(string)
	return requestID
}

// WithSyncID tags ctx with the id of the ingestion run it belongs to.
// SQL traces and context loggers carry it from then on.
func WithSyncID(ctx context.Context, syncID string) context.Context {
	return context.WithValue(ctx, syncIDKey, syncID)
}

// GetSyncID retrieves the ingestion run id from context
func GetSyncID(ctx context.Context) string {
	syncID, _ := ctx.Value(syncIDKey).(string)
	return syncID
}

// Fields returns the correlation fields present in ctx:
// trace_id, span_id, request_id and sync_id.
func Fields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		fields = append(fields,
			zap.String("trace_id", spanCtx.TraceID().String()),
			zap.String("span_id", spanCtx.SpanID().String()),
		)
	}
	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if syncID := GetSyncID(ctx); syncID != "" {
		fields = append(fields, zap.String("sync_id", syncID))
	}
	return fields
}

// L returns logger enriched with the correlation fields of ctx.
// Usage: logger.L(ctx, o.logger).Info("message")
func L(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if logger == nil {
		logger = FromContext(ctx)
	}
	if fields := Fields(ctx); len(fields) > 0 {
		return logger.With(fields...)
	}
	return logger
}
