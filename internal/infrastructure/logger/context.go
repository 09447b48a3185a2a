package logger

import (
	"context"

	"github.com/adminkit/backend/internal/domain/shared"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	correlationKey
)

// WithContext stores logger in ctx for FromContext and L
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// WithCorrelationID stores id and logger in ctx and returns logger
// enriched from the new context
func WithCorrelationID(ctx context.Context, logger *zap.Logger, id string) (context.Context, *zap.Logger) {
	ctx = WithContext(context.WithValue(ctx, correlationKey, id), logger)
	return ctx, WithLogger(ctx, logger)
}

// CorrelationID returns the id set by WithCorrelationID or WithEvent
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

// EventFields identify a domain event in log entries
func EventFields(event shared.DomainEvent) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
		zap.String("aggregate_type", event.AggregateType()),
		zap.String("aggregate_id", event.AggregateID().String()),
	}
}

// WithEvent prepares ctx for handling event: the stored logger carries
// the event fields, and the event ID becomes the correlation ID unless
// one is already set.
func WithEvent(ctx context.Context, logger *zap.Logger, event shared.DomainEvent) (context.Context, *zap.Logger) {
	if CorrelationID(ctx) == "" {
		ctx = context.WithValue(ctx, correlationKey, event.EventID().String())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	eventLogger := logger.With(EventFields(event)...)
	ctx = WithContext(ctx, eventLogger)
	return ctx, WithLogger(ctx, eventLogger)
}

// WithLogger adds the trace, span and correlation ids found in ctx to logger.
// A nil logger yields a no-op logger.
func WithLogger(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.Stringer("trace_id", sc.TraceID()),
			zap.Stringer("span_id", sc.SpanID()),
		)
	}
	if id := CorrelationID(ctx); id != "" {
		fields = append(fields, zap.String("correlation_id", id))
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

// L is the logger stored in ctx, enriched with its ids:
//
//	logger.L(ctx).Info("order confirmed", zap.String("order_id", id))
func L(ctx context.Context) *zap.Logger {
	return WithLogger(ctx, FromContext(ctx))
}
