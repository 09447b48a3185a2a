package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of event and outbox spans
const TracerName = "adminkit-backend"

// Span attribute keys
const (
	SpanAttrEventID       = "event.id"
	SpanAttrEventType     = "event.type"
	SpanAttrAggregateID   = "aggregate.id"
	SpanAttrAggregateType = "aggregate.type"
	SpanAttrHandler       = "event.handler"
	SpanAttrBatchSize     = "outbox.batch_size"
	SpanAttrRetryCount    = "outbox.retry_count"
)

// SpanOption adjusts a span started by StartSpan
type SpanOption func(*spanConfig)

type spanConfig struct {
	kind  trace.SpanKind
	attrs []attribute.KeyValue
}

// WithAttribute sets key on the new span. See SetAttributes for the
// supported value types.
func WithAttribute(key string, value any) SpanOption {
	return func(c *spanConfig) { c.attrs = append(c.attrs, toAttribute(key, value)) }
}

// WithSpanKind overrides the default internal kind
func WithSpanKind(kind trace.SpanKind) SpanOption {
	return func(c *spanConfig) { c.kind = kind }
}

// StartSpan starts a span from the global provider. The caller ends it:
//
//	ctx, span := telemetry.StartSpan(ctx, "outbox.process_batch")
//	defer span.End()
func StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, trace.Span) {
	c := spanConfig{kind: trace.SpanKindInternal}
	for _, opt := range opts {
		opt(&c)
	}
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(c.kind),
		trace.WithAttributes(c.attrs...),
	)
}

// SetAttributes sets alternating key/value pairs on span. Strings, ints,
// floats, bools, string and int slices keep their type; anything else is
// formatted. Pairs with a non-string key are skipped.
func SetAttributes(span trace.Span, keyValues ...any) {
	if span != nil {
		span.SetAttributes(pairsToAttributes(keyValues)...)
	}
}

// RecordError records err on span and marks the span failed
func RecordError(span trace.Span, err error, opts ...trace.EventOption) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err, opts...)
	span.SetStatus(codes.Error, err.Error())
}

func SetOK(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// AddEvent annotates span with name and alternating key/value pairs
func AddEvent(span trace.Span, name string, keyValues ...any) {
	if span != nil {
		span.AddEvent(name, trace.WithAttributes(pairsToAttributes(keyValues)...))
	}
}

func pairsToAttributes(keyValues []any) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for len(keyValues) >= 2 {
		if key, ok := keyValues[0].(string); ok {
			attrs = append(attrs, toAttribute(key, keyValues[1]))
		}
		keyValues = keyValues[2:]
	}
	return attrs
}

func toAttribute(key string, value any) attribute.KeyValue {
	k := attribute.Key(key)
	switch v := value.(type) {
	case string:
		return k.String(v)
	case bool:
		return k.Bool(v)
	case int:
		return k.Int(v)
	case int64:
		return k.Int64(v)
	case float64:
		return k.Float64(v)
	case []string:
		return k.StringSlice(v)
	case []int:
		return k.IntSlice(v)
	case fmt.Stringer:
		return k.String(v.String())
	}
	return k.String(fmt.Sprint(value))
}
