package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/adminkit/backend/internal/domain/shared"
	"go.opentelemetry.io/otel/metric"
)

// OutboxMetrics records outbox relay outcomes as OpenTelemetry instruments
type OutboxMetrics struct {
	delivered     *Counter
	failed        *Counter
	batchSize     *Histogram
	batchDuration *Histogram
}

// NewOutboxMetrics creates the relay instruments on meter
func NewOutboxMetrics(meter metric.Meter) (*OutboxMetrics, error) {
	delivered, err := NewCounter(meter, "outbox.events.delivered", "Events published by the outbox relay", "{event}")
	if err != nil {
		return nil, err
	}
	failed, err := NewCounter(meter, "outbox.events.failed", "Failed outbox delivery attempts", "{event}")
	if err != nil {
		return nil, err
	}
	batchSize, err := NewHistogram(meter, HistogramOpts{
		Name:        "outbox.batch.size",
		Description: "Entries claimed per relay batch",
		Unit:        "{event}",
		Boundaries:  BatchSizeBuckets,
	})
	if err != nil {
		return nil, err
	}
	batchDuration, err := NewHistogram(meter, HistogramOpts{
		Name:        "outbox.batch.duration",
		Description: "Time spent processing one relay batch",
		Unit:        "s",
		Boundaries:  BatchDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	return &OutboxMetrics{
		delivered:     delivered,
		failed:        failed,
		batchSize:     batchSize,
		batchDuration: batchDuration,
	}, nil
}

// RecordDelivered counts one published event
func (m *OutboxMetrics) RecordDelivered(ctx context.Context, eventType string) {
	m.delivered.Inc(ctx, AttrEventType.String(eventType))
}

// RecordFailed counts one failed attempt. dead marks entries moved to the
// dead letter queue.
func (m *OutboxMetrics) RecordFailed(ctx context.Context, eventType string, dead bool) {
	m.failed.Inc(ctx, AttrEventType.String(eventType), AttrDeadLetter.Bool(dead))
}

// RecordBatch records the size and duration of one relay batch
func (m *OutboxMetrics) RecordBatch(ctx context.Context, claimed int, duration time.Duration) {
	m.batchSize.Record(ctx, float64(claimed))
	m.batchDuration.RecordDuration(ctx, duration)
}

// OutboxCounter returns the number of outbox entries per status
type OutboxCounter func(ctx context.Context) (map[shared.OutboxStatus]int64, error)

var outboxStatuses = []shared.OutboxStatus{
	shared.OutboxStatusPending,
	shared.OutboxStatusProcessing,
	shared.OutboxStatusSent,
	shared.OutboxStatusFailed,
	shared.OutboxStatusDead,
}

// ObserveOutboxBacklog reports the outbox size per status on every collection.
// Statuses without entries are reported as zero.
func ObserveOutboxBacklog(meter metric.Meter, count OutboxCounter) (metric.Registration, error) {
	gauge, err := meter.Int64ObservableGauge(
		"outbox.entries",
		metric.WithDescription("Outbox entries by status"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create outbox gauge: %w", err)
	}

	return meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		counts, err := count(ctx)
		if err != nil {
			return err
		}
		for _, status := range outboxStatuses {
			o.ObserveInt64(gauge, counts[status], metric.WithAttributes(AttrOutboxState.String(string(status))))
		}
		return nil
	}, gauge)
}
