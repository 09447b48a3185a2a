package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adminkit/backend/internal/domain/shared"
	"github.com/adminkit/backend/internal/infrastructure/event"
	"github.com/adminkit/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

var _ event.OutboxMetrics = (*telemetry.OutboxMetrics)(nil)

func TestOutboxMetrics(t *testing.T) {
	reader, provider := newManualMeter(t)
	ctx := context.Background()

	m, err := telemetry.NewOutboxMetrics(provider.Meter("test"))
	require.NoError(t, err)

	m.RecordDelivered(ctx, "SalesOrderCreated")
	m.RecordDelivered(ctx, "SalesOrderCreated")
	m.RecordDelivered(ctx, "SalesOrderConfirmed")
	m.RecordFailed(ctx, "SalesOrderCancelled", false)
	m.RecordFailed(ctx, "SalesOrderCancelled", true)
	m.RecordBatch(ctx, 4, 30*time.Millisecond)

	metrics := collectMetrics(t, reader)

	delivered := metrics["outbox.events.delivered"]
	assert.Equal(t, int64(2), sumFor(t, delivered, telemetry.AttrEventType.String("SalesOrderCreated")))
	assert.Equal(t, int64(1), sumFor(t, delivered, telemetry.AttrEventType.String("SalesOrderConfirmed")))

	failed := metrics["outbox.events.failed"]
	assert.Equal(t, int64(2), sumFor(t, failed, telemetry.AttrEventType.String("SalesOrderCancelled")))
	assert.Equal(t, int64(1), sumFor(t, failed, telemetry.AttrDeadLetter.Bool(true)))

	size, ok := metrics["outbox.batch.size"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, size.DataPoints, 1)
	assert.InDelta(t, 4.0, size.DataPoints[0].Sum, 1e-9)

	duration, ok := metrics["outbox.batch.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Equal(t, uint64(1), duration.DataPoints[0].Count)
}

func TestObserveOutboxBacklog(t *testing.T) {
	reader, provider := newManualMeter(t)

	reg, err := telemetry.ObserveOutboxBacklog(provider.Meter("test"), func(context.Context) (map[shared.OutboxStatus]int64, error) {
		return map[shared.OutboxStatus]int64{
			shared.OutboxStatusPending: 7,
			shared.OutboxStatusDead:    1,
		}, nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Unregister() })

	gauge := collectMetrics(t, reader)["outbox.entries"]
	assert.Equal(t, int64(7), gaugeFor(t, gauge, telemetry.AttrOutboxState.String("PENDING")))
	assert.Equal(t, int64(1), gaugeFor(t, gauge, telemetry.AttrOutboxState.String("DEAD")))
	assert.Equal(t, int64(0), gaugeFor(t, gauge, telemetry.AttrOutboxState.String("SENT")))
}

func TestObserveOutboxBacklog_CountError(t *testing.T) {
	reader, provider := newManualMeter(t)

	_, err := telemetry.ObserveOutboxBacklog(provider.Meter("test"), func(context.Context) (map[shared.OutboxStatus]int64, error) {
		return nil, errors.New("db down")
	})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	err = reader.Collect(context.Background(), &rm)
	assert.ErrorContains(t, err, "db down")
}
