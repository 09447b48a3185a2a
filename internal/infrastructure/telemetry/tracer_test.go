package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/adminkit/backend/internal/infrastructure/config"
	"github.com/adminkit/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	ctx := context.Background()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:     false,
		ServiceName: "test-service",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	assert.Equal(t, "test-service", tp.GetConfig().ServiceName)
	assert.NotNil(t, tp.Tracer("test"))
	assert.NoError(t, tp.ForceFlush(ctx))
	assert.NoError(t, tp.EnableSpanProfiles())
	assert.False(t, tp.IsSpanProfilesEnabled())
	assert.NoError(t, tp.Shutdown(ctx))
}

func TestNewTracerProvider_ExportsSpans(t *testing.T) {
	keepGlobalProviders(t)
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:       true,
		SamplingRatio: 1.0,
		ServiceName:   "relay",
	}, zaptest.NewLogger(t), telemetry.WithSpanExporter(exporter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	assert.True(t, tp.IsEnabled())
	assert.Same(t, tp.Provider(), otel.GetTracerProvider())

	_, span := tp.Tracer("test").Start(ctx, "outbox.process_batch")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "outbox.process_batch", spans[0].Name)
}

func TestNewTracerProvider_NeverSamples(t *testing.T) {
	keepGlobalProviders(t)
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:       true,
		SamplingRatio: 0,
		ServiceName:   "relay",
	}, zaptest.NewLogger(t), telemetry.WithSpanExporter(exporter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	_, span := tp.Tracer("test").Start(ctx, "dropped")
	span.End()

	assert.Empty(t, exporter.GetSpans())
}

func TestTracerProvider_EnableSpanProfiles(t *testing.T) {
	keepGlobalProviders(t)
	ctx := context.Background()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{Enabled: true, SamplingRatio: 1},
		zaptest.NewLogger(t), telemetry.WithSpanExporter(tracetest.NewInMemoryExporter()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	require.NoError(t, tp.EnableSpanProfiles())
	assert.True(t, tp.IsSpanProfilesEnabled())
	assert.NotEqual(t, tp.Provider(), otel.GetTracerProvider())

	// second call is a no-op
	require.NoError(t, tp.EnableSpanProfiles())
}

func TestConfigFrom(t *testing.T) {
	cfg := telemetry.ConfigFrom(config.TelemetryConfig{
		Enabled:           true,
		CollectorEndpoint: "otel:4317",
		SamplingRatio:     0.25,
		ServiceName:       "adminkit",
		Insecure:          true,
		LogsEnabled:       true,
	})

	assert.Equal(t, telemetry.Config{
		Enabled:           true,
		CollectorEndpoint: "otel:4317",
		SamplingRatio:     0.25,
		ServiceName:       "adminkit",
		Insecure:          true,
	}, cfg)
}

func TestNewTracerProvider_Collector(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	keepGlobalProviders(t)
	ctx := context.Background()

	// the gRPC exporter connects lazily, so construction succeeds without a collector
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           true,
		CollectorEndpoint: "localhost:14317",
		SamplingRatio:     1.0,
		ServiceName:       "test-service",
		Insecure:          true,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, tp.IsEnabled())

	shutdownCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_ = tp.Shutdown(shutdownCtx)
}
