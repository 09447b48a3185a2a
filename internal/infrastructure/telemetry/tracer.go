package telemetry

import (
	"context"
	"fmt"
	"sync"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracerOption configures a TracerProvider
type TracerOption func(*tracerOptions)

type tracerOptions struct {
	exporter sdktrace.SpanExporter
}

// WithSpanExporter exports spans synchronously to exp instead of the OTLP collector
func WithSpanExporter(exp sdktrace.SpanExporter) TracerOption {
	return func(o *tracerOptions) { o.exporter = exp }
}

// TracerProvider installs the SDK tracer provider and the W3C propagators
// as the process globals.
type TracerProvider struct {
	signal[*sdktrace.TracerProvider]

	mu           sync.Mutex
	spanProfiles bool
}

// NewTracerProvider starts exporting spans when cfg.Enabled is set. A
// disabled provider leaves the global no-op tracer in place.
func NewTracerProvider(ctx context.Context, cfg Config, logger *zap.Logger, opts ...TracerOption) (*TracerProvider, error) {
	tp := &TracerProvider{signal: newSignal[*sdktrace.TracerProvider]("traces", cfg, logger)}
	if !cfg.Enabled {
		return tp, nil
	}

	var o tracerOptions
	for _, opt := range opts {
		opt(&o)
	}

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, err
	}
	export, err := spanProcessorOption(ctx, cfg, o.exporter)
	if err != nil {
		return nil, err
	}

	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.SamplingRatio)),
		export,
	)
	otel.SetTracerProvider(sdk)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tp.start(sdk, zap.Float64("sampling_ratio", cfg.SamplingRatio))
	return tp, nil
}

// spanProcessorOption sends spans straight to a supplied exporter, or in
// batches to the collector
func spanProcessorOption(ctx context.Context, cfg Config, exp sdktrace.SpanExporter) (sdktrace.TracerProviderOption, error) {
	if exp != nil {
		return sdktrace.WithSyncer(exp), nil
	}

	grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, grpcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}
	return sdktrace.WithBatcher(exporter), nil
}

// newSampler follows the parent's decision and samples root spans at ratio
func newSampler(ratio float64) sdktrace.Sampler {
	root := sdktrace.TraceIDRatioBased(ratio)
	switch {
	case ratio >= 1:
		root = sdktrace.AlwaysSample()
	case ratio <= 0:
		root = sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(root)
}

// EnableSpanProfiles labels CPU profiles with the active span ID by
// wrapping the global provider. Call it once the profiler runs.
func (tp *TracerProvider) EnableSpanProfiles() error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if !tp.running || tp.spanProfiles {
		return nil
	}
	otel.SetTracerProvider(otelpyroscope.NewTracerProvider(tp.sdk))
	tp.spanProfiles = true
	tp.logger.Info("Span profiles enabled", zap.String("service_name", tp.config.ServiceName))
	return nil
}

func (tp *TracerProvider) IsSpanProfilesEnabled() bool {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return tp.spanProfiles
}

// Tracer returns a named tracer, from the global provider when disabled
func (tp *TracerProvider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return tp.Provider().Tracer(name, opts...)
}

// Provider is the provider handed to instrumentation libraries
func (tp *TracerProvider) Provider() trace.TracerProvider {
	if !tp.running {
		return otel.GetTracerProvider()
	}
	return tp.sdk
}

func (tp *TracerProvider) GetConfig() Config {
	return tp.config
}
