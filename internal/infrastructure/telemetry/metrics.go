package telemetry

import (
	"cmp"
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

const defaultExportInterval = 60 * time.Second

// MeterOption configures a MeterProvider
type MeterOption func(*meterOptions)

type meterOptions struct {
	reader sdkmetric.Reader
}

// WithMetricReader collects metrics through reader instead of the periodic
// OTLP exporter
func WithMetricReader(reader sdkmetric.Reader) MeterOption {
	return func(o *meterOptions) { o.reader = reader }
}

// MeterProvider installs the SDK meter provider as the process global
type MeterProvider struct {
	signal[*sdkmetric.MeterProvider]
}

// NewMeterProvider starts exporting metrics every cfg.ExportInterval
// (one minute when unset). A disabled provider hands out global meters.
func NewMeterProvider(ctx context.Context, cfg Config, logger *zap.Logger, opts ...MeterOption) (*MeterProvider, error) {
	mp := &MeterProvider{signal: newSignal[*sdkmetric.MeterProvider]("metrics", cfg, logger)}
	if !cfg.Enabled {
		return mp, nil
	}

	var o meterOptions
	for _, opt := range opts {
		opt(&o)
	}
	interval := cmp.Or(cfg.ExportInterval, defaultExportInterval)

	reader := o.reader
	if reader == nil {
		grpcOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.CollectorEndpoint)}
		if cfg.Insecure {
			grpcOpts = append(grpcOpts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, grpcOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))
	}

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, err
	}
	sdk := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
	otel.SetMeterProvider(sdk)

	mp.start(sdk, zap.Duration("export_interval", interval))
	return mp, nil
}

// Meter returns a named meter, from the global provider when disabled
func (mp *MeterProvider) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	return mp.Provider().Meter(name, opts...)
}

// Provider is the provider handed to instrumentation libraries
func (mp *MeterProvider) Provider() metric.MeterProvider {
	if !mp.running {
		return otel.GetMeterProvider()
	}
	return mp.sdk
}

// Counter is an int64 counter with a fixed description and unit
type Counter struct {
	metric.Int64Counter
}

func NewCounter(meter metric.Meter, name, description, unit string) (*Counter, error) {
	c, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return &Counter{Int64Counter: c}, nil
}

// Inc adds one
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Int64Counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Add adds n with the given attributes
func (c *Counter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	c.Int64Counter.Add(ctx, n, metric.WithAttributes(attrs...))
}

// HistogramOpts names a histogram. Empty Boundaries keep the SDK buckets.
type HistogramOpts struct {
	Name        string
	Description string
	Unit        string
	Boundaries  []float64
}

// Histogram records float64 samples, usually seconds
type Histogram struct {
	metric.Float64Histogram
}

func NewHistogram(meter metric.Meter, opts HistogramOpts) (*Histogram, error) {
	instOpts := []metric.Float64HistogramOption{
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	}
	if len(opts.Boundaries) > 0 {
		instOpts = append(instOpts, metric.WithExplicitBucketBoundaries(opts.Boundaries...))
	}
	h, err := meter.Float64Histogram(opts.Name, instOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", opts.Name, err)
	}
	return &Histogram{Float64Histogram: h}, nil
}

func (h *Histogram) Record(ctx context.Context, v float64, attrs ...attribute.KeyValue) {
	h.Float64Histogram.Record(ctx, v, metric.WithAttributes(attrs...))
}

// RecordDuration records d in seconds
func (h *Histogram) RecordDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	h.Record(ctx, d.Seconds(), attrs...)
}

// Metric attribute keys
var (
	AttrEventType   = attribute.Key("event_type")
	AttrDeadLetter  = attribute.Key("dead_letter")
	AttrOutboxState = attribute.Key("status")
	AttrDBOperation = attribute.Key("db.operation")
	AttrDBTable     = attribute.Key("db.table")
	AttrDBState     = attribute.Key("db.pool.state")
)

// Histogram bucket boundaries in seconds
var (
	DBDurationBuckets    = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
	BatchDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	BatchSizeBuckets     = []float64{0, 1, 5, 10, 25, 50, 100, 250, 500}
)
