// Package telemetry wires OpenTelemetry tracing, metrics and logs, the
// Pyroscope profiler, and the GORM instrumentation plugins.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/adminkit/backend/internal/infrastructure/config"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
)

// ServiceVersion is reported on every signal
var ServiceVersion = "dev"

const shutdownTimeout = 10 * time.Second

// Config selects whether and where one signal is exported. SamplingRatio
// only applies to traces and ExportInterval only to metrics.
type Config struct {
	Enabled           bool
	CollectorEndpoint string
	ServiceName       string
	Insecure          bool
	SamplingRatio     float64
	ExportInterval    time.Duration
}

// ConfigFrom extracts the exporter settings from the application configuration
func ConfigFrom(cfg config.TelemetryConfig) Config {
	return Config{
		Enabled:           cfg.Enabled,
		CollectorEndpoint: cfg.CollectorEndpoint,
		ServiceName:       cfg.ServiceName,
		Insecure:          cfg.Insecure,
		SamplingRatio:     cfg.SamplingRatio,
		ExportInterval:    cfg.MetricsInterval,
	}
}

func newResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

type sdkProvider interface {
	ForceFlush(context.Context) error
	Shutdown(context.Context) error
}

// signal is the start/flush/stop lifecycle the trace, metric and log
// providers share. Until start is called the signal is disabled and every
// method is a no-op.
type signal[P sdkProvider] struct {
	kind    string
	config  Config
	logger  *zap.Logger
	sdk     P
	running bool
}

func newSignal[P sdkProvider](kind string, cfg Config, logger *zap.Logger) signal[P] {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("OpenTelemetry signal disabled", zap.String("signal", kind))
	}
	return signal[P]{kind: kind, config: cfg, logger: logger}
}

func (s *signal[P]) start(sdk P, fields ...zap.Field) {
	s.sdk = sdk
	s.running = true
	s.logger.Info("OpenTelemetry signal started", append([]zap.Field{
		zap.String("signal", s.kind),
		zap.String("collector_endpoint", s.config.CollectorEndpoint),
		zap.String("service_name", s.config.ServiceName),
	}, fields...)...)
}

// IsEnabled reports whether the signal is exported
func (s *signal[P]) IsEnabled() bool {
	return s.running
}

// ForceFlush exports everything buffered so far
func (s *signal[P]) ForceFlush(ctx context.Context) error {
	if !s.running {
		return nil
	}
	return s.sdk.ForceFlush(ctx)
}

// Shutdown flushes and stops the provider, waiting at most ten seconds
func (s *signal[P]) Shutdown(ctx context.Context) error {
	if !s.running {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.sdk.Shutdown(ctx); err != nil {
		s.logger.Error("OpenTelemetry signal shutdown failed", zap.String("signal", s.kind), zap.Error(err))
		return fmt.Errorf("failed to shutdown %s provider: %w", s.kind, err)
	}
	s.running = false
	s.logger.Info("OpenTelemetry signal stopped", zap.String("signal", s.kind))
	return nil
}
