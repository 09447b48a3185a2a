package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/adminkit/backend/internal/infrastructure/config"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MeterName is the meter used for application instruments
const MeterName = "adminkit-backend"

// Telemetry bundles the providers built from TelemetryConfig
type Telemetry struct {
	Tracer   *TracerProvider
	Meter    *MeterProvider
	Logs     *LoggerProvider
	Profiler *Profiler

	cfg    config.TelemetryConfig
	logger *zap.Logger
}

// SetupOption configures Setup
type SetupOption func(*setupOptions)

type setupOptions struct {
	tracer []TracerOption
	meter  []MeterOption
	logs   []LogsOption
}

// WithTracerOptions passes options to the tracer provider
func WithTracerOptions(opts ...TracerOption) SetupOption {
	return func(o *setupOptions) { o.tracer = append(o.tracer, opts...) }
}

// WithMeterOptions passes options to the meter provider
func WithMeterOptions(opts ...MeterOption) SetupOption {
	return func(o *setupOptions) { o.meter = append(o.meter, opts...) }
}

// WithLogsOptions passes options to the logger provider
func WithLogsOptions(opts ...LogsOption) SetupOption {
	return func(o *setupOptions) { o.logs = append(o.logs, opts...) }
}

// Setup starts tracing, metrics, the log bridge and the profiler as
// configured. Providers that are disabled stay no-op. On error, everything
// already started is shut down.
func Setup(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger, opts ...SetupOption) (*Telemetry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o setupOptions
	for _, opt := range opts {
		opt(&o)
	}

	t := &Telemetry{cfg: cfg, logger: logger}
	fail := func(err error) (*Telemetry, error) {
		return nil, errors.Join(err, t.Shutdown(ctx))
	}

	var err error
	t.Tracer, err = NewTracerProvider(ctx, ConfigFrom(cfg), logger, o.tracer...)
	if err != nil {
		return fail(err)
	}

	t.Meter, err = NewMeterProvider(ctx, ConfigFrom(cfg), logger, o.meter...)
	if err != nil {
		return fail(err)
	}

	logsCfg := ConfigFrom(cfg)
	logsCfg.Enabled = cfg.Enabled && cfg.LogsEnabled
	t.Logs, err = NewLoggerProvider(ctx, logsCfg, logger, o.logs...)
	if err != nil {
		return fail(err)
	}

	t.Profiler, err = NewProfiler(ProfilerConfig{
		Enabled:         cfg.ProfilingEnabled,
		ServerAddress:   cfg.PyroscopeAddress,
		ApplicationName: cfg.ServiceName,
	}, logger)
	if err != nil {
		return fail(err)
	}
	if t.Profiler.IsEnabled() {
		if err := t.Tracer.EnableSpanProfiles(); err != nil {
			return fail(err)
		}
	}

	return t, nil
}

// BridgeLogger tees logger into the OTEL log bridge. It returns logger
// unchanged when the bridge is disabled.
func (t *Telemetry) BridgeLogger(logger *zap.Logger) *zap.Logger {
	if !t.Logs.IsEnabled() {
		return logger
	}
	core := NewZapOTELCore(t.Logs, t.cfg.ServiceName, ParseLogLevel(t.cfg.LogsLevel))
	return NewBridgedLogger(logger, core)
}

// AppMeter returns the meter for application instruments
func (t *Telemetry) AppMeter() metric.Meter {
	return t.Meter.Meter(MeterName)
}

// GormPlugins returns the GORM plugins enabled by the configuration
func (t *Telemetry) GormPlugins() ([]gorm.Plugin, error) {
	var plugins []gorm.Plugin
	if t.cfg.Enabled && t.cfg.DBTraceEnabled {
		plugins = append(plugins, NewDBTracingPlugin(DBTracingConfig{
			LogFullSQL:      t.cfg.DBLogFullSQL,
			SlowQueryThresh: t.cfg.DBSlowQueryThresh,
			TracerProvider:  t.Tracer.Provider(),
		}, t.logger))
	}
	if t.Meter.IsEnabled() {
		p, err := NewDBMetricsPlugin(t.Meter.Meter("db.client"), DBMetricsConfig{
			SlowQueryThreshold: t.cfg.DBSlowQueryThresh,
		}, t.logger)
		if err != nil {
			return nil, fmt.Errorf("create db metrics plugin: %w", err)
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}

// Shutdown stops every provider and returns the joined errors
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.Profiler != nil {
		errs = append(errs, t.Profiler.Stop())
	}
	if t.Logs != nil {
		errs = append(errs, t.Logs.Shutdown(ctx))
	}
	if t.Meter != nil {
		errs = append(errs, t.Meter.Shutdown(ctx))
	}
	if t.Tracer != nil {
		errs = append(errs, t.Tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
