package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogsOption configures a LoggerProvider
type LogsOption func(*logsOptions)

type logsOptions struct {
	exporter sdklog.Exporter
}

// WithLogExporter exports records synchronously to exp instead of the OTLP
// collector
func WithLogExporter(exp sdklog.Exporter) LogsOption {
	return func(o *logsOptions) { o.exporter = exp }
}

// LoggerProvider feeds the zap bridge. It is installed as the global log
// provider so otelzap cores created elsewhere export too.
type LoggerProvider struct {
	signal[*sdklog.LoggerProvider]
}

// NewLoggerProvider starts exporting log records when cfg.Enabled is set
func NewLoggerProvider(ctx context.Context, cfg Config, logger *zap.Logger, opts ...LogsOption) (*LoggerProvider, error) {
	lp := &LoggerProvider{signal: newSignal[*sdklog.LoggerProvider]("logs", cfg, logger)}
	if !cfg.Enabled {
		return lp, nil
	}

	var o logsOptions
	for _, opt := range opts {
		opt(&o)
	}
	processor, err := logProcessor(ctx, cfg, o.exporter)
	if err != nil {
		return nil, err
	}

	res, err := newResource(cfg.ServiceName)
	if err != nil {
		return nil, err
	}
	sdk := sdklog.NewLoggerProvider(sdklog.WithResource(res), sdklog.WithProcessor(processor))
	global.SetLoggerProvider(sdk)

	lp.start(sdk)
	return lp, nil
}

func logProcessor(ctx context.Context, cfg Config, exp sdklog.Exporter) (sdklog.Processor, error) {
	if exp != nil {
		return sdklog.NewSimpleProcessor(exp), nil
	}

	grpcOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		grpcOpts = append(grpcOpts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, grpcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP logs exporter: %w", err)
	}
	return sdklog.NewBatchProcessor(exporter), nil
}

// NewZapOTELCore returns a core exporting entries at or above level through
// lp. Tee it with the local core using NewBridgedLogger. A disabled
// provider yields a no-op core.
func NewZapOTELCore(lp *LoggerProvider, name string, level zapcore.Level) zapcore.Core {
	if lp == nil || !lp.IsEnabled() {
		return zapcore.NewNopCore()
	}

	core := otelzap.NewCore(name, otelzap.WithLoggerProvider(lp.sdk))
	// otelzap enables every level, so raising the floor cannot fail
	filtered, err := zapcore.NewIncreaseLevelCore(core, level)
	if err != nil {
		lp.logger.Warn("OTEL log bridge exports every level", zap.Error(err))
		return core
	}
	return filtered
}

// NewBridgedLogger tees base with the OTEL core.
func NewBridgedLogger(base *zap.Logger, otelCore zapcore.Core) *zap.Logger {
	return base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, otelCore)
	}))
}

// ParseLogLevel converts a level name to zapcore.Level, defaulting to info
func ParseLogLevel(level string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
