// Package logger builds the zap loggers used by the binaries and carries
// request-scoped fields through context.
package logger

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/adminkit/backend/internal/infrastructure/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level, encoding and destination of a logger
type Config struct {
	Level      string // debug, info, warn, error, fatal
	Format     string // json or console
	Output     string // stdout, stderr or a file path
	TimeFormat string // Go time layout
	Service    string // logged as "service" when set
}

const defaultTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// DefaultConfig logs colored console lines at info level
func DefaultConfig() *Config {
	return &Config{Level: "info", Format: "console", Output: "stdout", TimeFormat: defaultTimeFormat}
}

// ProductionConfig logs JSON at info level
func ProductionConfig() *Config {
	return &Config{Level: "info", Format: "json", Output: "stdout", TimeFormat: defaultTimeFormat}
}

// FromConfig maps the [log] section onto a logger Config
func FromConfig(cfg config.LogConfig, service string) *Config {
	return &Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		TimeFormat: defaultTimeFormat,
		Service:    service,
	}
}

// New builds a logger from cfg. Entries are also written to every extra
// core, for example the OpenTelemetry bridge, at that core's own level.
func New(cfg *Config, extra ...zapcore.Core) (*zap.Logger, error) {
	output := strings.ToLower(cfg.Output)
	switch output {
	case "":
		output = "stdout"
	case "stdout", "stderr":
	default:
		output = cfg.Output
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zc.Sampling = nil
	zc.Encoding = "json"
	if cfg.Format == "console" {
		zc.Encoding = "console"
	}
	zc.EncoderConfig = encoderConfig(cfg)
	zc.OutputPaths = []string{output}
	zc.ErrorOutputPaths = []string{"stderr"}

	var opts []zap.Option
	if len(extra) > 0 {
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(append([]zapcore.Core{core}, extra...)...)
		}))
	}
	// after WrapCore so the extra cores get the field too
	if cfg.Service != "" {
		opts = append(opts, zap.Fields(zap.String("service", cfg.Service)))
	}

	logger, err := zc.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", output, err)
	}
	return logger, nil
}

// NewForEnvironment logs JSON in production and console lines elsewhere
func NewForEnvironment(env string) (*zap.Logger, error) {
	if env == "production" {
		return New(ProductionConfig())
	}
	return New(DefaultConfig())
}

// parseLevel falls back to info for anything zap does not recognise
func parseLevel(level string) zapcore.Level {
	level = strings.ToLower(level)
	if level == "warning" {
		return zapcore.WarnLevel
	}
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func encoderConfig(cfg *Config) zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(cmp.Or(cfg.TimeFormat, defaultTimeFormat))
	ec.EncodeDuration = zapcore.MillisDurationEncoder
	if cfg.Format == "console" {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return ec
}

// Sync flushes buffered entries. Terminals reject fsync on some platforms
// and that error is dropped.
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	if err != nil && (strings.Contains(err.Error(), "invalid argument") || strings.Contains(err.Error(), "inappropriate ioctl")) {
		return nil
	}
	return err
}
