package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dbMetricsStartKey = "adminkit:db_metrics:start"

// DBMetricsConfig holds configuration for database metrics collection.
type DBMetricsConfig struct {
	// SlowQueryThreshold defaults to 200ms
	SlowQueryThreshold time.Duration
}

// DBMetricsPlugin is a GORM plugin that records statement counts, latency
// and connection pool usage.
type DBMetricsPlugin struct {
	meter  metric.Meter
	config DBMetricsConfig
	logger *zap.Logger

	queryTotal     *Counter
	queryErrors    *Counter
	queryDuration  *Histogram
	slowQueryTotal *Counter
	registration   metric.Registration
}

// NewDBMetricsPlugin creates the query instruments on meter.
func NewDBMetricsPlugin(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetricsPlugin, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}

	queryTotal, err := NewCounter(meter, "db_query_total", "Total number of database queries by operation type", "{query}")
	if err != nil {
		return nil, err
	}
	queryErrors, err := NewCounter(meter, "db_query_errors_total", "Database queries that returned an error", "{query}")
	if err != nil {
		return nil, err
	}
	queryDuration, err := NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency distribution in seconds",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	slowQueryTotal, err := NewCounter(meter, "db_slow_query_total", "Queries slower than the configured threshold", "{query}")
	if err != nil {
		return nil, err
	}

	return &DBMetricsPlugin{
		meter:          meter,
		config:         cfg,
		logger:         logger,
		queryTotal:     queryTotal,
		queryErrors:    queryErrors,
		queryDuration:  queryDuration,
		slowQueryTotal: slowQueryTotal,
	}, nil
}

// Name returns the plugin name.
func (p *DBMetricsPlugin) Name() string {
	return "adminkit:db_metrics"
}

// Initialize registers the query callbacks and the pool gauges.
func (p *DBMetricsPlugin) Initialize(db *gorm.DB) error {
	if err := registerAround(db, "db_metrics", startTimer(dbMetricsStartKey), p.record); err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB for pool metrics: %w", err)
	}
	if err := p.observePool(sqlDB.Stats); err != nil {
		return err
	}

	p.logger.Info("Database metrics plugin initialized",
		zap.Duration("slow_query_threshold", p.config.SlowQueryThreshold),
	)
	return nil
}

// Close unregisters the pool gauges
func (p *DBMetricsPlugin) Close() error {
	if p.registration == nil {
		return nil
	}
	return p.registration.Unregister()
}

func (p *DBMetricsPlugin) record(db *gorm.DB, operation string) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	op := AttrDBOperation.String(operation)
	table := AttrDBTable.String(tableName(db))
	d := elapsed(db, dbMetricsStartKey)

	p.queryTotal.Inc(ctx, op)
	p.queryDuration.RecordDuration(ctx, d, op)
	if isQueryError(db.Error) {
		p.queryErrors.Inc(ctx, op, table)
	}
	if d > p.config.SlowQueryThreshold {
		p.slowQueryTotal.Inc(ctx, table)
	}
}

// observePool reports connection pool usage from stats on every collection
func (p *DBMetricsPlugin) observePool(stats func() sql.DBStats) error {
	connections, err := p.meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Number of connections in the pool by state"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create pool gauge: %w", err)
	}
	maxOpen, err := p.meter.Int64ObservableGauge("db_pool_connections_max",
		metric.WithDescription("Maximum number of open connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create pool gauge: %w", err)
	}

	p.registration, err = p.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		o.ObserveInt64(connections, int64(s.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(connections, int64(s.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(maxOpen, int64(s.MaxOpenConnections))
		return nil
	}, connections, maxOpen)
	if err != nil {
		return fmt.Errorf("failed to register pool callback: %w", err)
	}
	return nil
}

var _ gorm.Plugin = (*DBMetricsPlugin)(nil)
