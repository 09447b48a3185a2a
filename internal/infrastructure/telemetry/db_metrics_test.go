package telemetry_test

import (
	"testing"
	"time"

	"github.com/adminkit/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

func TestDBMetricsPlugin_RecordsQueries(t *testing.T) {
	reader, provider := newManualMeter(t)

	plugin, err := telemetry.NewDBMetricsPlugin(provider.Meter("db.client"), telemetry.DBMetricsConfig{
		SlowQueryThreshold: time.Hour,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "adminkit:db_metrics", plugin.Name())

	db := openTestDB(t, plugin)
	t.Cleanup(func() { _ = plugin.Close() })

	require.NoError(t, db.Create(&widget{Name: "a"}).Error)
	require.NoError(t, db.Create(&widget{Name: "b"}).Error)
	var all []widget
	require.NoError(t, db.Find(&all).Error)
	require.NoError(t, db.Model(&widget{}).Where("name = ?", "a").Update("name", "c").Error)
	require.NoError(t, db.Where("name = ?", "b").Delete(&widget{}).Error)
	require.Error(t, db.Exec("DELETE FROM no_such_table").Error)

	metrics := collectMetrics(t, reader)

	total := metrics["db_query_total"]
	assert.Equal(t, int64(2), sumFor(t, total, telemetry.AttrDBOperation.String("INSERT")))
	assert.GreaterOrEqual(t, sumFor(t, total, telemetry.AttrDBOperation.String("SELECT")), int64(1))
	assert.Equal(t, int64(1), sumFor(t, total, telemetry.AttrDBOperation.String("UPDATE")))
	assert.GreaterOrEqual(t, sumFor(t, total, telemetry.AttrDBOperation.String("DELETE")), int64(2))

	assert.Equal(t, int64(1), sumFor(t, metrics["db_query_errors_total"], telemetry.AttrDBTable.String("unknown")))
	assert.NotContains(t, metrics, "db_slow_query_total")

	_, ok := metrics["db_query_duration_seconds"].Data.(metricdata.Histogram[float64])
	assert.True(t, ok)
}

func TestDBMetricsPlugin_SlowQueries(t *testing.T) {
	reader, provider := newManualMeter(t)

	plugin, err := telemetry.NewDBMetricsPlugin(provider.Meter("db.client"), telemetry.DBMetricsConfig{
		SlowQueryThreshold: time.Nanosecond,
	}, nil)
	require.NoError(t, err)
	db := openTestDB(t, plugin)

	require.NoError(t, db.Create(&widget{Name: "a"}).Error)

	slow := collectMetrics(t, reader)["db_slow_query_total"]
	assert.GreaterOrEqual(t, sumFor(t, slow, telemetry.AttrDBTable.String("widgets")), int64(1))
}

func TestDBMetricsPlugin_PoolGauges(t *testing.T) {
	reader, provider := newManualMeter(t)

	plugin, err := telemetry.NewDBMetricsPlugin(provider.Meter("db.client"), telemetry.DBMetricsConfig{}, nil)
	require.NoError(t, err)
	openTestDB(t, plugin)

	metrics := collectMetrics(t, reader)
	require.Contains(t, metrics, "db_pool_connections")
	assert.GreaterOrEqual(t, gaugeFor(t, metrics["db_pool_connections"], telemetry.AttrDBState.String("idle")), int64(0))

	maxOpen, ok := metrics["db_pool_connections_max"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, maxOpen.DataPoints, 1)
	assert.Equal(t, int64(1), maxOpen.DataPoints[0].Value)

	require.NoError(t, plugin.Close())
	assert.NotContains(t, collectMetrics(t, reader), "db_pool_connections")
}
