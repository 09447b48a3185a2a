// Package integration runs the repositories and the outbox relay against
// PostgreSQL and Redis started with testcontainers.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adminkit/backend/internal/infrastructure/config"
	"github.com/adminkit/backend/internal/infrastructure/migration"
	"github.com/adminkit/backend/internal/infrastructure/persistence"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	postgresImage = "postgres:16-alpine"
	redisImage    = "redis:7-alpine"
)

// sharedPostgres is started by the first test that needs a database and
// terminated by TestMain
var sharedPostgres struct {
	once      sync.Once
	container *tcpostgres.PostgresContainer
	dsn       string
	err       error
}

// TestDB is a connection to the shared, migrated database
type TestDB struct {
	DB *gorm.DB
	t  *testing.T
}

// NewSharedTestDB connects to the package's PostgreSQL container, starting
// and migrating it on first use. Every table is emptied before the test.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()

	sharedPostgres.once.Do(func() {
		sharedPostgres.container, sharedPostgres.dsn, sharedPostgres.err = startPostgres(context.Background())
	})
	require.NoError(t, sharedPostgres.err, "PostgreSQL container unavailable")

	tdb := &TestDB{DB: connect(t, sharedPostgres.dsn), t: t}
	tdb.truncateAll()
	return tdb
}

// Count returns the number of rows in table matching the optional condition
func (tdb *TestDB) Count(table string, query string, args ...any) int64 {
	tdb.t.Helper()

	q := tdb.DB.Table(table)
	if query != "" {
		q = q.Where(query, args...)
	}
	var count int64
	require.NoError(tdb.t, q.Count(&count).Error)
	return count
}

func (tdb *TestDB) truncateAll() {
	tdb.t.Helper()

	var tables []string
	require.NoError(tdb.t, tdb.DB.Raw(`
		SELECT quote_ident(tablename) FROM pg_tables
		WHERE schemaname = 'public' AND tablename <> 'schema_migrations'
	`).Scan(&tables).Error)
	if len(tables) == 0 {
		return
	}
	stmt := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(tables, ", "))
	require.NoError(tdb.t, tdb.DB.Exec(stmt).Error)
}

// startPostgres runs a container and applies the embedded migrations
func startPostgres(ctx context.Context) (*tcpostgres.PostgresContainer, string, error) {
	container, err := tcpostgres.Run(ctx, postgresImage,
		tcpostgres.WithDatabase("adminkit_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("start postgres: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err == nil {
		err = migrate(dsn)
	}
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", err
	}
	return container, dsn, nil
}

// migrate applies the migrations over a dedicated connection that the
// migrator closes
func migrate(dsn string) error {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	m, err := migration.New(sqlDB, nil)
	if err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()
	return m.Up()
}

// connect opens the database the way the services do. TEST_DB_DEBUG logs SQL.
func connect(t *testing.T, dsn string) *gorm.DB {
	t.Helper()

	level := logger.Silent
	if os.Getenv("TEST_DB_DEBUG") != "" {
		level = logger.Info
	}
	database, err := persistence.Open(gormpostgres.Open(dsn),
		persistence.WithGormLogger(logger.Default.LogMode(level)),
	)
	require.NoError(t, err, "connect to test database")
	t.Cleanup(func() { _ = database.Close() })

	sqlDB, err := database.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)
	return database.DB
}

// CleanupSharedContainer terminates the shared PostgreSQL container
func CleanupSharedContainer() {
	if sharedPostgres.container == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = sharedPostgres.container.Terminate(ctx)
}

// NewTestRedis starts a Redis container for the test and returns its settings
func NewTestRedis(t *testing.T) config.RedisConfig {
	t.Helper()

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        redisImage,
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "start redis container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	return config.RedisConfig{Host: host, Port: port.Int()}
}
