package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/adminkit/backend/internal/infrastructure/config"
	"github.com/adminkit/backend/internal/infrastructure/persistence/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM handle shared by the repositories
type Database struct {
	DB *gorm.DB
}

// DatabaseOption customizes Open
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	logger  logger.Interface
	plugins []gorm.Plugin
}

// WithGormLogger replaces the silent default logger
func WithGormLogger(l logger.Interface) DatabaseOption {
	return func(o *databaseOptions) { o.logger = l }
}

// WithPlugins registers GORM plugins such as tracing or metrics
func WithPlugins(plugins ...gorm.Plugin) DatabaseOption {
	return func(o *databaseOptions) { o.plugins = append(o.plugins, plugins...) }
}

// NewDatabase connects to PostgreSQL, sizes the pool from cfg and pings
// the server before returning.
func NewDatabase(cfg *config.DatabaseConfig, opts ...DatabaseOption) (*Database, error) {
	db, err := Open(postgres.Open(cfg.DSN()), opts...)
	if err != nil {
		return nil, err
	}

	pool, err := db.sqlDB()
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	pool.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	if err := pool.Ping(); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Open connects through any dialector. Transactions are opened explicitly
// by the callers, and driver errors are translated to gorm's sentinels.
func Open(dialector gorm.Dialector, opts ...DatabaseOption) (*Database, error) {
	o := databaseOptions{logger: logger.Default.LogMode(logger.Silent)}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 o.logger,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	for _, p := range o.plugins {
		if err := db.Use(p); err != nil {
			return nil, fmt.Errorf("failed to register gorm plugin %s: %w", p.Name(), err)
		}
	}
	return &Database{DB: db}, nil
}

func (d *Database) sqlDB() (*sql.DB, error) {
	pool, err := d.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return pool, nil
}

// AutoMigrate creates this package's tables from the models. Deployed
// schemas come from the SQL migrations; tests and local tools use this.
func (d *Database) AutoMigrate() error {
	return d.DB.AutoMigrate(
		&models.SalesOrderModel{},
		&models.SalesOrderItemModel{},
		&models.OutboxEntryModel{},
	)
}

func (d *Database) Close() error {
	pool, err := d.sqlDB()
	if err != nil {
		return err
	}
	return pool.Close()
}

func (d *Database) Ping() error {
	pool, err := d.sqlDB()
	if err != nil {
		return err
	}
	return pool.Ping()
}

// Stats reports the connection pool counters
func (d *Database) Stats() (sql.DBStats, error) {
	pool, err := d.sqlDB()
	if err != nil {
		return sql.DBStats{}, err
	}
	return pool.Stats(), nil
}

// Transaction runs fn in a transaction that commits when fn returns nil
func (d *Database) Transaction(fn func(tx *gorm.DB) error) error {
	return d.DB.Transaction(fn)
}
