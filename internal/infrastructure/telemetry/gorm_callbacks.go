package telemetry

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// operation callbacks receive the SQL verb of the statement
type operationCallback func(db *gorm.DB, operation string)

// registerAround registers before/after callbacks for every GORM operation.
// after runs ahead of the otelgorm span end so it can still annotate the span.
func registerAround(db *gorm.DB, prefix string, before func(*gorm.DB), after operationCallback) error {
	cb := db.Callback()
	fixed := func(op string) func(*gorm.DB) {
		return func(db *gorm.DB) { after(db, op) }
	}
	detected := func(db *gorm.DB) {
		after(db, detectOperationType(db.Statement.SQL.String()))
	}

	return errors.Join(
		cb.Create().Before("gorm:create").Register(prefix+":before_create", before),
		cb.Query().Before("gorm:query").Register(prefix+":before_query", before),
		cb.Update().Before("gorm:update").Register(prefix+":before_update", before),
		cb.Delete().Before("gorm:delete").Register(prefix+":before_delete", before),
		cb.Row().Before("gorm:row").Register(prefix+":before_row", before),
		cb.Raw().Before("gorm:raw").Register(prefix+":before_raw", before),

		cb.Create().After("gorm:create").Before("otel:after:create").Register(prefix+":after_create", fixed("INSERT")),
		cb.Query().After("gorm:query").Before("otel:after:query").Register(prefix+":after_query", fixed("SELECT")),
		cb.Update().After("gorm:update").Before("otel:after:update").Register(prefix+":after_update", fixed("UPDATE")),
		cb.Delete().After("gorm:delete").Before("otel:after:delete").Register(prefix+":after_delete", fixed("DELETE")),
		cb.Row().After("gorm:row").Before("otel:after:row").Register(prefix+":after_row", detected),
		cb.Raw().After("gorm:raw").Before("otel:after:raw").Register(prefix+":after_raw", detected),
	)
}

// startTimer stores the statement start time under key
func startTimer(key string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		db.InstanceSet(key, time.Now())
	}
}

// elapsed returns the time since the timer under key started, or zero
func elapsed(db *gorm.DB, key string) time.Duration {
	v, ok := db.InstanceGet(key)
	if !ok {
		return 0
	}
	start, ok := v.(time.Time)
	if !ok {
		return 0
	}
	return time.Since(start)
}

func detectOperationType(sql string) string {
	sql = strings.TrimSpace(strings.ToUpper(sql))

	switch {
	case strings.HasPrefix(sql, "SELECT"):
		return "SELECT"
	case strings.HasPrefix(sql, "INSERT"):
		return "INSERT"
	case strings.HasPrefix(sql, "UPDATE"):
		return "UPDATE"
	case strings.HasPrefix(sql, "DELETE"):
		return "DELETE"
	default:
		return "OTHER"
	}
}

func tableName(db *gorm.DB) string {
	if db.Statement.Table != "" {
		return db.Statement.Table
	}
	return "unknown"
}

func isQueryError(err error) bool {
	return err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
}
