// Package db provides the MySQL/GORM connection the batch queue gateway is
// built on. It mirrors the connection-pool and AutoMigrate conventions this
// codebase has always used for its relational stores, just pointed at a
// single long-lived *gorm.DB instead of reopening a connection per call.
package db

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// DB wraps one long-lived GORM connection. Unlike the original
// per-call-reconnect helpers this package grew out of, callers are expected
// to hold a single DB for the process lifetime and share it across
// goroutines — gorm.DB is safe for concurrent use.
type DB struct {
	*gorm.DB
}

// Open establishes a MySQL connection with production-sane pool settings:
// a modest idle pool, a cap on concurrent connections so a busy scheduler
// can't exhaust the server's connection limit, and a bounded connection
// lifetime so MySQL's own wait_timeout never surprises us with a dead
// connection handed back out of the pool.
func Open(dsn string) (*DB, error) {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("db: open mysql: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("db: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return &DB{DB: gdb}, nil
}

// Migrate runs AutoMigrate for every model the queue gateway owns.
func (d *DB) Migrate(models ...any) error {
	if err := d.DB.AutoMigrate(models...); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return nil
}
