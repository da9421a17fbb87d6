// Package db provides the two Postgres connection styles this engine uses
// side by side, following the teacher's split between a pgx pool for
// direct, high-volume SQL (PostgresDB, in postgres_pgx.go) and GORM for
// declarative entity persistence (OpenGorm, below) — the same "pgx for
// bulk/control, GORM for models" split the teacher documents in its own
// connection-pooling code, now applied to entities.All() instead of a
// RabbitMQ message log.
package db

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// GormConfig configures the connection pool backing a GORM *gorm.DB.
type GormConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultGormConfig mirrors the pool sizing the teacher applies to its own
// GORM connection (10 idle / 100 open / 1h max lifetime) — production
// defaults reused as-is since nothing about this domain changes what a
// sane default connection pool looks like.
func DefaultGormConfig() GormConfig {
	return GormConfig{MaxIdleConns: 10, MaxOpenConns: 100, ConnMaxLifetime: time.Hour}
}

// OpenGorm opens a GORM connection to Postgres at connString and applies
// cfg's pool settings, migrating nothing by itself — callers run
// db.AutoMigrate(entities.All()...) explicitly so migrations stay an
// operator-visible step, not an implicit side effect of opening a
// connection.
func OpenGorm(connString string, cfg GormConfig) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(connString), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return gdb, nil
}
