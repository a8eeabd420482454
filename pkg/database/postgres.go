// Package database manages the PostgreSQL connection and schema of the
// tenant directory.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/ekaya-inc/ekaya-askdb/pkg/config"
)

const applicationName = "ekaya-askdb-directory"

// DB is the directory connection pool.
type DB struct {
	*pgxpool.Pool
}

// Config holds directory connection settings.
type Config struct {
	URL             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// ConfigFromConnection resolves the DSN of a configured postgres connection.
func ConfigFromConnection(name string, conn config.ConnectionConfig) (*Config, error) {
	if conn.Type != "postgres" {
		return nil, fmt.Errorf("connection %q is %s; the directory schema requires postgres", name, conn.Type)
	}
	dsn, err := conn.ResolveDSN()
	if err != nil {
		return nil, fmt.Errorf("connection %q: %w", name, err)
	}
	return &Config{URL: dsn, MaxConnections: conn.MaxConnections}, nil
}

// NewConnection opens the pool and verifies it with a ping.
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = orDefault(cfg.MaxConnections, 2)
	poolConfig.MaxConnLifetime = orDefault(cfg.MaxConnLifetime, time.Hour)
	poolConfig.MaxConnIdleTime = orDefault(cfg.MaxConnIdleTime, 10*time.Minute)
	if _, ok := poolConfig.ConnConfig.RuntimeParams["application_name"]; !ok {
		poolConfig.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping directory database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// SQL returns a database/sql handle sharing the pool, for golang-migrate.
// Closing it does not close the pool.
func (db *DB) SQL() *sql.DB {
	return stdlib.OpenDBFromPool(db.Pool)
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
