// Package db opens the Postgres pool backing the user and approval
// repositories.
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/learngate/apiserver/config"
	_ "github.com/lib/pq"
)

const (
	pingTimeout     = 5 * time.Second
	connMaxIdleTime = 2 * time.Minute
	connMaxLifetime = 30 * time.Minute
)

// Open connects to Postgres, applies the configured pool limits, and
// verifies the connection with a bounded ping.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	pool, err := sql.Open("postgres", cfg.URL())
	if err != nil {
		return nil, err
	}

	pool.SetConnMaxIdleTime(connMaxIdleTime)
	pool.SetConnMaxLifetime(connMaxLifetime)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetMaxOpenConns(cfg.MaxOpenConns)

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}

	return pool, nil
}
