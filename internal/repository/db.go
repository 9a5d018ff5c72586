// Package repository stores finished games, in PostgreSQL when a database is
// configured and in memory otherwise.
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/trigammon/trigammon-server-go/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS game_result (
	id          bigserial PRIMARY KEY,
	game_id     text NOT NULL,
	winner      text NOT NULL,
	turns       integer NOT NULL,
	white_moves integer NOT NULL DEFAULT 0,
	white_pips  integer NOT NULL DEFAULT 0,
	white_hits  integer NOT NULL DEFAULT 0,
	black_moves integer NOT NULL DEFAULT 0,
	black_pips  integer NOT NULL DEFAULT 0,
	black_hits  integer NOT NULL DEFAULT 0,
	ended       timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS game_result_ended_idx ON game_result (ended DESC);
`

// DB wraps the connection pool.
type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewDB connects, pings and applies the schema.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	connectCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{pool: pool, logger: logger}
	if err := db.Migrate(connectCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates missing tables.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if db.logger != nil {
		db.logger.Debug("database schema applied")
	}
	return nil
}

// Stats returns pool statistics.
func (db *DB) Stats() *pgxpool.Stat {
	return db.pool.Stat()
}

// Close releases every connection.
func (db *DB) Close() {
	db.pool.Close()
}
