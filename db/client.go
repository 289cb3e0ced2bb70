// Package db contains the storage-boundary implementations: the PostgreSQL
// trip store (conditional writes on the version column) and the Redis-backed
// field registry used when registrations come from multiple processes.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tripforge/tripforge-backend/config"
	"github.com/tripforge/tripforge-backend/logger"
)

// DBTX is the subset of pgxpool.Pool the stores use. pgxmock satisfies it in
// tests.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DatabaseClient wraps the pgx connection pool.
type DatabaseClient struct {
	pool *pgxpool.Pool
}

// NewDatabaseClient connects to PostgreSQL using the given configuration.
func NewDatabaseClient(ctx context.Context, cfg *config.DatabaseConfig) (*DatabaseClient, error) {
	log := logger.GetLogger()

	poolCfg, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Infow("Connected to database", "host", cfg.Host, "name", cfg.Name)
	return &DatabaseClient{pool: pool}, nil
}

// GetPool returns the underlying connection pool.
func (c *DatabaseClient) GetPool() *pgxpool.Pool {
	return c.pool
}

// Close releases the connection pool.
func (c *DatabaseClient) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}
