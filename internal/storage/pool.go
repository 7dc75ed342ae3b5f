// Package storage persists backtest results to PostgreSQL. It is write-only:
// runs never read their own output back.
package storage

import (
	"context"
	"time"

	pipeerrors "github.com/ducminhle1904/signal-backtest/internal/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   30 * time.Minute,
		MaxConnIdleTime:   5 * time.Minute,
		HealthCheckPeriod: 30 * time.Second,
	}
}

// normalize clamps the connection bounds into a usable range.
func (c PoolConfig) normalize() PoolConfig {
	if c.MaxConns < 1 {
		c.MaxConns = 1
	}
	if c.MinConns < 0 {
		c.MinConns = 0
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	return c
}

// NewPool opens a connection pool and pings the database.
func NewPool(ctx context.Context, databaseURL string, cfg PoolConfig) (*pgxpool.Pool, error) {
	cfg = cfg.normalize()

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.ErrorCategoryConfiguration, "storage", "ParseConfig")
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, pipeerrors.NewPersistenceError("storage", "NewPool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, pipeerrors.NewPersistenceError("storage", "Ping", err)
	}
	return pool, nil
}
