package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spounge-ai/auditvault/internal/infra/config"
)

// NewConnectionPool creates a pgx pool from configuration and verifies
// connectivity before handing it out.
func NewConnectionPool(ctx context.Context, dbConfig config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dbConfig.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse db config: %w", err)
	}

	if dbConfig.MaxConns > 0 {
		poolConfig.MaxConns = dbConfig.MaxConns
	}
	if dbConfig.MinConns > 0 {
		poolConfig.MinConns = dbConfig.MinConns
	}
	if dbConfig.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = dbConfig.MaxConnIdleTime
	}
	if dbConfig.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = dbConfig.MaxConnLifetime
	}
	if dbConfig.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = dbConfig.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
