package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// probeTimeout bounds a single health probe.
const probeTimeout = 2 * time.Second

// NewPostgresPool opens a pool for one workload. name becomes part of the
// application_name so interactive and background sessions can be told
// apart in pg_stat_activity.
func NewPostgresPool(ctx context.Context, databaseURL string, maxConns int32, name string, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MaxConns = maxConns
	poolCfg.MinConns = min(2, maxConns)
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "bulkops-" + name

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create %s pool: %w", name, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database (%s pool): %w", name, err)
	}

	log.Info().
		Str("pool", name).
		Str("host", poolCfg.ConnConfig.Host).
		Str("database", poolCfg.ConnConfig.Database).
		Int32("max_conns", maxConns).
		Msg("PostgreSQL connected")

	return pool, nil
}

// PostgresProbe returns a health check that pings pool with a short timeout.
func PostgresProbe(pool *pgxpool.Pool) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		return pool.Ping(ctx)
	}
}
