package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgMaxConnIdleTime    = 5 * time.Minute
	pgHealthCheckPeriod  = 30 * time.Second
	pgApplicationNameKey = "application_name"
)

// NewPostgresPool opens the pool shared by the contribution ledger and the
// event log. appName is reported to the server as application_name unless
// the URL already sets one.
func NewPostgresPool(ctx context.Context, url, appName string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.MaxConnIdleTime = pgMaxConnIdleTime
	cfg.HealthCheckPeriod = pgHealthCheckPeriod
	if appName != "" {
		if _, ok := cfg.ConnConfig.RuntimeParams[pgApplicationNameKey]; !ok {
			cfg.ConnConfig.RuntimeParams[pgApplicationNameKey] = appName
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}
