// Package db opens the optional Postgres and Redis backends.
package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"authwidget/pkg/config"
)

const pingTimeout = 5 * time.Second

// OpenPool returns a nil pool without error when DATABASE_URL is unset; the
// caller then serves tenants from memory.
func OpenPool(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	pc, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("pg config: %w", err)
	}
	if cfg.DBMaxConns > 0 {
		pc.MaxConns = cfg.DBMaxConns
	}
	// widget lookups are short reads
	pc.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("pg connect %s: %w", RedactDSN(cfg.DatabaseURL), err)
	}
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping %s: %w", RedactDSN(cfg.DatabaseURL), err)
	}
	log.Infow("postgres ready", "host", RedactDSN(cfg.DatabaseURL), "max_conns", pc.MaxConns)
	return pool, nil
}

// OpenRedis returns a nil client without error when REDIS_URL is unset; the
// token store then stays in process memory.
func OpenRedis(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	cli := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := cli.Ping(pctx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	log.Infow("redis ready", "addr", opts.Addr, "db", opts.DB)
	return cli, nil
}

// RedactDSN drops the credentials part of a connection string.
func RedactDSN(dsn string) string {
	if i := strings.LastIndex(dsn, "@"); i > 0 {
		return "***@" + dsn[i+1:]
	}
	return dsn
}
