package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	connectAttempts = 5
	connectBackoff  = time.Second
	pingTimeout     = 3 * time.Second
)

var errEmptyURL = errors.New("connection url is required")

// NewPostgresPool opens a pgx pool and waits for Postgres to answer a ping,
// retrying with a linear backoff while the database starts up.
func NewPostgresPool(ctx context.Context, url string, logger *slog.Logger) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("postgres: %w", errEmptyURL)
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := retry(ctx, "postgres", logger, pool.Ping); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// NewRedisClient builds a client from a redis:// URL and waits for PING.
func NewRedisClient(ctx context.Context, url string, logger *slog.Logger) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis: %w", errEmptyURL)
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := retry(ctx, "redis", logger, ping); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func retry(ctx context.Context, name string, logger *slog.Logger, ping func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		logger.Warn("backend not ready", slog.String("backend", name), slog.Int("attempt", attempt), slog.Any("error", err))
		if attempt == connectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * connectBackoff):
		}
	}
	return fmt.Errorf("ping %s: %w", name, err)
}
