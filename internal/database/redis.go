package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewRedisClient connects to the Redis that holds operation status, the
// bulk job queue and progress channels. The read timeout has to outlast a
// worker's blocking pop, otherwise every idle BLPOP surfaces as an error.
func NewRedisClient(ctx context.Context, redisURL string, blockFor time.Duration, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if minRead := blockFor + time.Second; opt.ReadTimeout < minRead {
		opt.ReadTimeout = minRead
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opt.Addr, err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Dur("read_timeout", opt.ReadTimeout).
		Msg("Redis connected")

	return rdb, nil
}

// RedisProbe returns a health check that pings rdb with a short timeout.
func RedisProbe(rdb *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		return rdb.Ping(ctx).Err()
	}
}
