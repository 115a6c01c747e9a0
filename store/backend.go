package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend is the durable remote side of the token store. Every method may
// fail with a transport error; the ResilientStore catches those and degrades
// to its in-process fallback instead of surfacing them.
type Backend interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string, fn func(key, value string) error) error
	Ping(ctx context.Context) error
	FlushAll(ctx context.Context) error
	Close() error
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
}

// RedisBackend implements Backend on top of a redis server.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend builds a redis-backed store backend. The connection is
// lazy; reachability is probed via Ping and per-operation errors.
func NewRedisBackend(cfg RedisConfig) *RedisBackend {
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = 5 * time.Second
	}
	commandTimeout := cfg.CommandTimeout
	if commandTimeout == 0 {
		commandTimeout = 3 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  connectTimeout,
		ReadTimeout:  commandTimeout,
		WriteTimeout: commandTimeout,
		MaxRetries:   1,
	})

	return &RedisBackend{client: client}
}

func (b *RedisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := b.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, key).Err()
}

// Scan walks every key matching pattern and hands (key, value) pairs to fn.
// Keys deleted between SCAN and GET are skipped.
func (b *RedisBackend) Scan(ctx context.Context, pattern string, fn func(key, value string) error) error {
	iter := b.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		value, err := b.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return err
		}

		if err := fn(key, value); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackend) FlushAll(ctx context.Context) error {
	return b.client.FlushAll(ctx).Err()
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
