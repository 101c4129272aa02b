package cacheinfra

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRemoteNotFound is returned by RedisStore.Get for absent keys. It is not a failure.
var ErrRemoteNotFound = errors.New("remote key not found")

const scanBatch = 256

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// NewRedisClient builds a go-redis client from cfg. Several addresses yield a cluster
// or failover client, a single address a plain client.
func NewRedisClient(cfg RemoteConfig) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// RedisStore is the remote tier. Unlike Store implementations it returns errors; the
// TieredStore decides how failures degrade.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps client. Every key is stored under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Get returns the value and its remaining TTL. A zero TTL means the key never expires.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, time.Duration, error) {
	full := r.prefix + key

	var (
		get *redis.StringCmd
		ttl *redis.DurationCmd
	)
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, full)
		ttl = pipe.PTTL(ctx, full)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, err
	}

	value, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, ErrRemoteNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	// PTTL reports -1 for persistent keys; anything non positive is treated as no expiry.
	remaining := ttl.Val()
	if remaining < 0 {
		remaining = 0
	}
	return value, remaining, nil
}

// Set writes value. A ttl <= 0 persists the key.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

// Delete removes key and reports whether it existed.
func (r *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Del(ctx, r.prefix+key).Result()
	return n > 0, err
}

// Exists reports whether key is present.
func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+key).Result()
	return n > 0, err
}

// Keys scans for keys starting with prefix and returns them without the store prefix.
func (r *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	match := globEscaper.Replace(r.prefix+prefix) + "*"

	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, r.prefix))
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
