// Package cache adds a read-through cache in front of ledger verify lookups.
// Only successful lookups are cached; misses and failures always reach the ledger.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"certify/internal/anchor"
	psync "certify/pkg/platform/sync"
)

const keyPrefix = "certify:anchor:verify:"

// Cache is the key/value store behind the decorator.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// ErrMiss is returned by Cache.Get when the key is absent.
var ErrMiss = errors.New("cache miss")

// Client decorates an anchor.Client with cached Verify lookups.
type Client struct {
	anchor.Client
	cache  Cache
	ttl    time.Duration
	fills  *psync.ShardedMutex
	logger *slog.Logger
}

// Option configures the decorator.
type Option func(*Client)

// WithLogger logs cache failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Wrap returns next with cached verify lookups. A nil cache returns next unchanged.
func Wrap(next anchor.Client, cache Cache, ttl time.Duration, opts ...Option) anchor.Client {
	if cache == nil || ttl <= 0 {
		return next
	}
	c := &Client{Client: next, cache: cache, ttl: ttl, fills: psync.NewShardedMutex()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Verify(ctx context.Context, onChainID string) (*anchor.OnChainRecord, error) {
	key := keyPrefix + onChainID
	if rec, ok := c.lookup(ctx, key, onChainID); ok {
		return rec, nil
	}

	// Concurrent misses for one anchor wait for the first fill.
	c.fills.Lock(key)
	defer c.fills.Unlock(key)
	if rec, ok := c.lookup(ctx, key, onChainID); ok {
		return rec, nil
	}

	rec, err := c.Client.Verify(ctx, onChainID)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(rec); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			c.warn(ctx, "anchor cache write failed", onChainID, err)
		}
	}
	return rec, nil
}

func (c *Client) lookup(ctx context.Context, key, onChainID string) (*anchor.OnChainRecord, bool) {
	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.warn(ctx, "anchor cache read failed", onChainID, err)
		}
		return nil, false
	}
	var rec anchor.OnChainRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		_ = c.cache.Del(ctx, key)
		return nil, false
	}
	return &rec, true
}

// Invalidate drops a cached lookup, e.g. after an on-chain revocation.
func (c *Client) Invalidate(ctx context.Context, onChainID string) error {
	return c.cache.Del(ctx, keyPrefix+onChainID)
}

func (c *Client) warn(ctx context.Context, msg, onChainID string, err error) {
	if c.logger == nil {
		return
	}
	c.logger.WarnContext(ctx, msg, "on_chain_id", onChainID, "error", err)
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	rdb redis.UniversalClient
}

// NewRedisCache wraps rdb.
func NewRedisCache(rdb redis.UniversalClient) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) Del(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}
