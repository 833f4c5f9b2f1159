package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/BOMMesh/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/BOMMesh/pkg/errors"
)

var (
	ErrCacheMiss           = errors.New(errors.ErrCodeNotFound, "cache miss")
	ErrSerializationFailed = errors.New(errors.ErrCodeSerialization, "serialization failed")
)

// Cache stores JSON-encoded values under a key prefix.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// GetOrSet fills dest from the cache, or from loader on a miss. Concurrent
	// misses on one key share a single loader call. Loader errors are
	// returned as is and never stored.
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error
}

type jsonCache struct {
	client   *Client
	logger   logging.Logger
	prefix   string
	ttl      time.Duration
	noJitter bool
	flight   singleflight.Group
}

type CacheOption func(*jsonCache)

func WithPrefix(prefix string) CacheOption {
	return func(c *jsonCache) { c.prefix = prefix }
}

// WithDefaultTTL applies when Set is called with a zero ttl.
func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *jsonCache) { c.ttl = ttl }
}

// WithTTLJitter toggles the +/-10% expiry spread (on by default).
func WithTTLJitter(enabled bool) CacheOption {
	return func(c *jsonCache) { c.noJitter = !enabled }
}

func NewRedisCache(client *Client, log logging.Logger, opts ...CacheOption) Cache {
	c := &jsonCache{client: client, logger: log, prefix: "bommesh:", ttl: 24 * time.Hour}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *jsonCache) expiry(ttl time.Duration) time.Duration {
	if ttl == 0 {
		ttl = c.ttl
	}
	if c.noJitter || ttl <= 0 {
		return ttl
	}
	return ttl + time.Duration(float64(ttl)*0.1*(2*rand.Float64()-1))
}

func (c *jsonCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	switch {
	case err == redis.Nil:
		return ErrCacheMiss
	case err != nil:
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache read failed")
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	return nil
}

func (c *jsonCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, c.expiry(ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "cache write failed")
	}
	return nil
}

func (c *jsonCache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error {
	err := c.Get(ctx, key, dest)
	if err == nil {
		return nil
	}
	if err != ErrCacheMiss {
		c.logger.Warn("Cache read failed, loading directly", logging.String("key", key), logging.Err(err))
	}

	raw, err, _ := c.flight.Do(key, func() (interface{}, error) {
		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, ErrSerializationFailed.WithCause(err)
		}
		if err := c.client.Set(ctx, c.prefix+key, raw, c.expiry(ttl)).Err(); err != nil {
			c.logger.Warn("Cache write failed", logging.String("key", key), logging.Err(err))
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw.([]byte), dest); err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	return nil
}
