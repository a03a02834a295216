package identity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedLookup caches positive lookups in Redis. Misses are never cached, so a
// household registered a second ago resolves immediately. Redis failures degrade
// to the wrapped lookup.
type CachedLookup[T any] struct {
	next    Lookup[T]
	client  redis.Cmdable
	ttl     time.Duration
	prefix  string
	metrics *Metrics
	logger  *slog.Logger
}

// NewCachedLookup wraps next. Keys are stored as prefix+key.
func NewCachedLookup[T any](next Lookup[T], client redis.Cmdable, ttl time.Duration, prefix string, metrics *Metrics, logger *slog.Logger) *CachedLookup[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedLookup[T]{
		next:    next,
		client:  client,
		ttl:     ttl,
		prefix:  prefix,
		metrics: metrics,
		logger:  logger,
	}
}

func (c *CachedLookup[T]) Find(ctx context.Context, key string) (T, error) {
	var rec T
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(raw, &rec); jsonErr == nil {
			c.metrics.cacheHit()
			return rec, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cache entry", "key", c.prefix+key)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "resolver cache read failed", "error", err)
	}
	c.metrics.cacheMiss()

	rec, err = c.next.Find(ctx, key)
	if err != nil {
		return rec, err
	}
	if payload, err := json.Marshal(rec); err == nil {
		if err := c.client.Set(ctx, c.prefix+key, payload, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "resolver cache write failed", "error", err)
		}
	}
	return rec, nil
}

// Invalidate drops cached entries for keys. Call it after a commit that changes
// the cached record.
func (c *CachedLookup[T]) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	return c.client.Del(ctx, full...).Err()
}
