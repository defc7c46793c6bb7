// Package cache keeps read-mostly room catalog responses in Redis.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"daimaescape/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const roomsPrefix = "rooms:"

// Cache is a JSON cache over Redis. A nil *Cache or one without a client
// misses every lookup and ignores writes.
type Cache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func New(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *Cache {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "cache").Logger()
	}
	return &Cache{redis: client, ttl: ttl, logger: l}
}

func (c *Cache) enabled() bool {
	return c != nil && c.redis != nil && c.ttl > 0
}

// RoomsKey namespaces a catalog key so InvalidateRooms can find it.
func RoomsKey(parts ...string) string {
	key := roomsPrefix
	for i, p := range parts {
		if i > 0 {
			key += ":"
		}
		key += p
	}
	return key
}

// Get decodes the cached value for key into out and reports whether it was found.
func (c *Cache) Get(ctx context.Context, key string, out any) bool {
	if !c.enabled() {
		return false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		metrics.IncCache("miss")
		return false
	}
	if err := json.Unmarshal(val, out); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache entry is corrupt")
		metrics.IncCache("miss")
		return false
	}
	metrics.IncCache("hit")
	return true
}

func (c *Cache) Set(ctx context.Context, key string, val any) {
	if !c.enabled() {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// InvalidateRooms drops every cached catalog entry.
func (c *Cache) InvalidateRooms(ctx context.Context) (int, error) {
	if c == nil || c.redis == nil {
		return 0, nil
	}

	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, roomsPrefix+"*", 100).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := c.redis.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.logger.Debug().Int("keys", deleted).Msg("room cache invalidated")
	return deleted, nil
}

func (c *Cache) Ping(ctx context.Context) error {
	if c == nil || c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}
