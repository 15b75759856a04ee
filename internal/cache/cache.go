// README: Best-effort key/value cache; backend failures degrade to miss / no-op / zero.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"ridecore/internal/logging"
	"ridecore/internal/observability"
)

// ErrMiss is returned by a Backend when the key does not exist.
var ErrMiss = errors.New("cache miss")

// Backend is the raw store behind Cache. Implementations return ErrMiss for
// absent keys and any other error for transport or server failures.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
}

const warnEvery = 30 * time.Second

// Cache never returns backend errors to callers.
type Cache struct {
	backend  Backend
	log      *slog.Logger
	lastWarn atomic.Int64 // unix nanos
	now      func() time.Time
}

func New(backend Backend, log *slog.Logger) *Cache {
	return &Cache{backend: backend, log: logging.OrDefault(log), now: time.Now}
}

// Get returns the value and whether it was found.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.warn("get", key, err)
		}
		return "", false
	}
	return v, true
}

// GetJSON decodes the cached value into dst. A value that fails to decode
// counts as a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		c.warn("decode", key, err)
		return false
	}
	return true
}

func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := c.backend.Set(ctx, key, value, ttl); err != nil {
		c.warn("set", key, err)
	}
}

func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.warn("encode", key, err)
		return
	}
	c.Set(ctx, key, string(raw), ttl)
}

func (c *Cache) Del(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.backend.Del(ctx, keys...); err != nil {
		c.warn("del", keys[0], err)
	}
}

// Incr atomically increments key and returns the new value, or 0 on failure.
func (c *Cache) Incr(ctx context.Context, key string) int64 {
	n, err := c.backend.Incr(ctx, key)
	if err != nil {
		c.warn("incr", key, err)
		return 0
	}
	return n
}

// warn logs at most once per warnEvery per Cache instance.
func (c *Cache) warn(op, key string, err error) {
	observability.CacheErrors.WithLabelValues(op).Inc()

	now := c.now().UnixNano()
	last := c.lastWarn.Load()
	if last != 0 && now-last < int64(warnEvery) {
		return
	}
	if !c.lastWarn.CompareAndSwap(last, now) {
		return
	}
	c.log.Warn("cache degraded", "op", op, "key", key, "err", err)
}
