// README: Version registry; monotonic per-domain counters used to invalidate key families.
package cache

import (
	"context"
	"strconv"
)

type Domain string

const (
	DomainNearby Domain = "nearby"
	DomainSurge  Domain = "surge"
	DomainFare   Domain = "fare"
)

func (d Domain) key() string { return string(d) + ":ver" }

// Versions stores its counters in the shared cache backend so every
// instance sees the same invalidation state.
type Versions struct {
	cache *Cache
}

func NewVersions(c *Cache) *Versions {
	return &Versions{cache: c}
}

// Get returns the current version, 0 when absent or unreadable.
func (v *Versions) Get(ctx context.Context, d Domain) int64 {
	raw, ok := v.cache.Get(ctx, d.key())
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Bump increments the domain version, orphaning every key built with the old one.
func (v *Versions) Bump(ctx context.Context, domains ...Domain) {
	for _, d := range domains {
		v.cache.Incr(ctx, d.key())
	}
}
