package cache

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecore/internal/logging"
	"ridecore/internal/types"
)

var errDown = errors.New("connection refused")

func newTestCache() (*Cache, *MemoryBackend) {
	b := NewMemoryBackend()
	return New(b, logging.Discard()), b
}

// --- basic behavior ---

func TestCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", "v", time.Minute)
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	c.Del(ctx, "k")
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestCache_JSONRoundTripAndCorruptValue(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()

	c.SetJSON(ctx, "p", types.Point{Lat: 1.5, Lng: 2.5}, time.Minute)
	var got types.Point
	require.True(t, c.GetJSON(ctx, "p", &got))
	assert.Equal(t, types.Point{Lat: 1.5, Lng: 2.5}, got)

	c.Set(ctx, "bad", "{not json", time.Minute)
	assert.False(t, c.GetJSON(ctx, "bad", &got))
}

func TestMemoryBackend_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }
	c := New(b, logging.Discard())

	c.Set(ctx, "k", "v", 15*time.Second)
	now = now.Add(14 * time.Second)
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

// --- degraded mode ---

func TestCache_BackendFailureDegrades(t *testing.T) {
	ctx := context.Background()
	c, b := newTestCache()
	c.Set(ctx, "k", "v", time.Minute)

	b.SetFailure(errDown)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok, "get must report a miss")
	assert.NotPanics(t, func() {
		c.Set(ctx, "k2", "v", time.Minute)
		c.Del(ctx, "k")
	})
	assert.Equal(t, int64(0), c.Incr(ctx, "counter"))

	b.SetFailure(nil)
	v, ok := c.Get(ctx, "k")
	require.True(t, ok, "failed delete must have been a no-op")
	assert.Equal(t, "v", v)
}

func TestCache_WarningsAreRateLimited(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	b := NewMemoryBackend()
	c := New(b, logging.New(&buf, "info"))
	now := time.Unix(5000, 0)
	c.now = func() time.Time { return now }
	b.SetFailure(errDown)

	for i := 0; i < 10; i++ {
		c.Get(ctx, "k")
		now = now.Add(time.Second)
	}
	assert.Equal(t, 1, strings.Count(buf.String(), "cache degraded"))

	now = now.Add(30 * time.Second)
	c.Get(ctx, "k")
	assert.Equal(t, 2, strings.Count(buf.String(), "cache degraded"))
}

// --- versions ---

func TestVersions_StartAtZeroAndBump(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()
	v := NewVersions(c)

	assert.Equal(t, int64(0), v.Get(ctx, DomainNearby))
	v.Bump(ctx, DomainNearby)
	v.Bump(ctx, DomainNearby)
	assert.Equal(t, int64(2), v.Get(ctx, DomainNearby))

	v.Bump(ctx, DomainSurge, DomainFare)
	assert.Equal(t, int64(1), v.Get(ctx, DomainSurge))
	assert.Equal(t, int64(1), v.Get(ctx, DomainFare))
	assert.Equal(t, int64(2), v.Get(ctx, DomainNearby))
}

func TestVersions_BumpOrphansOldKeys(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()
	v := NewVersions(c)
	p := types.Point{Lat: 40.7580, Lng: -73.9855}

	oldKey := NearbyKey(v.Get(ctx, DomainNearby), p, 5)
	c.Set(ctx, oldKey, `["d1"]`, TTLNearby)

	v.Bump(ctx, DomainNearby)
	newKey := NearbyKey(v.Get(ctx, DomainNearby), p, 5)

	assert.NotEqual(t, oldKey, newKey)
	_, ok := c.Get(ctx, newKey)
	assert.False(t, ok, "lookup after bump must miss")
}

func TestVersions_UnavailableBackendReadsZero(t *testing.T) {
	ctx := context.Background()
	c, b := newTestCache()
	v := NewVersions(c)
	v.Bump(ctx, DomainFare)

	b.SetFailure(errDown)
	assert.Equal(t, int64(0), v.Get(ctx, DomainFare))
}
