package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"

	"ridecore/internal/infra"
)

const redisEnv = "RIDECORE_TEST_REDIS_ADDR"

// NewRedis connects to RIDECORE_TEST_REDIS_ADDR and flushes the selected DB.
// Tests skip when the variable is not set.
func NewRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv(redisEnv)
	if addr == "" {
		t.Skip(redisEnv + " not set; skipping Redis-backed test")
	}

	ctx := context.Background()
	client := infra.NewRedis(addr, "", 0)
	t.Cleanup(func() { _ = client.Close() })

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("testutil.NewRedis: flush: %v", err)
	}
	return client
}
