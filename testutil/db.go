// Package testutil provides shared helpers for DB-backed tests. Helpers skip
// automatically when RIDECORE_TEST_DSN is not set.
package testutil

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"ridecore/internal/infra"
)

const dsnEnv = "RIDECORE_TEST_DSN"

var migrateOnce sync.Once
var migrateErr error

// NewPool opens a pool against RIDECORE_TEST_DSN, applies migrations once per
// test binary and truncates every table so each test starts empty.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skip(dsnEnv + " not set; skipping DB-backed test")
	}

	ctx := context.Background()
	pool, err := infra.NewDB(ctx, dsn)
	if err != nil {
		t.Fatalf("testutil.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	migrateOnce.Do(func() { migrateErr = infra.Migrate(ctx, pool) })
	if migrateErr != nil {
		t.Fatalf("testutil.NewPool: migrate: %v", migrateErr)
	}

	if _, err := pool.Exec(ctx, "TRUNCATE TABLE ride_events, surge_zones, drivers, rides CASCADE"); err != nil {
		t.Fatalf("testutil.NewPool: truncate: %v", err)
	}
	return pool
}
