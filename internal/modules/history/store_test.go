package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecore/testutil"
)

func TestStore_HistoryAndEarnings(t *testing.T) {
	pool := testutil.NewPool(t)
	ctx := context.Background()
	store := NewStore(pool)

	_, err := pool.Exec(ctx, `
		INSERT INTO drivers (id, user_id, vehicle_make, vehicle_model, vehicle_color, license_plate)
		VALUES ('drv-1', 'u-1', 'Kia', 'Niro', 'Grey', 'H-1')`)
	require.NoError(t, err)

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	insert := func(id, status string, fare *float64, completedAt *time.Time, requestedAt time.Time) {
		_, err := pool.Exec(ctx, `
			INSERT INTO rides (id, rider_id, driver_id, status, pickup_lat, pickup_lng,
				destination_text, destination_lat, destination_lng, estimated_fare, final_fare,
				distance_km, duration_minutes, requested_at, completed_at)
			VALUES ($1, 'rider-1', 'drv-1', $2, 40.7, -73.9, 'x', 40.6, -73.8, 10, $3, 5.5, 12, $4, $5)`,
			id, status, fare, requestedAt, completedAt)
		require.NoError(t, err)
	}
	f1, f2 := 12.25, 20.10
	t1, t2 := base.Add(time.Hour), base.Add(2*time.Hour)
	insert("r-1", "completed", &f1, &t1, base)
	insert("r-2", "completed", &f2, &t2, base.Add(time.Minute))
	insert("r-3", "cancelled", nil, nil, base.Add(2*time.Minute))

	rides, total, err := store.RiderRides(ctx, "rider-1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, rides, 2)
	assert.Equal(t, "r-3", string(rides[0].ID))

	done, total, err := store.DriverCompletedRides(ctx, "drv-1", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "r-2", string(done[0].ID))

	e, err := store.Earnings(ctx, "drv-1", Window{})
	require.NoError(t, err)
	assert.Equal(t, 2, e.TotalRides)
	assert.InDelta(t, 32.35, e.TotalEarnings, 0.001)
	assert.Equal(t, 24, e.TotalMinutes)

	from := t2
	e, err = store.Earnings(ctx, "drv-1", Window{From: &from})
	require.NoError(t, err)
	assert.Equal(t, 1, e.TotalRides)
}
