package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecore/internal/types"
	"ridecore/testutil"
)

func TestAttemptLog_RecordLookupKeepsClaimOrder(t *testing.T) {
	client := testutil.NewRedis(t)
	log := NewAttemptLog(client)
	ctx := context.Background()

	_, ok, err := log.Lookup(ctx, "ride-1")
	require.NoError(t, err)
	assert.False(t, ok)

	first := Attempt{
		RideID:           "ride-1",
		DispatchedAt:     time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC),
		AdvisoryPick:     "d-mid",
		AssignedDriverID: "d-near",
		Reasoning:        FallbackNextClosest,
		Skipped:          1,
		Candidates:       []types.ID{"d-mid", "d-near", "d-far", "d-a", "d-b"},
	}
	require.NoError(t, log.Record(ctx, first))

	got, ok, err := log.Lookup(ctx, "ride-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, got)

	second := Attempt{
		RideID:           "ride-1",
		DispatchedAt:     first.DispatchedAt.Add(time.Minute),
		AdvisoryPick:     "d-far",
		AssignedDriverID: "d-far",
		Reasoning:        "Only driver left.",
		AdvisoryFallback: true,
		Candidates:       []types.ID{"d-far"},
	}
	require.NoError(t, log.Record(ctx, second))

	got, ok, err = log.Lookup(ctx, "ride-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second, got, "a later dispatch replaces the earlier record")

	ttl, err := client.TTL(ctx, "dispatch:ride:ride-1:candidates").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 24*time.Hour)
}
