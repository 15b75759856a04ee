package fare

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecore/internal/cache"
	"ridecore/internal/logging"
	"ridecore/internal/types"
)

// memZoneStore is an in-memory ZoneStore with a list-call counter.
type memZoneStore struct {
	mu        sync.Mutex
	zones     map[types.ID]SurgeZone
	listCalls int
}

func newMemZoneStore() *memZoneStore {
	return &memZoneStore{zones: make(map[types.ID]SurgeZone)}
}

func (m *memZoneStore) List(_ context.Context, activeOnly bool) ([]SurgeZone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var out []SurgeZone
	for _, z := range m.zones {
		if activeOnly && !z.IsActive {
			continue
		}
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memZoneStore) Get(_ context.Context, id types.ID) (SurgeZone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[id]
	if !ok {
		return SurgeZone{}, ErrNotFound
	}
	return z, nil
}

func (m *memZoneStore) Create(_ context.Context, z SurgeZone) (SurgeZone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.zones {
		if existing.Name == z.Name {
			return SurgeZone{}, ErrConflict
		}
	}
	m.zones[z.ID] = z
	return z, nil
}

func (m *memZoneStore) Update(_ context.Context, z SurgeZone) (SurgeZone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.zones[z.ID]; !ok {
		return SurgeZone{}, ErrNotFound
	}
	m.zones[z.ID] = z
	return z, nil
}

func (m *memZoneStore) Delete(_ context.Context, id types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.zones[id]; !ok {
		return ErrNotFound
	}
	delete(m.zones, id)
	return nil
}

func newTestService() (*Service, *memZoneStore, *cache.Versions) {
	store := newMemZoneStore()
	c := cache.New(cache.NewMemoryBackend(), logging.Discard())
	v := cache.NewVersions(c)
	return NewService(store, c, v, logging.Discard()), store, v
}

var (
	timesSquare = types.Point{Lat: 40.758, Lng: -73.9855}
	jfk         = types.Point{Lat: 40.6413, Lng: -73.7781}
)

func TestEstimate_ComputesAndCaches(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService()

	est, err := svc.Estimate(ctx, timesSquare, jfk)
	require.NoError(t, err)
	assert.InDelta(t, 20, est.DistanceKm, 2)
	assert.Equal(t, EstimateMinutes(est.DistanceKm), est.EstimatedMinutes)
	assert.Equal(t, 1.0, est.SurgeMultiplier)
	assert.Empty(t, est.SurgeName)
	assert.Equal(t, 1, store.listCalls)

	again, err := svc.Estimate(ctx, timesSquare, jfk)
	require.NoError(t, err)
	assert.Equal(t, est, again)
	assert.Equal(t, 1, store.listCalls, "second estimate should be served from cache")
}

func TestCreateZone_InvalidatesSurgeAndFare(t *testing.T) {
	ctx := context.Background()
	svc, _, versions := newTestService()

	before, err := svc.Estimate(ctx, timesSquare, jfk)
	require.NoError(t, err)

	_, err = svc.CreateZone(ctx, CreateZoneCommand{Name: "Midtown", Center: timesSquare, RadiusKm: 3, Multiplier: 2.0})
	require.NoError(t, err)
	assert.Equal(t, int64(1), versions.Get(ctx, cache.DomainSurge))
	assert.Equal(t, int64(1), versions.Get(ctx, cache.DomainFare))

	after, err := svc.Estimate(ctx, timesSquare, jfk)
	require.NoError(t, err)
	assert.Equal(t, 2.0, after.SurgeMultiplier)
	assert.Equal(t, "Midtown", after.SurgeName)
	assert.InDelta(t, before.Total*2, after.Total, 0.011)
}

func TestUpdateAndDeleteZone_Invalidate(t *testing.T) {
	ctx := context.Background()
	svc, _, versions := newTestService()

	z, err := svc.CreateZone(ctx, CreateZoneCommand{Name: "Midtown", Center: timesSquare, RadiusKm: 3, Multiplier: 2.0})
	require.NoError(t, err)

	inactive := false
	_, err = svc.UpdateZone(ctx, z.ID, ZonePatch{IsActive: &inactive})
	require.NoError(t, err)
	surge, err := svc.SurgeAt(ctx, timesSquare)
	require.NoError(t, err)
	assert.Equal(t, 1.0, surge.Multiplier)

	require.NoError(t, svc.DeleteZone(ctx, z.ID))
	assert.Equal(t, int64(3), versions.Get(ctx, cache.DomainSurge))
	assert.ErrorIs(t, svc.DeleteZone(ctx, z.ID), ErrNotFound)
}

func TestCreateZone_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _, versions := newTestService()

	bad := []CreateZoneCommand{
		{Name: "", Center: timesSquare, RadiusKm: 1, Multiplier: 1.5},
		{Name: "r", Center: timesSquare, RadiusKm: 0, Multiplier: 1.5},
		{Name: "low", Center: timesSquare, RadiusKm: 1, Multiplier: 0.9},
		{Name: "high", Center: timesSquare, RadiusKm: 1, Multiplier: 10.1},
		{Name: "geo", Center: types.Point{Lat: 91}, RadiusKm: 1, Multiplier: 1.5},
	}
	for _, cmd := range bad {
		_, err := svc.CreateZone(ctx, cmd)
		assert.ErrorIs(t, err, ErrBadRequest, "%+v", cmd)
	}
	assert.Equal(t, int64(0), versions.Get(ctx, cache.DomainSurge), "rejected writes must not invalidate")

	_, err := svc.CreateZone(ctx, CreateZoneCommand{Name: "edge", Center: timesSquare, RadiusKm: 1, Multiplier: 10.0})
	assert.NoError(t, err)
}

func TestCreateZone_DuplicateName(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService()

	_, err := svc.CreateZone(ctx, CreateZoneCommand{Name: "Midtown", Center: timesSquare, RadiusKm: 1, Multiplier: 1.5})
	require.NoError(t, err)
	_, err = svc.CreateZone(ctx, CreateZoneCommand{Name: "Midtown", Center: jfk, RadiusKm: 1, Multiplier: 1.5})
	assert.ErrorIs(t, err, ErrConflict)
}
