package dispatch

import (
	"context"
	"sync"

	"ridecore/internal/modules/ride"
	"ridecore/internal/types"
)

// memStore mimics the Postgres locking used by PGStore: the ride lock
// blocks, driver claims skip rows locked by another transaction, and
// nothing is visible until commit.
type memStore struct {
	mu        sync.Mutex
	rides     map[types.ID]*ride.Ride
	rideLocks map[types.ID]*sync.Mutex
	drivers   map[types.ID]*memDriver
	events    []ride.Event
}

type memDriver struct {
	activeRide *types.ID
	lockedBy   *memTx
}

var phantomTx = &memTx{}

func newMemStore() *memStore {
	return &memStore{
		rides:     make(map[types.ID]*ride.Ride),
		rideLocks: make(map[types.ID]*sync.Mutex),
		drivers:   make(map[types.ID]*memDriver),
	}
}

func (m *memStore) addRide(r *ride.Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rides[r.ID] = &cp
	m.rideLocks[r.ID] = &sync.Mutex{}
}

func (m *memStore) addDriver(id types.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[id] = &memDriver{}
}

// holdLock leaves the driver row locked by a transaction that never ends.
func (m *memStore) holdLock(id types.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[id].lockedBy = phantomTx
}

func (m *memStore) assignOutside(id, rideID types.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[id].activeRide = &rideID
}

func (m *memStore) ride(id types.ID) ride.Ride {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rides[id]
}

func (m *memStore) activeRide(driverID types.ID) *types.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drivers[driverID].activeRide
}

func (m *memStore) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{store: m}
	err := fn(ctx, tx)
	m.mu.Lock()
	if err == nil && tx.pending != nil {
		p := tx.pending
		m.drivers[p.DriverID].activeRide = &p.RideID
		r := m.rides[p.RideID]
		r.DriverID = &p.DriverID
		r.Status = ride.StatusMatched
		r.MatchedAt = &p.At
		r.DispatchReasoning = &p.Reasoning
		m.events = append(m.events, p.Event)
	}
	for _, d := range m.drivers {
		if d.lockedBy == tx {
			d.lockedBy = nil
		}
	}
	m.mu.Unlock()
	if tx.rideLock != nil {
		tx.rideLock.Unlock()
	}
	return err
}

type memTx struct {
	store    *memStore
	rideLock *sync.Mutex
	pending  *Assignment
}

func (t *memTx) LockRide(_ context.Context, rideID types.ID) (ride.Status, error) {
	t.store.mu.Lock()
	lock, ok := t.store.rideLocks[rideID]
	t.store.mu.Unlock()
	if !ok {
		return "", ride.ErrNotFound
	}
	lock.Lock()
	t.rideLock = lock

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.rides[rideID].Status, nil
}

func (t *memTx) TryClaimDriver(_ context.Context, driverID types.ID) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	d, ok := t.store.drivers[driverID]
	if !ok || d.activeRide != nil {
		return false, nil
	}
	if d.lockedBy != nil && d.lockedBy != t {
		return false, nil
	}
	d.lockedBy = t
	return true, nil
}

func (t *memTx) Assign(_ context.Context, a Assignment) (*ride.Ride, error) {
	t.pending = &a
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	out := *t.store.rides[a.RideID]
	out.DriverID = &a.DriverID
	out.Status = ride.StatusMatched
	out.MatchedAt = &a.At
	out.DispatchReasoning = &a.Reasoning
	return &out, nil
}
