package ride

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecore/internal/logging"
	"ridecore/internal/modules/advisory"
	"ridecore/internal/modules/fare"
	"ridecore/internal/types"
)

type release struct {
	driverID  types.ID
	countTrip bool
}

type memRepo struct {
	mu       sync.Mutex
	rides    map[types.ID]*Ride
	events   map[types.ID][]Event
	releases []release
}

func newMemRepo() *memRepo {
	return &memRepo{rides: make(map[types.ID]*Ride), events: make(map[types.ID][]Event)}
}

func (m *memRepo) put(r *Ride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rides[r.ID] = &cp
}

func (m *memRepo) Create(_ context.Context, r *Ride, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rides[r.ID] = &cp
	m.events[r.ID] = append(m.events[r.ID], e)
	return nil
}

func (m *memRepo) Get(_ context.Context, id types.ID) (*Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) ApplyTransition(_ context.Context, t Transition) (*Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[t.RideID]
	if !ok || r.Status != t.From {
		return nil, ErrConflict
	}
	r.Status = t.To
	at := t.At
	switch t.To {
	case StatusMatched:
		r.MatchedAt = &at
	case StatusInProgress:
		r.StartedAt = &at
	case StatusCompleted:
		r.CompletedAt = &at
	case StatusCancelled:
		r.CancelledAt = &at
	}
	if t.FinalFare != nil {
		r.FinalFare = t.FinalFare
	}
	if t.DurationMinutes != nil {
		r.DurationMinutes = *t.DurationMinutes
	}
	if t.ReleaseDriver != nil {
		m.releases = append(m.releases, release{driverID: *t.ReleaseDriver, countTrip: t.CountTrip})
	}
	m.events[t.RideID] = append(m.events[t.RideID], t.Event)
	cp := *r
	return &cp, nil
}

func (m *memRepo) UpdateDestination(_ context.Context, u DestinationUpdate) (*Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[u.RideID]
	if !ok || r.Status != u.Status {
		return nil, ErrConflict
	}
	r.Destination = u.Destination
	r.EstimatedFare = u.EstimatedFare
	r.SurgeMultiplier = u.SurgeMultiplier
	r.DistanceKm = u.DistanceKm
	r.DurationMinutes = u.DurationMinutes
	m.events[u.RideID] = append(m.events[u.RideID], u.Event)
	cp := *r
	return &cp, nil
}

func (m *memRepo) Events(_ context.Context, rideID types.ID) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events[rideID]...), nil
}

type stubResolver struct {
	places map[string]advisory.Destination
	err    error
}

func (s stubResolver) Resolve(_ context.Context, text string, _ *types.Point) (advisory.Destination, error) {
	if s.err != nil {
		return advisory.Destination{}, s.err
	}
	d, ok := s.places[text]
	if !ok {
		return advisory.Destination{}, advisory.ErrDestinationUnresolvable
	}
	return d, nil
}

// stubFares prices by destination latitude so each place has a distinct estimate.
type stubFares struct {
	byLat map[float64]fare.Estimate
}

func (s stubFares) Estimate(_ context.Context, _, dest types.Point) (fare.Estimate, error) {
	est, ok := s.byLat[dest.Lat]
	if !ok {
		return fare.Estimate{}, errors.New("no estimate")
	}
	return est, nil
}

type stubMatcher struct {
	calls int
}

func (m *stubMatcher) Match(_ context.Context, r *Ride) (*Ride, error) {
	m.calls++
	d := types.ID("driver-1")
	r.DriverID = &d
	r.Status = StatusMatched
	return r, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

var (
	pickup  = types.Point{Lat: 40.758, Lng: -73.9855}
	airport = advisory.Destination{Lat: 40.6413, Lng: -73.7781, Address: "JFK Airport", Confidence: 0.95}
	museum  = advisory.Destination{Lat: 40.7794, Lng: -73.9632, Address: "Met Museum", Confidence: 0.9}
)

func estimate(distance float64, minutes int, surge float64) fare.Estimate {
	return fare.Estimate{
		Breakdown:        fare.Calculate(distance, float64(minutes), surge),
		DistanceKm:       distance,
		EstimatedMinutes: minutes,
	}
}

type recordingRefresher struct {
	mu  sync.Mutex
	ids []types.ID
}

func (r *recordingRefresher) Refresh(_ context.Context, id types.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

type fixture struct {
	svc       *Service
	repo      *memRepo
	matcher   *stubMatcher
	pub       *recordingPublisher
	refresher *recordingRefresher
	clock     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:    newMemRepo(),
		matcher:   &stubMatcher{},
		pub:       &recordingPublisher{},
		refresher: &recordingRefresher{},
		clock:     time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC),
	}
	resolver := stubResolver{places: map[string]advisory.Destination{"JFK airport": airport, "the met": museum}}
	fares := stubFares{byLat: map[float64]fare.Estimate{
		airport.Lat: estimate(10, 20, 1.0),
		museum.Lat:  estimate(3, 40, 1.5),
	}}
	f.svc = NewService(f.repo, resolver, fares, f.matcher, f.pub, logging.Discard()).WithDriverRefresher(f.refresher)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

// seed stores a ride for rider-1 assigned to driver-1 in the given status.
func (f *fixture) seed(status Status) *Ride {
	d := types.ID("driver-1")
	r := &Ride{
		ID:                      types.NewID(),
		RiderID:                 "rider-1",
		Status:                  status,
		Pickup:                  pickup,
		Destination:             Destination{Text: "JFK airport", Point: airport.Point()},
		EstimatedFare:           22.5,
		SurgeMultiplier:         1.0,
		DistanceKm:              10,
		DurationMinutes:         20,
		OriginalDurationMinutes: 20,
		RequestedAt:             f.clock,
	}
	if status != StatusRequested {
		r.DriverID = &d
	}
	if status == StatusInProgress {
		started := f.clock
		r.StartedAt = &started
	}
	f.repo.put(r)
	return r
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	r, err := f.svc.Create(context.Background(), CreateCommand{RiderID: "rider-1", Pickup: pickup, DestinationText: "  JFK airport "})
	require.NoError(t, err)

	assert.Equal(t, StatusRequested, r.Status)
	assert.Equal(t, airport.Point(), r.Destination.Point)
	assert.Equal(t, "JFK Airport", r.Destination.Address)
	assert.Equal(t, 22.5, r.EstimatedFare)
	assert.Equal(t, 20, r.DurationMinutes)
	assert.Equal(t, 20, r.OriginalDurationMinutes)
	assert.Nil(t, r.DriverID)

	events, err := f.repo.Events(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "created", events[0].Metadata["type"])
	assert.Len(t, f.pub.events, 1)
}

func TestCreate_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateCommand{RiderID: "rider-1", Pickup: pickup, DestinationText: "   "})
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = f.svc.Create(ctx, CreateCommand{RiderID: "rider-1", Pickup: types.Point{Lat: 100}, DestinationText: "JFK airport"})
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = f.svc.Create(ctx, CreateCommand{RiderID: "rider-1", Pickup: pickup, DestinationText: "nowhere in particular"})
	assert.ErrorIs(t, err, advisory.ErrDestinationUnresolvable)
	assert.Empty(t, f.repo.rides)
}

func TestMatch_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	requested := f.seed(StatusRequested)
	_, err := f.svc.Match(ctx, requested.ID, "rider-2")
	assert.ErrorIs(t, err, ErrForbidden)

	matched := f.seed(StatusMatched)
	_, err = f.svc.Match(ctx, matched.ID, "rider-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 0, f.matcher.calls)

	out, err := f.svc.Match(ctx, requested.ID, "rider-1")
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, out.Status)
	assert.Equal(t, 1, f.matcher.calls)
}

func TestUpdateStatus_DriverLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.seed(StatusMatched)

	out, err := f.svc.UpdateStatus(ctx, UpdateStatusCommand{RideID: r.ID, DriverID: "driver-1", To: StatusDriverArriving})
	require.NoError(t, err)
	assert.Equal(t, StatusDriverArriving, out.Status)

	out, err = f.svc.UpdateStatus(ctx, UpdateStatusCommand{RideID: r.ID, DriverID: "driver-1", To: StatusInProgress})
	require.NoError(t, err)
	require.NotNil(t, out.StartedAt)
	assert.Equal(t, f.clock, *out.StartedAt)

	f.clock = f.clock.Add(24*time.Minute + 10*time.Second)
	out, err = f.svc.UpdateStatus(ctx, UpdateStatusCommand{RideID: r.ID, DriverID: "driver-1", To: StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, 25, out.DurationMinutes, "actual minutes round up")
	require.NotNil(t, out.FinalFare)
	assert.Equal(t, fare.Calculate(10, 25, 1.0).Total, *out.FinalFare)
	assert.Equal(t, []release{{driverID: "driver-1", countTrip: true}}, f.repo.releases)

	events, _ := f.repo.Events(ctx, r.ID)
	require.Len(t, events, 3)
	assert.Equal(t, *out.FinalFare, events[2].Metadata["finalFare"])
	assert.Len(t, f.pub.events, 3)
}

func TestReleasedDriverIsRefreshedAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.seed(StatusMatched)
	_, err := f.svc.UpdateStatus(ctx, UpdateStatusCommand{RideID: r.ID, DriverID: "driver-1", To: StatusDriverArriving})
	require.NoError(t, err)
	assert.Empty(t, f.refresher.ids, "non-terminal transitions keep the driver assigned")

	_, err = f.svc.Cancel(ctx, CancelCommand{RideID: r.ID, ActorID: "rider-1", Role: RoleRider})
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"driver-1"}, f.refresher.ids)

	unassigned := f.seed(StatusRequested)
	_, err = f.svc.Cancel(ctx, CancelCommand{RideID: unassigned.ID, ActorID: "rider-1", Role: RoleRider})
	require.NoError(t, err)
	assert.Len(t, f.refresher.ids, 1, "nothing to refresh without a driver")

	inProgress := f.seed(StatusInProgress)
	_, err = f.svc.UpdateStatus(ctx, UpdateStatusCommand{RideID: inProgress.ID, DriverID: "driver-1", To: StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"driver-1", "driver-1"}, f.refresher.ids)
}

func TestUpdateStatus_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.seed(StatusMatched)

	_, err := f.svc.UpdateStatus(ctx, UpdateStatusCommand{RideID: r.ID, DriverID: "driver-2", To: StatusDriverArriving})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.UpdateStatus(ctx, UpdateStatusCommand{RideID: r.ID, DriverID: "driver-1", To: StatusCompleted})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.UpdateStatus(ctx, UpdateStatusCommand{RideID: r.ID, DriverID: "driver-1", To: "teleported"})
	assert.ErrorIs(t, err, ErrBadRequest)

	requested := f.seed(StatusRequested)
	_, err = f.svc.UpdateStatus(ctx, UpdateStatusCommand{RideID: requested.ID, DriverID: "driver-1", To: StatusMatched})
	assert.ErrorIs(t, err, ErrForbidden, "unassigned rides cannot be advanced by a driver")
}

func TestChangeDestination_Guard(t *testing.T) {
	ctx := context.Background()
	for _, status := range []Status{StatusRequested, StatusMatched, StatusCompleted, StatusCancelled} {
		f := newFixture(t)
		r := f.seed(status)
		_, err := f.svc.ChangeDestination(ctx, ChangeDestinationCommand{RideID: r.ID, RiderID: "rider-1", DestinationText: "the met"})
		assert.ErrorIs(t, err, ErrDestinationChangeNotAllowed, string(status))
	}

	for _, status := range []Status{StatusDriverArriving, StatusInProgress} {
		f := newFixture(t)
		r := f.seed(status)
		out, err := f.svc.ChangeDestination(ctx, ChangeDestinationCommand{RideID: r.ID, RiderID: "rider-1", DestinationText: "the met"})
		require.NoError(t, err, string(status))
		assert.Equal(t, status, out.Status)
		assert.Equal(t, museum.Point(), out.Destination.Point)
		assert.Equal(t, 3.0, out.DistanceKm)
		assert.Equal(t, 40, out.DurationMinutes)
		assert.Equal(t, 1.5, out.SurgeMultiplier)
		assert.Equal(t, fare.Calculate(3, 40, 1.5).Total, out.EstimatedFare)
		assert.Equal(t, 20, out.OriginalDurationMinutes)

		events, _ := f.repo.Events(ctx, r.ID)
		require.Len(t, events, 1)
		assert.Equal(t, status, events[0].FromStatus)
		assert.Equal(t, status, events[0].ToStatus)
		assert.Equal(t, "destination_changed", events[0].Metadata["type"])
	}
}

func TestChangeDestination_OtherRider(t *testing.T) {
	f := newFixture(t)
	r := f.seed(StatusInProgress)
	_, err := f.svc.ChangeDestination(context.Background(), ChangeDestinationCommand{RideID: r.ID, RiderID: "rider-2", DestinationText: "the met"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCancel_RiderCannotCancelInProgress(t *testing.T) {
	f := newFixture(t)
	r := f.seed(StatusInProgress)
	_, err := f.svc.Cancel(context.Background(), CancelCommand{RideID: r.ID, ActorID: "rider-1", Role: RoleRider})
	assert.ErrorIs(t, err, ErrCancelNotAllowed)
	assert.Empty(t, f.repo.releases)
}

func TestCancel_RiderBeforeMatch(t *testing.T) {
	f := newFixture(t)
	r := f.seed(StatusRequested)
	out, err := f.svc.Cancel(context.Background(), CancelCommand{RideID: r.ID, ActorID: "rider-1", Role: RoleRider, Reason: "changed plans"})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, out.Status)
	assert.Nil(t, out.FinalFare)
	assert.Empty(t, f.repo.releases, "no driver held")

	_, err = f.svc.Cancel(context.Background(), CancelCommand{RideID: r.ID, ActorID: "rider-1", Role: RoleRider})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancel_DriverMidRideChargesPartialFare(t *testing.T) {
	f := newFixture(t)
	r := f.seed(StatusInProgress)
	f.clock = f.clock.Add(10 * time.Minute)

	out, err := f.svc.Cancel(context.Background(), CancelCommand{RideID: r.ID, ActorID: "driver-1", Role: RoleDriver, Reason: "vehicle issue"})
	require.NoError(t, err)
	require.NotNil(t, out.FinalFare)
	// half of the 20 minute estimate elapsed: 2.50 + 5km*1.50 + 10min*0.25
	assert.Equal(t, 12.5, *out.FinalFare)
	assert.Equal(t, []release{{driverID: "driver-1"}}, f.repo.releases)

	events, _ := f.repo.Events(context.Background(), r.ID)
	require.Len(t, events, 1)
	assert.Equal(t, "driver", events[0].Metadata["cancelledBy"])
	assert.Equal(t, 12.5, events[0].Metadata["partialFare"])
}

func TestCancel_PartialFareFractionCapsAtOne(t *testing.T) {
	f := newFixture(t)
	r := f.seed(StatusInProgress)
	f.clock = f.clock.Add(30 * time.Minute)

	out, err := f.svc.Cancel(context.Background(), CancelCommand{RideID: r.ID, ActorID: "driver-1", Role: RoleDriver})
	require.NoError(t, err)
	assert.Equal(t, fare.Calculate(10, 30, 1.0).Total, *out.FinalFare)
}

// The partial-fare base stays the estimate taken at request time even when
// a destination change produced a newer estimate.
func TestCancelInProgress_UsesOriginalEstimateAfterDestinationChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.seed(StatusInProgress)

	_, err := f.svc.ChangeDestination(ctx, ChangeDestinationCommand{RideID: r.ID, RiderID: "rider-1", DestinationText: "the met"})
	require.NoError(t, err)

	f.clock = f.clock.Add(10 * time.Minute)
	out, err := f.svc.Cancel(ctx, CancelCommand{RideID: r.ID, ActorID: "driver-1", Role: RoleDriver})
	require.NoError(t, err)

	// 10/20 of the new 3 km route, surge 1.5; a 40 minute base would give 10/40.
	assert.Equal(t, fare.Calculate(3*0.5, 10, 1.5).Total, *out.FinalFare)
	assert.NotEqual(t, fare.Calculate(3*0.25, 10, 1.5).Total, *out.FinalFare)
}

func TestCancel_Ownership(t *testing.T) {
	f := newFixture(t)
	r := f.seed(StatusMatched)
	ctx := context.Background()

	_, err := f.svc.Cancel(ctx, CancelCommand{RideID: r.ID, ActorID: "rider-2", Role: RoleRider})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Cancel(ctx, CancelCommand{RideID: r.ID, ActorID: "driver-2", Role: RoleDriver})
	assert.ErrorIs(t, err, ErrForbidden)

	out, err := f.svc.UpdateStatus(ctx, UpdateStatusCommand{RideID: r.ID, DriverID: "driver-1", To: StatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, out.Status)
	assert.Len(t, f.repo.releases, 1)
}

func TestGet_HidesRidesFromOtherParties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.seed(StatusMatched)

	_, err := f.svc.Get(ctx, r.ID, "rider-1", RoleRider)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, r.ID, "driver-1", RoleDriver)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, r.ID, "anyone", RoleAdmin)
	assert.NoError(t, err)

	_, err = f.svc.Get(ctx, r.ID, "rider-2", RoleRider)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.Events(ctx, r.ID, "driver-2", RoleDriver)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublishFailureIsNotSurfaced(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	r := f.seed(StatusMatched)

	_, err := f.svc.UpdateStatus(context.Background(), UpdateStatusCommand{RideID: r.ID, DriverID: "driver-1", To: StatusDriverArriving})
	assert.NoError(t, err)
	assert.Len(t, f.pub.events, 1)
}
