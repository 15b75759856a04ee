// README: Driver registration, availability, location updates and nearby search.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ridecore/internal/cache"
	"ridecore/internal/geo"
	"ridecore/internal/logging"
	"ridecore/internal/observability"
	"ridecore/internal/types"
)

// Movement below this distance within the freshness window does not
// invalidate cached nearby results.
const (
	significantMoveKm  = 0.05
	locationFreshness  = 2 * time.Second
	defaultNearbyRange = 5.0
)

type Repository interface {
	Create(ctx context.Context, d *Driver) (*Driver, error)
	Get(ctx context.Context, id types.ID) (*Driver, error)
	GetByUserID(ctx context.Context, userID types.ID) (*Driver, error)
	SetOnline(ctx context.Context, userID types.ID, online bool) (*Driver, error)
	UpdateLocation(ctx context.Context, userID types.ID, p types.Point, at time.Time) (*Driver, error)
	Available(ctx context.Context, ids []types.ID) ([]Nearby, error)
	AvailableInBox(ctx context.Context, minLat, maxLat, minLng, maxLng float64) ([]Nearby, error)
}

// LocationIndex is an optional spatial pre-filter.
type LocationIndex interface {
	Add(ctx context.Context, id types.ID, p types.Point) error
	Remove(ctx context.Context, id types.ID) error
	Search(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error)
}

type Service struct {
	store    Repository
	index    LocationIndex
	mirror   LocationMirror
	cache    *cache.Cache
	versions *cache.Versions
	log      *slog.Logger
	now      func() time.Time
}

// NewService wires the driver service. index may be nil, in which case
// nearby search always uses the bounding-box query.
func NewService(store Repository, index LocationIndex, c *cache.Cache, versions *cache.Versions, log *slog.Logger) *Service {
	return &Service{
		store:    store,
		index:    index,
		cache:    c,
		versions: versions,
		log:      logging.OrDefault(log),
		now:      time.Now,
	}
}

// WithMirror attaches a LocationMirror fed alongside the geo index.
func (s *Service) WithMirror(m LocationMirror) *Service {
	s.mirror = m
	return s
}

func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*Driver, error) {
	cmd.Name = strings.TrimSpace(cmd.Name)
	cmd.LicensePlate = strings.TrimSpace(cmd.LicensePlate)
	if err := cmd.validate(); err != nil {
		return nil, err
	}
	d, err := s.store.Create(ctx, &Driver{
		ID:           types.NewID(),
		UserID:       cmd.UserID,
		Name:         cmd.Name,
		VehicleMake:  cmd.VehicleMake,
		VehicleModel: cmd.VehicleModel,
		VehicleColor: cmd.VehicleColor,
		LicensePlate: cmd.LicensePlate,
		Rating:       5.0,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("driver registered", "driver_id", d.ID, "user_id", d.UserID)
	return d, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetByUserID(ctx context.Context, userID types.ID) (*Driver, error) {
	return s.store.GetByUserID(ctx, userID)
}

// SetOnline toggles availability. Any toggle invalidates nearby results.
func (s *Service) SetOnline(ctx context.Context, userID types.ID, online bool) (*Driver, error) {
	prev, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	d, err := s.store.SetOnline(ctx, userID, online)
	if err != nil {
		return nil, err
	}

	if prev.IsOnline != online {
		if online {
			observability.DriversOnline.Inc()
		} else {
			observability.DriversOnline.Dec()
		}
	}
	s.syncIndex(ctx, d)
	s.versions.Bump(ctx, cache.DomainNearby)
	s.log.Info("driver availability changed", "driver_id", d.ID, "online", online)
	return d, nil
}

// UpdateLocation stores the position and invalidates nearby results when the
// driver had no position, moved more than 50 m, or the last fix is stale.
func (s *Service) UpdateLocation(ctx context.Context, userID types.ID, p types.Point) (*Driver, error) {
	if !p.InRange() {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrBadRequest)
	}
	prev, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	d, err := s.store.UpdateLocation(ctx, userID, p, now)
	if err != nil {
		return nil, err
	}
	s.syncIndex(ctx, d)
	if significantChange(prev, p, now) {
		s.versions.Bump(ctx, cache.DomainNearby)
	}
	return d, nil
}

func significantChange(prev *Driver, p types.Point, now time.Time) bool {
	if prev.Location == nil || prev.LocationUpdatedAt == nil {
		return true
	}
	if geo.HaversineKm(*prev.Location, p) > significantMoveKm {
		return true
	}
	return now.Sub(*prev.LocationUpdatedAt) > locationFreshness
}

// Refresh re-syncs a driver whose assignment changed outside this service
// (dispatch claim, ride completion or cancellation) and invalidates nearby
// listings. Failures are logged only; Postgres already holds the truth.
func (s *Service) Refresh(ctx context.Context, driverID types.ID) {
	s.versions.Bump(ctx, cache.DomainNearby)
	d, err := s.store.Get(ctx, driverID)
	if err != nil {
		s.log.Warn("driver refresh failed", "driver_id", driverID, "err", err)
		return
	}
	s.syncIndex(ctx, d)
}

func (s *Service) syncIndex(ctx context.Context, d *Driver) {
	if s.index != nil {
		var err error
		if d.IsOnline && d.Location != nil {
			err = s.index.Add(ctx, d.ID, *d.Location)
		} else {
			err = s.index.Remove(ctx, d.ID)
		}
		if err != nil {
			s.log.Warn("driver geo index update failed", "driver_id", d.ID, "err", err)
		}
	}
	if s.mirror != nil {
		if err := s.mirror.Mirror(ctx, d); err != nil {
			s.log.Warn("driver location mirror failed", "driver_id", d.ID, "err", err)
		}
	}
}

// FindNearbyOnline reads live availability, never the cache. Dispatch must
// not act on a stale candidate list.
func (s *Service) FindNearbyOnline(ctx context.Context, p types.Point, radiusKm float64) ([]Nearby, error) {
	if radiusKm <= 0 {
		radiusKm = defaultNearbyRange
	}

	var rows []Nearby
	indexed := false
	if s.index != nil {
		ids, err := s.index.Search(ctx, p, radiusKm)
		switch {
		case err != nil:
			s.log.Warn("driver geo search failed, using bounding box", "err", err)
		case len(ids) > 0:
			rows, err = s.store.Available(ctx, ids)
			if err != nil {
				return nil, err
			}
			indexed = true
		}
	}
	if !indexed {
		minLat, maxLat, minLng, maxLng := geo.BoundingBox(p, radiusKm)
		var err error
		rows, err = s.store.AvailableInBox(ctx, minLat, maxLat, minLng, maxLng)
		if err != nil {
			return nil, err
		}
	}

	out := make([]Nearby, 0, len(rows))
	for _, n := range rows {
		d := geo.HaversineKm(p, n.Location)
		if d > radiusKm {
			continue
		}
		n.DistanceKm = geo.Round2(d)
		out = append(out, n)
	}
	geo.SortByDistance(out, func(n Nearby) float64 { return n.DistanceKm })
	return out, nil
}

// Nearby is the cached read used by rider-facing listings.
func (s *Service) Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]Nearby, error) {
	if !p.InRange() {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrBadRequest)
	}
	if radiusKm <= 0 {
		radiusKm = defaultNearbyRange
	}
	key := cache.NearbyKey(s.versions.Get(ctx, cache.DomainNearby), p, radiusKm)
	var cached []Nearby
	if s.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}
	out, err := s.FindNearbyOnline(ctx, p, radiusKm)
	if err != nil {
		return nil, err
	}
	s.cache.SetJSON(ctx, key, out, cache.TTLNearby)
	return out, nil
}
