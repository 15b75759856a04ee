// README: Fare service; cached surge lookup and fare estimates, surge zone CRUD with cache invalidation.
package fare

import (
	"context"
	"log/slog"

	"ridecore/internal/cache"
	"ridecore/internal/geo"
	"ridecore/internal/logging"
	"ridecore/internal/types"
)

// ZoneStore is satisfied by *Store.
type ZoneStore interface {
	List(ctx context.Context, activeOnly bool) ([]SurgeZone, error)
	Get(ctx context.Context, id types.ID) (SurgeZone, error)
	Create(ctx context.Context, z SurgeZone) (SurgeZone, error)
	Update(ctx context.Context, z SurgeZone) (SurgeZone, error)
	Delete(ctx context.Context, id types.ID) error
}

type Service struct {
	store    ZoneStore
	cache    *cache.Cache
	versions *cache.Versions
	log      *slog.Logger
}

func NewService(store ZoneStore, c *cache.Cache, versions *cache.Versions, log *slog.Logger) *Service {
	return &Service{store: store, cache: c, versions: versions, log: logging.OrDefault(log)}
}

// SurgeAt returns the surge applying at p.
func (s *Service) SurgeAt(ctx context.Context, p types.Point) (Surge, error) {
	key := cache.SurgeKey(s.versions.Get(ctx, cache.DomainSurge), p)
	var cached Surge
	if s.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}

	zones, err := s.store.List(ctx, true)
	if err != nil {
		return Surge{}, err
	}
	surge := MultiplierAt(p, zones)
	s.cache.SetJSON(ctx, key, surge, cache.TTLSurge)
	return surge, nil
}

// Estimate prices a pickup-to-destination trip at current surge.
func (s *Service) Estimate(ctx context.Context, pickup, dest types.Point) (Estimate, error) {
	key := cache.FareKey(s.versions.Get(ctx, cache.DomainFare), pickup, dest)
	var cached Estimate
	if s.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}

	distanceKm := geo.HaversineKm(pickup, dest)
	minutes := EstimateMinutes(distanceKm)
	surge, err := s.SurgeAt(ctx, pickup)
	if err != nil {
		return Estimate{}, err
	}

	est := Estimate{
		Breakdown:        Calculate(distanceKm, float64(minutes), surge.Multiplier),
		SurgeName:        surge.ZoneName,
		DistanceKm:       geo.Round2(distanceKm),
		EstimatedMinutes: minutes,
	}
	s.cache.SetJSON(ctx, key, est, cache.TTLFare)
	return est, nil
}

func (s *Service) ListZones(ctx context.Context) ([]SurgeZone, error) {
	return s.store.List(ctx, false)
}

type CreateZoneCommand struct {
	Name       string
	Center     types.Point
	RadiusKm   float64
	Multiplier float64
}

func (s *Service) CreateZone(ctx context.Context, cmd CreateZoneCommand) (SurgeZone, error) {
	z := SurgeZone{
		ID:         types.NewID(),
		Name:       cmd.Name,
		Center:     cmd.Center,
		RadiusKm:   cmd.RadiusKm,
		Multiplier: cmd.Multiplier,
		IsActive:   true,
	}
	if err := z.validate(); err != nil {
		return SurgeZone{}, err
	}
	out, err := s.store.Create(ctx, z)
	if err != nil {
		return SurgeZone{}, err
	}
	s.invalidate(ctx, "create", out)
	return out, nil
}

func (s *Service) UpdateZone(ctx context.Context, id types.ID, patch ZonePatch) (SurgeZone, error) {
	z, err := s.store.Get(ctx, id)
	if err != nil {
		return SurgeZone{}, err
	}
	patch.apply(&z)
	if err := z.validate(); err != nil {
		return SurgeZone{}, err
	}
	out, err := s.store.Update(ctx, z)
	if err != nil {
		return SurgeZone{}, err
	}
	s.invalidate(ctx, "update", out)
	return out, nil
}

func (s *Service) DeleteZone(ctx context.Context, id types.ID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, "delete", SurgeZone{ID: id})
	return nil
}

// invalidate bumps surge and fare together: every cached estimate embeds a surge.
func (s *Service) invalidate(ctx context.Context, op string, z SurgeZone) {
	s.versions.Bump(ctx, cache.DomainSurge, cache.DomainFare)
	s.log.Info("surge zone changed", "op", op, "zone_id", z.ID, "name", z.Name)
}
