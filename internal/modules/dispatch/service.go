// README: Dispatch transaction: advisory pick first, lock-and-skip claim, all-or-nothing assignment.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ridecore/internal/geo"
	"ridecore/internal/logging"
	"ridecore/internal/modules/advisory"
	"ridecore/internal/modules/driver"
	"ridecore/internal/modules/ride"
	"ridecore/internal/observability"
	"ridecore/internal/types"
)

// FallbackNextClosest is the reasoning recorded when the advisory pick
// could not be claimed and another candidate was assigned.
const FallbackNextClosest = "Fallback: AI-selected driver unavailable, assigned next closest available driver."

const DefaultRadiusKm = 10.0

type NearbyFinder interface {
	FindNearbyOnline(ctx context.Context, p types.Point, radiusKm float64) ([]driver.Nearby, error)
}

type Ranker interface {
	SelectBestDriver(ctx context.Context, r advisory.RideGeometry, candidates []advisory.Candidate) (advisory.Decision, error)
}

type AttemptRecorder interface {
	Record(ctx context.Context, a Attempt) error
}

type Service struct {
	store     Store
	drivers   NearbyFinder
	ranker    Ranker
	publisher ride.Publisher
	attempts  AttemptRecorder
	refresher ride.DriverRefresher
	radiusKm  float64
	log       *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithPublisher(p ride.Publisher) Option { return func(s *Service) { s.publisher = p } }

func WithAttemptRecorder(r AttemptRecorder) Option { return func(s *Service) { s.attempts = r } }

// WithDriverRefresher re-syncs the claimed driver's index, mirror and
// nearby listings after commit.
func WithDriverRefresher(r ride.DriverRefresher) Option {
	return func(s *Service) { s.refresher = r }
}

func WithRadiusKm(km float64) Option {
	return func(s *Service) {
		if km > 0 {
			s.radiusKm = km
		}
	}
}

func NewService(store Store, drivers NearbyFinder, ranker Ranker, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		drivers:  drivers,
		ranker:   ranker,
		radiusKm: DefaultRadiusKm,
		log:      logging.OrDefault(log),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Match assigns one driver to a requested ride. On any failure the ride and
// every driver are left exactly as they were, so callers may retry.
func (s *Service) Match(ctx context.Context, r *ride.Ride) (*ride.Ride, error) {
	start := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(start).Seconds()) }()

	if err := ride.AssertTransition(r.Status, ride.StatusMatched); err != nil {
		observability.MatchesTotal.WithLabelValues("invalid_state").Inc()
		return nil, err
	}

	nearby, err := s.drivers.FindNearbyOnline(ctx, r.Pickup, s.radiusKm)
	if err != nil {
		observability.MatchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if len(nearby) == 0 {
		observability.MatchesTotal.WithLabelValues("no_drivers").Inc()
		return nil, ride.ErrNoDriversAvailable
	}

	decision, err := s.ranker.SelectBestDriver(ctx, advisory.RideGeometry{
		Pickup:      r.Pickup,
		Destination: r.Destination.Point,
	}, toCandidates(nearby))
	if err != nil {
		observability.MatchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	order := claimOrder(nearby, decision.SelectedDriverID)

	var (
		assigned  *ride.Ride
		event     ride.Event
		claimed   types.ID
		reasoning string
		skipped   int
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		status, err := tx.LockRide(ctx, r.ID)
		if err != nil {
			return err
		}
		if err := ride.AssertTransition(status, ride.StatusMatched); err != nil {
			return err
		}

		for _, id := range order {
			ok, err := tx.TryClaimDriver(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				skipped++
				continue
			}

			claimed, reasoning = id, decision.Reasoning
			if id != decision.SelectedDriverID {
				reasoning = FallbackNextClosest
			}
			now := s.now()
			event = ride.Event{
				RideID:     r.ID,
				FromStatus: ride.StatusRequested,
				ToStatus:   ride.StatusMatched,
				Metadata: map[string]any{
					"assignedDriverId":   string(id),
					"aiSelectedDriverId": string(decision.SelectedDriverID),
					"reasoning":          reasoning,
				},
				CreatedAt: now,
			}
			assigned, err = tx.Assign(ctx, Assignment{
				RideID:    r.ID,
				DriverID:  id,
				Reasoning: reasoning,
				At:        now,
				Event:     event,
			})
			return err
		}
		return ride.ErrNoDriversAvailable
	})
	observability.DriverLocksSkipped.Add(float64(skipped))
	if err != nil {
		observability.MatchesTotal.WithLabelValues(outcome(err)).Inc()
		s.log.Info("dispatch rolled back", "ride_id", r.ID, "skipped", skipped, "err", err)
		return nil, err
	}

	observability.MatchesTotal.WithLabelValues("matched").Inc()
	if decision.Fallback {
		observability.DispatchFallbacks.WithLabelValues("advisory").Inc()
	}
	if claimed != decision.SelectedDriverID {
		observability.DispatchFallbacks.WithLabelValues("pick_unavailable").Inc()
	}
	s.log.Info("ride matched", "ride_id", r.ID, "driver_id", claimed,
		"advisory_pick", decision.SelectedDriverID, "candidates", len(order), "skipped", skipped)

	s.afterCommit(ctx, event, Attempt{
		RideID:           r.ID,
		DispatchedAt:     event.CreatedAt,
		AdvisoryPick:     decision.SelectedDriverID,
		AssignedDriverID: claimed,
		Reasoning:        reasoning,
		AdvisoryFallback: decision.Fallback,
		Skipped:          skipped,
		Candidates:       order,
	})
	return assigned, nil
}

func (s *Service) afterCommit(ctx context.Context, e ride.Event, a Attempt) {
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.log.Warn("match event publish failed", "ride_id", e.RideID, "err", err)
		}
	}
	if s.attempts != nil {
		if err := s.attempts.Record(ctx, a); err != nil {
			s.log.Warn("dispatch attempt record failed", "ride_id", e.RideID, "err", err)
		}
	}
	if s.refresher != nil {
		s.refresher.Refresh(ctx, a.AssignedDriverID)
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ride.ErrNoDriversAvailable):
		return "all_claimed"
	case errors.Is(err, ride.ErrInvalidTransition):
		return "invalid_state"
	case errors.Is(err, ride.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func toCandidates(nearby []driver.Nearby) []advisory.Candidate {
	out := make([]advisory.Candidate, len(nearby))
	for i, n := range nearby {
		out[i] = advisory.Candidate{
			ID:           n.DriverID,
			Name:         n.Name,
			DistanceKm:   n.DistanceKm,
			Rating:       n.Rating,
			TotalTrips:   n.TotalTrips,
			VehicleMake:  n.VehicleMake,
			VehicleModel: n.VehicleModel,
		}
	}
	return out
}

// claimOrder puts the advisory pick first and keeps the rest nearest first.
func claimOrder(nearby []driver.Nearby, pick types.ID) []types.ID {
	sorted := append([]driver.Nearby(nil), nearby...)
	geo.SortByDistance(sorted, func(n driver.Nearby) float64 { return n.DistanceKm })

	out := make([]types.ID, 0, len(sorted))
	for _, n := range sorted {
		if n.DriverID == pick {
			out = append(out, pick)
			break
		}
	}
	for _, n := range sorted {
		if n.DriverID != pick {
			out = append(out, n.DriverID)
		}
	}
	return out
}
