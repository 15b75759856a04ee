// README: Ride lifecycle use-cases (create, match, advance, destination change, cancel, read).
package ride

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"ridecore/internal/logging"
	"ridecore/internal/modules/advisory"
	"ridecore/internal/modules/fare"
	"ridecore/internal/types"
)

// defaultEstimateMinutes is the partial-fare base when a ride carries no estimate.
const defaultEstimateMinutes = 15

type Repository interface {
	Create(ctx context.Context, r *Ride, e Event) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	ApplyTransition(ctx context.Context, t Transition) (*Ride, error)
	UpdateDestination(ctx context.Context, u DestinationUpdate) (*Ride, error)
	Events(ctx context.Context, rideID types.ID) ([]Event, error)
}

type DestinationResolver interface {
	Resolve(ctx context.Context, text string, pickup *types.Point) (advisory.Destination, error)
}

type FareEstimator interface {
	Estimate(ctx context.Context, pickup, dest types.Point) (fare.Estimate, error)
}

// Matcher runs the dispatch transaction for a ride in requested.
type Matcher interface {
	Match(ctx context.Context, r *Ride) (*Ride, error)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// DriverRefresher is told after a commit that released a driver.
type DriverRefresher interface {
	Refresh(ctx context.Context, driverID types.ID)
}

type Service struct {
	repo      Repository
	resolver  DestinationResolver
	fares     FareEstimator
	matcher   Matcher
	publisher Publisher
	drivers   DriverRefresher
	log       *slog.Logger
	now       func() time.Time
}

func NewService(repo Repository, resolver DestinationResolver, fares FareEstimator, matcher Matcher, publisher Publisher, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		resolver:  resolver,
		fares:     fares,
		matcher:   matcher,
		publisher: publisher,
		log:       logging.OrDefault(log),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithDriverRefresher attaches the hook run after a driver is released.
func (s *Service) WithDriverRefresher(d DriverRefresher) *Service {
	s.drivers = d
	return s
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	text := strings.TrimSpace(cmd.DestinationText)
	if cmd.RiderID == "" || text == "" {
		return nil, fmt.Errorf("%w: rider and destination are required", ErrBadRequest)
	}
	if !cmd.Pickup.InRange() {
		return nil, fmt.Errorf("%w: pickup coordinates out of range", ErrBadRequest)
	}

	dest, err := s.resolver.Resolve(ctx, text, &cmd.Pickup)
	if err != nil {
		return nil, err
	}
	est, err := s.fares.Estimate(ctx, cmd.Pickup, dest.Point())
	if err != nil {
		return nil, err
	}

	now := s.now()
	r := &Ride{
		ID:            types.NewID(),
		RiderID:       cmd.RiderID,
		Status:        StatusRequested,
		Pickup:        cmd.Pickup,
		PickupAddress: cmd.PickupAddress,
		Destination: Destination{
			Text:       text,
			Point:      dest.Point(),
			Address:    dest.Address,
			Confidence: dest.Confidence,
		},
		EstimatedFare:           est.Total,
		SurgeMultiplier:         est.SurgeMultiplier,
		DistanceKm:              est.DistanceKm,
		DurationMinutes:         est.EstimatedMinutes,
		OriginalDurationMinutes: est.EstimatedMinutes,
		RequestedAt:             now,
	}
	e := Event{
		RideID:     r.ID,
		FromStatus: StatusRequested,
		ToStatus:   StatusRequested,
		Metadata: map[string]any{
			"type":            "created",
			"estimatedFare":   est.Total,
			"surgeMultiplier": est.SurgeMultiplier,
		},
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, r, e); err != nil {
		return nil, err
	}
	s.log.Info("ride created", "ride_id", r.ID, "rider_id", r.RiderID, "estimated_fare", r.EstimatedFare)
	s.publish(ctx, e)
	return r, nil
}

// Match checks ownership and the cheap status gate, then hands off to the
// dispatch transaction which re-checks under lock.
func (s *Service) Match(ctx context.Context, rideID, riderID types.ID) (*Ride, error) {
	r, err := s.repo.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.RiderID != riderID {
		return nil, ErrForbidden
	}
	if err := AssertTransition(r.Status, StatusMatched); err != nil {
		return nil, err
	}
	return s.matcher.Match(ctx, r)
}

// UpdateStatus advances a ride on behalf of its assigned driver.
func (s *Service) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (*Ride, error) {
	if !cmd.To.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrBadRequest, cmd.To)
	}
	if cmd.To == StatusCancelled {
		return s.Cancel(ctx, CancelCommand{RideID: cmd.RideID, ActorID: cmd.DriverID, Role: RoleDriver})
	}

	r, err := s.repo.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID == nil || *r.DriverID != cmd.DriverID {
		return nil, ErrForbidden
	}
	if err := AssertTransition(r.Status, cmd.To); err != nil {
		return nil, err
	}

	now := s.now()
	t := Transition{RideID: r.ID, From: r.Status, To: cmd.To, At: now}
	meta := map[string]any{"driverId": cmd.DriverID}

	if cmd.To == StatusCompleted {
		start := now
		if r.StartedAt != nil {
			start = *r.StartedAt
		}
		minutes := int(math.Ceil(math.Max(now.Sub(start).Minutes(), 0)))
		total := fare.Calculate(r.DistanceKm, float64(minutes), r.SurgeMultiplier).Total
		t.FinalFare = &total
		t.DurationMinutes = &minutes
		t.ReleaseDriver = r.DriverID
		t.CountTrip = true
		meta["finalFare"] = total
		meta["durationMinutes"] = minutes
	}
	t.Event = Event{RideID: r.ID, FromStatus: r.Status, ToStatus: cmd.To, Metadata: meta, CreatedAt: now}

	updated, err := s.repo.ApplyTransition(ctx, t)
	if err != nil {
		return nil, err
	}
	s.log.Info("ride status changed", "ride_id", r.ID, "from", r.Status, "to", cmd.To)
	s.publish(ctx, t.Event)
	s.released(ctx, t.ReleaseDriver)
	return updated, nil
}

func (s *Service) ChangeDestination(ctx context.Context, cmd ChangeDestinationCommand) (*Ride, error) {
	text := strings.TrimSpace(cmd.DestinationText)
	if text == "" {
		return nil, fmt.Errorf("%w: destination is required", ErrBadRequest)
	}
	r, err := s.repo.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.RiderID != cmd.RiderID {
		return nil, ErrForbidden
	}
	if r.Status != StatusDriverArriving && r.Status != StatusInProgress {
		return nil, ErrDestinationChangeNotAllowed
	}

	dest, err := s.resolver.Resolve(ctx, text, &r.Pickup)
	if err != nil {
		return nil, err
	}
	est, err := s.fares.Estimate(ctx, r.Pickup, dest.Point())
	if err != nil {
		return nil, err
	}

	next := Destination{Text: text, Point: dest.Point(), Address: dest.Address, Confidence: dest.Confidence}
	now := s.now()
	u := DestinationUpdate{
		RideID:          r.ID,
		Status:          r.Status,
		Destination:     next,
		EstimatedFare:   est.Total,
		SurgeMultiplier: est.SurgeMultiplier,
		DistanceKm:      est.DistanceKm,
		DurationMinutes: est.EstimatedMinutes,
		Event: Event{
			RideID:     r.ID,
			FromStatus: r.Status,
			ToStatus:   r.Status,
			Metadata: map[string]any{
				"type":             "destination_changed",
				"from":             destinationSnapshot(r.Destination),
				"to":               destinationSnapshot(next),
				"newEstimatedFare": est.Total,
			},
			CreatedAt: now,
		},
	}
	updated, err := s.repo.UpdateDestination(ctx, u)
	if err != nil {
		return nil, err
	}
	s.log.Info("ride destination changed", "ride_id", r.ID, "estimated_fare", est.Total)
	s.publish(ctx, u.Event)
	return updated, nil
}

func destinationSnapshot(d Destination) map[string]any {
	return map[string]any{"text": d.Text, "lat": d.Point.Lat, "lng": d.Point.Lng}
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Ride, error) {
	r, err := s.repo.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	switch cmd.Role {
	case RoleRider:
		if r.RiderID != cmd.ActorID {
			return nil, ErrForbidden
		}
		if r.Status == StatusInProgress {
			return nil, ErrCancelNotAllowed
		}
	case RoleDriver:
		if r.DriverID == nil || *r.DriverID != cmd.ActorID {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}
	if err := AssertTransition(r.Status, StatusCancelled); err != nil {
		return nil, err
	}

	now := s.now()
	meta := map[string]any{"reason": cmd.Reason, "cancelledBy": string(cmd.Role)}
	t := Transition{
		RideID:        r.ID,
		From:          r.Status,
		To:            StatusCancelled,
		At:            now,
		ReleaseDriver: r.HeldDriver(),
	}
	if r.Status == StatusInProgress {
		partial := partialFare(r, now)
		t.FinalFare = &partial
		meta["partialFare"] = partial
	}
	t.Event = Event{RideID: r.ID, FromStatus: r.Status, ToStatus: StatusCancelled, Metadata: meta, CreatedAt: now}

	updated, err := s.repo.ApplyTransition(ctx, t)
	if err != nil {
		return nil, err
	}
	s.log.Info("ride cancelled", "ride_id", r.ID, "by", cmd.Role, "from", r.Status)
	s.publish(ctx, t.Event)
	s.released(ctx, t.ReleaseDriver)
	return updated, nil
}

// partialFare scales the distance charge by elapsed/original estimate
// (capped at 1) and charges elapsed minutes directly. The original
// estimate is used even after a destination change.
func partialFare(r *Ride, now time.Time) float64 {
	start := now
	if r.StartedAt != nil {
		start = *r.StartedAt
	}
	elapsed := math.Max(now.Sub(start).Minutes(), 0)
	base := float64(r.OriginalDurationMinutes)
	if base <= 0 {
		base = defaultEstimateMinutes
	}
	fraction := math.Min(elapsed/base, 1)
	return fare.Calculate(r.DistanceKm*fraction, elapsed, r.SurgeMultiplier).Total
}

// Get hides rides the caller is not party to behind ErrNotFound.
func (s *Service) Get(ctx context.Context, rideID, actorID types.ID, role Role) (*Ride, error) {
	r, err := s.repo.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	switch role {
	case RoleAdmin:
		return r, nil
	case RoleRider:
		if r.RiderID == actorID {
			return r, nil
		}
	case RoleDriver:
		if r.DriverID != nil && *r.DriverID == actorID {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Service) Events(ctx context.Context, rideID, actorID types.ID, role Role) ([]Event, error) {
	if _, err := s.Get(ctx, rideID, actorID, role); err != nil {
		return nil, err
	}
	return s.repo.Events(ctx, rideID)
}

func (s *Service) released(ctx context.Context, driverID *types.ID) {
	if s.drivers != nil && driverID != nil {
		s.drivers.Refresh(ctx, *driverID)
	}
}

func (s *Service) publish(ctx context.Context, e Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn("ride event publish failed", "ride_id", e.RideID, "to", e.ToStatus, "err", err)
	}
}
