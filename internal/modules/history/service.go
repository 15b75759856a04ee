package history

import (
	"context"
	"fmt"

	"ridecore/internal/geo"
	"ridecore/internal/modules/ride"
	"ridecore/internal/types"
)

type Repository interface {
	RiderRides(ctx context.Context, riderID types.ID, limit, offset int) ([]ride.Ride, int, error)
	DriverCompletedRides(ctx context.Context, driverID types.ID, limit, offset int) ([]ride.Ride, int, error)
	Earnings(ctx context.Context, driverID types.ID, w Window) (Earnings, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RiderHistory lists every ride of a rider, newest request first.
func (s *Service) RiderHistory(ctx context.Context, riderID types.ID, page, limit int) (Page[ride.Ride], error) {
	page, limit = normalize(page, limit)
	items, total, err := s.repo.RiderRides(ctx, riderID, limit, (page-1)*limit)
	if err != nil {
		return Page[ride.Ride]{}, err
	}
	return Page[ride.Ride]{Items: items, Page: page, Limit: limit, Total: total}, nil
}

// DriverHistory lists completed rides of a driver, newest completion first.
func (s *Service) DriverHistory(ctx context.Context, driverID types.ID, page, limit int) (Page[ride.Ride], error) {
	page, limit = normalize(page, limit)
	items, total, err := s.repo.DriverCompletedRides(ctx, driverID, limit, (page-1)*limit)
	if err != nil {
		return Page[ride.Ride]{}, err
	}
	return Page[ride.Ride]{Items: items, Page: page, Limit: limit, Total: total}, nil
}

func (s *Service) DriverEarnings(ctx context.Context, driverID types.ID, w Window) (Earnings, error) {
	if w.From != nil && w.To != nil && !w.From.Before(*w.To) {
		return Earnings{}, fmt.Errorf("%w: from must be before to", ErrBadRequest)
	}
	e, err := s.repo.Earnings(ctx, driverID, w)
	if err != nil {
		return Earnings{}, err
	}
	e.TotalEarnings = geo.Round2(e.TotalEarnings)
	e.AverageFare = geo.Round2(e.AverageFare)
	e.TotalDistanceKm = geo.Round2(e.TotalDistanceKm)
	return e, nil
}
