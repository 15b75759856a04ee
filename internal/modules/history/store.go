// README: History queries over the rides table.
package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridecore/internal/modules/ride"
	"ridecore/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) RiderRides(ctx context.Context, riderID types.ID, limit, offset int) ([]ride.Ride, int, error) {
	return s.page(ctx,
		`FROM rides WHERE rider_id = $1`,
		`ORDER BY requested_at DESC, id`,
		string(riderID), limit, offset)
}

func (s *Store) DriverCompletedRides(ctx context.Context, driverID types.ID, limit, offset int) ([]ride.Ride, int, error) {
	return s.page(ctx,
		`FROM rides WHERE driver_id = $1 AND status = 'completed'`,
		`ORDER BY completed_at DESC, id`,
		string(driverID), limit, offset)
}

func (s *Store) page(ctx context.Context, from, orderBy, owner string, limit, offset int) ([]ride.Ride, int, error) {
	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) `+from, owner).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("history.Store: count: %w", err)
	}
	rows, err := s.db.Query(ctx, `SELECT `+ride.Columns+` `+from+` `+orderBy+` LIMIT $2 OFFSET $3`, owner, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("history.Store: query: %w", err)
	}
	defer rows.Close()

	out := []ride.Ride{}
	for rows.Next() {
		r, err := ride.ScanRide(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("history.Store: scan: %w", err)
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}

func (s *Store) Earnings(ctx context.Context, driverID types.ID, w Window) (Earnings, error) {
	var e Earnings
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(final_fare), 0)::float8,
		       COALESCE(AVG(final_fare), 0)::float8,
		       COALESCE(SUM(distance_km), 0)::float8,
		       COALESCE(SUM(duration_minutes), 0)
		FROM rides
		WHERE driver_id = @driver
		  AND status = 'completed'
		  AND (@from::timestamptz IS NULL OR completed_at >= @from)
		  AND (@to::timestamptz IS NULL OR completed_at < @to)`,
		pgx.NamedArgs{"driver": string(driverID), "from": w.From, "to": w.To},
	).Scan(&e.TotalRides, &e.TotalEarnings, &e.AverageFare, &e.TotalDistanceKm, &e.TotalMinutes)
	if err != nil {
		return Earnings{}, fmt.Errorf("history.Store.Earnings: %w", err)
	}
	return e, nil
}
