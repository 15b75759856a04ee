// README: Ride store backed by PostgreSQL; every mutation commits with its audit event.
package ride

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridecore/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Columns is the select list understood by ScanRide.
const Columns = `id, rider_id, driver_id, status, pickup_lat, pickup_lng, pickup_address,
	destination_text, destination_lat, destination_lng, destination_address, destination_confidence,
	estimated_fare::float8, final_fare::float8, surge_multiplier::float8, distance_km::float8,
	duration_minutes, original_duration_minutes, dispatch_reasoning,
	requested_at, matched_at, started_at, completed_at, cancelled_at`

// ScanRide reads one row selected with Columns.
func ScanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var driverID, destAddress *string
	err := row.Scan(
		&r.ID, &r.RiderID, &driverID, &r.Status, &r.Pickup.Lat, &r.Pickup.Lng, &r.PickupAddress,
		&r.Destination.Text, &r.Destination.Point.Lat, &r.Destination.Point.Lng, &destAddress, &r.Destination.Confidence,
		&r.EstimatedFare, &r.FinalFare, &r.SurgeMultiplier, &r.DistanceKm,
		&r.DurationMinutes, &r.OriginalDurationMinutes, &r.DispatchReasoning,
		&r.RequestedAt, &r.MatchedAt, &r.StartedAt, &r.CompletedAt, &r.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	if driverID != nil {
		id := types.ID(*driverID)
		r.DriverID = &id
	}
	if destAddress != nil {
		r.Destination.Address = *destAddress
	}
	return &r, nil
}

func (s *Store) Create(ctx context.Context, r *Ride, e Event) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO rides (
				id, rider_id, status, pickup_lat, pickup_lng, pickup_address,
				destination_text, destination_lat, destination_lng, destination_address, destination_confidence,
				estimated_fare, surge_multiplier, distance_km, duration_minutes, original_duration_minutes, requested_at
			) VALUES (
				@id, @rider_id, @status, @pickup_lat, @pickup_lng, @pickup_address,
				@dest_text, @dest_lat, @dest_lng, @dest_address, @dest_confidence,
				@estimated_fare, @surge, @distance, @duration, @original_duration, @requested_at
			)`,
			pgx.NamedArgs{
				"id":                string(r.ID),
				"rider_id":          string(r.RiderID),
				"status":            string(r.Status),
				"pickup_lat":        r.Pickup.Lat,
				"pickup_lng":        r.Pickup.Lng,
				"pickup_address":    r.PickupAddress,
				"dest_text":         r.Destination.Text,
				"dest_lat":          r.Destination.Point.Lat,
				"dest_lng":          r.Destination.Point.Lng,
				"dest_address":      r.Destination.Address,
				"dest_confidence":   r.Destination.Confidence,
				"estimated_fare":    r.EstimatedFare,
				"surge":             r.SurgeMultiplier,
				"distance":          r.DistanceKm,
				"duration":          r.DurationMinutes,
				"original_duration": r.OriginalDurationMinutes,
				"requested_at":      r.RequestedAt,
			})
		if err != nil {
			return fmt.Errorf("ride.Store.Create: %w", err)
		}
		_, err = InsertEvent(ctx, tx, e)
		return err
	})
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Ride, error) {
	r, err := ScanRide(s.db.QueryRow(ctx, `SELECT `+Columns+` FROM rides WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ride.Store.Get: %w", err)
	}
	return r, nil
}

// stampColumns maps a target status to the timestamp it records.
var stampColumns = map[Status]string{
	StatusMatched:    "matched_at",
	StatusInProgress: "started_at",
	StatusCompleted:  "completed_at",
	StatusCancelled:  "cancelled_at",
}

// ApplyTransition moves a ride from t.From to t.To only if it is still in
// t.From. A lost race surfaces as ErrConflict with nothing written.
func (s *Store) ApplyTransition(ctx context.Context, t Transition) (*Ride, error) {
	var out *Ride
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		stamp := ""
		if col, ok := stampColumns[t.To]; ok {
			stamp = fmt.Sprintf(", %s = @at", col)
		}
		r, err := ScanRide(tx.QueryRow(ctx, `
			UPDATE rides
			SET status = @to,
			    final_fare = COALESCE(@final_fare, final_fare),
			    duration_minutes = COALESCE(@duration, duration_minutes)`+stamp+`
			WHERE id = @id AND status = @from
			RETURNING `+Columns,
			pgx.NamedArgs{
				"id":         string(t.RideID),
				"from":       string(t.From),
				"to":         string(t.To),
				"final_fare": t.FinalFare,
				"duration":   t.DurationMinutes,
				"at":         t.At,
			}))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("ride.Store.ApplyTransition: %w", err)
		}

		if t.ReleaseDriver != nil {
			if err := releaseDriver(ctx, tx, *t.ReleaseDriver, t.RideID, t.CountTrip); err != nil {
				return err
			}
		}
		if _, err := InsertEvent(ctx, tx, t.Event); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// releaseDriver clears the exclusivity marker only if this ride still holds it.
func releaseDriver(ctx context.Context, tx pgx.Tx, driverID, rideID types.ID, countTrip bool) error {
	q := `UPDATE drivers SET active_ride_id = NULL WHERE id = $1 AND active_ride_id = $2`
	if countTrip {
		q = `UPDATE drivers SET active_ride_id = NULL, total_trips = total_trips + 1 WHERE id = $1 AND active_ride_id = $2`
	}
	if _, err := tx.Exec(ctx, q, string(driverID), string(rideID)); err != nil {
		return fmt.Errorf("ride.Store: release driver: %w", err)
	}
	return nil
}

func (s *Store) UpdateDestination(ctx context.Context, u DestinationUpdate) (*Ride, error) {
	var out *Ride
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		r, err := ScanRide(tx.QueryRow(ctx, `
			UPDATE rides
			SET destination_text = @text,
			    destination_lat = @lat,
			    destination_lng = @lng,
			    destination_address = @address,
			    destination_confidence = @confidence,
			    estimated_fare = @fare,
			    surge_multiplier = @surge,
			    distance_km = @distance,
			    duration_minutes = @duration
			WHERE id = @id AND status = @status
			RETURNING `+Columns,
			pgx.NamedArgs{
				"id":         string(u.RideID),
				"status":     string(u.Status),
				"text":       u.Destination.Text,
				"lat":        u.Destination.Point.Lat,
				"lng":        u.Destination.Point.Lng,
				"address":    u.Destination.Address,
				"confidence": u.Destination.Confidence,
				"fare":       u.EstimatedFare,
				"surge":      u.SurgeMultiplier,
				"distance":   u.DistanceKm,
				"duration":   u.DurationMinutes,
			}))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConflict
		}
		if err != nil {
			return fmt.Errorf("ride.Store.UpdateDestination: %w", err)
		}
		if _, err := InsertEvent(ctx, tx, u.Event); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Events(ctx context.Context, rideID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, from_status, to_status, metadata, created_at
		FROM ride_events
		WHERE ride_id = $1
		ORDER BY created_at, id`, string(rideID))
	if err != nil {
		return nil, fmt.Errorf("ride.Store.Events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.RideID, &e.FromStatus, &e.ToStatus, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ride.Store.Events: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InsertEvent appends e inside the caller's transaction.
func InsertEvent(ctx context.Context, q rowQuerier, e Event) (Event, error) {
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	err := q.QueryRow(ctx, `
		INSERT INTO ride_events (ride_id, from_status, to_status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		string(e.RideID), string(e.FromStatus), string(e.ToStatus), e.Metadata, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return Event{}, fmt.Errorf("ride: insert event: %w", err)
	}
	return e, nil
}
