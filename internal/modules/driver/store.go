// README: Driver store backed by PostgreSQL.
package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridecore/internal/infra"
	"ridecore/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const driverColumns = `id, user_id, name, vehicle_make, vehicle_model, vehicle_color, license_plate,
	is_online, current_lat, current_lng, location_updated_at, rating::float8, total_trips, active_ride_id, created_at`

func scanDriver(row pgx.Row) (*Driver, error) {
	var d Driver
	var lat, lng *float64
	var activeRide *string
	err := row.Scan(
		&d.ID, &d.UserID, &d.Name, &d.VehicleMake, &d.VehicleModel, &d.VehicleColor, &d.LicensePlate,
		&d.IsOnline, &lat, &lng, &d.LocationUpdatedAt, &d.Rating, &d.TotalTrips, &activeRide, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		d.Location = &types.Point{Lat: *lat, Lng: *lng}
	}
	if activeRide != nil {
		id := types.ID(*activeRide)
		d.ActiveRideID = &id
	}
	return &d, nil
}

func (s *Store) Create(ctx context.Context, d *Driver) (*Driver, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO drivers (id, user_id, name, vehicle_make, vehicle_model, vehicle_color, license_plate)
		VALUES (@id, @user_id, @name, @make, @model, @color, @plate)
		RETURNING `+driverColumns,
		pgx.NamedArgs{
			"id":      string(d.ID),
			"user_id": string(d.UserID),
			"name":    d.Name,
			"make":    d.VehicleMake,
			"model":   d.VehicleModel,
			"color":   d.VehicleColor,
			"plate":   strings.ToUpper(d.LicensePlate),
		})
	out, err := scanDriver(row)
	if infra.IsUniqueViolation(err) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("driver.Store.Create: %w", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Driver, error) {
	return s.getBy(ctx, "id", id)
}

func (s *Store) GetByUserID(ctx context.Context, userID types.ID) (*Driver, error) {
	return s.getBy(ctx, "user_id", userID)
}

func (s *Store) getBy(ctx context.Context, column string, v types.ID) (*Driver, error) {
	d, err := scanDriver(s.db.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE `+column+` = $1`, string(v)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("driver.Store.getBy(%s): %w", column, err)
	}
	return d, nil
}

func (s *Store) SetOnline(ctx context.Context, userID types.ID, online bool) (*Driver, error) {
	d, err := scanDriver(s.db.QueryRow(ctx, `
		UPDATE drivers SET is_online = $2 WHERE user_id = $1
		RETURNING `+driverColumns, string(userID), online))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("driver.Store.SetOnline: %w", err)
	}
	return d, nil
}

func (s *Store) UpdateLocation(ctx context.Context, userID types.ID, p types.Point, at time.Time) (*Driver, error) {
	d, err := scanDriver(s.db.QueryRow(ctx, `
		UPDATE drivers SET current_lat = $2, current_lng = $3, location_updated_at = $4
		WHERE user_id = $1
		RETURNING `+driverColumns, string(userID), p.Lat, p.Lng, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("driver.Store.UpdateLocation: %w", err)
	}
	return d, nil
}

const availableColumns = `id, name, current_lat, current_lng, rating::float8, total_trips, vehicle_make, vehicle_model, vehicle_color`

const availableWhere = `is_online AND active_ride_id IS NULL AND current_lat IS NOT NULL AND current_lng IS NOT NULL`

// Available loads the subset of ids that are online and unassigned.
func (s *Store) Available(ctx context.Context, ids []types.ID) ([]Nearby, error) {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `SELECT `+availableColumns+` FROM drivers WHERE id = ANY($1) AND `+availableWhere, raw)
	if err != nil {
		return nil, fmt.Errorf("driver.Store.Available: %w", err)
	}
	return collectNearby(rows)
}

// AvailableInBox loads online, unassigned drivers inside a lat/lng box.
func (s *Store) AvailableInBox(ctx context.Context, minLat, maxLat, minLng, maxLng float64) ([]Nearby, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+availableColumns+` FROM drivers
		WHERE `+availableWhere+`
		  AND current_lat BETWEEN $1 AND $2
		  AND current_lng BETWEEN $3 AND $4`,
		minLat, maxLat, minLng, maxLng)
	if err != nil {
		return nil, fmt.Errorf("driver.Store.AvailableInBox: %w", err)
	}
	return collectNearby(rows)
}

func collectNearby(rows pgx.Rows) ([]Nearby, error) {
	defer rows.Close()
	var out []Nearby
	for rows.Next() {
		var n Nearby
		if err := rows.Scan(&n.DriverID, &n.Name, &n.Location.Lat, &n.Location.Lng, &n.Rating, &n.TotalTrips,
			&n.VehicleMake, &n.VehicleModel, &n.VehicleColor); err != nil {
			return nil, fmt.Errorf("driver.Store: scan nearby: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
