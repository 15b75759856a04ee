// README: Surge zone store backed by PostgreSQL.
package fare

import (
	"context"
	"errors"
	"fmt"

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

const zoneColumns = `id, name, center_lat, center_lng, radius_km, multiplier::float8, is_active, updated_at`

func scanZone(row pgx.Row) (SurgeZone, error) {
	var z SurgeZone
	err := row.Scan(&z.ID, &z.Name, &z.Center.Lat, &z.Center.Lng, &z.RadiusKm, &z.Multiplier, &z.IsActive, &z.UpdatedAt)
	return z, err
}

func (s *Store) List(ctx context.Context, activeOnly bool) ([]SurgeZone, error) {
	q := `SELECT ` + zoneColumns + ` FROM surge_zones`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY name`

	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fare.Store.List: %w", err)
	}
	defer rows.Close()

	var out []SurgeZone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, fmt.Errorf("fare.Store.List: scan: %w", err)
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id types.ID) (SurgeZone, error) {
	z, err := scanZone(s.db.QueryRow(ctx, `SELECT `+zoneColumns+` FROM surge_zones WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return SurgeZone{}, ErrNotFound
	}
	if err != nil {
		return SurgeZone{}, fmt.Errorf("fare.Store.Get: %w", err)
	}
	return z, nil
}

func (s *Store) Create(ctx context.Context, z SurgeZone) (SurgeZone, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO surge_zones (id, name, center_lat, center_lng, radius_km, multiplier, is_active, updated_at)
		VALUES (@id, @name, @lat, @lng, @radius, @multiplier, @active, NOW())
		RETURNING `+zoneColumns,
		pgx.NamedArgs{
			"id":         string(z.ID),
			"name":       z.Name,
			"lat":        z.Center.Lat,
			"lng":        z.Center.Lng,
			"radius":     z.RadiusKm,
			"multiplier": z.Multiplier,
			"active":     z.IsActive,
		})
	out, err := scanZone(row)
	if infra.IsUniqueViolation(err) {
		return SurgeZone{}, ErrConflict
	}
	if err != nil {
		return SurgeZone{}, fmt.Errorf("fare.Store.Create: %w", err)
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, z SurgeZone) (SurgeZone, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE surge_zones
		SET name = @name, center_lat = @lat, center_lng = @lng, radius_km = @radius,
		    multiplier = @multiplier, is_active = @active, updated_at = NOW()
		WHERE id = @id
		RETURNING `+zoneColumns,
		pgx.NamedArgs{
			"id":         string(z.ID),
			"name":       z.Name,
			"lat":        z.Center.Lat,
			"lng":        z.Center.Lng,
			"radius":     z.RadiusKm,
			"multiplier": z.Multiplier,
			"active":     z.IsActive,
		})
	out, err := scanZone(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return SurgeZone{}, ErrNotFound
	case infra.IsUniqueViolation(err):
		return SurgeZone{}, ErrConflict
	case err != nil:
		return SurgeZone{}, fmt.Errorf("fare.Store.Update: %w", err)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM surge_zones WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("fare.Store.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
