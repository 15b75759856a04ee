// README: Dispatch transaction primitives over PostgreSQL row locks.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridecore/internal/modules/ride"
	"ridecore/internal/types"
)

// Store opens a transaction; fn's error rolls back everything it did.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	// LockRide takes the ride row lock, waiting for concurrent dispatchers.
	LockRide(ctx context.Context, rideID types.ID) (ride.Status, error)
	// TryClaimDriver locks the driver if it is free and not locked elsewhere.
	// It never waits: a locked or assigned driver reports false.
	TryClaimDriver(ctx context.Context, driverID types.ID) (bool, error)
	Assign(ctx context.Context, a Assignment) (*ride.Ride, error)
}

type Assignment struct {
	RideID    types.ID
	DriverID  types.ID
	Reasoning string
	At        time.Time
	Event     ride.Event
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(ctx, pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

func (t pgTx) LockRide(ctx context.Context, rideID types.ID) (ride.Status, error) {
	var status ride.Status
	err := t.tx.QueryRow(ctx, `SELECT status FROM rides WHERE id = $1 FOR UPDATE`, string(rideID)).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ride.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("dispatch: lock ride: %w", err)
	}
	return status, nil
}

func (t pgTx) TryClaimDriver(ctx context.Context, driverID types.ID) (bool, error) {
	var id string
	err := t.tx.QueryRow(ctx, `
		SELECT id FROM drivers
		WHERE id = $1 AND active_ride_id IS NULL
		FOR UPDATE SKIP LOCKED`, string(driverID)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dispatch: claim driver: %w", err)
	}
	return true, nil
}

func (t pgTx) Assign(ctx context.Context, a Assignment) (*ride.Ride, error) {
	if _, err := t.tx.Exec(ctx, `UPDATE drivers SET active_ride_id = $2 WHERE id = $1`,
		string(a.DriverID), string(a.RideID)); err != nil {
		return nil, fmt.Errorf("dispatch: mark driver: %w", err)
	}
	r, err := ride.ScanRide(t.tx.QueryRow(ctx, `
		UPDATE rides
		SET driver_id = @driver, status = @status, matched_at = @at, dispatch_reasoning = @reasoning
		WHERE id = @id
		RETURNING `+ride.Columns,
		pgx.NamedArgs{
			"id":        string(a.RideID),
			"driver":    string(a.DriverID),
			"status":    string(ride.StatusMatched),
			"at":        a.At,
			"reasoning": a.Reasoning,
		}))
	if err != nil {
		return nil, fmt.Errorf("dispatch: update ride: %w", err)
	}
	if _, err := ride.InsertEvent(ctx, t.tx, a.Event); err != nil {
		return nil, err
	}
	return r, nil
}
