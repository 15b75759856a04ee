// README: Mirrors online driver positions to Firebase RTDB for client-side tracking.
package driver

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4/db"
)

// LocationMirror receives every availability or position change that the
// geo index sees. Failures are logged by the service, never surfaced.
type LocationMirror interface {
	Mirror(ctx context.Context, d *Driver) error
}

type refWriter interface {
	Set(ctx context.Context, v interface{}) error
	Delete(ctx context.Context) error
}

const rtdbDriversNode = "driver_locations"

// rtdbDriverEntry is the document shape clients listen to under
// /driver_locations/{driverID}.
type rtdbDriverEntry struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Status    string  `json:"status"`
	Timestamp int64   `json:"timestamp"`
}

type RTDBMirror struct {
	ref func(path string) refWriter
}

func NewRTDBMirror(client *db.Client) *RTDBMirror {
	return &RTDBMirror{ref: func(path string) refWriter { return client.NewRef(path) }}
}

// Mirror writes the driver's entry, or deletes it once the driver is
// offline or has no position.
func (m *RTDBMirror) Mirror(ctx context.Context, d *Driver) error {
	ref := m.ref(rtdbDriversNode + "/" + string(d.ID))
	if !d.IsOnline || d.Location == nil {
		if err := ref.Delete(ctx); err != nil {
			return fmt.Errorf("driver.RTDBMirror.Delete: %w", err)
		}
		return nil
	}
	entry := rtdbDriverEntry{
		Lat:       d.Location.Lat,
		Lng:       d.Location.Lng,
		Status:    "online",
		Timestamp: time.Now().UnixMilli(),
	}
	if d.ActiveRideID != nil {
		entry.Status = "on_ride"
	}
	if d.LocationUpdatedAt != nil {
		entry.Timestamp = d.LocationUpdatedAt.UnixMilli()
	}
	if err := ref.Set(ctx, entry); err != nil {
		return fmt.Errorf("driver.RTDBMirror.Set: %w", err)
	}
	return nil
}
