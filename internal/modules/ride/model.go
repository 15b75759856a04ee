// README: Ride aggregate, audit events and commands.
package ride

import (
	"time"

	"ridecore/internal/types"
)

type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
)

type Destination struct {
	Text       string      `json:"text"`
	Point      types.Point `json:"point"`
	Address    string      `json:"address,omitempty"`
	Confidence float64     `json:"confidence"`
}

type Ride struct {
	ID            types.ID    `json:"id"`
	RiderID       types.ID    `json:"riderId"`
	DriverID      *types.ID   `json:"driverId,omitempty"`
	Status        Status      `json:"status"`
	Pickup        types.Point `json:"pickup"`
	PickupAddress *string     `json:"pickupAddress,omitempty"`
	Destination   Destination `json:"destination"`

	EstimatedFare   float64  `json:"estimatedFare"`
	FinalFare       *float64 `json:"finalFare,omitempty"`
	SurgeMultiplier float64  `json:"surgeMultiplier"`
	DistanceKm      float64  `json:"distanceKm"`
	DurationMinutes int      `json:"durationMinutes"`
	// OriginalDurationMinutes is fixed at creation and is the base for
	// partial fares; destination changes do not touch it.
	OriginalDurationMinutes int     `json:"originalDurationMinutes"`
	DispatchReasoning       *string `json:"dispatchReasoning,omitempty"`

	RequestedAt time.Time  `json:"requestedAt"`
	MatchedAt   *time.Time `json:"matchedAt,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

// HeldDriver returns the driver whose exclusivity marker this ride holds.
func (r *Ride) HeldDriver() *types.ID {
	if r.DriverID == nil || !r.Status.Active() {
		return nil
	}
	return r.DriverID
}

// Event is an append-only audit record. FromStatus equals ToStatus for
// events that do not move the ride (creation, destination change).
type Event struct {
	ID         int64          `json:"id"`
	RideID     types.ID       `json:"rideId"`
	FromStatus Status         `json:"fromStatus"`
	ToStatus   Status         `json:"toStatus"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"createdAt"`
}

type CreateCommand struct {
	RiderID         types.ID
	Pickup          types.Point
	PickupAddress   *string
	DestinationText string
}

type UpdateStatusCommand struct {
	RideID   types.ID
	DriverID types.ID
	To       Status
}

type ChangeDestinationCommand struct {
	RideID          types.ID
	RiderID         types.ID
	DestinationText string
}

type CancelCommand struct {
	RideID types.ID
	// ActorID is the rider's user id or the driver's id, depending on Role.
	ActorID types.ID
	Role    Role
	Reason  string
}

// Transition is a guarded status change persisted atomically with its
// event and, when set, the driver release.
type Transition struct {
	RideID          types.ID
	From            Status
	To              Status
	At              time.Time
	FinalFare       *float64
	DurationMinutes *int
	ReleaseDriver   *types.ID
	CountTrip       bool
	Event           Event
}

// DestinationUpdate rewrites route and fare fields without moving status.
type DestinationUpdate struct {
	RideID          types.ID
	Status          Status
	Destination     Destination
	EstimatedFare   float64
	SurgeMultiplier float64
	DistanceKm      float64
	DurationMinutes int
	Event           Event
}
