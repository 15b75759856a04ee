// README: Driver aggregate, nearby-search projection and commands.
package driver

import (
	"errors"
	"time"

	"ridecore/internal/types"
)

var (
	ErrNotFound   = errors.New("driver not found")
	ErrConflict   = errors.New("driver already registered or plate in use")
	ErrBadRequest = errors.New("bad request")
)

type Driver struct {
	ID                types.ID     `json:"id"`
	UserID            types.ID     `json:"userId"`
	Name              string       `json:"name"`
	VehicleMake       string       `json:"vehicleMake"`
	VehicleModel      string       `json:"vehicleModel"`
	VehicleColor      string       `json:"vehicleColor"`
	LicensePlate      string       `json:"licensePlate"`
	IsOnline          bool         `json:"isOnline"`
	Location          *types.Point `json:"location,omitempty"`
	LocationUpdatedAt *time.Time   `json:"locationUpdatedAt,omitempty"`
	Rating            float64      `json:"rating"`
	TotalTrips        int          `json:"totalTrips"`
	// ActiveRideID is written only by dispatch (claim) and by ride
	// completion or cancellation (release).
	ActiveRideID *types.ID `json:"activeRideId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Nearby is a driver that is online, unassigned and within the search radius.
type Nearby struct {
	DriverID     types.ID    `json:"driverId"`
	Name         string      `json:"name"`
	Location     types.Point `json:"location"`
	DistanceKm   float64     `json:"distanceKm"`
	Rating       float64     `json:"rating"`
	TotalTrips   int         `json:"totalTrips"`
	VehicleMake  string      `json:"vehicleMake"`
	VehicleModel string      `json:"vehicleModel"`
	VehicleColor string      `json:"vehicleColor"`
}

type RegisterCommand struct {
	UserID       types.ID
	Name         string
	VehicleMake  string
	VehicleModel string
	VehicleColor string
	LicensePlate string
}

func (c RegisterCommand) validate() error {
	if c.UserID == "" || c.VehicleMake == "" || c.VehicleModel == "" || c.VehicleColor == "" || c.LicensePlate == "" {
		return ErrBadRequest
	}
	return nil
}
