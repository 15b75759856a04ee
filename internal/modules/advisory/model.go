// README: Advisory resolver types, errors and fallback reasoning strings.
package advisory

import (
	"errors"

	"ridecore/internal/types"
)

var (
	ErrDestinationUnresolvable = errors.New("destination could not be resolved")
	ErrNoCandidates            = errors.New("no dispatch candidates")
)

// MinConfidence is the lowest geocoding confidence a ride may be created with.
const MinConfidence = 0.3

// Reasoning strings attached when the advisory pick is not used verbatim.
// Both start with "Fallback:" so audit readers can tell them from model text.
const (
	FallbackInvalidID   = "Fallback: selected closest available driver (LLM returned invalid ID)."
	FallbackUnavailable = "Fallback: selected closest available driver (advisory unavailable)."
)

type Destination struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Address    string  `json:"address"`
	Confidence float64 `json:"confidence"`
}

func (d Destination) Point() types.Point {
	return types.Point{Lat: d.Lat, Lng: d.Lng}
}

type RideGeometry struct {
	Pickup      types.Point
	Destination types.Point
}

type Candidate struct {
	ID           types.ID
	Name         string
	DistanceKm   float64
	Rating       float64
	TotalTrips   int
	VehicleMake  string
	VehicleModel string
}

type Decision struct {
	SelectedDriverID types.ID
	Reasoning        string
	// Fallback is set when the choice was made deterministically rather than by the model.
	Fallback bool
}
