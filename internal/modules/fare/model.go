// README: Surge zone aggregate and fare estimate result.
package fare

import (
	"errors"
	"time"

	"ridecore/internal/types"
)

var (
	ErrNotFound   = errors.New("surge zone not found")
	ErrConflict   = errors.New("surge zone name already exists")
	ErrBadRequest = errors.New("bad request")
)

const (
	MinMultiplier = 1.0
	MaxMultiplier = 10.0
)

type SurgeZone struct {
	ID         types.ID    `json:"id"`
	Name       string      `json:"name"`
	Center     types.Point `json:"center"`
	RadiusKm   float64     `json:"radiusKm"`
	Multiplier float64     `json:"multiplier"`
	IsActive   bool        `json:"isActive"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

func (z SurgeZone) validate() error {
	switch {
	case z.Name == "":
		return errors.Join(ErrBadRequest, errors.New("name is required"))
	case z.RadiusKm <= 0:
		return errors.Join(ErrBadRequest, errors.New("radius must be positive"))
	case z.Multiplier < MinMultiplier || z.Multiplier > MaxMultiplier:
		return errors.Join(ErrBadRequest, errors.New("multiplier must be within [1.0, 10.0]"))
	case !z.Center.InRange():
		return errors.Join(ErrBadRequest, errors.New("center out of range"))
	}
	return nil
}

// ZonePatch carries the optional fields of an update.
type ZonePatch struct {
	Name       *string
	Center     *types.Point
	RadiusKm   *float64
	Multiplier *float64
	IsActive   *bool
}

func (p ZonePatch) apply(z *SurgeZone) {
	if p.Name != nil {
		z.Name = *p.Name
	}
	if p.Center != nil {
		z.Center = *p.Center
	}
	if p.RadiusKm != nil {
		z.RadiusKm = *p.RadiusKm
	}
	if p.Multiplier != nil {
		z.Multiplier = *p.Multiplier
	}
	if p.IsActive != nil {
		z.IsActive = *p.IsActive
	}
}

type Estimate struct {
	Breakdown
	SurgeName        string  `json:"surgeName,omitempty"`
	DistanceKm       float64 `json:"distanceKm"`
	EstimatedMinutes int     `json:"estimatedMinutes"`
}
