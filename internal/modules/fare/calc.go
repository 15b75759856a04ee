// README: Fare formula and surge lookup (pure functions).
package fare

import (
	"math"

	"ridecore/internal/geo"
	"ridecore/internal/types"
)

const (
	BaseFare        = 2.50
	PerKmRate       = 1.50
	PerMinuteRate   = 0.25
	MinimumFare     = 5.00
	AverageSpeedKmh = 30.0
)

type Breakdown struct {
	BaseFare        float64 `json:"baseFare"`
	DistanceCharge  float64 `json:"distanceCharge"`
	TimeCharge      float64 `json:"timeCharge"`
	SurgeMultiplier float64 `json:"surgeMultiplier"`
	Total           float64 `json:"total"`
}

// Calculate prices a trip. The minimum fare is compared after surge, so a
// surged short trip can exceed the floor. Only the itemized charges and the
// total are rounded to cents.
func Calculate(distanceKm, durationMin, surge float64) Breakdown {
	if surge <= 0 {
		surge = 1.0
	}
	distanceCharge := distanceKm * PerKmRate
	timeCharge := durationMin * PerMinuteRate
	subtotal := BaseFare + distanceCharge + timeCharge
	total := math.Max(subtotal*surge, MinimumFare)

	return Breakdown{
		BaseFare:        BaseFare,
		DistanceCharge:  geo.Round2(distanceCharge),
		TimeCharge:      geo.Round2(timeCharge),
		SurgeMultiplier: surge,
		Total:           geo.Round2(total),
	}
}

// EstimateMinutes assumes AverageSpeedKmh and rounds up to whole minutes.
func EstimateMinutes(distanceKm float64) int {
	return int(math.Ceil(distanceKm / AverageSpeedKmh * 60))
}

type Surge struct {
	Multiplier float64 `json:"multiplier"`
	ZoneName   string  `json:"zoneName,omitempty"`
}

var noSurge = Surge{Multiplier: 1.0}

// MultiplierAt returns the multiplier of the nearest active zone containing p.
func MultiplierAt(p types.Point, zones []SurgeZone) Surge {
	best := noSurge
	bestDist := math.Inf(1)
	for _, z := range zones {
		if !z.IsActive {
			continue
		}
		d := geo.HaversineKm(p, z.Center)
		if d > z.RadiusKm || d >= bestDist {
			continue
		}
		bestDist = d
		best = Surge{Multiplier: z.Multiplier, ZoneName: z.Name}
	}
	return best
}
