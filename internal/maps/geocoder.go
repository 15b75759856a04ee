// README: Google Geocoding backend for destination resolution.
package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"ridecore/internal/modules/advisory"
	"ridecore/internal/types"
)

// biasDegrees is the half-width of the viewport used to bias results toward the pickup.
const biasDegrees = 0.5

// locationTypeConfidence maps Geocoding API precision to a 0..1 confidence.
var locationTypeConfidence = map[string]float64{
	"ROOFTOP":            0.95,
	"RANGE_INTERPOLATED": 0.8,
	"GEOMETRIC_CENTER":   0.6,
	"APPROXIMATE":        0.4,
}

type geocodeAPI interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// Geocoder implements advisory.Geocoder on top of the Google Geocoding API.
type Geocoder struct {
	api geocodeAPI
}

func NewGeocoder(apiKey string) (*Geocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Geocoder{api: client}, nil
}

func (g *Geocoder) Geocode(ctx context.Context, text string, pickup *types.Point) (advisory.Destination, error) {
	req := &maps.GeocodingRequest{Address: text}
	if pickup != nil {
		req.Bounds = &maps.LatLngBounds{
			NorthEast: maps.LatLng{Lat: pickup.Lat + biasDegrees, Lng: pickup.Lng + biasDegrees},
			SouthWest: maps.LatLng{Lat: pickup.Lat - biasDegrees, Lng: pickup.Lng - biasDegrees},
		}
	}

	results, err := g.api.Geocode(ctx, req)
	if err != nil {
		return advisory.Destination{}, fmt.Errorf("maps.Geocoder: %w", err)
	}
	if len(results) == 0 {
		return advisory.Destination{Confidence: 0}, nil
	}

	best := results[0]
	confidence := locationTypeConfidence[best.Geometry.LocationType]
	if best.PartialMatch {
		confidence /= 2
	}
	return advisory.Destination{
		Lat:        best.Geometry.Location.Lat,
		Lng:        best.Geometry.Location.Lng,
		Address:    best.FormattedAddress,
		Confidence: confidence,
	}, nil
}
