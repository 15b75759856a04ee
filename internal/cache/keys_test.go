package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ridecore/internal/types"
)

func TestKeys(t *testing.T) {
	pickup := types.Point{Lat: 40.75812, Lng: -73.98551}
	dest := types.Point{Lat: 40.6413, Lng: -73.7781}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"nearby", NearbyKey(3, pickup, 5), "nearby:v3:40.758:-73.986:5"},
		{"nearby fractional radius", NearbyKey(0, pickup, 2.5), "nearby:v0:40.758:-73.986:2.5"},
		{"surge", SurgeKey(7, pickup), "surge:v7:40.758:-73.986"},
		{"fare", FareKey(1, pickup, dest), "fare:v1:40.758:-73.986:40.641:-73.778"},
		{"destination no context", DestinationKey("  JFK   Airport ", nil), "dest:jfk_airport"},
		{"destination with context", DestinationKey("JFK Airport", &pickup), "dest:jfk_airport:40.8:-74.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestNearbyKey_BucketsNearbyPoints(t *testing.T) {
	a := types.Point{Lat: 40.75801, Lng: -73.98549}
	b := types.Point{Lat: 40.75819, Lng: -73.98521}
	assert.Equal(t, NearbyKey(0, a, 10), NearbyKey(0, b, 10))
}

func TestNormalizeDestination(t *testing.T) {
	assert.Equal(t, "central_park_south", NormalizeDestination("\tCentral  Park\nSouth "))
	assert.Equal(t, "", NormalizeDestination("   "))
}
