// README: Cache key builders and TTLs.
package cache

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"ridecore/internal/types"
)

const (
	TTLNearby      = 15 * time.Second
	TTLSurge       = 300 * time.Second
	TTLFare        = 600 * time.Second
	TTLDestination = 24 * time.Hour
)

// NearbyKey buckets the query point to ~110 m.
func NearbyKey(ver int64, p types.Point, radiusKm float64) string {
	return fmt.Sprintf("nearby:v%d:%s:%s:%s", ver, r3(p.Lat), r3(p.Lng), strconv.FormatFloat(radiusKm, 'f', -1, 64))
}

func SurgeKey(ver int64, p types.Point) string {
	return fmt.Sprintf("surge:v%d:%s:%s", ver, r3(p.Lat), r3(p.Lng))
}

func FareKey(ver int64, pickup, dest types.Point) string {
	return fmt.Sprintf("fare:v%d:%s:%s:%s:%s", ver, r3(pickup.Lat), r3(pickup.Lng), r3(dest.Lat), r3(dest.Lng))
}

// DestinationKey is not versioned; resolved places expire by TTL only.
func DestinationKey(text string, pickup *types.Point) string {
	key := "dest:" + NormalizeDestination(text)
	if pickup != nil {
		key += ":" + r1(pickup.Lat) + ":" + r1(pickup.Lng)
	}
	return key
}

// NormalizeDestination trims, lower-cases and joins whitespace runs with "_".
func NormalizeDestination(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), "_")
}

func r3(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
func r1(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }
