// README: CLI that resolves a free-text destination through the configured advisory stack and prints a fare quote.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"ridecore/internal/ai"
	"ridecore/internal/cache"
	"ridecore/internal/geo"
	"ridecore/internal/logging"
	"ridecore/internal/maps"
	"ridecore/internal/modules/advisory"
	"ridecore/internal/modules/fare"
	"ridecore/internal/types"
)

func main() {
	_ = godotenv.Load()

	var (
		text     = flag.String("text", "", "destination text, e.g. \"JFK airport\"")
		lat      = flag.Float64("pickup-lat", 40.758, "pickup latitude")
		lng      = flag.Float64("pickup-lng", -73.9855, "pickup longitude")
		provider = flag.String("provider", envOrDefault("RIDECORE_AI_PROVIDER", "mock"), "mock | gemini | maps")
		timeout  = flag.Duration("timeout", 10*time.Second, "advisory call timeout")
	)
	flag.Parse()
	if *text == "" {
		fmt.Fprintln(os.Stderr, "usage: ridecore-resolve -text <destination> [-pickup-lat N -pickup-lng N] [-provider mock|gemini|maps]")
		os.Exit(2)
	}

	log := logging.NewLogger(envOrDefault("RIDECORE_LOG_LEVEL", "warn"))
	ctx := context.Background()

	geocoder, closeFn, err := newGeocoder(ctx, *provider, *timeout)
	if err != nil {
		log.Error("init geocoder", "err", err)
		os.Exit(1)
	}
	defer closeFn()

	resolver := advisory.NewDestinationResolver(geocoder, cache.New(cache.NewMemoryBackend(), log), log)
	pickup := types.Point{Lat: *lat, Lng: *lng}

	dest, err := resolver.Resolve(ctx, *text, &pickup)
	if err != nil {
		log.Error("resolve", "text", *text, "err", err)
		os.Exit(1)
	}

	distance := geo.HaversineKm(pickup, dest.Point())
	minutes := fare.EstimateMinutes(distance)
	out := map[string]any{
		"destination": dest,
		"distanceKm":  geo.Round2(distance),
		"minutes":     minutes,
		"fare":        fare.Calculate(distance, float64(minutes), 1.0),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func newGeocoder(ctx context.Context, provider string, timeout time.Duration) (advisory.Geocoder, func(), error) {
	switch provider {
	case "maps":
		g, err := maps.NewGeocoder(os.Getenv("GOOGLE_MAPS_API_KEY"))
		if err != nil {
			return nil, nil, err
		}
		return g, func() {}, nil
	case "gemini":
		apiKey := os.Getenv("GEMINI_API_KEY")
		if apiKey == "" {
			return nil, nil, errors.New("GEMINI_API_KEY environment variable not set")
		}
		p, err := ai.NewGeminiProvider(ctx, apiKey, os.Getenv("RIDECORE_AI_MODEL"))
		if err != nil {
			return nil, nil, err
		}
		return advisory.NewLLMGeocoder(p, timeout), func() { _ = p.Close() }, nil
	default:
		return advisory.NewLLMGeocoder(ai.NewMockProvider(), timeout), func() {}, nil
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
