package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("RIDECORE_AUTH_MODE", "header")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10.0, cfg.Dispatch.RadiusKm)
	assert.Equal(t, "mock", cfg.AI.Provider)
	assert.Equal(t, 10*time.Second, cfg.AI.Timeout)
	assert.Equal(t, "llm", cfg.Geocoder.Backend)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "ride-events", cfg.Kafka.Topic)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("RIDECORE_AUTH_MODE", "header")
	t.Setenv("RIDECORE_DISPATCH_RADIUS_KM", "7.5")
	t.Setenv("RIDECORE_AI_TIMEOUT", "3s")
	t.Setenv("RIDECORE_KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7.5, cfg.Dispatch.RadiusKm)
	assert.Equal(t, 3*time.Second, cfg.AI.Timeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_CollectsAllProblems(t *testing.T) {
	t.Setenv("RIDECORE_AUTH_MODE", "firebase")
	t.Setenv("RIDECORE_FIREBASE_PROJECT_ID", "")
	t.Setenv("RIDECORE_AI_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("RIDECORE_GEOCODER", "maps")
	t.Setenv("GOOGLE_MAPS_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
	assert.Contains(t, err.Error(), "GOOGLE_MAPS_API_KEY")
	assert.Contains(t, err.Error(), "RIDECORE_FIREBASE_PROJECT_ID")
}
