// README: Destination resolution (free text -> coordinates) with cache and confidence gate.
package advisory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ridecore/internal/ai"
	"ridecore/internal/cache"
	"ridecore/internal/logging"
	"ridecore/internal/observability"
	"ridecore/internal/types"
)

// Geocoder turns free text into a candidate place. Implementations report
// their own confidence; gating happens in DestinationResolver.
type Geocoder interface {
	Geocode(ctx context.Context, text string, pickup *types.Point) (Destination, error)
}

// LLMGeocoder asks a language model to geocode.
type LLMGeocoder struct {
	llm     ai.LLMProvider
	timeout time.Duration
}

func NewLLMGeocoder(llm ai.LLMProvider, timeout time.Duration) *LLMGeocoder {
	return &LLMGeocoder{llm: llm, timeout: timeout}
}

func (g *LLMGeocoder) Geocode(ctx context.Context, text string, pickup *types.Point) (Destination, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	raw, err := g.llm.Chat(ctx, ai.ChatRequest{
		SystemPrompt: geocodingSystemPrompt,
		UserMessage:  geocodingUserMessage(text, pickup),
		Temperature:  0.1,
	})
	if err != nil {
		return Destination{}, fmt.Errorf("advisory.LLMGeocoder: %w", err)
	}
	var d Destination
	if err := ai.DecodeJSON(raw, &d); err != nil {
		return Destination{}, fmt.Errorf("advisory.LLMGeocoder: %w", err)
	}
	return d, nil
}

type DestinationResolver struct {
	geocoder Geocoder
	cache    *cache.Cache
	log      *slog.Logger
}

func NewDestinationResolver(geocoder Geocoder, c *cache.Cache, log *slog.Logger) *DestinationResolver {
	return &DestinationResolver{geocoder: geocoder, cache: c, log: logging.OrDefault(log)}
}

// Resolve returns coordinates for text, using pickup as loose context.
// Results under MinConfidence fail with ErrDestinationUnresolvable; errors
// from the geocoder itself propagate unchanged.
func (r *DestinationResolver) Resolve(ctx context.Context, text string, pickup *types.Point) (Destination, error) {
	text = strings.TrimSpace(text)
	if cache.NormalizeDestination(text) == "" {
		return Destination{}, fmt.Errorf("%w: empty destination", ErrDestinationUnresolvable)
	}

	key := cache.DestinationKey(text, pickup)
	var cached Destination
	if r.cache != nil && r.cache.GetJSON(ctx, key, &cached) {
		observability.AdvisoryCalls.WithLabelValues("destination", "cache_hit").Inc()
		return cached, nil
	}

	d, err := r.geocoder.Geocode(ctx, text, pickup)
	if err != nil {
		observability.AdvisoryCalls.WithLabelValues("destination", "error").Inc()
		return Destination{}, err
	}
	if d.Confidence < MinConfidence || !d.Point().InRange() {
		observability.AdvisoryCalls.WithLabelValues("destination", "low_confidence").Inc()
		r.log.Info("destination below confidence threshold", "text", text, "confidence", d.Confidence)
		return Destination{}, fmt.Errorf("%w: %q", ErrDestinationUnresolvable, text)
	}

	observability.AdvisoryCalls.WithLabelValues("destination", "ok").Inc()
	if r.cache != nil {
		r.cache.SetJSON(ctx, key, d, cache.TTLDestination)
	}
	return d, nil
}
