// README: Dispatch ranking; the model proposes a driver, membership is verified, closest wins otherwise.
package advisory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"ridecore/internal/ai"
	"ridecore/internal/logging"
	"ridecore/internal/observability"
	"ridecore/internal/types"
)

type DispatchRanker struct {
	llm     ai.LLMProvider
	timeout time.Duration
	log     *slog.Logger
}

func NewDispatchRanker(llm ai.LLMProvider, timeout time.Duration, log *slog.Logger) *DispatchRanker {
	return &DispatchRanker{llm: llm, timeout: timeout, log: logging.OrDefault(log)}
}

type dispatchReply struct {
	SelectedDriverID string `json:"selectedDriverId"`
	Reasoning        string `json:"reasoning"`
}

// SelectBestDriver never fails for a non-empty candidate list: any model
// error, timeout, malformed reply or unknown id degrades to the closest
// candidate with a Fallback reasoning string.
func (r *DispatchRanker) SelectBestDriver(ctx context.Context, ride RideGeometry, candidates []Candidate) (Decision, error) {
	if len(candidates) == 0 {
		return Decision{}, ErrNoCandidates
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	raw, err := r.llm.Chat(callCtx, ai.ChatRequest{
		SystemPrompt: dispatchSystemPrompt,
		UserMessage:  dispatchUserMessage(ride, candidates),
		Temperature:  0.2,
	})
	if err != nil {
		observability.AdvisoryCalls.WithLabelValues("dispatch", "error").Inc()
		r.log.Warn("dispatch advisory failed, using closest driver", "err", err)
		return closest(candidates, FallbackUnavailable), nil
	}

	var reply dispatchReply
	if err := ai.DecodeJSON(raw, &reply); err != nil {
		observability.AdvisoryCalls.WithLabelValues("dispatch", "error").Inc()
		r.log.Warn("dispatch advisory returned malformed reply, using closest driver", "err", err)
		return closest(candidates, FallbackUnavailable), nil
	}

	id := types.ID(strings.TrimSpace(reply.SelectedDriverID))
	for _, c := range candidates {
		if c.ID == id {
			observability.AdvisoryCalls.WithLabelValues("dispatch", "ok").Inc()
			return Decision{SelectedDriverID: id, Reasoning: reply.Reasoning}, nil
		}
	}

	observability.AdvisoryCalls.WithLabelValues("dispatch", "invalid_id").Inc()
	r.log.Warn("dispatch advisory returned unknown driver id, using closest driver", "driver_id", reply.SelectedDriverID)
	return closest(candidates, FallbackInvalidID), nil
}

func closest(candidates []Candidate, reasoning string) Decision {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.DistanceKm < best.DistanceKm {
			best = c
		}
	}
	return Decision{SelectedDriverID: best.ID, Reasoning: reasoning, Fallback: true}
}
