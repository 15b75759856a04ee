package ai

import (
	"context"
)

// LLMProvider defines the contract for interacting with AI models.
// Implementations must honor ctx cancellation; callers treat any error,
// including a deadline, as a failed call.
type LLMProvider interface {
	// Chat sends a single system+user exchange and returns the raw text reply.
	// Callers ask for JSON in the system prompt and parse the reply themselves.
	Chat(ctx context.Context, req ChatRequest) (string, error)
}
