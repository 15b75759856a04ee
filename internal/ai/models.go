package ai

// ChatRequest is one stateless exchange with the model.
type ChatRequest struct {
	SystemPrompt string
	UserMessage  string
	Temperature  float32
}
