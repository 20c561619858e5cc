package interfaces

import "context"

// Message represents a single message in a chat conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// LLMService defines the text-generation contract the pipeline consumes:
// prompt in, text out. Implementations wrap cloud providers (Gemini, Claude).
type LLMService interface {
	// Chat generates a completion for the conversation. The messages slice
	// should contain the full context including system prompts.
	Chat(ctx context.Context, messages []Message) (string, error)

	// ProviderName returns the provider identifier ("gemini", "claude")
	ProviderName() string

	// HealthCheck verifies the provider is reachable and authenticated
	HealthCheck(ctx context.Context) error
}
