// Package llm defines the Provider interface for Large Language Model backends.
//
// The pronunciation assessor uses an LLM as an external judge: it sends the
// target word and the recognised transcript and expects a small JSON document
// with per-phoneme accuracy scores back. Only single-shot completions are
// needed.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Message roles understood by all providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the plain-text body of the message.
	Content string
}

// Usage reports token consumption for a single completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest describes a single completion call.
type CompletionRequest struct {
	// SystemPrompt, when non-empty, is sent as the first system message.
	SystemPrompt string

	// Messages is the conversation, oldest first.
	Messages []Message

	// Temperature controls sampling randomness. Zero uses the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero uses the provider default.
	MaxTokens int

	// JSONMode asks the backend to constrain output to a single JSON object
	// when it supports doing so. Callers must still validate the result.
	JSONMode bool
}

// CompletionResponse is the result of a completion call.
type CompletionResponse struct {
	// Content is the generated text.
	Content string

	// Usage reports token consumption. May be zero when the backend does not
	// report it.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req and blocks until the full response is available.
	// Returns an error on transport failure, API errors, or ctx cancellation.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
