// Package llm defines the Provider interface for language-generation backends.
//
// A provider wraps a remote or local model API (e.g., OpenAI, Anthropic, or a
// local Ollama instance) and exposes the single completion operation the
// recommendation agents need, without coupling them to any specific SDK.
//
// Implementations must be safe for concurrent use and should propagate
// context cancellation promptly.
package llm

import "context"

// Usage holds token accounting returned by the model backend. Counts are in
// the model's native token unit and may differ between providers for the same
// textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the system instruction
	// and user payload. Drives cost estimation.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Some providers return it
	// directly rather than computing it from the parts.
	TotalTokens int
}

// CompletionRequest carries everything the model needs to produce a response.
type CompletionRequest struct {
	// SystemPrompt is a high-priority instruction injected before the user
	// payload (e.g., "You are a book taste analyst. Return only valid JSON.").
	SystemPrompt string

	// UserPayload is the request body, typically compact JSON prepared by the
	// calling agent.
	UserPayload string

	// JSONResponse requests that the model emit a single JSON object and
	// nothing else. Backends without a native JSON output mode should enforce
	// this through the instruction channel they do have.
	JSONResponse bool

	// Temperature controls output randomness in [0.0, 2.0]. Lower favours
	// determinism.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means the provider
	// default.
	MaxTokens int
}

// CompletionResponse is the full, non-streamed model reply.
type CompletionResponse struct {
	// Content is the text of the model's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any language-generation backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// ModelID returns the backend model identifier (e.g., "gpt-4-turbo").
	// Used for logging and per-model cost attribution.
	ModelID() string
}
