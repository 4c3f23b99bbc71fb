// Package llm defines the Provider interface for chat-completion backends.
//
// A provider wraps a remote or local model API (OpenAI, Anthropic, Gemini, a
// local Ollama instance, …) and exposes a single blocking completion call so
// the drafting pipeline never couples to a specific SDK.
//
// Implementors must be safe for concurrent use and must return promptly when
// the supplied context is cancelled.
package llm

import (
	"context"
	"errors"
)

// ErrRefusal is returned (wrapped) by providers when the backend explicitly
// declines to answer, e.g. a content-policy rejection or a refusal message.
// Callers use errors.Is to distinguish it from transport failures because a
// refused prompt must not be retried.
var ErrRefusal = errors.New("llm: request refused by backend")

// Role values accepted in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged turn of a chat prompt.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text of the message.
	Content string
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional high-priority instruction sent before the
	// messages. Providers without a dedicated system slot prepend it as a
	// system-role message.
	SystemPrompt string

	// Messages is the ordered prompt. The last message is typically from the
	// user role and drives the response.
	Messages []Message

	// Temperature controls output randomness. Zero requests the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the full reply of a completion call.
type CompletionResponse struct {
	// Content is the text of the assistant's reply.
	Content string

	// FinishReason is the provider's stop reason ("stop", "length", …).
	FinishReason string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// ModelCapabilities describes static limits of the underlying model.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the most tokens the model can generate in one reply.
	MaxOutputTokens int
}

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error wrapping ErrRefusal if the backend declined the prompt,
	// and a plain error for transport, auth or protocol failures.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata about the underlying model. The
	// result is constant for the lifetime of the Provider.
	Capabilities() ModelCapabilities
}
