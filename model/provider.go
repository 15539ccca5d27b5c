package model

import (
	"context"
	"iter"
)

// Provider abstracts one LLM backend (Ollama, OpenAI, Anthropic) behind
// provider-agnostic types from the model layer.
//
// This interface is defined in the model package (not provider package) to avoid
// import cycles: provider implementations import model, and the router and UI
// can hold Providers without importing the provider package.
//
// Model names passed to and returned from a Provider are native identifiers,
// never namespaced ones. Namespacing is the router's job.
type Provider interface {
	// Name returns the user-facing provider name ("Ollama", "OpenAI").
	Name() string

	// ListModels returns the native model identifiers the backend offers.
	// On failure it still returns a usable built-in list, together with
	// the error that caused the fallback.
	ListModels(ctx context.Context) ([]string, error)

	// StreamChat issues one streaming request when iteration starts and
	// yields non-empty text fragments in order. A failure is reported as a
	// single final ("", err) pair. Stopping iteration early releases the
	// connection.
	StreamChat(ctx context.Context, model string, messages []ChatMessage) iter.Seq2[string, error]

	// Chat issues one non-streaming request and returns the reply text, or
	// "" when the response has an unexpected shape.
	Chat(ctx context.Context, model string, messages []ChatMessage) (string, error)
}
