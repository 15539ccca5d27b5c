// Package provider implements the protocol adapters behind model.Provider.
//
// cmdai talks to a local Ollama server and to cloud APIs (OpenAI, Anthropic,
// OpenRouter). Each backend gets one adapter that turns its wire framing into
// a lazy sequence of text fragments, so the router and UI stay
// provider-agnostic.
//
// # Streaming
//
// StreamChat returns an iter.Seq2[string, error]. The HTTP request is issued
// when iteration starts, every (fragment, nil) pair carries non-empty text, and
// a failure arrives as one final ("", *Error) pair. Breaking out of the range
// loop closes the response body.
//
//	for fragment, err := range p.StreamChat(ctx, "llama3", msgs) {
//	    if err != nil {
//	        // *provider.Error, classify with errors.As
//	        break
//	    }
//	    fmt.Print(fragment)
//	}
//
// # Architecture
//
//   - model.Provider defines the contract (interface)
//   - OllamaProvider decodes newline-delimited JSON
//   - OpenAIProvider decodes Server-Sent Events (also serves OpenRouter)
//   - AnthropicProvider streams through the Anthropic SDK
//   - NewProvider() creates providers from a Config
//   - InitializeProviders() builds the set enabled by the application config
package provider

import "time"

// Note: The Provider interface is defined in the model package
// (model/provider.go) to avoid import cycles. This package implements model.Provider.

// ProviderType identifies the provider implementation.
//
// Every type except ProviderTypeOllama is also a model namespace tag:
// "openai/gpt-4o" routes to the OpenAI provider, while bare identifiers
// route to Ollama.
type ProviderType string

const (
	ProviderTypeOllama     ProviderType = "ollama"
	ProviderTypeOpenAI     ProviderType = "openai"
	ProviderTypeAnthropic  ProviderType = "anthropic"
	ProviderTypeOpenRouter ProviderType = "openrouter"
)

// DefaultType is the provider that serves bare model identifiers.
const DefaultType = ProviderTypeOllama

// NamespacedTypes lists the namespace tags in registration order.
var NamespacedTypes = []ProviderType{
	ProviderTypeOpenAI,
	ProviderTypeAnthropic,
	ProviderTypeOpenRouter,
}

// IsNamespace reports whether t is a known namespace tag.
func (t ProviderType) IsNamespace() bool {
	for _, ns := range NamespacedTypes {
		if t == ns {
			return true
		}
	}
	return false
}

// DisplayName returns the user-facing provider name used in error text.
func (t ProviderType) DisplayName() string {
	switch t {
	case ProviderTypeOllama:
		return "Ollama"
	case ProviderTypeOpenAI:
		return "OpenAI"
	case ProviderTypeAnthropic:
		return "Anthropic"
	case ProviderTypeOpenRouter:
		return "OpenRouter"
	default:
		return string(t)
	}
}

// Default endpoints.
const (
	DefaultOllamaURL     = "http://localhost:11434"
	DefaultOpenAIURL     = "https://api.openai.com/v1"
	DefaultAnthropicURL  = "https://api.anthropic.com"
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"
	DefaultTimeout       = 60 * time.Second
)

// Config holds provider-specific configuration.
type Config struct {
	Type    ProviderType
	BaseURL string
	APIKey  string        // For OpenAI/Anthropic/OpenRouter (unused for Ollama)
	Timeout time.Duration // Connect/header bound, idle bound while streaming
}
