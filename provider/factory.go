package provider

import (
	"fmt"

	"cmdai/model"
)

// NewProvider creates a provider based on configuration.
//
// This is the centralized factory function for creating any provider type.
// It dispatches on Config.Type:
//   - ProviderTypeOllama: Local Ollama server
//   - ProviderTypeOpenAI: OpenAI API
//   - ProviderTypeAnthropic: Anthropic API
//   - ProviderTypeOpenRouter: OpenRouter (OpenAI-compatible)
//
// Returns an error if the type is unknown or the provider-specific
// constructor fails (invalid URL, missing API key).
func NewProvider(cfg Config) (model.Provider, error) {
	var p model.Provider
	var err error

	switch cfg.Type {
	case ProviderTypeOllama:
		p, err = asProvider(NewOllamaProvider(cfg.BaseURL, cfg.Timeout))
	case ProviderTypeOpenAI:
		p, err = asProvider(NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Timeout))
	case ProviderTypeAnthropic:
		p, err = asProvider(NewAnthropicProvider(cfg.BaseURL, cfg.APIKey, cfg.Timeout))
	case ProviderTypeOpenRouter:
		p, err = asProvider(NewOpenRouterProvider(cfg.BaseURL, cfg.APIKey, cfg.Timeout))
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}

	return p, err
}

// asProvider drops the typed nil pointer constructors return on error.
func asProvider[P model.Provider](p P, err error) (model.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

// MapProviderIDToType converts a config provider ID to its ProviderType.
//
// For unknown IDs, returns the ID cast as ProviderType (factory will error).
func MapProviderIDToType(id string) ProviderType {
	switch id {
	case "ollama":
		return ProviderTypeOllama
	case "openai":
		return ProviderTypeOpenAI
	case "anthropic":
		return ProviderTypeAnthropic
	case "openrouter":
		return ProviderTypeOpenRouter
	default:
		return ProviderType(id)
	}
}
