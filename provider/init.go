package provider

import (
	"cmdai/config"
	"cmdai/model"
)

// Registration is one provider built from configuration.
type Registration struct {
	Type     ProviderType
	Provider model.Provider
}

// InitializeProviders creates the provider instances enabled by cfg.
//
// The Ollama provider comes first and is always attempted. Each cloud
// provider is created only when its API key is configured (file,
// environment or keyring). A provider that fails to construct is logged and
// skipped so the application can still start; its namespace then reports
// "API key not configured".
//
// The result is ordered for registration: Ollama, then cloud providers in
// config.CloudProviders order.
func InitializeProviders(cfg *config.Config) []Registration {
	var regs []Registration

	ollamaProvider := initializeOllama(cfg)
	if ollamaProvider != nil {
		regs = append(regs, Registration{Type: ProviderTypeOllama, Provider: ollamaProvider})
		config.DebugLog.Debug().Str("provider", "ollama").Str("url", cfg.OllamaURL()).Msg("initialized provider")
	}

	for _, id := range config.CloudProviders {
		if !cfg.HasAPIKey(id) {
			config.DebugLog.Debug().Str("provider", id).Msg("no API key, provider disabled")
			continue
		}

		ep := cfg.Endpoint(id)
		providerType := MapProviderIDToType(id)

		p, err := NewProvider(Config{
			Type:    providerType,
			BaseURL: ep.BaseURL,
			APIKey:  cfg.APIKey(id),
			Timeout: ep.Timeout,
		})
		if err != nil {
			config.DebugLog.Warn().Str("provider", id).Err(err).Msg("failed to initialize provider")
			continue
		}

		regs = append(regs, Registration{Type: providerType, Provider: p})
		config.DebugLog.Debug().
			Str("provider", id).
			Str("key_source", cfg.KeySource(id)).
			Msg("initialized provider")
	}

	return regs
}

// initializeOllama creates the Ollama provider instance.
// Returns nil if initialization fails (invalid URL).
func initializeOllama(cfg *config.Config) model.Provider {
	ep := cfg.Endpoint(config.ProviderOllama)

	p, err := NewProvider(Config{
		Type:    ProviderTypeOllama,
		BaseURL: cfg.OllamaURL(),
		Timeout: ep.Timeout,
	})
	if err != nil {
		config.DebugLog.Warn().Err(err).Msg("Ollama provider creation failed")
		return nil
	}

	return p
}
