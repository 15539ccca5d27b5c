package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"cmdai/config"
	"cmdai/model"
	"cmdai/ollama"

	"github.com/ollama/ollama/api"
)

var (
	// OllamaFallbackModels is returned when the server cannot be listed.
	OllamaFallbackModels = []string{"llama2", "llama3", "mistral", "mixtral", "codellama", "phi3", "gemma"}
	// OllamaEmptyModels is returned when the server lists no models.
	OllamaEmptyModels = []string{"llama2", "llama3", "mistral", "mixtral", "codellama"}
)

// OllamaProvider talks to a local Ollama server.
//
// Streaming goes over POST /api/chat with newline-delimited JSON responses;
// listing and non-streaming chat go through the ollama.Client wrapper.
type OllamaProvider struct {
	client     *ollama.Client
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
}

// NewOllamaProvider creates a new Ollama provider instance.
//
// Parameters:
//   - baseURL: The Ollama server URL. If empty, defaults to "http://localhost:11434".
//   - timeout: Connect and idle bound for streams, overall bound otherwise.
//
// Returns an error if the baseURL is invalid.
func NewOllamaProvider(baseURL string, timeout time.Duration) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	httpClient := &http.Client{}
	client, err := ollama.NewClient(baseURL, httpClient, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}

	return &OllamaProvider{
		client:     client,
		httpClient: httpClient,
		baseURL:    baseURL,
		timeout:    timeout,
	}, nil
}

// Name implements Provider.Name.
func (p *OllamaProvider) Name() string {
	return ProviderTypeOllama.DisplayName()
}

// ListModels implements Provider.ListModels.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]string, error) {
	names, err := p.client.ListModels(ctx)
	if err != nil {
		perr := classify(ctx, p.Name(), err)
		config.DebugLog.Debug().Str("provider", "ollama").Err(perr).Msg("listing failed, using fallback models")
		return append([]string(nil), OllamaFallbackModels...), perr
	}
	if len(names) == 0 {
		return append([]string(nil), OllamaEmptyModels...), nil
	}
	return names, nil
}

// StreamChat implements Provider.StreamChat.
func (p *OllamaProvider) StreamChat(ctx context.Context, modelName string, messages []model.ChatMessage) iter.Seq2[string, error] {
	return streamLines(ctx, streamRequest{
		client: p.httpClient,
		name:   p.Name(),
		url:    p.baseURL + "/api/chat",
		body: chatBody{
			Model:    modelName,
			Messages: toWireMessages(messages),
			Stream:   true,
		},
		timeout: p.timeout,
		decode:  decodeOllamaLine,
	})
}

// decodeOllamaLine extracts message.content from one NDJSON line.
func decodeOllamaLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}

	var chunk api.ChatResponse
	if err := json.Unmarshal([]byte(line), &chunk); err != nil {
		return "", false
	}
	if chunk.Message.Content == "" {
		return "", false
	}
	return chunk.Message.Content, true
}

// Chat implements Provider.Chat.
func (p *OllamaProvider) Chat(ctx context.Context, modelName string, messages []model.ChatMessage) (string, error) {
	content, err := p.client.Chat(ctx, modelName, ConvertToOllamaMessages(messages))
	if err != nil {
		return "", classify(ctx, p.Name(), err)
	}
	return content, nil
}
