package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"slices"
	"strings"
	"time"

	"cmdai/config"
	"cmdai/model"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIFallbackModels is returned when the models endpoint fails or is empty.
var OpenAIFallbackModels = []string{"gpt-4o", "gpt-4-turbo-preview", "gpt-3.5-turbo"}

const (
	sseDataPrefix = "data: "
	sseDone       = "[DONE]"
)

// OpenAIProvider speaks the OpenAI chat completions protocol. OpenRouter is
// served by the same type with a different base URL and provider type.
//
// Streaming decodes the Server-Sent Events body directly; listing and
// non-streaming chat use the official OpenAI Go SDK.
type OpenAIProvider struct {
	client     openai.Client
	httpClient *http.Client
	kind       ProviderType
	baseURL    string
	apiKey     string
	timeout    time.Duration
}

// NewOpenAIProvider creates a new OpenAI provider instance.
//
// Parameters:
//   - baseURL: OpenAI API base URL (default: "https://api.openai.com/v1")
//   - apiKey: OpenAI API key (required)
//   - timeout: Connect and idle bound for streams, overall bound otherwise
//
// Returns an error if the API key is missing.
func NewOpenAIProvider(baseURL, apiKey string, timeout time.Duration) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	return newOpenAICompatible(ProviderTypeOpenAI, baseURL, apiKey, timeout)
}

// NewOpenRouterProvider creates an OpenAI-compatible provider for OpenRouter.
func NewOpenRouterProvider(baseURL, apiKey string, timeout time.Duration) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	return newOpenAICompatible(ProviderTypeOpenRouter, baseURL, apiKey, timeout)
}

func newOpenAICompatible(kind ProviderType, baseURL, apiKey string, timeout time.Duration) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s API key is required", kind.DisplayName())
	}
	baseURL = strings.TrimRight(baseURL, "/")

	httpClient := &http.Client{}
	opts := []option.RequestOption{
		option.WithBaseURL(baseURL + "/"),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
		option.WithMiddleware(observeResponse),
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}

	return &OpenAIProvider{
		client:     openai.NewClient(opts...),
		httpClient: httpClient,
		kind:       kind,
		baseURL:    baseURL,
		apiKey:     apiKey,
		timeout:    timeout,
	}, nil
}

// Name implements Provider.Name.
func (p *OpenAIProvider) Name() string {
	return p.kind.DisplayName()
}

// ListModels implements Provider.ListModels.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]string, error) {
	ctx = trackResponse(ctx)
	page, err := p.client.Models.List(ctx)
	if err != nil {
		perr := classify(ctx, p.Name(), err)
		config.DebugLog.Debug().Str("provider", string(p.kind)).Err(perr).Msg("listing failed, using fallback models")
		return append([]string(nil), OpenAIFallbackModels...), perr
	}

	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	if len(ids) == 0 {
		return append([]string(nil), OpenAIFallbackModels...), nil
	}
	slices.Sort(ids)
	return ids, nil
}

// StreamChat implements Provider.StreamChat.
func (p *OpenAIProvider) StreamChat(ctx context.Context, modelName string, messages []model.ChatMessage) iter.Seq2[string, error] {
	return streamLines(ctx, streamRequest{
		client:  p.httpClient,
		name:    p.Name(),
		url:     p.baseURL + "/chat/completions",
		headers: map[string]string{"Authorization": "Bearer " + p.apiKey},
		body: chatBody{
			Model:    modelName,
			Messages: toWireMessages(messages),
			Stream:   true,
		},
		timeout: p.timeout,
		decode:  decodeSSELine,
	})
}

// sseChunk is the part of a chat.completion.chunk payload that carries text.
type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// decodeSSELine extracts choices[0].delta.content from one "data: " line.
// Every line is handled on its own; consecutive data lines are not joined.
func decodeSSELine(line string) (string, bool) {
	payload, ok := strings.CutPrefix(line, sseDataPrefix)
	if !ok {
		return "", false
	}
	if payload == sseDone {
		return "", false
	}

	var chunk sseChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", false
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return "", false
	}
	return chunk.Choices[0].Delta.Content, true
}

// Chat implements Provider.Chat.
func (p *OpenAIProvider) Chat(ctx context.Context, modelName string, messages []model.ChatMessage) (string, error) {
	ctx = trackResponse(ctx)
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelName),
		Messages: ConvertToOpenAIMessages(messages),
	})
	if err != nil {
		return "", classify(ctx, p.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
