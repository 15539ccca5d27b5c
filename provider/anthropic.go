package provider

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"cmdai/config"
	"cmdai/model"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicMaxTokens is required by the Messages API.
const anthropicMaxTokens = 4096

// AnthropicModels is the curated listing; Anthropic has no listing call in use here.
var AnthropicModels = []string{
	string(anthropic.ModelClaudeSonnet4_5_20250929),
	string(anthropic.ModelClaude3_5Haiku20241022),
	string(anthropic.ModelClaude_3_Opus_20240229),
	string(anthropic.ModelClaude_3_Haiku_20240307),
}

// AnthropicProvider implements the Provider interface using Anthropic's official API.
// It uses the official Anthropic Go SDK for both streaming and non-streaming chat.
type AnthropicProvider struct {
	client *anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider instance.
//
// Parameters:
//   - baseURL: Anthropic API base URL (default: "https://api.anthropic.com")
//   - apiKey: Anthropic API key (required)
//   - timeout: Bound for each request
//
// Returns an error if the API key is missing.
func NewAnthropicProvider(baseURL, apiKey string, timeout time.Duration) (*AnthropicProvider, error) {
	if baseURL == "" {
		baseURL = DefaultAnthropicURL
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/"),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{}),
		option.WithMaxRetries(0),
		option.WithMiddleware(observeResponse),
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}

	client := anthropic.NewClient(opts...)

	return &AnthropicProvider{client: &client}, nil
}

// Name implements Provider.Name.
func (p *AnthropicProvider) Name() string {
	return ProviderTypeAnthropic.DisplayName()
}

// ListModels implements Provider.ListModels.
func (p *AnthropicProvider) ListModels(ctx context.Context) ([]string, error) {
	return append([]string(nil), AnthropicModels...), nil
}

func (p *AnthropicProvider) params(modelName string, messages []model.ChatMessage) anthropic.MessageNewParams {
	anthropicMessages, systemPrompt := convertToAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelName),
		Messages:  anthropicMessages,
		MaxTokens: anthropicMaxTokens,
	}
	if len(systemPrompt) > 0 {
		params.System = systemPrompt
	}
	return params
}

// StreamChat implements Provider.StreamChat.
func (p *AnthropicProvider) StreamChat(ctx context.Context, modelName string, messages []model.ChatMessage) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stream := p.client.Messages.NewStreaming(ctx, p.params(modelName, messages))
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()

			switch eventVariant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch deltaVariant := eventVariant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if deltaVariant.Text == "" {
						continue
					}
					if !yield(deltaVariant.Text, nil) {
						return
					}
				}
			}
		}

		if err := stream.Err(); err != nil {
			perr := classify(ctx, p.Name(), err)
			config.DebugLog.Debug().Str("provider", "anthropic").Str("model", modelName).Err(perr).Msg("stream interrupted")
			yield("", perr)
		}
	}
}

// Chat implements Provider.Chat.
func (p *AnthropicProvider) Chat(ctx context.Context, modelName string, messages []model.ChatMessage) (string, error) {
	ctx = trackResponse(ctx)
	msg, err := p.client.Messages.New(ctx, p.params(modelName, messages))
	if err != nil {
		return "", classify(ctx, p.Name(), err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String(), nil
}
