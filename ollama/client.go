// Package ollama wraps the official Ollama API client for the request/response
// endpoints cmdai uses: model listing and non-streaming chat.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

const DefaultURL = "http://localhost:11434"

type Client struct {
	client  *api.Client
	timeout time.Duration
}

// NewClient creates a client for the server at baseURL. timeout bounds each
// request as a whole; zero means no bound.
func NewClient(baseURL string, httpClient *http.Client, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid Ollama URL: %q", baseURL)
	}

	return &Client{
		client:  api.NewClient(parsedURL, httpClient),
		timeout: timeout,
	}, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// ListModels returns the names of the locally installed models (GET /api/tags).
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Chat sends one non-streaming chat request and returns the reply content.
func (c *Client) Chat(ctx context.Context, model string, messages []api.Message) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	stream := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
	}

	var content string
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}
