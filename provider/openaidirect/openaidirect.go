// Package openaidirect is the direct upstream backend: OpenAI-style
// chat-completions over SSE, addressed by model name.
package openaidirect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/edukia/chatrelay"
)

// Provider streams completions from an OpenAI-compatible endpoint.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ chatrelay.Provider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithBaseURL overrides the API base URL (default https://api.openai.com/v1).
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// New creates a direct OpenAI provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		baseURL:    "https://api.openai.com/v1",
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "openai" }

// apiRequest is the chat completion request format.
type apiRequest struct {
	Model    string              `json:"model"`
	Messages []chatrelay.Message `json:"messages"`
	Stream   bool                `json:"stream"`
}

// Open starts a streaming completion.
func (p *Provider) Open(ctx context.Context, req chatrelay.StreamRequest) (chatrelay.EventStream, error) {
	body, err := json.Marshal(apiRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("openaidirect: marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openaidirect: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openaidirect: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("openaidirect: upstream status %d: %s", resp.StatusCode, string(msg))
	}

	return newSSEStream(resp.Body), nil
}
