// Package azuregate is the enterprise-gated upstream backend: Azure
// OpenAI chat-completions over SSE, addressed by deployment identifier.
package azuregate

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

// Provider streams completions from an Azure OpenAI resource.
type Provider struct {
	endpoint   string
	apiKey     string
	apiVersion string
	httpClient *http.Client
}

var _ chatrelay.Provider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithAPIVersion overrides the API version query parameter.
func WithAPIVersion(v string) Option {
	return func(p *Provider) { p.apiVersion = v }
}

// New creates a gated Azure provider for the given resource endpoint,
// e.g. https://myresource.openai.azure.com.
func New(endpoint, apiKey string, opts ...Option) *Provider {
	p := &Provider{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		apiVersion: "2023-05-15",
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "azure" }

// apiRequest is the chat completion request format. The model is implied
// by the deployment in the URL.
type apiRequest struct {
	Messages []chatrelay.Message `json:"messages"`
	Stream   bool                `json:"stream"`
}

// Open starts a streaming completion against the request's deployment.
func (p *Provider) Open(ctx context.Context, req chatrelay.StreamRequest) (chatrelay.EventStream, error) {
	if req.Deployment == "" {
		return nil, fmt.Errorf("azuregate: no deployment for model %q", req.Model)
	}

	body, err := json.Marshal(apiRequest{Messages: req.Messages, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("azuregate: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		p.endpoint, req.Deployment, p.apiVersion)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("azuregate: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("azuregate: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("azuregate: upstream status %d: %s", resp.StatusCode, string(msg))
	}

	return newSSEStream(resp.Body), nil
}
