// Package anthropic implements the providers.Provider contract for the
// Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/relaydeck/aifacade/internal/providers"
)

// Adapter speaks the Anthropic Messages API.
type Adapter struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeout overrides the adapter's HTTP client timeout (default 30s).
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.client = providers.NewClient(d) }
}

// New constructs an Anthropic adapter. name is the provider's identity as
// used by the router, ledger, and configuration (conventionally "anthropic").
func New(name, apiKey, baseURL string, opts ...Option) *Adapter {
	a := &Adapter{
		name:    name,
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  providers.NewClient(30 * time.Second),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string { return a.name }

// CheckHealth performs a GET against the messages endpoint. Anthropic
// replies 405 Method Not Allowed to GET, which proves the endpoint is
// reachable and answering without spending a generation call.
func (a *Adapter) CheckHealth(ctx context.Context) bool {
	return providers.DoHealthProbe(ctx, a.client, a.baseURL+"/v1/messages")
}

func (a *Adapter) Generate(ctx context.Context, req providers.Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	payload := map[string]any{
		"model": req.Model,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
		"max_tokens":  maxTokens,
		"temperature": req.Temperature,
	}
	if len(req.StopSequences) > 0 {
		payload["stop_sequences"] = req.StopSequences
	}

	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": "2023-06-01",
	}

	body, err := providers.DoRequest(ctx, a.client, a.baseURL+"/v1/messages", payload, headers)
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("anthropic: decode response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("anthropic: empty content in response")
	}
	return parsed.Content[0].Text, nil
}
