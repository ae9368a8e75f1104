// Package openai implements the providers.Provider contract for the OpenAI
// chat completions API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/relaydeck/aifacade/internal/providers"
)

// Adapter speaks the OpenAI chat completions API.
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

// New constructs an OpenAI adapter. name is the provider's identity as used
// by the router, ledger, and configuration (conventionally "openai").
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

// CheckHealth performs a GET against the chat completions endpoint. OpenAI
// replies 405 to GET, proving reachability without spending a generation call.
func (a *Adapter) CheckHealth(ctx context.Context) bool {
	return providers.DoHealthProbe(ctx, a.client, a.baseURL+"/v1/chat/completions")
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
		payload["stop"] = req.StopSequences
	}

	headers := map[string]string{
		"Authorization": "Bearer " + a.apiKey,
	}

	body, err := providers.DoRequest(ctx, a.client, a.baseURL+"/v1/chat/completions", payload, headers)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}
