// Package localfallback implements the providers.Provider contract for a
// self-hosted OpenAI-chat-compatible backend (e.g. vLLM, llama.cpp server),
// intended to sit at the back of the priority order as a last resort.
package localfallback

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/relaydeck/aifacade/internal/providers"
)

// Adapter speaks the OpenAI-compatible chat completions protocol against a
// single local endpoint.
type Adapter struct {
	name     string
	endpoint string
	client   *http.Client
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeout overrides the adapter's HTTP client timeout (default 30s).
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.client = providers.NewClient(d) }
}

// New constructs a local-fallback adapter against a single endpoint, e.g.
// "http://localhost:8000".
func New(name, endpoint string, opts ...Option) *Adapter {
	a := &Adapter{
		name:     name,
		endpoint: endpoint,
		client:   providers.NewClient(30 * time.Second),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string { return a.name }

func (a *Adapter) CheckHealth(ctx context.Context) bool {
	return providers.DoHealthProbe(ctx, a.client, a.endpoint+"/v1/chat/completions")
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

	body, err := providers.DoRequest(ctx, a.client, a.endpoint+"/v1/chat/completions", payload, nil)
	if err != nil {
		return "", fmt.Errorf("localfallback: %w", err)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("localfallback: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("localfallback: empty choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}
