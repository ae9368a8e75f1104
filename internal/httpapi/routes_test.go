package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/relaydeck/aifacade/internal/journal"
	"github.com/relaydeck/aifacade/internal/ledger"
	"github.com/relaydeck/aifacade/internal/logging"
	"github.com/relaydeck/aifacade/internal/metrics"
	"github.com/relaydeck/aifacade/internal/providers"
	"github.com/relaydeck/aifacade/internal/router"
)

type fakeProvider struct {
	name    string
	healthy bool
	content string
	err     error

	mu      sync.Mutex
	lastReq providers.Request
}

func (f *fakeProvider) Name() string                        { return f.name }
func (f *fakeProvider) CheckHealth(ctx context.Context) bool { return f.healthy }
func (f *fakeProvider) Generate(ctx context.Context, req providers.Request) (string, error) {
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.content, nil
}

func (f *fakeProvider) lastRequest() providers.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func newTestServer(t *testing.T, provs map[string]providers.Provider, priorities map[string]int) *httptest.Server {
	t.Helper()

	cfg := router.DefaultConfig()
	cfg.ProviderLimits = make(map[string]router.ProviderLimit)
	for name := range provs {
		cfg.ProviderLimits[name] = router.ProviderLimit{RequestLimit: 1000, LimitType: router.LimitDay, CostPerToken: 0.0001, DailyBudgetLimit: 100}
	}

	internalJournal, err := journal.New[journal.Document](journal.Options{Enabled: false})
	require.NoError(t, err)
	history, err := journal.New[journal.Document](journal.Options{Enabled: false})
	require.NoError(t, err)

	m := metrics.New()
	rt := router.New(cfg, ledger.New(), internalJournal, nil, provs, priorities, m)

	mux := chi.NewRouter()
	MountRoutes(mux, Dependencies{
		Router:      rt,
		History:     history,
		Metrics:     m,
		Logger:      logging.Setup("error"),
		CORSOrigins: []string{"*"},
	})
	return httptest.NewServer(mux)
}

func TestGenerateSuccess(t *testing.T) {
	srv := newTestServer(t, map[string]providers.Provider{
		"p1": &fakeProvider{name: "p1", healthy: true, content: "hello back"},
	}, map[string]int{"p1": 1})
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"prompt": "hi there"})
	resp, err := http.Post(srv.URL+"/api/ai/generate", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed generateSuccessResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.True(t, parsed.Success)
	require.Equal(t, "p1", parsed.Provider)
	require.Equal(t, "hello back", parsed.Content)
}

func TestGenerateAppliesDocumentedDefaults(t *testing.T) {
	p1 := &fakeProvider{name: "p1", healthy: true, content: "hello back"}
	srv := newTestServer(t, map[string]providers.Provider{"p1": p1}, map[string]int{"p1": 1})
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"prompt": "hi there"})
	resp, err := http.Post(srv.URL+"/api/ai/generate", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sent := p1.lastRequest()
	require.Equal(t, 1000, sent.MaxTokens)
	require.Equal(t, 0.7, sent.Temperature)
	require.Equal(t, "default", sent.Model)
}

func TestGenerateEmptyPromptIsBadRequest(t *testing.T) {
	srv := newTestServer(t, map[string]providers.Provider{
		"p1": &fakeProvider{name: "p1", healthy: true, content: "hi"},
	}, map[string]int{"p1": 1})
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"prompt": ""})
	resp, err := http.Post(srv.URL+"/api/ai/generate", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGenerateAllProvidersFailedIsServiceUnavailable(t *testing.T) {
	srv := newTestServer(t, map[string]providers.Provider{
		"p1": &fakeProvider{name: "p1", healthy: false},
	}, map[string]int{"p1": 1})
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"prompt": "hi"})
	resp, err := http.Post(srv.URL+"/api/ai/generate", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var parsed generateFailureResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.False(t, parsed.Success)
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, map[string]providers.Provider{
		"p1": &fakeProvider{name: "p1", healthy: true, content: "ok"},
	}, map[string]int{"p1": 1})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/ai/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed []providerStatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.Len(t, parsed, 1)
	require.Equal(t, "p1", parsed[0].Name)
	require.True(t, parsed[0].IsHealthy)
}

func TestSpendEndpoint(t *testing.T) {
	srv := newTestServer(t, map[string]providers.Provider{
		"p1": &fakeProvider{name: "p1", healthy: true, content: "ok"},
	}, map[string]int{"p1": 1})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/ai/spend")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var spend float64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&spend))
	require.Equal(t, 0.0, spend)
}

func TestProviderHealthEndpointAllUnhealthy(t *testing.T) {
	srv := newTestServer(t, map[string]providers.Provider{
		"p1": &fakeProvider{name: "p1", healthy: false},
	}, map[string]int{"p1": 1})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/ai/health", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed providerHealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.Equal(t, "Unhealthy", parsed.Status)
	require.Equal(t, 0, parsed.HealthyProviders)
	require.Equal(t, 1, parsed.TotalProviders)
}

func TestHistoryAndRolloverEndpoints(t *testing.T) {
	srv := newTestServer(t, map[string]providers.Provider{
		"p1": &fakeProvider{name: "p1", healthy: true, content: "ok"},
	}, map[string]int{"p1": 1})
	defer srv.Close()

	body, _ := json.Marshal(map[string]any{"prompt": "hi"})
	_, err := http.Post(srv.URL+"/api/ai/generate", "application/json", bytes.NewReader(body))
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/ai/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc journal.Document
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	// History is disabled in this test server (Options{Enabled: false}),
	// so it always loads an empty document regardless of generate calls.
	require.Equal(t, 0, doc.TotalRequests)

	rolloverResp, err := http.Post(srv.URL+"/api/ai/rollover", "application/json", nil)
	require.NoError(t, err)
	defer rolloverResp.Body.Close()
	require.Equal(t, http.StatusOK, rolloverResp.StatusCode)
}

func TestHealthzEndpoint(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.Equal(t, "healthy", parsed["status"])
}

func TestMetricsEndpointServesPrometheusExposition(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGenerateMalformedBodyIsBadRequest(t *testing.T) {
	srv := newTestServer(t, map[string]providers.Provider{
		"p1": &fakeProvider{name: "p1", healthy: true, content: "ok", err: errors.New("unused")},
	}, map[string]int{"p1": 1})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/ai/generate", "application/json", bytes.NewReader([]byte("not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
