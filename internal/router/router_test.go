package router

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/relaydeck/aifacade/internal/journal"
	"github.com/relaydeck/aifacade/internal/ledger"
	"github.com/relaydeck/aifacade/internal/metrics"
	"github.com/relaydeck/aifacade/internal/providers"
)

type fakeProvider struct {
	name      string
	healthy   bool
	content   string
	err       error
	callCount int
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) CheckHealth(ctx context.Context) bool { return f.healthy }
func (f *fakeProvider) Generate(ctx context.Context, req providers.Request) (string, error) {
	f.callCount++
	if f.err != nil {
		return "", f.err
	}
	return f.content, nil
}

func newTestRouter(t *testing.T, cfg Config, provs map[string]providers.Provider, priorities map[string]int) (*Router, *ledger.Ledger) {
	t.Helper()
	led := ledger.New()
	jrn, err := journal.New[journal.Document](journal.Options{Enabled: false})
	if err != nil {
		t.Fatalf("journal.New: %v", err)
	}
	return New(cfg, led, jrn, nil, provs, priorities, nil), led
}

func baseConfig() Config {
	cfg := DefaultConfig()
	cfg.ProviderLimits = map[string]ProviderLimit{
		"p1": {RequestLimit: 100, LimitType: LimitDay, CostPerToken: 0.0001, DailyBudgetLimit: 10},
		"p2": {RequestLimit: 100, LimitType: LimitDay, CostPerToken: 0.0001, DailyBudgetLimit: 10},
	}
	return cfg
}

func TestPriorityMonotonicity(t *testing.T) {
	p1 := &fakeProvider{name: "p1", healthy: true, content: "from-p1"}
	p2 := &fakeProvider{name: "p2", healthy: true, content: "from-p2"}
	r, _ := newTestRouter(t, baseConfig(), map[string]providers.Provider{"p1": p1, "p2": p2}, map[string]int{"p1": 1, "p2": 2})

	resp := r.Route(context.Background(), "hi", providers.Request{Prompt: "hi", Model: "default"})
	if !resp.IsSuccess || resp.Provider != "p1" {
		t.Fatalf("expected success from p1, got %+v", resp)
	}
	if p2.callCount != 0 {
		t.Errorf("p2 should never have been invoked, callCount=%d", p2.callCount)
	}
}

func TestFailoverOnProviderError(t *testing.T) {
	p1 := &fakeProvider{name: "p1", healthy: true, err: errors.New("boom")}
	p2 := &fakeProvider{name: "p2", healthy: true, content: "ok"}
	r, _ := newTestRouter(t, baseConfig(), map[string]providers.Provider{"p1": p1, "p2": p2}, map[string]int{"p1": 1, "p2": 2})

	resp := r.Route(context.Background(), "hi", providers.Request{Prompt: "hi", Model: "default"})
	if !resp.IsSuccess || resp.Provider != "p2" {
		t.Fatalf("expected success from p2, got %+v", resp)
	}
}

func TestAllProvidersExhausted(t *testing.T) {
	p1 := &fakeProvider{name: "p1", healthy: false}
	p2 := &fakeProvider{name: "p2", healthy: false}
	r, led := newTestRouter(t, baseConfig(), map[string]providers.Provider{"p1": p1, "p2": p2}, map[string]int{"p1": 1, "p2": 2})

	resp := r.Route(context.Background(), "hi", providers.Request{Prompt: "hi", Model: "default"})
	if resp.IsSuccess {
		t.Fatalf("expected failure, got success: %+v", resp)
	}
	if len(resp.FailedProviders) != 0 {
		t.Errorf("unhealthy providers should not appear in failed-providers (never attempted), got %v", resp.FailedProviders)
	}
	if resp.TotalAttemptedCost != 0 {
		t.Errorf("TotalAttemptedCost = %v, want 0", resp.TotalAttemptedCost)
	}
	if led.TodayUsage("p1").RequestCount != 0 {
		t.Error("no ledger writes expected when no provider is viable")
	}
}

func TestRateLimitTrip(t *testing.T) {
	cfg := baseConfig()
	cfg.ProviderLimits["p1"] = ProviderLimit{RequestLimit: 1, LimitType: LimitDay, CostPerToken: 0.0001, DailyBudgetLimit: 10}
	p1 := &fakeProvider{name: "p1", healthy: true, content: "from-p1"}
	p2 := &fakeProvider{name: "p2", healthy: true, content: "from-p2"}
	r, led := newTestRouter(t, cfg, map[string]providers.Provider{"p1": p1, "p2": p2}, map[string]int{"p1": 1, "p2": 2})

	led.Record("p1", 1, 0.0001) // pre-existing usage trips the limit of 1

	resp := r.Route(context.Background(), "hi", providers.Request{Prompt: "hi", Model: "default"})
	if !resp.IsSuccess || resp.Provider != "p2" {
		t.Fatalf("expected p1 skipped by rate limit and p2 attempted, got %+v", resp)
	}
	if p1.callCount != 0 {
		t.Error("p1 should not have been invoked")
	}
}

func TestRequestLimitZeroNeverSelected(t *testing.T) {
	cfg := baseConfig()
	cfg.ProviderLimits["p1"] = ProviderLimit{RequestLimit: 0, LimitType: LimitDay, CostPerToken: 0.0001, DailyBudgetLimit: 10}
	p1 := &fakeProvider{name: "p1", healthy: true, content: "from-p1"}
	p2 := &fakeProvider{name: "p2", healthy: true, content: "from-p2"}
	r, _ := newTestRouter(t, cfg, map[string]providers.Provider{"p1": p1, "p2": p2}, map[string]int{"p1": 1, "p2": 2})

	resp := r.Route(context.Background(), "hi", providers.Request{Prompt: "hi", Model: "default"})
	if !resp.IsSuccess || resp.Provider != "p2" {
		t.Fatalf("expected p1 never selected, p2 attempted, got %+v", resp)
	}
	if p1.callCount != 0 {
		t.Error("p1 should never be invoked with RequestLimit=0")
	}
}

func TestBudgetRefusal(t *testing.T) {
	cfg := baseConfig()
	cfg.DailyBudget = 0.000001
	cfg.ProviderLimits["p1"] = ProviderLimit{RequestLimit: 100, LimitType: LimitDay, CostPerToken: 1000.0, DailyBudgetLimit: 10}
	cfg.ProviderLimits["p2"] = ProviderLimit{RequestLimit: 100, LimitType: LimitDay, CostPerToken: 0.0, DailyBudgetLimit: 10}
	p1 := &fakeProvider{name: "p1", healthy: true, content: "expensive"}
	p2 := &fakeProvider{name: "p2", healthy: true, content: "cheap"}
	r, _ := newTestRouter(t, cfg, map[string]providers.Provider{"p1": p1, "p2": p2}, map[string]int{"p1": 1, "p2": 2})

	resp := r.Route(context.Background(), "hi", providers.Request{Prompt: "hi", Model: "default"})
	if !resp.IsSuccess || resp.Provider != "p2" {
		t.Fatalf("expected p1 skipped on budget, p2 (free) attempted, got %+v", resp)
	}
	if p1.callCount != 0 {
		t.Error("p1 should not have been invoked")
	}
}

func TestFailoverSucceedsWithReplacedLedger(t *testing.T) {
	p1 := &fakeProvider{name: "p1", healthy: true, err: errors.New("boom")}
	p2 := &fakeProvider{name: "p2", healthy: true, content: "ok"}
	r, _ := newTestRouter(t, baseConfig(), map[string]providers.Provider{"p1": p1, "p2": p2}, map[string]int{"p1": 1, "p2": 2})

	led := ledger.New()
	r.ledger = led
	resp := r.Route(context.Background(), "hi", providers.Request{Prompt: "hi", Model: "default"})
	if !resp.IsSuccess {
		t.Fatalf("expected success, got %+v", resp)
	}
}

func TestMetricsRecordedOnSuccessAndRateLimit(t *testing.T) {
	cfg := baseConfig()
	cfg.ProviderLimits["p1"] = ProviderLimit{RequestLimit: 1, LimitType: LimitDay, CostPerToken: 0.0001, DailyBudgetLimit: 10}
	p1 := &fakeProvider{name: "p1", healthy: true, content: "from-p1"}
	p2 := &fakeProvider{name: "p2", healthy: true, content: "from-p2"}

	led := ledger.New()
	jrn, err := journal.New[journal.Document](journal.Options{Enabled: false})
	if err != nil {
		t.Fatalf("journal.New: %v", err)
	}
	m := metrics.New()
	r := New(cfg, led, jrn, nil, map[string]providers.Provider{"p1": p1, "p2": p2}, map[string]int{"p1": 1, "p2": 2}, m)

	led.Record("p1", 1, 0.0001) // trips p1's RequestLimit of 1, forcing a rate-limited skip

	resp := r.Route(context.Background(), "hi", providers.Request{Prompt: "hi", Model: "default"})
	if !resp.IsSuccess || resp.Provider != "p2" {
		t.Fatalf("expected p2 to succeed after p1 is rate-limited, got %+v", resp)
	}

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("p2", "success")); got != 1 {
		t.Errorf("RequestsTotal{p2,success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RateLimitedTotal); got != 1 {
		t.Errorf("RateLimitedTotal = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CostUSD.WithLabelValues("p2")); got != 0 {
		t.Errorf("CostUSD{p2} = %v, want 0 (p2 is free)", got)
	}
}

func TestEmptyProviderListExhausted(t *testing.T) {
	r, _ := newTestRouter(t, baseConfig(), map[string]providers.Provider{}, map[string]int{})
	resp := r.Route(context.Background(), "hi", providers.Request{Prompt: "hi", Model: "default"})
	if resp.IsSuccess {
		t.Fatal("expected failure with no providers registered")
	}
}
