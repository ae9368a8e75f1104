// Package router implements the routing and accounting kernel: a
// priority-ordered pool of providers, per-provider viability gating, and
// sequential fail-over with partial-failure accounting.
package router

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/relaydeck/aifacade/internal/journal"
	"github.com/relaydeck/aifacade/internal/ledger"
	"github.com/relaydeck/aifacade/internal/metrics"
	"github.com/relaydeck/aifacade/internal/providers"
)

// LimitType controls how a provider's request limit is evaluated.
type LimitType int

const (
	LimitDay LimitType = iota
	LimitHour
	LimitMonth
	LimitUnlimited
)

// ProviderLimit is the per-provider rate/cost ceiling, keyed by lowercased
// provider name in Config.ProviderLimits.
type ProviderLimit struct {
	RequestLimit     int
	LimitType        LimitType
	CostPerToken     float64
	DailyBudgetLimit float64
}

// Config is the Router Configuration: the tunables that govern viability
// and fail-over behavior.
type Config struct {
	DailyBudget float64
	// MaxRetries is parsed and validated but not consulted by Route: each
	// provider is attempted exactly once per call (resolved open question,
	// see design notes — dropping it keeps the fail-over algorithm a
	// simple single pass over the priority order).
	MaxRetries           int
	HealthCheckInterval  time.Duration
	EnableCostTracking   bool
	EnableRateLimiting   bool
	ProviderLimits       map[string]ProviderLimit
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		DailyBudget:         10.0,
		MaxRetries:          3,
		HealthCheckInterval: 5 * time.Minute,
		EnableCostTracking:  true,
		EnableRateLimiting:  true,
		ProviderLimits:      make(map[string]ProviderLimit),
	}
}

func (c Config) limitFor(name string) (ProviderLimit, bool) {
	lim, ok := c.ProviderLimits[strings.ToLower(name)]
	return lim, ok
}

// registeredProvider pairs a Provider adapter with its priority, sorted
// ascending (lower priority value = earlier) at construction time. The
// relative order of providers with equal priority is not defined.
type registeredProvider struct {
	provider providers.Provider
	priority int
}

// Attempt is the per-provider outcome of one routing attempt.
type Attempt struct {
	Success  bool
	Provider string
	Content  string
	Error    string
	Cost     float64
	Entry    journal.Entry
}

// Result accumulates every attempt made during one Route call.
type Result struct {
	Attempts []Attempt
}

// TotalCost sums Attempt.Cost across every attempt.
func (r Result) TotalCost() float64 {
	var total float64
	for _, a := range r.Attempts {
		total += a.Cost
	}
	return total
}

// FailedProviders lists, in attempt order, every provider whose attempt
// did not succeed.
func (r Result) FailedProviders() []string {
	var failed []string
	for _, a := range r.Attempts {
		if !a.Success {
			failed = append(failed, a.Provider)
		}
	}
	return failed
}

// Response is the tagged-union Terminal Response: exactly one of Success
// or Failure is meaningful, discriminated by IsSuccess.
type Response struct {
	IsSuccess bool

	// Success fields.
	Content  string
	Provider string
	Cost     float64

	// Failure fields.
	Error               string
	FailedProviders     []string
	TotalAttemptedCost  float64

	Duration time.Duration
}

// ProviderStatus is one entry of the ProviderStatus operation's result.
type ProviderStatus struct {
	Name               string
	IsHealthy          bool
	RequestsToday      int
	CostToday          float64
	RemainingRequests  int
}

// Router is the routing and accounting kernel. Its provider list and
// configuration are immutable after construction; the ledger and journal
// it references are the only mutable state it touches.
type Router struct {
	providers []registeredProvider
	ledger    *ledger.Ledger
	journal   *journal.Store[journal.Document]
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Registry
}

// New constructs a Router. providers are sorted ascending by priority;
// provs is a map, so providers with equal priority end up in map iteration
// order, which varies from run to run. metrics may be nil, in which
// case the router records nothing (tests commonly pass nil).
func New(cfg Config, led *ledger.Ledger, jrn *journal.Store[journal.Document], logger *slog.Logger, provs map[string]providers.Provider, priorities map[string]int, m *metrics.Registry) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	reg := make([]registeredProvider, 0, len(provs))
	for name, p := range provs {
		reg = append(reg, registeredProvider{provider: p, priority: priorities[name]})
	}
	sort.SliceStable(reg, func(i, j int) bool {
		return reg[i].priority < reg[j].priority
	})
	return &Router{providers: reg, ledger: led, journal: jrn, cfg: cfg, logger: logger, metrics: m}
}

// Route is the kernel's single public entry point: it tries every provider
// in priority order, stopping at the first success, and always returns a
// Terminal Response — it never propagates an error to the caller.
func (r *Router) Route(ctx context.Context, prompt string, opts providers.Request) Response {
	start := time.Now()
	var result Result

	for _, rp := range r.providers {
		name := rp.provider.Name()

		if !r.viable(ctx, rp, prompt) {
			r.logger.Debug("provider not viable, skipping", slog.String("provider", name))
			continue
		}

		attempt := r.attempt(ctx, rp.provider, prompt, opts)
		result.Attempts = append(result.Attempts, attempt)

		if attempt.Success {
			r.persist(result)
			return Response{
				IsSuccess: true,
				Content:   attempt.Content,
				Provider:  attempt.Provider,
				Cost:      attempt.Cost,
				Duration:  time.Since(start),
			}
		}
	}

	r.persist(result)
	return Response{
		IsSuccess:          false,
		Error:              "All AI providers exhausted or unavailable",
		FailedProviders:    result.FailedProviders(),
		TotalAttemptedCost: result.TotalCost(),
		Duration:           time.Since(start),
	}
}

// viable implements the health+rate+cost gate. Any failure (health probe
// panicking aside — Go adapters return bool, not throw — or an unexpected
// ledger error) makes the provider non-viable; the provider is never
// recorded as a failed attempt in this case, since no request was
// dispatched.
func (r *Router) viable(ctx context.Context, rp registeredProvider, prompt string) bool {
	name := rp.provider.Name()

	if !rp.provider.CheckHealth(ctx) {
		return false
	}

	lim, hasLimit := r.cfg.limitFor(name)
	if r.cfg.EnableRateLimiting {
		switch {
		case hasLimit && lim.LimitType == LimitUnlimited:
			// Synthetic zero-count view: always below limit.
		case !hasLimit:
			// RequestLimit defaults to 0: deny all by rate.
			r.recordRateLimited()
			return false
		default:
			usage := r.ledger.TodayUsage(name)
			if usage.RequestCount >= lim.RequestLimit {
				r.recordRateLimited()
				return false
			}
		}
	}

	if r.cfg.EnableCostTracking {
		costPerToken := lim.CostPerToken
		estimate := ledger.EstimateCost(prompt, costPerToken)
		today := r.ledger.TodayUsage(name)
		if today.TotalCost+estimate > r.cfg.DailyBudget {
			r.recordRateLimited()
			return false
		}
	}

	return true
}

// recordRateLimited bumps the rate/budget refusal counter. Health-check
// failures are not counted here: the metric tracks the rate-or-budget gate
// specifically, per its Help text.
func (r *Router) recordRateLimited() {
	if r.metrics != nil {
		r.metrics.RateLimitedTotal.Inc()
	}
}

// attempt invokes the provider and always returns a recorded Attempt,
// whether the call succeeded or failed.
func (r *Router) attempt(ctx context.Context, p providers.Provider, prompt string, opts providers.Request) Attempt {
	name := p.Name()
	r.logger.Info("routing request to provider", slog.String("provider", name))

	lim, _ := r.cfg.limitFor(name)
	started := time.Now()

	content, err := p.Generate(ctx, opts)
	durationMs := time.Since(started).Milliseconds()

	if err != nil {
		r.logger.Error("provider failed", slog.String("provider", name), slog.String("error", err.Error()))
		r.recordAttemptMetrics(name, "failure", durationMs, 0)
		entry := journal.Entry{
			ID:          journal.NewEntryID(),
			Timestamp:   time.Now().UTC(),
			Prompt:      prompt,
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
			Model:       opts.Model,
			Success:     false,
			Provider:    name,
			Error:       err.Error(),
			DurationMs:  durationMs,
		}
		return Attempt{Success: false, Provider: name, Error: err.Error(), Entry: entry}
	}

	tokens := ledger.EstimateTokens(prompt + content)
	cost := float64(tokens) * lim.CostPerToken / 1000.0
	r.ledger.Record(name, tokens, cost)
	r.recordAttemptMetrics(name, "success", durationMs, cost)

	entry := journal.Entry{
		ID:          journal.NewEntryID(),
		Timestamp:   time.Now().UTC(),
		Prompt:      prompt,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Model:       opts.Model,
		Success:     true,
		Provider:    name,
		Content:     content,
		Cost:        cost,
		DurationMs:  durationMs,
	}
	return Attempt{Success: true, Provider: name, Content: content, Cost: cost, Entry: entry}
}

// recordAttemptMetrics reports one dispatched attempt — successful or
// not — to the request-count, latency, and cost metrics.
func (r *Router) recordAttemptMetrics(provider, status string, durationMs int64, cost float64) {
	if r.metrics == nil {
		return
	}
	r.metrics.RequestsTotal.WithLabelValues(provider, status).Inc()
	r.metrics.RequestLatency.WithLabelValues(provider).Observe(float64(durationMs))
	r.metrics.CostUSD.WithLabelValues(provider).Add(cost)
}

// persist appends every attempt in result to the router's internal journal
// document, best-effort: a journal write failure is logged and otherwise
// ignored (JournalError is non-fatal per the error taxonomy).
func (r *Router) persist(result Result) {
	if r.journal == nil {
		return
	}
	doc, _, err := r.journal.Load()
	if err != nil {
		r.logger.Warn("journal load failed before persist", slog.String("error", err.Error()))
	}
	for _, a := range result.Attempts {
		doc = doc.Append(a.Entry)
	}
	if err := r.journal.Write(doc); err != nil {
		r.logger.Warn("journal write failed, continuing", slog.String("error", err.Error()))
	}
}

// ProviderStatus reports health, today's usage, and remaining request
// budget for every provider in priority order. It never aborts: a failure
// evaluating one provider yields an unhealthy zero-valued status for it
// and continues with the next.
func (r *Router) ProviderStatus(ctx context.Context) []ProviderStatus {
	statuses := make([]ProviderStatus, 0, len(r.providers))
	for _, rp := range r.providers {
		name := rp.provider.Name()
		status := r.statusFor(ctx, rp, name)
		statuses = append(statuses, status)
	}
	return statuses
}

func (r *Router) statusFor(ctx context.Context, rp registeredProvider, name string) (status ProviderStatus) {
	defer func() {
		if rec := recover(); rec != nil {
			status = ProviderStatus{Name: name}
		}
	}()

	healthy := rp.provider.CheckHealth(ctx)
	usage := r.ledger.TodayUsage(name)
	lim, _ := r.cfg.limitFor(name)

	remaining := lim.RequestLimit - usage.RequestCount
	if remaining < 0 {
		remaining = 0
	}

	return ProviderStatus{
		Name:              name,
		IsHealthy:         healthy,
		RequestsToday:     usage.RequestCount,
		CostToday:         usage.TotalCost,
		RemainingRequests: remaining,
	}
}

// TodaySpend sums today's usage across every registered provider,
// swallowing per-provider issues by construction (TodayUsage cannot fail).
func (r *Router) TodaySpend() float64 {
	var total float64
	for _, rp := range r.providers {
		total += r.ledger.TodayUsage(rp.provider.Name()).TotalCost
	}
	return total
}

// History returns the router's internal journal document.
func (r *Router) History() (journal.Document, error) {
	if r.journal == nil {
		return journal.Document{}, nil
	}
	doc, _, err := r.journal.Load()
	return doc, err
}

// ForceRollover forces an unconditional rollover of the router's internal
// journal document.
func (r *Router) ForceRollover() error {
	if r.journal == nil {
		return nil
	}
	return r.journal.ForceRollover()
}

// ProviderCount reports how many providers are registered, for startup
// diagnostics.
func (r *Router) ProviderCount() int { return len(r.providers) }
