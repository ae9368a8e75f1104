// Package metrics exposes the façade's Prometheus registry: request counts
// and latency by provider, cumulative cost, and live provider health.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the façade emits, backed by its own
// prometheus.Registry so multiple instances never collide in tests.
type Registry struct {
	reg *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestLatency   *prometheus.HistogramVec
	CostUSD          *prometheus.CounterVec
	RateLimitedTotal prometheus.Counter
	ProviderHealth   *prometheus.GaugeVec
	JournalRollovers *prometheus.CounterVec
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aifacade_requests_total",
			Help: "Total generate requests routed through the façade",
		}, []string{"provider", "status"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aifacade_request_latency_ms",
			Help:    "Request latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		}, []string{"provider"}),
		CostUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aifacade_cost_usd_total",
			Help: "Estimated USD cost billed to each provider",
		}, []string{"provider"}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aifacade_rate_limited_total",
			Help: "Total provider attempts skipped for failing the rate or budget gate",
		}),
		ProviderHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aifacade_provider_healthy",
			Help: "Last observed provider health (1=healthy, 0=unhealthy)",
		}, []string{"provider"}),
		JournalRollovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aifacade_journal_rollovers_total",
			Help: "Total journal rollovers performed, by document",
		}, []string{"document"}),
	}
	reg.MustRegister(m.RequestsTotal, m.RequestLatency, m.CostUSD, m.RateLimitedTotal, m.ProviderHealth, m.JournalRollovers)
	return m
}

func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
