package httpapi

import (
	"log/slog"
	"net/http"
	"time"
)

type providerStatusResponse struct {
	Name              string  `json:"name"`
	IsHealthy         bool    `json:"isHealthy"`
	RequestsToday     int     `json:"requestsToday"`
	CostToday         float64 `json:"costToday"`
	RemainingRequests int     `json:"remainingRequests"`
}

// StatusHandler implements GET /api/ai/status: provider status, one entry
// per registered provider, in priority order.
func StatusHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := requestContext(r)
		defer cancel()

		statuses := d.Router.ProviderStatus(ctx)
		out := make([]providerStatusResponse, 0, len(statuses))
		for _, s := range statuses {
			out = append(out, providerStatusResponse{
				Name:              s.Name,
				IsHealthy:         s.IsHealthy,
				RequestsToday:     s.RequestsToday,
				CostToday:         s.CostToday,
				RemainingRequests: s.RemainingRequests,
			})
			if d.Metrics != nil {
				v := 0.0
				if s.IsHealthy {
					v = 1.0
				}
				d.Metrics.ProviderHealth.WithLabelValues(s.Name).Set(v)
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// SpendHandler implements GET /api/ai/spend: today's aggregate cost across
// every registered provider. TodaySpend cannot fail, so this endpoint's
// documented 500-on-error path is unreachable in practice; it is kept in
// the response contract for forward compatibility with a ledger backed by
// fallible storage.
func SpendHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Router.TodaySpend())
	}
}

type providerHealthResponse struct {
	Status           string    `json:"status"`
	HealthyProviders int       `json:"healthyProviders"`
	TotalProviders   int       `json:"totalProviders"`
	Timestamp        time.Time `json:"timestamp"`
}

// ProviderHealthHandler implements POST /api/ai/health: an aggregate
// healthy/unhealthy verdict over every registered provider, distinct from
// GET /health (process liveness).
func ProviderHealthHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := requestContext(r)
		defer cancel()

		statuses := d.Router.ProviderStatus(ctx)
		healthy := 0
		for _, s := range statuses {
			if s.IsHealthy {
				healthy++
			}
		}

		status := "Healthy"
		if healthy == 0 {
			status = "Unhealthy"
			d.Logger.Error("no healthy providers", slog.Int("total", len(statuses)))
		}

		writeJSON(w, http.StatusOK, providerHealthResponse{
			Status:           status,
			HealthyProviders: healthy,
			TotalProviders:   len(statuses),
			Timestamp:        time.Now().UTC(),
		})
	}
}
