package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/relaydeck/aifacade/internal/journal"
	"github.com/relaydeck/aifacade/internal/providers"
)

// generateRequest is the wire shape of POST /api/ai/generate.
type generateRequest struct {
	Prompt        string   `json:"prompt"`
	MaxTokens     int      `json:"maxTokens"`
	Temperature   float64  `json:"temperature"`
	Model         string   `json:"model"`
	StopSequences []string `json:"stopSequences"`
}

// Generation Request defaults (§3): a caller may omit any of these and
// still get a well-formed request.
const (
	defaultMaxTokens   = 1000
	defaultTemperature = 0.7
	defaultModel       = "default"
)

// applyDefaults substitutes the documented Generation Request defaults for
// zero-valued fields, so the router and every downstream adapter, journal
// entry, and history entry see a fully-populated request rather than zero
// values the caller never intended.
func applyDefaults(req generateRequest) generateRequest {
	if req.MaxTokens <= 0 {
		req.MaxTokens = defaultMaxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = defaultTemperature
	}
	if req.Model == "" {
		req.Model = defaultModel
	}
	return req
}

type generateSuccessResponse struct {
	Success  bool    `json:"success"`
	Content  string  `json:"content"`
	Provider string  `json:"provider"`
	Cost     float64 `json:"cost"`
	Duration int64   `json:"duration"`
}

type generateFailureResponse struct {
	Success            bool     `json:"success"`
	Error              string   `json:"error"`
	FailedProviders    []string `json:"failedProviders"`
	TotalAttemptedCost float64  `json:"totalAttemptedCost"`
	Duration           int64    `json:"duration"`
}

// GenerateHandler implements POST /api/ai/generate: validates the prompt,
// routes the request, records the outcome in the façade's external history
// document, and maps the router's Terminal Response onto the HTTP contract.
func GenerateHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		if req.Prompt == "" {
			http.Error(w, "prompt must not be empty", http.StatusBadRequest)
			return
		}
		req = applyDefaults(req)

		ctx, cancel := requestContext(r)
		defer cancel()

		opts := providers.Request{
			Prompt:        req.Prompt,
			MaxTokens:     req.MaxTokens,
			Temperature:   req.Temperature,
			Model:         req.Model,
			StopSequences: req.StopSequences,
		}

		resp := d.Router.Route(ctx, req.Prompt, opts)
		if resp.IsSuccess {
			recordHistoryOutcome(d, req, true, resp.Content, resp.Provider, "", resp.Cost, resp.Duration.Milliseconds())
		} else {
			recordHistoryOutcome(d, req, false, "", "", resp.Error, resp.TotalAttemptedCost, resp.Duration.Milliseconds())
		}

		if resp.IsSuccess {
			d.Logger.Info("generate succeeded", slog.String("provider", resp.Provider), slog.Float64("cost", resp.Cost))
			writeJSON(w, http.StatusOK, generateSuccessResponse{
				Success:  true,
				Content:  resp.Content,
				Provider: resp.Provider,
				Cost:     resp.Cost,
				Duration: resp.Duration.Milliseconds(),
			})
			return
		}

		d.Logger.Warn("generate failed", slog.Any("failedProviders", resp.FailedProviders))
		writeJSON(w, http.StatusServiceUnavailable, generateFailureResponse{
			Success:            false,
			Error:              resp.Error,
			FailedProviders:    resp.FailedProviders,
			TotalAttemptedCost: resp.TotalAttemptedCost,
			Duration:           resp.Duration.Milliseconds(),
		})
	}
}

// recordHistoryOutcome appends the outcome to the façade's external history
// document, best-effort: a failure here is logged and never surfaced to the
// caller (JournalError is non-fatal per the error taxonomy).
func recordHistoryOutcome(d Dependencies, req generateRequest, success bool, content, provider, errMsg string, cost float64, durationMs int64) {
	if d.History == nil {
		return
	}
	doc, _, err := d.History.Load()
	if err != nil {
		d.Logger.Warn("history load failed before persist", slog.String("error", err.Error()))
	}
	doc = doc.Append(journal.Entry{
		ID:          journal.NewEntryID(),
		Timestamp:   time.Now().UTC(),
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Model:       req.Model,
		Success:     success,
		Provider:    provider,
		Content:     content,
		Error:       errMsg,
		Cost:        cost,
		DurationMs:  durationMs,
	})
	if err := d.History.Write(doc); err != nil {
		d.Logger.Warn("history write failed, continuing", slog.String("error", err.Error()))
	}
}
