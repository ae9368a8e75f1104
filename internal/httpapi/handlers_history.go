package httpapi

import (
	"log/slog"
	"net/http"
)

// HistoryHandler implements GET /api/ai/history: the façade's external
// response history, distinct from the router's internal journal (§9).
func HistoryHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, _, err := d.History.Load()
		if err != nil {
			d.Logger.Error("history load failed", slog.String("error", err.Error()))
			http.Error(w, "failed to load history", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

type rolloverResponse struct {
	Message string `json:"message"`
}

// RolloverHandler implements POST /api/ai/rollover: forces an unconditional
// rollover of both the façade's external history and the router's internal
// journal, since an operator invoking this endpoint expects the whole
// system's on-disk state rotated, not just the half this handler's file
// happens to own.
func RolloverHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.History.ForceRollover(); err != nil {
			d.Logger.Error("history rollover failed", slog.String("error", err.Error()))
			http.Error(w, "rollover failed", http.StatusInternalServerError)
			return
		}
		if err := d.Router.ForceRollover(); err != nil {
			d.Logger.Error("journal rollover failed", slog.String("error", err.Error()))
			http.Error(w, "rollover failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, rolloverResponse{Message: "rollover complete"})
	}
}
