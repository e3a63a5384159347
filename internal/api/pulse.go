package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidemark/tidemark/internal/compliance"
	"github.com/tidemark/tidemark/internal/pulse"
)

// pulseHandler triggers on-demand digest runs.
type pulseHandler struct {
	runner   *pulse.Runner
	interval time.Duration
	logger   *slog.Logger
}

type pulseRunRequest struct {
	ClientID  string     `json:"client_id"`
	PeriodEnd *time.Time `json:"period_end,omitempty"`
}

// run executes one digest cycle for a client.
// POST /api/v1/pulse/run
func (h *pulseHandler) run(w http.ResponseWriter, r *http.Request) {
	var req pulseRunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "client_id is required")
		return
	}

	end := time.Now().UTC()
	if req.PeriodEnd != nil {
		end = req.PeriodEnd.UTC()
	}
	period := pulse.Period{Start: end.Add(-h.interval), End: end}

	digest, err := h.runner.Run(r.Context(), req.ClientID, period)
	switch {
	case errors.Is(err, compliance.ErrValidation):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	case errors.Is(err, compliance.ErrPersistence):
		// The digest was computed but could not be saved; return it so the
		// caller can display the result and retry the save.
		h.logger.Error("digest persistence failed", "client_id", req.ClientID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"digest": digest,
			"error":  errorBody{Code: "persistence_failed", Message: "digest computed but not saved"},
		})
		return
	case err != nil:
		h.logger.Error("pulse run failed", "client_id", req.ClientID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "pulse run failed")
		return
	}

	writeJSON(w, http.StatusOK, digest)
}
