package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tidemark/tidemark/internal/advisor"
	"github.com/tidemark/tidemark/internal/compliance"
)

// Adviser answers one compliance question. *advisor.Advisor satisfies it;
// tests substitute a stub.
type Adviser interface {
	Advise(ctx context.Context, in advisor.Input) (advisor.Output, error)
}

// adviseHandler fronts the advisory flow.
type adviseHandler struct {
	adviser Adviser
	logger  *slog.Logger
}

// ask answers a compliance question grounded in the knowledge store.
// POST /api/v1/advise
func (h *adviseHandler) ask(w http.ResponseWriter, r *http.Request) {
	var in advisor.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	out, err := h.adviser.Advise(r.Context(), in)
	if errors.Is(err, compliance.ErrValidation) {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("advisory request failed", "client_id", in.ClientID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "advisory request failed")
		return
	}
	writeJSON(w, http.StatusOK, out)
}
