package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tidemark/tidemark/internal/compliance"
	"github.com/tidemark/tidemark/internal/store"
)

// PortfolioStore is the persistence surface the digest endpoints consume.
// *store.Store satisfies it; tests substitute a fake.
type PortfolioStore interface {
	ListDigests(ctx context.Context, clientID string, limit int32) ([]store.DigestMeta, error)
	LatestBefore(ctx context.Context, clientID string, t time.Time) (*compliance.Digest, error)
	GetDigest(ctx context.Context, clientID string, periodEnd time.Time) (*compliance.Digest, error)
	ListRoutes(ctx context.Context, clientID string) ([]store.TrackedRoute, error)
	AddRoute(ctx context.Context, r store.TrackedRoute) error
	RemoveRoute(ctx context.Context, r store.TrackedRoute) error
}

// digestHandler serves stored digests and the tracked portfolio.
type digestHandler struct {
	store  PortfolioStore
	logger *slog.Logger
}

// list returns digest metadata for a client, most recent first.
// GET /api/v1/clients/{client}/digests?limit=20
func (h *digestHandler) list(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client")

	limit := int64(20)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 || n > 100 {
			writeError(w, http.StatusBadRequest, "bad_request", "limit must be an integer in [1,100]")
			return
		}
		limit = n
	}

	metas, err := h.store.ListDigests(r.Context(), clientID, int32(limit))
	if err != nil {
		h.logger.Error("listing digests", "client_id", clientID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "listing digests failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"digests": metas})
}

// latest returns the most recent digest for a client.
// GET /api/v1/clients/{client}/digests/latest
func (h *digestHandler) latest(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client")

	d, err := h.store.LatestBefore(r.Context(), clientID, time.Now().UTC().Add(time.Second))
	if errors.Is(err, store.ErrDigestNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no digest for client")
		return
	}
	if err != nil {
		h.logger.Error("loading latest digest", "client_id", clientID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "loading digest failed")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// get returns the digest for an exact period end.
// GET /api/v1/clients/{client}/digests/{end} (end is RFC 3339)
func (h *digestHandler) get(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client")

	end, err := time.Parse(time.RFC3339, r.PathValue("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "period end must be RFC 3339")
		return
	}

	d, err := h.store.GetDigest(r.Context(), clientID, end)
	if errors.Is(err, store.ErrDigestNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no digest for period")
		return
	}
	if err != nil {
		h.logger.Error("loading digest", "client_id", clientID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "loading digest failed")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// listRoutes returns a client's tracked (product, route) portfolio.
// GET /api/v1/clients/{client}/routes
func (h *digestHandler) listRoutes(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client")

	routes, err := h.store.ListRoutes(r.Context(), clientID)
	if err != nil {
		h.logger.Error("listing routes", "client_id", clientID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "listing routes failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": routes})
}

type routeRequest struct {
	ProductID string `json:"product_id"`
	RouteID   string `json:"route_id"`
}

// addRoute adds a (product, route) pair to the tracked portfolio.
// POST /api/v1/clients/{client}/routes
func (h *digestHandler) addRoute(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client")

	var req routeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	route := store.TrackedRoute{ClientID: clientID, ProductID: req.ProductID, RouteID: req.RouteID}
	if err := h.store.AddRoute(r.Context(), route); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, route)
}

// removeRoute drops a (product, route) pair from the tracked portfolio.
// DELETE /api/v1/clients/{client}/routes
func (h *digestHandler) removeRoute(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client")

	var req routeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	route := store.TrackedRoute{ClientID: clientID, ProductID: req.ProductID, RouteID: req.RouteID}
	if err := h.store.RemoveRoute(r.Context(), route); err != nil {
		h.logger.Error("removing route", "client_id", clientID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "removing route failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
