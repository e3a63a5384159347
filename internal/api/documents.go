package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tidemark/tidemark/internal/knowledge"
)

// CorpusStore is the knowledge surface the document endpoints consume.
// *knowledge.Store satisfies it; tests substitute a fake.
type CorpusStore interface {
	Add(ctx context.Context, doc knowledge.Document) (string, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context, sourceType string) (int64, error)
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.SearchResult, error)
}

// documentHandler manages the reference knowledge corpus.
type documentHandler struct {
	store  CorpusStore
	logger *slog.Logger
}

type addDocumentRequest struct {
	Content    string         `json:"content"`
	SourceType string         `json:"source_type"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// add indexes a reference document.
// POST /api/v1/documents
func (h *documentHandler) add(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	id, err := h.store.Add(r.Context(), knowledge.Document{
		Content:    req.Content,
		SourceType: req.SourceType,
		Metadata:   req.Metadata,
	})
	if err != nil {
		// Distinguishing embed failures from validation here is not worth
		// it; the message says which.
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// remove deletes a reference document by id.
// DELETE /api/v1/documents/{id}
func (h *documentHandler) remove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.logger.Error("deleting document", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "deleting document failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stats reports corpus size, optionally per source type.
// GET /api/v1/documents/stats?source_type=regulation
func (h *documentHandler) stats(w http.ResponseWriter, r *http.Request) {
	sourceType := r.URL.Query().Get("source_type")
	n, err := h.store.Count(r.Context(), sourceType)
	if err != nil {
		h.logger.Error("counting documents", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "counting documents failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": n, "source_type": sourceType})
}

// search runs a similarity query against the corpus.
// GET /api/v1/documents/search?q=...&top_k=5
func (h *documentHandler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "q is required")
		return
	}

	opts := []knowledge.SearchOption{}
	if v := r.URL.Query().Get("top_k"); v != "" {
		k, err := atoiInRange(v, 1, 50)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "top_k must be an integer in [1,50]")
			return
		}
		opts = append(opts, knowledge.WithTopK(int32(k)))
	}
	if st := r.URL.Query().Get("source_type"); st != "" {
		opts = append(opts, knowledge.WithSourceType(st))
	}

	results, err := h.store.Search(r.Context(), q, opts...)
	if err != nil {
		h.logger.Error("searching documents", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
