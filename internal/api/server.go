// Package api is the JSON HTTP surface: digest runs, stored digests, the
// tracked portfolio, the knowledge corpus, and the advisory flow.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidemark/tidemark/internal/pulse"
	"github.com/tidemark/tidemark/internal/toolcache"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger        *slog.Logger
	Runner        *pulse.Runner    // Required
	Digests       PortfolioStore   // Required
	Knowledge     CorpusStore      // Required
	Adviser       Adviser          // Optional: nil disables /advise
	Pool          *pgxpool.Pool    // Optional: nil disables db check in /ready
	ToolCache     *toolcache.Cache // Optional: nil omits cache from /ready
	PulseInterval time.Duration    // Reporting window length for on-demand runs
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Runner == nil {
		return nil, errors.New("pulse runner is required")
	}
	if cfg.Digests == nil {
		return nil, errors.New("digest store is required")
	}
	if cfg.Knowledge == nil {
		return nil, errors.New("knowledge store is required")
	}
	if cfg.PulseInterval <= 0 {
		cfg.PulseInterval = 7 * 24 * time.Hour
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ph := &pulseHandler{runner: cfg.Runner, interval: cfg.PulseInterval, logger: logger}
	dh := &digestHandler{store: cfg.Digests, logger: logger}
	kh := &documentHandler{store: cfg.Knowledge, logger: logger}

	mux := http.NewServeMux()

	// Digest pipeline
	mux.HandleFunc("POST /api/v1/pulse/run", ph.run)
	mux.HandleFunc("GET /api/v1/clients/{client}/digests", dh.list)
	mux.HandleFunc("GET /api/v1/clients/{client}/digests/latest", dh.latest)
	mux.HandleFunc("GET /api/v1/clients/{client}/digests/{end}", dh.get)

	// Tracked portfolio
	mux.HandleFunc("GET /api/v1/clients/{client}/routes", dh.listRoutes)
	mux.HandleFunc("POST /api/v1/clients/{client}/routes", dh.addRoute)
	mux.HandleFunc("DELETE /api/v1/clients/{client}/routes", dh.removeRoute)

	// Knowledge corpus
	mux.HandleFunc("POST /api/v1/documents", kh.add)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", kh.remove)
	mux.HandleFunc("GET /api/v1/documents/stats", kh.stats)
	mux.HandleFunc("GET /api/v1/documents/search", kh.search)

	// Advisory (only registered when an adviser is provided)
	if cfg.Adviser != nil {
		ah := &adviseHandler{adviser: cfg.Adviser, logger: logger}
		mux.HandleFunc("POST /api/v1/advise", ah.ask)
	}

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → Routes
	// RequestID must be before Logging so request_id is available in logs.
	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Use a top-level mux to keep health probes out of the middleware stack
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool, cfg.ToolCache))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
