package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidemark/tidemark/internal/toolcache"
)

// health is a simple liveness endpoint for container probes.
func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readiness reports dependency health: database reachability is required;
// the tool cache is reported but a degraded cache never fails readiness.
func readiness(pool *pgxpool.Pool, cache *toolcache.Cache) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := map[string]any{"status": "ok"}

		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				resp["status"] = "degraded"
				resp["database"] = "unreachable"
				writeJSON(w, http.StatusServiceUnavailable, resp)
				return
			}
			resp["database"] = "ok"
		}

		if cache != nil {
			if err := cache.Health(ctx); err != nil {
				resp["cache"] = "unreachable"
			} else {
				resp["cache"] = "ok"
			}
		}

		writeJSON(w, http.StatusOK, resp)
	})
}
