// Package app provides application initialization and dependency injection.
//
// App is the core container wiring configuration, storage, the AI runtime,
// the tool adapters, and the pulse pipeline together. Setup builds it in
// dependency order; Close releases everything in reverse.
package app

import (
	"context"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidemark/tidemark/internal/advisor"
	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/knowledge"
	"github.com/tidemark/tidemark/internal/pulse"
	"github.com/tidemark/tidemark/internal/store"
	"github.com/tidemark/tidemark/internal/toolcache"
	"github.com/tidemark/tidemark/internal/tools"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Core services
	Genkit    *genkit.Genkit
	Embedder  ai.Embedder
	DBPool    *pgxpool.Pool
	Knowledge *knowledge.Store
	Digests   *store.Store
	ToolCache *toolcache.Cache // nil when Redis is disabled
	Adapters  []*tools.Adapter

	// Pulse pipeline
	Generator *pulse.Generator
	Runner    *pulse.Runner
	Scheduler *pulse.Scheduler

	// Advisory surface
	Advisor     *advisor.Advisor
	AdvisorFlow *advisor.Flow

	// Lifecycle management
	cancel      context.CancelFunc
	otelCleanup func()
	dbCleanup   func()
	redisClose  func() error
}

// Close gracefully shuts down all resources. Safe to call on a partially
// initialized App.
func (a *App) Close() error {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("shutting down application")

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.redisClose != nil {
		if err := a.redisClose(); err != nil {
			logger.Warn("closing redis client", "error", err)
		}
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
		logger.Info("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
