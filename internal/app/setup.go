package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidemark/tidemark/db"
	"github.com/tidemark/tidemark/internal/advisor"
	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/knowledge"
	"github.com/tidemark/tidemark/internal/memoryctx"
	"github.com/tidemark/tidemark/internal/observability"
	"github.com/tidemark/tidemark/internal/pulse"
	"github.com/tidemark/tidemark/internal/store"
	"github.com/tidemark/tidemark/internal/toolcache"
	"github.com/tidemark/tidemark/internal/tools"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	a.Knowledge, err = knowledge.NewStore(pool, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating knowledge store: %w", err)
	}

	a.Digests, err = store.New(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating digest store: %w", err)
	}

	cache, redisClose, err := provideToolCache(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.ToolCache = cache
	a.redisClose = redisClose

	a.Adapters, err = provideAdapters(cfg, cache, logger)
	if err != nil {
		return nil, err
	}

	a.Generator, err = pulse.NewGenerator(a.Adapters, a.Knowledge, logger)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot generator: %w", err)
	}

	a.Runner, err = pulse.NewRunner(a.Generator, a.Digests, pulse.RunnerConfig{
		Workers:         cfg.Pulse.Workers,
		SnapshotTimeout: cfg.Pulse.SnapshotTimeout,
		TopChanges:      cfg.Pulse.TopChanges,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating pulse runner: %w", err)
	}

	a.Scheduler = pulse.NewScheduler(logger)

	a.Advisor, err = provideAdvisor(a, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.AdvisorFlow = a.Advisor.DefineFlow()

	// Set up lifecycle management
	_, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	return a, nil
}

// provideOtelShutdown sets up OTLP tracing before Genkit initialization, so
// the span processor is registered on the shared TracerProvider first.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.Observability.Endpoint,
		Environment: cfg.Observability.Environment,
		ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		logger.Warn("trace export disabled", "error", err)
		return func() {}
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the configured AI provider plugin.
// Supports gemini (default), ollama, and openai providers.
// Call ordering in Setup ensures tracing is set up first.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var g *genkit.Genkit

	switch provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // gemini
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the AI provider plugin.
// Each provider registers embedders differently:
//   - gemini: GoogleAIEmbedder(g, modelName)
//   - ollama: registered in provideGenkit, keyed by server address
//   - openai: auto-registered in Init(), looked up by model name
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default: // gemini
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideDBPool creates a PostgreSQL connection pool and runs migrations.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// provideToolCache connects the Redis-backed tool result cache.
// An empty redis_url disables caching; a connection failure degrades to
// uncached operation rather than failing startup.
func provideToolCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*toolcache.Cache, func() error, error) {
	if cfg.RedisURL == "" {
		logger.Info("tool cache disabled, no redis url configured")
		return nil, nil, nil
	}

	client, err := toolcache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("tool cache unavailable, running uncached", "error", err)
		return nil, nil, nil
	}

	cache, err := toolcache.New(client, logger)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("creating tool cache: %w", err)
	}
	return cache, client.Close, nil
}

// provideAdapters builds the four government data source adapters.
// Order matters only for log readability; the generator fans out regardless.
func provideAdapters(cfg *config.Config, cache *toolcache.Cache, logger *slog.Logger) ([]*tools.Adapter, error) {
	client := &http.Client{Timeout: cfg.Tools.CallTimeout}

	// A nil *toolcache.Cache must become an untyped nil interface, or the
	// adapters would call through a nil pointer.
	var tc tools.Cache
	if cache != nil {
		tc = cache
	}

	hts, err := tools.NewHTS(client, cfg.Tools.HTSBaseURL, tc, logger)
	if err != nil {
		return nil, fmt.Errorf("creating hts adapter: %w", err)
	}
	sanctions, err := tools.NewSanctions(client, cfg.Tools.CSLBaseURL, cfg.Tools.CSLAPIKey, tc, logger)
	if err != nil {
		return nil, fmt.Errorf("creating sanctions adapter: %w", err)
	}
	refusals, err := tools.NewRefusals(client, cfg.Tools.RefusalsBaseURL,
		cfg.Tools.RefusalsAuthUser, cfg.Tools.RefusalsAuthKey, tc, logger)
	if err != nil {
		return nil, fmt.Errorf("creating refusals adapter: %w", err)
	}
	rulings, err := tools.NewRulings(client, cfg.Tools.RulingsBaseURL, tc, logger)
	if err != nil {
		return nil, fmt.Errorf("creating rulings adapter: %w", err)
	}

	return []*tools.Adapter{hts, sanctions, refusals, rulings}, nil
}

// provideAdvisor assembles the advisory flow over the knowledge store, the
// adapters, and the optional memory service.
func provideAdvisor(a *App, cfg *config.Config, logger *slog.Logger) (*advisor.Advisor, error) {
	var memory advisor.MemoryService
	if cfg.Memory.BaseURL != "" {
		mc, err := memoryctx.New(cfg.Memory.BaseURL, cfg.Memory.APIKey, nil, logger)
		if err != nil {
			return nil, fmt.Errorf("creating memory client: %w", err)
		}
		memory = mc
	}

	modelName := providerModelName(cfg)
	adv, err := advisor.New(a.Genkit, modelName, a.Knowledge, a.Adapters, memory, logger)
	if err != nil {
		return nil, fmt.Errorf("creating advisor: %w", err)
	}
	return adv, nil
}

// providerModelName qualifies the configured model with its genkit provider
// namespace.
func providerModelName(cfg *config.Config) string {
	switch cfg.Provider {
	case config.ProviderOllama:
		return "ollama/" + cfg.ModelName
	case config.ProviderOpenAI:
		return "openai/" + cfg.ModelName
	default:
		return "googleai/" + cfg.ModelName
	}
}
