// Package tools provides the domain tool adapters: thin clients over the four
// external government-data APIs (tariff classification, sanctions screening,
// import refusals, customs rulings).
//
// Every adapter shares one skeleton (cache lookup, rate-limited fetch,
// fallback on failure, cache write-through) expressed as a single generic
// Adapter parameterized by a small capability record rather than a type
// hierarchy. Adapters never propagate errors past their boundary: callers
// always receive a structured Result.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Params identifies the subject of a tool call.
type Params struct {
	ProductID string
	RouteID   string
}

// Result is the uniform envelope every adapter returns.
//
// Success with IsFallback=false means live or cached data. Success is false
// only when both the fetch and the cache missed; even then Data holds the
// adapter's deterministic fallback payload so tile construction can proceed.
type Result struct {
	Tool       string         `json:"tool"`
	Success    bool           `json:"success"`
	Data       map[string]any `json:"data,omitempty"`
	Err        string         `json:"error,omitempty"`
	IsFallback bool           `json:"is_fallback"`
	FromCache  bool           `json:"from_cache"`
	FetchedAt  time.Time      `json:"fetched_at"`
}

// Cache is the read/write-through TTL cache consumed by adapters, keyed by
// (source_type, source_id). Implementations must be safe to race: entries are
// TTL-bounded and last-write-wins is acceptable.
type Cache interface {
	Get(ctx context.Context, sourceType, sourceID string) (map[string]any, bool, error)
	Set(ctx context.Context, sourceType, sourceID string, data map[string]any, ttl time.Duration) error
}

// FetchFunc retrieves and normalizes live data for the given params.
type FetchFunc func(ctx context.Context, p Params) (map[string]any, error)

// FallbackFunc produces deterministic substitute data for the same params
// when the live fetch fails. Must not perform I/O.
type FallbackFunc func(p Params) map[string]any

// KeyFunc derives the cache source_id for the given params.
type KeyFunc func(p Params) string

// Config is the capability record that specializes one Adapter.
type Config struct {
	// Name identifies the tool (e.g. "hts", "sanctions").
	Name string

	// Tile is the snapshot tile this tool feeds (e.g. "tariff").
	Tile string

	// TTL bounds cache staleness for this source. Sanctions data is
	// volatile and uses a short TTL; tariff and rulings data is stable
	// and caches for days.
	TTL time.Duration

	// Timeout bounds a single live fetch. Zero means DefaultCallTimeout.
	Timeout time.Duration

	// RateLimit caps live calls per second against the upstream API.
	// Zero disables client-side limiting.
	RateLimit rate.Limit

	Fetch    FetchFunc
	Fallback FallbackFunc
	Key      KeyFunc
}

// DefaultCallTimeout bounds one live tool call.
const DefaultCallTimeout = 10 * time.Second

// Adapter wraps one external data source with the shared
// cache/call/fallback/cache-write contract.
//
// Adapter is safe for concurrent use by multiple goroutines.
type Adapter struct {
	cfg     Config
	cache   Cache
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewAdapter creates an adapter from a capability record.
// cache may be nil (caching disabled); logger nil falls back to the default.
func NewAdapter(cfg Config, cache Cache, logger *slog.Logger) (*Adapter, error) {
	if cfg.Name == "" || cfg.Tile == "" {
		return nil, fmt.Errorf("adapter name and tile are required")
	}
	if cfg.Fetch == nil || cfg.Fallback == nil || cfg.Key == nil {
		return nil, fmt.Errorf("adapter %q: fetch, fallback and key funcs are required", cfg.Name)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(cfg.RateLimit, 1)
	}

	return &Adapter{
		cfg:     cfg,
		cache:   cache,
		limiter: limiter,
		logger:  logger.With("tool", cfg.Name),
	}, nil
}

// Name returns the tool identifier.
func (a *Adapter) Name() string { return a.cfg.Name }

// Tile returns the snapshot tile this tool feeds.
func (a *Adapter) Tile() string { return a.cfg.Tile }

// Run executes the shared contract: cache lookup, rate-limited live fetch,
// write-through on success, deterministic fallback on any failure.
//
// Run never returns an error and never panics past the boundary; every
// failure mode degrades to a Result with IsFallback=true.
func (a *Adapter) Run(ctx context.Context, p Params) Result {
	sourceID := a.cfg.Key(p)

	// Cache read. Errors are logged and treated as a miss; the cache is
	// an optimization, not a dependency.
	if a.cache != nil {
		data, ok, err := a.cache.Get(ctx, a.cfg.Name, sourceID)
		if err != nil {
			a.logger.Warn("cache read failed", "source_id", sourceID, "error", err)
		} else if ok {
			return Result{
				Tool:      a.cfg.Name,
				Success:   true,
				Data:      data,
				FromCache: true,
				FetchedAt: time.Now().UTC(),
			}
		}
	}

	data, err := a.fetchLive(ctx, p)
	if err != nil {
		a.logger.Warn("live fetch failed, serving fallback", "source_id", sourceID, "error", err)
		return Result{
			Tool:       a.cfg.Name,
			Success:    false,
			Data:       a.cfg.Fallback(p),
			Err:        err.Error(),
			IsFallback: true,
			FetchedAt:  time.Now().UTC(),
		}
	}

	// Write-through is best-effort; a cache failure never fails the call.
	if a.cache != nil {
		if err := a.cache.Set(ctx, a.cfg.Name, sourceID, data, a.cfg.TTL); err != nil {
			a.logger.Warn("cache write failed", "source_id", sourceID, "error", err)
		}
	}

	return Result{
		Tool:      a.cfg.Name,
		Success:   true,
		Data:      data,
		FetchedAt: time.Now().UTC(),
	}
}

// fetchLive applies the rate limit and per-call timeout around the fetch func.
func (a *Adapter) fetchLive(ctx context.Context, p Params) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	data, err := a.cfg.Fetch(ctx, p)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("fetch returned no data")
	}
	return data, nil
}
