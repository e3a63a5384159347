package pulse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tidemark/tidemark/internal/compliance"
	"github.com/tidemark/tidemark/internal/store"
)

// Defaults for the run loop.
const (
	// DefaultSnapshotTimeout bounds one snapshot generation end to end.
	DefaultSnapshotTimeout = 30 * time.Second

	// DefaultWorkers bounds concurrent snapshot generations per run.
	DefaultWorkers = 4
)

// Period is the reporting window of one digest run.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DigestStore is the persistence dependency consumed by the Runner.
// *store.Store satisfies it.
type DigestStore interface {
	SaveDigest(ctx context.Context, d compliance.Digest) error
	LatestBefore(ctx context.Context, clientID string, t time.Time) (*compliance.Digest, error)
	ListRoutes(ctx context.Context, clientID string) ([]store.TrackedRoute, error)
}

// RunnerConfig tunes a Runner. Zero values take defaults.
type RunnerConfig struct {
	Workers         int
	SnapshotTimeout time.Duration
	TopChanges      int
	Policy          compliance.RequirementPolicy // nil = containment default
}

// Runner executes the full pulse pipeline for one client and period:
// snapshot fan-out, baseline load, delta, rank, digest build, persist.
//
// Runner is safe for concurrent use by multiple goroutines.
type Runner struct {
	gen    *Generator
	store  DigestStore
	cfg    RunnerConfig
	logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(gen *Generator, digests DigestStore, cfg RunnerConfig, logger *slog.Logger) (*Runner, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if digests == nil {
		return nil, fmt.Errorf("digest store is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = DefaultSnapshotTimeout
	}
	if cfg.TopChanges <= 0 {
		cfg.TopChanges = compliance.DefaultTopChanges
	}
	if cfg.Policy == nil {
		cfg.Policy = compliance.ContainmentRequirementPolicy
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{gen: gen, store: digests, cfg: cfg, logger: logger}, nil
}

// Run executes one digest cycle. Failures are contained at the smallest
// scope: a tool failure never fails a snapshot, a snapshot failure never
// fails the run. Only a missing client id aborts.
//
// When persistence fails the computed digest is still returned alongside an
// error wrapping compliance.ErrPersistence, so callers can display what was
// computed and retry the save.
func (r *Runner) Run(ctx context.Context, clientID string, period Period) (*compliance.Digest, error) {
	if clientID == "" {
		return nil, fmt.Errorf("%w: client id is required", compliance.ErrValidation)
	}
	start := time.Now()

	routes, err := r.store.ListRoutes(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("loading tracked portfolio: %w", err)
	}

	baseline, err := r.loadBaseline(ctx, clientID, period)
	if err != nil {
		return nil, err
	}

	results := r.generateAll(ctx, clientID, routes)

	changes, baselineMissing := r.computeChanges(baseline, results)
	compliance.RankChanges(changes)

	digest := compliance.BuildDigest(compliance.DigestInput{
		ClientID:        clientID,
		PeriodStart:     period.Start,
		PeriodEnd:       period.End,
		Results:         results,
		Changes:         changes,
		TopN:            r.cfg.TopChanges,
		BaselineMissing: baselineMissing,
	})

	r.logger.Info("pulse run complete",
		"client_id", clientID,
		"period_end", period.End,
		"keys", len(routes),
		"changes", digest.TotalChanges,
		"status", digest.Status,
		"duration", time.Since(start))

	if err := r.store.SaveDigest(ctx, digest); err != nil {
		r.logger.Error("digest persistence failed, returning unsaved digest",
			"client_id", clientID, "period_end", period.End, "error", err)
		return &digest, fmt.Errorf("%w: %v", compliance.ErrPersistence, err)
	}
	return &digest, nil
}

// loadBaseline fetches the previous digest. A missing baseline is a valid
// state (first run for the client) and yields nil.
func (r *Runner) loadBaseline(ctx context.Context, clientID string, period Period) (*compliance.Digest, error) {
	baseline, err := r.store.LatestBefore(ctx, clientID, period.End)
	if errors.Is(err, store.ErrDigestNotFound) {
		r.logger.Info("no baseline digest, first run for client", "client_id", clientID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading baseline digest: %w", err)
	}
	return baseline, nil
}

// generateAll produces snapshots for all tracked keys over a bounded worker
// pool. Each task owns its own result slot; aggregation stays single-threaded
// in the caller.
func (r *Runner) generateAll(ctx context.Context, clientID string, routes []store.TrackedRoute) []compliance.SnapshotResult {
	results := make([]compliance.SnapshotResult, len(routes))

	eg := new(errgroup.Group)
	eg.SetLimit(r.cfg.Workers)
	for i, route := range routes {
		eg.Go(func() error {
			snapCtx, cancel := context.WithTimeout(ctx, r.cfg.SnapshotTimeout)
			defer cancel()

			snap, toolFailures, err := r.gen.Generate(snapCtx, clientID, route.ProductID, route.RouteID)
			if err == nil && snapCtx.Err() != nil {
				// The generator degraded every tool to fallback because
				// the deadline passed; record the key as timed out.
				err = fmt.Errorf("snapshot generation timed out after %s", r.cfg.SnapshotTimeout)
				snap = nil
			}
			results[i] = compliance.SnapshotResult{
				ProductID:    route.ProductID,
				RouteID:      route.RouteID,
				Snapshot:     snap,
				Err:          err,
				ToolFailures: toolFailures,
			}
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

// computeChanges diffs each successful snapshot against its baseline. Keys
// with no prior snapshot are skipped and counted rather than diffed, so a
// first observation never manufactures a risk escalation.
func (r *Runner) computeChanges(baseline *compliance.Digest, results []compliance.SnapshotResult) ([]compliance.Change, int) {
	var changes []compliance.Change
	baselineMissing := 0

	for _, res := range results {
		if res.Err != nil || res.Snapshot == nil {
			continue
		}

		var prev *compliance.Snapshot
		if baseline != nil {
			if prevSnap, ok := baseline.Snapshots[res.Snapshot.Key()]; ok {
				prev = &prevSnap
			}
		}
		if prev == nil {
			baselineMissing++
			continue
		}

		changes = append(changes, compliance.ComputeDelta(prev, *res.Snapshot, r.cfg.Policy)...)
	}
	return changes, baselineMissing
}
