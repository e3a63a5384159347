// Package pulse orchestrates the periodic compliance pipeline: snapshot
// generation across a client's tracked portfolio, delta computation against
// the previous digest's baseline, impact ranking, digest assembly, and
// persistence, plus the recurring-task scheduler that drives it.
package pulse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tidemark/tidemark/internal/compliance"
	"github.com/tidemark/tidemark/internal/knowledge"
	"github.com/tidemark/tidemark/internal/tools"
)

// DefaultToolConcurrency bounds concurrent tool calls within one snapshot.
const DefaultToolConcurrency = 4

// riskWeights combines per-tile risk into the snapshot risk score. Sanctions
// exposure dominates, consistent with the ranker's tile priority.
var riskWeights = map[string]float64{
	compliance.TileSanctions: 0.4,
	compliance.TileRefusals:  0.3,
	compliance.TileTariff:    0.2,
	compliance.TileRulings:   0.1,
}

// ReferenceSearcher is the similarity-search dependency consumed by the
// generator. *knowledge.Store satisfies it.
type ReferenceSearcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.SearchResult, error)
}

// Generator produces compliance snapshots for (product, route) pairs by
// fanning out the domain tool adapters and folding their results, plus
// retrieved reference context, into tiles.
//
// Generator is safe for concurrent use by multiple goroutines.
type Generator struct {
	adapters    []*tools.Adapter
	search      ReferenceSearcher // nil disables supplementary retrieval
	logger      *slog.Logger
	concurrency int
}

// NewGenerator creates a Generator. search may be nil; snapshot generation
// then proceeds without supplementary reference context.
func NewGenerator(adapters []*tools.Adapter, search ReferenceSearcher, logger *slog.Logger) (*Generator, error) {
	if len(adapters) == 0 {
		return nil, fmt.Errorf("at least one tool adapter is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		adapters:    adapters,
		search:      search,
		logger:      logger,
		concurrency: DefaultToolConcurrency,
	}, nil
}

// Generate produces one snapshot. Tool adapters run concurrently, fail-soft:
// a failed adapter yields a tile with status=error carrying its fallback risk
// level, and is counted in the returned per-tool failure map. A retrieval
// failure degrades to empty supplementary context.
//
// Only identifier validation returns an error.
func (g *Generator) Generate(ctx context.Context, clientID, productID, routeID string) (*compliance.Snapshot, map[string]int, error) {
	if err := validateIdentifiers(clientID, productID, routeID); err != nil {
		return nil, nil, err
	}

	params := tools.Params{ProductID: productID, RouteID: routeID}

	// Fan out the adapters. Each goroutine writes only its own slot; Run
	// never returns an error, so the group only reports ctx cancellation.
	results := make([]tools.Result, len(g.adapters))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i, adapter := range g.adapters {
		eg.Go(func() error {
			results[i] = adapter.Run(egCtx, params)
			return nil
		})
	}
	_ = eg.Wait()

	references := g.retrieveReferences(ctx, productID, routeID)

	snap := &compliance.Snapshot{
		ProductID:   productID,
		RouteID:     routeID,
		Tiles:       make(map[string]compliance.Tile, len(results)),
		GeneratedAt: time.Now().UTC(),
	}

	toolFailures := make(map[string]int)
	for i, res := range results {
		tile := buildTile(res, references)
		snap.Tiles[g.adapters[i].Tile()] = tile
		if res.IsFallback {
			toolFailures[res.Tool]++
		}
	}

	snap.OverallRisk, snap.RiskScore = aggregateRisk(snap.Tiles)

	g.logger.Debug("snapshot generated",
		"client_id", clientID, "product_id", productID, "route_id", routeID,
		"overall_risk", snap.OverallRisk, "tool_failures", len(toolFailures))
	return snap, toolFailures, nil
}

// validateIdentifiers rejects missing or blank identifiers before any
// external call is made.
func validateIdentifiers(clientID, productID, routeID string) error {
	if strings.TrimSpace(clientID) == "" {
		return fmt.Errorf("%w: client id is required", compliance.ErrValidation)
	}
	if strings.TrimSpace(productID) == "" {
		return fmt.Errorf("%w: product id is required", compliance.ErrValidation)
	}
	if strings.TrimSpace(routeID) == "" {
		return fmt.Errorf("%w: route id is required", compliance.ErrValidation)
	}
	return nil
}

// retrieveReferences runs the supplementary similarity search. Failures are
// absorbed: the snapshot proceeds with no reference context.
func (g *Generator) retrieveReferences(ctx context.Context, productID, routeID string) []string {
	if g.search == nil {
		return nil
	}

	query := fmt.Sprintf("%s %s import compliance requirements", productID, routeID)
	results, err := g.search.Search(ctx, query, knowledge.WithTopK(3))
	if err != nil {
		g.logger.Warn("reference retrieval failed, continuing without context",
			"product_id", productID, "route_id", routeID,
			"error", fmt.Errorf("%w: %v", compliance.ErrRetrieval, err))
		return nil
	}

	refs := make([]string, 0, len(results))
	for _, r := range results {
		refs = append(refs, snippet(r.Document.Content, 240))
	}
	return refs
}

// buildTile folds one tool result into a tile. A fallback result forces
// status=error while keeping the fallback's risk level, so a tool outage is
// visible without fabricating risk movement.
func buildTile(res tools.Result, references []string) compliance.Tile {
	tile := compliance.Tile{
		Status:      compliance.TileStatus(stringField(res.Data, "status")),
		RiskLevel:   compliance.RiskLevel(stringField(res.Data, "risk_level")),
		Headline:    stringField(res.Data, "headline"),
		Details:     res.Data,
		LastUpdated: res.FetchedAt,
	}
	if res.IsFallback {
		tile.Status = compliance.StatusError
	}
	if tile.RiskLevel.Severity() == 0 {
		tile.RiskLevel = compliance.RiskLow
	}
	if len(references) > 0 {
		// Shared supplementary context; stored per tile so a persisted
		// snapshot is self-contained.
		details := make(map[string]any, len(res.Data)+1)
		for k, v := range res.Data {
			details[k] = v
		}
		details["references"] = references
		tile.Details = details
	}
	return tile
}

// aggregateRisk computes the snapshot's overall risk level and weighted score.
// Any tile demanding action forces high overall risk regardless of the
// numeric maximum.
func aggregateRisk(tiles map[string]compliance.Tile) (compliance.RiskLevel, float64) {
	overall := compliance.RiskLow
	actionSeen := false
	score := 0.0

	for name, tile := range tiles {
		overall = compliance.MaxRisk(overall, tile.RiskLevel)
		if tile.Status == compliance.StatusAction {
			actionSeen = true
		}
		weight, ok := riskWeights[name]
		if !ok {
			continue
		}
		score += weight * float64(tile.RiskLevel.Severity()) / 3.0
	}

	if actionSeen {
		overall = compliance.RiskHigh
	}
	return overall, score
}

// stringField reads a string value out of normalized tool data.
func stringField(data map[string]any, key string) string {
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}

// snippet truncates content for storage inside tile details.
func snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
