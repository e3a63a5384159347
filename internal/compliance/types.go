// Package compliance defines the domain model for periodic trade-compliance
// assessment: tiles, snapshots, change detection, impact ranking, and the
// persisted digest artifact.
//
// The package is pure domain logic; it performs no I/O. Snapshot generation
// (which calls external tool APIs and the knowledge store) lives in
// internal/pulse; persistence lives in internal/store.
package compliance

import (
	"time"

	"github.com/google/uuid"
)

// RiskLevel is the assessed risk for a tile or change, ordered low < medium < high.
type RiskLevel string

// Risk level constants.
const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Severity returns the numeric ordering of the risk level.
// Unknown values rank below RiskLow so malformed data never outranks real risk.
func (r RiskLevel) Severity() int {
	switch r {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

// MaxRisk returns the more severe of two risk levels.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// TileStatus describes the assessed state of one compliance dimension.
type TileStatus string

// Tile status constants.
const (
	StatusClear     TileStatus = "clear"
	StatusAttention TileStatus = "attention"
	StatusAction    TileStatus = "action"
	StatusError     TileStatus = "error"
)

// Tile name constants. One tile per compliance dimension; names are stable
// because they key the snapshot tile map across persisted periods.
const (
	TileSanctions = "sanctions"
	TileRefusals  = "refusals"
	TileTariff    = "tariff"
	TileRulings   = "rulings"
)

// TileNames lists all tile names in fixed priority order (most critical first).
var TileNames = []string{TileSanctions, TileRefusals, TileTariff, TileRulings}

// tilePriority is the fixed tie-break ordering used by the impact ranker.
var tilePriority = map[string]int{
	TileSanctions: 4,
	TileRefusals:  3,
	TileTariff:    2,
	TileRulings:   1,
}

// TilePriority returns the fixed ranking priority for a tile name.
// Unknown tiles rank last.
func TilePriority(name string) int {
	return tilePriority[name]
}

// Tile is one compliance dimension's assessed state. Tiles are immutable once
// produced; a new snapshot generates new tile instances.
type Tile struct {
	Status      TileStatus     `json:"status"`
	RiskLevel   RiskLevel      `json:"risk_level"`
	Headline    string         `json:"headline"`
	Details     map[string]any `json:"details,omitempty"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Requirements extracts the requirement strings recorded in the tile details.
// Returns nil when the tile carries no requirements payload.
func (t Tile) Requirements() []string {
	raw, ok := t.Details["requirements"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		// Details round-tripped through JSON decode to []any.
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Snapshot is the full compliance assessment for one (product, trade-route)
// pair at a point in time. Never mutated after creation.
type Snapshot struct {
	ProductID   string          `json:"product_id"`
	RouteID     string          `json:"route_id"`
	Tiles       map[string]Tile `json:"tiles"`
	OverallRisk RiskLevel       `json:"overall_risk_level"`
	RiskScore   float64         `json:"risk_score"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Key returns the portfolio key for this snapshot, used to pair a current
// snapshot with its previous-period baseline.
func (s Snapshot) Key() string {
	return s.ProductID + "|" + s.RouteID
}

// ChangeType classifies the difference between two tiles across periods.
type ChangeType string

// Change type constants.
const (
	ChangeRiskEscalation ChangeType = "risk_escalation"
	ChangeNewRequirement ChangeType = "new_requirement"
	ChangeStatusChange   ChangeType = "status_change"
	ChangeNewMonitoring  ChangeType = "new_monitoring"
)

// Severity returns the numeric ordering of change types for ranking.
func (c ChangeType) Severity() int {
	switch c {
	case ChangeRiskEscalation:
		return 4
	case ChangeNewRequirement:
		return 3
	case ChangeStatusChange:
		return 2
	case ChangeNewMonitoring:
		return 1
	default:
		return 0
	}
}

// Change records one detected difference for a (product, route, tile) key.
// Changes are ephemeral: computed fresh each digest run, never persisted
// outside the digest that reports them.
type Change struct {
	ProductID    string     `json:"product_id"`
	RouteID      string     `json:"route_id"`
	Tile         string     `json:"tile"`
	Type         ChangeType `json:"change_type"`
	PreviousRisk RiskLevel  `json:"previous_risk,omitempty"`
	CurrentRisk  RiskLevel  `json:"current_risk"`
	Priority     RiskLevel  `json:"priority"`
	Headline     string     `json:"headline"`
	TileUpdated  time.Time  `json:"tile_updated"`
}

// DigestStatus is the overall disposition of a digest run.
type DigestStatus string

// Digest status constants.
const (
	DigestActionRequired DigestStatus = "action_required"
	DigestMonitoring     DigestStatus = "monitoring"
	DigestClear          DigestStatus = "clear"
)

// KeyFailure records one (product, route) pair whose snapshot generation
// failed, with enough detail to diagnose without aborting the run.
type KeyFailure struct {
	ProductID string `json:"product_id"`
	RouteID   string `json:"route_id"`
	Reason    string `json:"reason"`
}

// DigestErrors aggregates the failures absorbed during a digest run.
// BaselineMissing counts keys skipped by delta computation because no prior
// snapshot existed, a normal state on first observation, reported here so a
// quiet digest is distinguishable from a digest with nothing to compare.
type DigestErrors struct {
	FailedKeys      []KeyFailure   `json:"failed_keys,omitempty"`
	ToolFailures    map[string]int `json:"tool_failures,omitempty"`
	BaselineMissing int            `json:"baseline_missing,omitempty"`
	SuccessRate     float64        `json:"success_rate"`
}

// PriorityCounts breaks total changes down by priority tier.
type PriorityCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Digest is the persisted unit of a pulse run: ranked top changes, aggregate
// statistics, the errors block, and the full map of current snapshots which
// serves as the next period's baseline.
type Digest struct {
	ID             uuid.UUID           `json:"id"`
	ClientID       string              `json:"client_id"`
	PeriodStart    time.Time           `json:"period_start"`
	PeriodEnd      time.Time           `json:"period_end"`
	Status         DigestStatus        `json:"status"`
	RequiresAction bool                `json:"requires_action"`
	TotalChanges   int                 `json:"total_changes"`
	Priorities     PriorityCounts      `json:"priority_counts"`
	TopChanges     []Change            `json:"top_changes"`
	Errors         DigestErrors        `json:"errors"`
	Snapshots      map[string]Snapshot `json:"snapshots"`
	GeneratedAt    time.Time           `json:"generated_at"`
}
