package compliance

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTopChanges bounds the ranked changes carried in a digest. The full
// change count is still reported in aggregate statistics.
const DefaultTopChanges = 10

// SnapshotResult is one (product, route) outcome from the snapshot
// generation phase, fed into the digest builder for aggregation.
type SnapshotResult struct {
	ProductID    string
	RouteID      string
	Snapshot     *Snapshot // nil when generation failed
	Err          error     // non-nil when generation failed
	ToolFailures map[string]int
}

// DigestInput carries everything the digest builder needs for one run.
type DigestInput struct {
	ClientID    string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Results     []SnapshotResult
	Changes     []Change // already ranked; full list, not yet truncated
	TopN        int      // 0 = DefaultTopChanges

	// BaselineMissing counts keys whose delta was skipped for lack of a
	// prior snapshot.
	BaselineMissing int
}

// BuildDigest assembles the persisted digest artifact: ranked top changes,
// per-tier counts, the errors block, and the map of current snapshots that
// becomes the next period's baseline.
//
// requires_action is true iff at least one change is high risk or a risk
// escalation. Status derives from it: action_required, else monitoring when
// any change exists, else clear.
func BuildDigest(in DigestInput) Digest {
	topN := in.TopN
	if topN <= 0 {
		topN = DefaultTopChanges
	}

	d := Digest{
		ID:           uuid.New(),
		ClientID:     in.ClientID,
		PeriodStart:  in.PeriodStart,
		PeriodEnd:    in.PeriodEnd,
		TotalChanges: len(in.Changes),
		TopChanges:   []Change{},
		Snapshots:    make(map[string]Snapshot, len(in.Results)),
		GeneratedAt:  time.Now().UTC(),
	}

	for _, c := range in.Changes {
		switch c.Priority {
		case RiskHigh:
			d.Priorities.High++
		case RiskMedium:
			d.Priorities.Medium++
		default:
			d.Priorities.Low++
		}
		if c.Priority == RiskHigh || c.Type == ChangeRiskEscalation {
			d.RequiresAction = true
		}
	}

	if len(in.Changes) > topN {
		d.TopChanges = append(d.TopChanges, in.Changes[:topN]...)
	} else {
		d.TopChanges = append(d.TopChanges, in.Changes...)
	}

	switch {
	case d.RequiresAction:
		d.Status = DigestActionRequired
	case d.TotalChanges > 0:
		d.Status = DigestMonitoring
	default:
		d.Status = DigestClear
	}

	d.Errors = buildErrors(in.Results)
	d.Errors.BaselineMissing = in.BaselineMissing

	for _, res := range in.Results {
		if res.Snapshot != nil {
			d.Snapshots[res.Snapshot.Key()] = *res.Snapshot
		}
	}

	return d
}

// buildErrors aggregates absorbed failures across all snapshot results.
func buildErrors(results []SnapshotResult) DigestErrors {
	errs := DigestErrors{SuccessRate: 1}
	if len(results) == 0 {
		return errs
	}

	succeeded := 0
	for _, res := range results {
		if res.Err != nil {
			errs.FailedKeys = append(errs.FailedKeys, KeyFailure{
				ProductID: res.ProductID,
				RouteID:   res.RouteID,
				Reason:    res.Err.Error(),
			})
		} else {
			succeeded++
		}
		for tool, n := range res.ToolFailures {
			if errs.ToolFailures == nil {
				errs.ToolFailures = make(map[string]int)
			}
			errs.ToolFailures[tool] += n
		}
	}
	errs.SuccessRate = float64(succeeded) / float64(len(results))
	return errs
}
