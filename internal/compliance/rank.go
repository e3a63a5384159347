package compliance

import "sort"

// RankChanges orders changes by impact, most urgent first. The ordering keys,
// applied in sequence:
//
//  1. risk level severity (high > medium > low)
//  2. change type severity (risk_escalation > new_requirement > status_change > new_monitoring)
//  3. fixed tile priority (sanctions > refusals > tariff > rulings)
//  4. recency of the underlying tile's last update (newer first)
//
// The sort is stable: ties after all four keys keep insertion order, so
// identical input content always produces identical output order.
// RankChanges sorts in place and returns the same slice for chaining.
func RankChanges(changes []Change) []Change {
	sort.SliceStable(changes, func(i, j int) bool {
		a, b := changes[i], changes[j]

		if as, bs := a.Priority.Severity(), b.Priority.Severity(); as != bs {
			return as > bs
		}
		if as, bs := a.Type.Severity(), b.Type.Severity(); as != bs {
			return as > bs
		}
		if ap, bp := TilePriority(a.Tile), TilePriority(b.Tile); ap != bp {
			return ap > bp
		}
		return a.TileUpdated.After(b.TileUpdated)
	})
	return changes
}
