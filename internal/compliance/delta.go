package compliance

import (
	"fmt"
	"sort"
	"strings"
)

// RequirementPolicy decides which requirement strings in the current tile are
// genuinely new relative to the previous tile. The source data is free text
// produced by upstream systems, so "new" is inherently fuzzy and the policy is
// injectable rather than fixed. A nil policy disables new_requirement
// detection entirely.
type RequirementPolicy func(prev, curr Tile) []string

// ContainmentRequirementPolicy is the default policy: a current requirement is
// new when no previous requirement contains it and it contains no previous
// requirement (case-insensitive substring containment in either direction).
func ContainmentRequirementPolicy(prev, curr Tile) []string {
	currReqs := curr.Requirements()
	if len(currReqs) == 0 {
		return nil
	}
	prevReqs := prev.Requirements()

	var unseen []string
	for _, c := range currReqs {
		cn := strings.ToLower(strings.TrimSpace(c))
		if cn == "" {
			continue
		}
		seen := false
		for _, p := range prevReqs {
			pn := strings.ToLower(strings.TrimSpace(p))
			if pn == "" {
				continue
			}
			if strings.Contains(pn, cn) || strings.Contains(cn, pn) {
				seen = true
				break
			}
		}
		if !seen {
			unseen = append(unseen, c)
		}
	}
	return unseen
}

// ComputeDelta compares a previous snapshot against the current one at tile
// granularity and returns the detected changes.
//
// A nil previous snapshot means this is the first observation for the key:
// no changes are emitted at all, so a missing baseline never synthesizes a
// false risk escalation.
//
// At most one change is emitted per tile, classified by precedence:
// risk_escalation > new_requirement > status_change. Tiles present only in
// the current snapshot emit new_monitoring; tiles that disappeared emit
// nothing; identical tiles emit nothing.
func ComputeDelta(prev *Snapshot, curr Snapshot, policy RequirementPolicy) []Change {
	if prev == nil {
		return nil
	}

	// Deterministic tile iteration: fixed priority order first, then any
	// remaining names sorted.
	names := orderedTileNames(prev.Tiles, curr.Tiles)

	var changes []Change
	for _, name := range names {
		currTile, inCurr := curr.Tiles[name]
		prevTile, inPrev := prev.Tiles[name]

		switch {
		case !inCurr:
			// Tile dropped from monitoring; nothing to report.
			continue

		case !inPrev:
			changes = append(changes, Change{
				ProductID:   curr.ProductID,
				RouteID:     curr.RouteID,
				Tile:        name,
				Type:        ChangeNewMonitoring,
				CurrentRisk: currTile.RiskLevel,
				Priority:    currTile.RiskLevel,
				Headline:    fmt.Sprintf("now monitoring %s for %s via %s", name, curr.ProductID, curr.RouteID),
				TileUpdated: currTile.LastUpdated,
			})
			continue
		}

		if c, ok := compareTiles(curr, name, prevTile, currTile, policy); ok {
			changes = append(changes, c)
		}
	}
	return changes
}

// compareTiles classifies the difference between two tiles present in both
// periods. Returns false when nothing changed.
func compareTiles(curr Snapshot, name string, prevTile, currTile Tile, policy RequirementPolicy) (Change, bool) {
	base := Change{
		ProductID:    curr.ProductID,
		RouteID:      curr.RouteID,
		Tile:         name,
		PreviousRisk: prevTile.RiskLevel,
		CurrentRisk:  currTile.RiskLevel,
		Priority:     currTile.RiskLevel,
		TileUpdated:  currTile.LastUpdated,
	}

	if currTile.RiskLevel.Severity() > prevTile.RiskLevel.Severity() {
		base.Type = ChangeRiskEscalation
		base.Headline = fmt.Sprintf("%s risk escalated from %s to %s: %s",
			name, prevTile.RiskLevel, currTile.RiskLevel, currTile.Headline)
		return base, true
	}

	if policy != nil {
		if unseen := policy(prevTile, currTile); len(unseen) > 0 {
			base.Type = ChangeNewRequirement
			base.Headline = fmt.Sprintf("new %s requirement: %s", name, unseen[0])
			return base, true
		}
	}

	if currTile.Status != prevTile.Status {
		base.Type = ChangeStatusChange
		base.Headline = fmt.Sprintf("%s status changed from %s to %s",
			name, prevTile.Status, currTile.Status)
		return base, true
	}

	return Change{}, false
}

// orderedTileNames returns the union of tile names across both snapshots in
// deterministic order: known tiles by fixed priority, unknown tiles sorted.
func orderedTileNames(prev, curr map[string]Tile) []string {
	seen := make(map[string]bool, len(prev)+len(curr))
	var names []string

	for _, name := range TileNames {
		_, inPrev := prev[name]
		_, inCurr := curr[name]
		if inPrev || inCurr {
			seen[name] = true
			names = append(names, name)
		}
	}

	var extra []string
	for name := range prev {
		if !seen[name] {
			seen[name] = true
			extra = append(extra, name)
		}
	}
	for name := range curr {
		if !seen[name] {
			seen[name] = true
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}
