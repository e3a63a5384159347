package compliance

import (
	"testing"
	"time"
)

func tileAt(status TileStatus, risk RiskLevel, reqs []string, updated time.Time) Tile {
	t := Tile{
		Status:      status,
		RiskLevel:   risk,
		Headline:    "test headline",
		LastUpdated: updated,
	}
	if len(reqs) > 0 {
		t.Details = map[string]any{"requirements": reqs}
	}
	return t
}

func snapshotWith(tiles map[string]Tile) Snapshot {
	return Snapshot{
		ProductID:   "PROD-1",
		RouteID:     "US:CN",
		Tiles:       tiles,
		GeneratedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestComputeDeltaNilBaseline(t *testing.T) {
	curr := snapshotWith(map[string]Tile{
		TileSanctions: tileAt(StatusAction, RiskHigh, nil, time.Now()),
	})

	changes := ComputeDelta(nil, curr, ContainmentRequirementPolicy)
	if len(changes) != 0 {
		t.Errorf("ComputeDelta(nil baseline) = %d changes, want 0", len(changes))
	}
}

func TestComputeDeltaIdenticalSnapshots(t *testing.T) {
	updated := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	tiles := map[string]Tile{
		TileSanctions: tileAt(StatusClear, RiskLow, nil, updated),
		TileTariff:    tileAt(StatusClear, RiskLow, []string{"file entry summary"}, updated),
	}
	prev := snapshotWith(tiles)
	curr := snapshotWith(tiles)

	changes := ComputeDelta(&prev, curr, ContainmentRequirementPolicy)
	if len(changes) != 0 {
		t.Errorf("identical snapshots produced %d changes, want 0", len(changes))
	}
}

func TestComputeDeltaClassification(t *testing.T) {
	updated := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		prev     Tile
		curr     Tile
		wantType ChangeType
	}{
		{
			name:     "risk escalation low to high",
			prev:     tileAt(StatusClear, RiskLow, nil, updated),
			curr:     tileAt(StatusAction, RiskHigh, nil, updated),
			wantType: ChangeRiskEscalation,
		},
		{
			name:     "risk escalation medium to high",
			prev:     tileAt(StatusAttention, RiskMedium, nil, updated),
			curr:     tileAt(StatusAction, RiskHigh, nil, updated),
			wantType: ChangeRiskEscalation,
		},
		{
			name:     "new requirement at stable risk",
			prev:     tileAt(StatusClear, RiskLow, []string{"file entry summary"}, updated),
			curr:     tileAt(StatusClear, RiskLow, []string{"file entry summary", "obtain FDA prior notice"}, updated),
			wantType: ChangeNewRequirement,
		},
		{
			name:     "status change without risk movement",
			prev:     tileAt(StatusClear, RiskLow, nil, updated),
			curr:     tileAt(StatusAttention, RiskLow, nil, updated),
			wantType: ChangeStatusChange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := snapshotWith(map[string]Tile{TileSanctions: tt.prev})
			curr := snapshotWith(map[string]Tile{TileSanctions: tt.curr})

			changes := ComputeDelta(&prev, curr, ContainmentRequirementPolicy)
			if len(changes) != 1 {
				t.Fatalf("got %d changes, want 1", len(changes))
			}
			if changes[0].Type != tt.wantType {
				t.Errorf("change type = %q, want %q", changes[0].Type, tt.wantType)
			}
		})
	}
}

func TestComputeDeltaEscalationWinsOverRequirementAndStatus(t *testing.T) {
	updated := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	// The same tile pair qualifies as escalation, new requirement, and
	// status change at once; only the escalation is reported.
	prev := snapshotWith(map[string]Tile{
		TileRefusals: tileAt(StatusClear, RiskLow, nil, updated),
	})
	curr := snapshotWith(map[string]Tile{
		TileRefusals: tileAt(StatusAction, RiskHigh, []string{"respond to FDA notice"}, updated),
	})

	changes := ComputeDelta(&prev, curr, ContainmentRequirementPolicy)
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want exactly 1 per tile", len(changes))
	}
	c := changes[0]
	if c.Type != ChangeRiskEscalation {
		t.Errorf("change type = %q, want %q", c.Type, ChangeRiskEscalation)
	}
	if c.PreviousRisk != RiskLow || c.CurrentRisk != RiskHigh {
		t.Errorf("risk transition = %s→%s, want low→high", c.PreviousRisk, c.CurrentRisk)
	}
	if c.Priority != RiskHigh {
		t.Errorf("priority = %q, want current risk %q", c.Priority, RiskHigh)
	}
}

func TestComputeDeltaRiskDecreaseIsNotEscalation(t *testing.T) {
	updated := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	prev := snapshotWith(map[string]Tile{
		TileSanctions: tileAt(StatusAction, RiskHigh, nil, updated),
	})
	curr := snapshotWith(map[string]Tile{
		TileSanctions: tileAt(StatusClear, RiskLow, nil, updated),
	})

	changes := ComputeDelta(&prev, curr, ContainmentRequirementPolicy)
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(changes))
	}
	// De-escalation surfaces as a status change, never an escalation.
	if changes[0].Type != ChangeStatusChange {
		t.Errorf("change type = %q, want %q", changes[0].Type, ChangeStatusChange)
	}
}

func TestComputeDeltaNewAndDisappearedTiles(t *testing.T) {
	updated := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	prev := snapshotWith(map[string]Tile{
		TileRulings: tileAt(StatusClear, RiskLow, nil, updated),
	})
	curr := snapshotWith(map[string]Tile{
		TileSanctions: tileAt(StatusClear, RiskMedium, nil, updated),
	})

	changes := ComputeDelta(&prev, curr, ContainmentRequirementPolicy)
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1 (new tile only, disappeared tile silent)", len(changes))
	}
	c := changes[0]
	if c.Type != ChangeNewMonitoring {
		t.Errorf("change type = %q, want %q", c.Type, ChangeNewMonitoring)
	}
	if c.Tile != TileSanctions {
		t.Errorf("tile = %q, want %q", c.Tile, TileSanctions)
	}
	if c.Priority != RiskMedium {
		t.Errorf("priority = %q, want %q", c.Priority, RiskMedium)
	}
}

func TestComputeDeltaNilPolicySkipsRequirements(t *testing.T) {
	updated := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	prev := snapshotWith(map[string]Tile{
		TileTariff: tileAt(StatusClear, RiskLow, []string{"a"}, updated),
	})
	curr := snapshotWith(map[string]Tile{
		TileTariff: tileAt(StatusClear, RiskLow, []string{"a", "brand new duty filing"}, updated),
	})

	changes := ComputeDelta(&prev, curr, nil)
	if len(changes) != 0 {
		t.Errorf("nil policy produced %d changes, want 0", len(changes))
	}
}

func TestContainmentRequirementPolicy(t *testing.T) {
	tests := []struct {
		name string
		prev []string
		curr []string
		want []string
	}{
		{
			name: "no current requirements",
			prev: []string{"file entry summary"},
			curr: nil,
			want: nil,
		},
		{
			name: "all seen before",
			prev: []string{"File Entry Summary", "obtain license"},
			curr: []string{"file entry summary"},
			want: nil,
		},
		{
			name: "substring in either direction counts as seen",
			prev: []string{"obtain FDA prior notice for shipment"},
			curr: []string{"FDA prior notice"},
			want: nil,
		},
		{
			name: "genuinely new requirement",
			prev: []string{"file entry summary"},
			curr: []string{"file entry summary", "obtain steel import license"},
			want: []string{"obtain steel import license"},
		},
		{
			name: "empty baseline makes everything new",
			prev: nil,
			curr: []string{"screen counterparty"},
			want: []string{"screen counterparty"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated := time.Now()
			got := ContainmentRequirementPolicy(
				tileAt(StatusClear, RiskLow, tt.prev, updated),
				tileAt(StatusClear, RiskLow, tt.curr, updated),
			)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("unseen[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestComputeDeltaDeterministicOrder(t *testing.T) {
	updated := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	mk := func() (Snapshot, Snapshot) {
		prev := snapshotWith(map[string]Tile{
			TileSanctions: tileAt(StatusClear, RiskLow, nil, updated),
			TileRefusals:  tileAt(StatusClear, RiskLow, nil, updated),
			TileTariff:    tileAt(StatusClear, RiskLow, nil, updated),
			TileRulings:   tileAt(StatusClear, RiskLow, nil, updated),
		})
		curr := snapshotWith(map[string]Tile{
			TileSanctions: tileAt(StatusAttention, RiskLow, nil, updated),
			TileRefusals:  tileAt(StatusAttention, RiskLow, nil, updated),
			TileTariff:    tileAt(StatusAttention, RiskLow, nil, updated),
			TileRulings:   tileAt(StatusAttention, RiskLow, nil, updated),
		})
		return prev, curr
	}

	prev, curr := mk()
	first := ComputeDelta(&prev, curr, nil)
	for i := 0; i < 20; i++ {
		p, c := mk()
		again := ComputeDelta(&p, c, nil)
		if len(again) != len(first) {
			t.Fatalf("run %d: %d changes, want %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j].Tile != first[j].Tile {
				t.Fatalf("run %d: tile order diverged at %d: %q vs %q",
					i, j, again[j].Tile, first[j].Tile)
			}
		}
	}
}
