package compliance

import (
	"testing"
	"time"
)

func TestRankChangesKeyOrder(t *testing.T) {
	base := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	changes := []Change{
		{Tile: TileRulings, Type: ChangeNewMonitoring, Priority: RiskLow, TileUpdated: base},
		{Tile: TileTariff, Type: ChangeStatusChange, Priority: RiskMedium, TileUpdated: base},
		{Tile: TileSanctions, Type: ChangeRiskEscalation, Priority: RiskHigh, TileUpdated: base},
		{Tile: TileRefusals, Type: ChangeNewRequirement, Priority: RiskHigh, TileUpdated: base},
	}

	ranked := RankChanges(changes)

	wantTiles := []string{TileSanctions, TileRefusals, TileTariff, TileRulings}
	for i, want := range wantTiles {
		if ranked[i].Tile != want {
			t.Errorf("rank %d = %q, want %q", i, ranked[i].Tile, want)
		}
	}
}

func TestRankChangesTileTieBreak(t *testing.T) {
	base := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	// Same priority, same type: the fixed tile ordering decides.
	changes := []Change{
		{Tile: TileRulings, Type: ChangeStatusChange, Priority: RiskMedium, TileUpdated: base},
		{Tile: TileSanctions, Type: ChangeStatusChange, Priority: RiskMedium, TileUpdated: base},
		{Tile: TileTariff, Type: ChangeStatusChange, Priority: RiskMedium, TileUpdated: base},
		{Tile: TileRefusals, Type: ChangeStatusChange, Priority: RiskMedium, TileUpdated: base},
	}

	ranked := RankChanges(changes)
	wantTiles := []string{TileSanctions, TileRefusals, TileTariff, TileRulings}
	for i, want := range wantTiles {
		if ranked[i].Tile != want {
			t.Errorf("rank %d = %q, want %q", i, ranked[i].Tile, want)
		}
	}
}

func TestRankChangesRecencyTieBreak(t *testing.T) {
	older := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	changes := []Change{
		{ProductID: "A", Tile: TileTariff, Type: ChangeStatusChange, Priority: RiskLow, TileUpdated: older},
		{ProductID: "B", Tile: TileTariff, Type: ChangeStatusChange, Priority: RiskLow, TileUpdated: newer},
	}

	ranked := RankChanges(changes)
	if ranked[0].ProductID != "B" {
		t.Errorf("newer tile update should rank first, got %q", ranked[0].ProductID)
	}
}

func TestRankChangesStable(t *testing.T) {
	base := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	// Fully tied on all four keys: insertion order must survive.
	mk := func() []Change {
		return []Change{
			{ProductID: "first", Tile: TileTariff, Type: ChangeStatusChange, Priority: RiskLow, TileUpdated: base},
			{ProductID: "second", Tile: TileTariff, Type: ChangeStatusChange, Priority: RiskLow, TileUpdated: base},
			{ProductID: "third", Tile: TileTariff, Type: ChangeStatusChange, Priority: RiskLow, TileUpdated: base},
		}
	}

	for i := 0; i < 10; i++ {
		ranked := RankChanges(mk())
		want := []string{"first", "second", "third"}
		for j, w := range want {
			if ranked[j].ProductID != w {
				t.Fatalf("run %d: rank %d = %q, want %q", i, j, ranked[j].ProductID, w)
			}
		}
	}
}

func TestRankChangesUnknownValuesRankLast(t *testing.T) {
	base := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	changes := []Change{
		{Tile: "customs_lab", Type: "mystery", Priority: "critical", TileUpdated: base},
		{Tile: TileRulings, Type: ChangeNewMonitoring, Priority: RiskLow, TileUpdated: base},
	}

	ranked := RankChanges(changes)
	if ranked[0].Tile != TileRulings {
		t.Errorf("malformed change outranked a real one: first = %q", ranked[0].Tile)
	}
}
