package pulse

import (
	"context"
	"errors"
	"testing"

	"github.com/tidemark/tidemark/internal/compliance"
	"github.com/tidemark/tidemark/internal/knowledge"
	"github.com/tidemark/tidemark/internal/log"
	"github.com/tidemark/tidemark/internal/tools"
)

// stubAdapter builds a real adapter around canned data, no HTTP involved.
func stubAdapter(t *testing.T, name, tile string, data map[string]any, fail bool) *tools.Adapter {
	t.Helper()
	adapter, err := tools.NewAdapter(tools.Config{
		Name: name,
		Tile: tile,
		Fetch: func(context.Context, tools.Params) (map[string]any, error) {
			if fail {
				return nil, errors.New("upstream unavailable")
			}
			return data, nil
		},
		Fallback: func(tools.Params) map[string]any {
			return map[string]any{"risk_level": "medium", "status": "error", "headline": "unavailable"}
		},
		Key: func(p tools.Params) string { return p.ProductID },
	}, nil, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return adapter
}

type stubSearcher struct {
	results []knowledge.SearchResult
	err     error
	queries int
}

func (s *stubSearcher) Search(_ context.Context, _ string, _ ...knowledge.SearchOption) ([]knowledge.SearchResult, error) {
	s.queries++
	return s.results, s.err
}

func clearData(headline string) map[string]any {
	return map[string]any{"risk_level": "low", "status": "clear", "headline": headline}
}

func TestGenerateBuildsAllTiles(t *testing.T) {
	adapters := []*tools.Adapter{
		stubAdapter(t, "sanctions", compliance.TileSanctions, clearData("no matches"), false),
		stubAdapter(t, "refusals", compliance.TileRefusals, clearData("no history"), false),
		stubAdapter(t, "hts", compliance.TileTariff, clearData("classified"), false),
		stubAdapter(t, "rulings", compliance.TileRulings, clearData("no rulings"), false),
	}
	gen, err := NewGenerator(adapters, nil, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	snap, failures, err := gen.Generate(context.Background(), "acme", "PROD-1", "us-cn:importer")
	if err != nil {
		t.Fatal(err)
	}

	if len(snap.Tiles) != 4 {
		t.Fatalf("len(Tiles) = %d, want 4", len(snap.Tiles))
	}
	for _, name := range compliance.TileNames {
		tile, ok := snap.Tiles[name]
		if !ok {
			t.Fatalf("missing tile %q", name)
		}
		if tile.Status != compliance.StatusClear {
			t.Errorf("tile %q status = %q, want clear", name, tile.Status)
		}
	}
	if len(failures) != 0 {
		t.Errorf("tool failures = %v, want none", failures)
	}
	if snap.OverallRisk != compliance.RiskLow {
		t.Errorf("OverallRisk = %q, want low", snap.OverallRisk)
	}
}

func TestGenerateToolFailureBecomesErrorTile(t *testing.T) {
	adapters := []*tools.Adapter{
		stubAdapter(t, "hts", compliance.TileTariff, nil, true),
		stubAdapter(t, "sanctions", compliance.TileSanctions, clearData("no matches"), false),
	}
	gen, err := NewGenerator(adapters, nil, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	snap, failures, err := gen.Generate(context.Background(), "acme", "PROD-1", "us-cn:importer")
	if err != nil {
		t.Fatal(err)
	}

	tariff := snap.Tiles[compliance.TileTariff]
	if tariff.Status != compliance.StatusError {
		t.Errorf("failed tool tile status = %q, want error", tariff.Status)
	}
	if tariff.RiskLevel != compliance.RiskMedium {
		t.Errorf("failed tool tile risk = %q, want fallback's medium", tariff.RiskLevel)
	}
	if failures["hts"] != 1 {
		t.Errorf("failures = %v, want hts:1", failures)
	}
	if failures["sanctions"] != 0 {
		t.Errorf("sanctions counted as failed: %v", failures)
	}
}

func TestGenerateActionTileForcesHighRisk(t *testing.T) {
	adapters := []*tools.Adapter{
		stubAdapter(t, "sanctions", compliance.TileSanctions,
			map[string]any{"risk_level": "high", "status": "action", "headline": "1 match"}, false),
		stubAdapter(t, "hts", compliance.TileTariff, clearData("classified"), false),
	}
	gen, err := NewGenerator(adapters, nil, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	snap, _, err := gen.Generate(context.Background(), "acme", "PROD-1", "us-cn:importer")
	if err != nil {
		t.Fatal(err)
	}
	if snap.OverallRisk != compliance.RiskHigh {
		t.Errorf("OverallRisk = %q, want high when any tile demands action", snap.OverallRisk)
	}
	if snap.RiskScore <= 0 {
		t.Errorf("RiskScore = %v, want positive", snap.RiskScore)
	}
}

func TestGenerateValidation(t *testing.T) {
	gen, err := NewGenerator([]*tools.Adapter{
		stubAdapter(t, "hts", compliance.TileTariff, clearData("classified"), false),
	}, nil, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name                       string
		client, product, route     string
	}{
		{name: "missing client", client: "", product: "P", route: "R"},
		{name: "missing product", client: "C", product: " ", route: "R"},
		{name: "missing route", client: "C", product: "P", route: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := gen.Generate(context.Background(), tt.client, tt.product, tt.route)
			if !errors.Is(err, compliance.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestGenerateRetrievalFailureIsAbsorbed(t *testing.T) {
	searcher := &stubSearcher{err: errors.New("embedder down")}
	gen, err := NewGenerator([]*tools.Adapter{
		stubAdapter(t, "hts", compliance.TileTariff, clearData("classified"), false),
	}, searcher, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	snap, _, err := gen.Generate(context.Background(), "acme", "PROD-1", "us-cn:importer")
	if err != nil {
		t.Fatalf("retrieval failure must not fail generation: %v", err)
	}
	if searcher.queries != 1 {
		t.Errorf("searcher queries = %d, want 1", searcher.queries)
	}
	if _, ok := snap.Tiles[compliance.TileTariff].Details["references"]; ok {
		t.Error("failed retrieval should leave no references in tile details")
	}
}

func TestGenerateReferencesStoredInTiles(t *testing.T) {
	searcher := &stubSearcher{results: []knowledge.SearchResult{
		{Document: knowledge.Document{ID: "doc-1", Content: "19 CFR 141 entry requirements"}},
	}}
	gen, err := NewGenerator([]*tools.Adapter{
		stubAdapter(t, "hts", compliance.TileTariff, clearData("classified"), false),
	}, searcher, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	snap, _, err := gen.Generate(context.Background(), "acme", "PROD-1", "us-cn:importer")
	if err != nil {
		t.Fatal(err)
	}

	refs, ok := snap.Tiles[compliance.TileTariff].Details["references"].([]string)
	if !ok || len(refs) != 1 {
		t.Fatalf("references = %v", snap.Tiles[compliance.TileTariff].Details["references"])
	}
}

func TestNewGeneratorRequiresAdapters(t *testing.T) {
	if _, err := NewGenerator(nil, nil, log.NewNop()); err == nil {
		t.Error("NewGenerator accepted zero adapters")
	}
}
