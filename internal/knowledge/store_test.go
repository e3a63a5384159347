package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"

	"github.com/tidemark/tidemark/internal/log"
	"github.com/tidemark/tidemark/internal/testutil"
)

// mockEmbedder returns a deterministic vector per input text so similarity
// ordering in tests is predictable without a real model.
type mockEmbedder struct {
	embedErr  error
	callCount int
}

func (m *mockEmbedder) Name() string { return "mock-embedder" }

func (m *mockEmbedder) Register(api.Registry) {}

func (m *mockEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.callCount++
	if m.embedErr != nil {
		return nil, m.embedErr
	}

	var text string
	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		text = req.Input[0].Content[0].Text
	}

	// Spread the text bytes across the vector; identical text embeds
	// identically, different text diverges.
	vec := make([]float32, VectorDimension)
	for i, b := range []byte(text) {
		vec[i%int(VectorDimension)] += float32(b) / 255
	}
	vec[0] += 1 // never the zero vector
	return &ai.EmbedResponse{Embeddings: []*ai.Embedding{{Embedding: vec}}}, nil
}

func TestNewStoreValidation(t *testing.T) {
	if _, err := NewStore(nil, &mockEmbedder{}, log.NewNop()); err == nil {
		t.Error("expected error for nil pool")
	}
}

func TestAddSearchDelete(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	s, err := NewStore(pool, &mockEmbedder{}, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	id, err := s.Add(ctx, Document{
		Content:    "Section 232 tariffs apply to steel articles",
		SourceType: SourceRegulation,
		Metadata:   map[string]any{"cite": "19 USC 1862"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("empty id from Add")
	}
	if _, err := s.Add(ctx, Document{
		Content:    "ruling NY N301234 classifies laptop sleeves",
		SourceType: SourceRuling,
	}); err != nil {
		t.Fatal(err)
	}

	results, err := s.Search(ctx, "Section 232 tariffs apply to steel articles")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	// Identical text embeds identically, so the matching document ranks first.
	if results[0].Document.ID != id {
		t.Errorf("top result = %q, want %q", results[0].Document.ID, id)
	}
	if results[0].Document.Metadata["cite"] != "19 USC 1862" {
		t.Errorf("metadata = %v", results[0].Document.Metadata)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %v, %v", results[0].Score, results[1].Score)
	}

	filtered, err := s.Search(ctx, "tariffs", WithSourceType(SourceRuling))
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].Document.SourceType != SourceRuling {
		t.Errorf("filtered = %+v", filtered)
	}

	limited, err := s.Search(ctx, "tariffs", WithTopK(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("len(limited) = %d, want 1", len(limited))
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	n, err := s.Count(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count after delete = %d, want 1", n)
	}
	// Deleting a missing id is a no-op.
	if err := s.Delete(ctx, id); err != nil {
		t.Errorf("second delete = %v", err)
	}
}

func TestAddReplacesExistingID(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	s, err := NewStore(pool, &mockEmbedder{}, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	id, err := s.Add(ctx, Document{Content: "first version", SourceType: SourceGuidance})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(ctx, Document{ID: id, Content: "second version", SourceType: SourceGuidance}); err != nil {
		t.Fatal(err)
	}

	n, err := s.Count(ctx, SourceGuidance)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1 after upsert", n)
	}

	results, err := s.Search(ctx, "second version", WithTopK(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Document.Content != "second version" {
		t.Errorf("results = %+v", results)
	}
}

func TestAddValidation(t *testing.T) {
	// Validation fires before the embedder or pool are touched, so a store
	// built by hand is enough.
	s := &Store{embedder: &mockEmbedder{}, logger: log.NewNop()}

	if _, err := s.Add(context.Background(), Document{SourceType: SourceRegulation}); err == nil {
		t.Error("expected error for empty content")
	}
	if _, err := s.Add(context.Background(), Document{Content: "text"}); err == nil {
		t.Error("expected error for empty source_type")
	}
	if _, err := s.Search(context.Background(), ""); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestEmbedFailurePropagates(t *testing.T) {
	wantErr := errors.New("embedder offline")
	s := &Store{embedder: &mockEmbedder{embedErr: wantErr}, logger: log.NewNop()}

	_, err := s.Add(context.Background(), Document{Content: "text", SourceType: SourceRegulation})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped %v", err, wantErr)
	}
}
