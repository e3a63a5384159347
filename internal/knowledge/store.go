package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

// EmbedTimeout bounds a single embedding call.
const EmbedTimeout = 15 * time.Second

// Store manages reference documents with vector search, backed by
// PostgreSQL + pgvector. Embeddings are generated through the configured
// genkit embedder at write and query time.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewStore creates a knowledge Store.
func NewStore(pool *pgxpool.Pool, embedder ai.Embedder, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}, nil
}

// embed generates a vector embedding for the given text.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	dim := VectorDimension
	ctx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// Add embeds and upserts one reference document. An empty ID gets a fresh
// UUID; re-adding an existing ID replaces content, metadata, and embedding.
func (s *Store) Add(ctx context.Context, doc Document) (string, error) {
	if doc.Content == "" {
		return "", fmt.Errorf("document content is required")
	}
	if doc.SourceType == "" {
		return "", fmt.Errorf("document source_type is required")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	vec, err := s.embed(ctx, doc.Content)
	if err != nil {
		return "", err
	}

	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (id, content, source_type, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			source_type = EXCLUDED.source_type,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = now()`,
		doc.ID, doc.Content, doc.SourceType, metadata, vec)
	if err != nil {
		return "", fmt.Errorf("upserting document: %w", err)
	}

	s.logger.Debug("document indexed", "id", doc.ID, "source_type", doc.SourceType)
	return doc.ID, nil
}

// searchOptions collects the optional search parameters.
type searchOptions struct {
	topK       int32
	sourceType string
}

// SearchOption configures a Search call.
type SearchOption func(*searchOptions)

// WithTopK sets the number of results to return (default 5, max 50).
func WithTopK(k int32) SearchOption {
	return func(o *searchOptions) {
		if k > 0 {
			o.topK = min(k, 50)
		}
	}
}

// WithSourceType restricts results to one source type.
func WithSourceType(sourceType string) SearchOption {
	return func(o *searchOptions) { o.sourceType = sourceType }
}

// Search embeds the query and returns the closest documents by cosine
// similarity, best first.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	o := searchOptions{topK: 5}
	for _, opt := range opts {
		opt(&o)
	}

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var rows pgx.Rows
	if o.sourceType != "" {
		rows, err = s.pool.Query(ctx, `
			SELECT id, content, source_type, metadata, created_at,
				1 - (embedding <=> $1) AS score
			FROM documents
			WHERE source_type = $2
			ORDER BY embedding <=> $1
			LIMIT $3`, vec, o.sourceType, o.topK)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, content, source_type, metadata, created_at,
				1 - (embedding <=> $1) AS score
			FROM documents
			ORDER BY embedding <=> $1
			LIMIT $2`, vec, o.topK)
	}
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// Delete removes a document by ID. Deleting a missing ID is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// Count returns the number of stored documents, optionally by source type.
func (s *Store) Count(ctx context.Context, sourceType string) (int64, error) {
	var n int64
	var err error
	if sourceType != "" {
		err = s.pool.QueryRow(ctx,
			`SELECT count(*) FROM documents WHERE source_type = $1`, sourceType).Scan(&n)
	} else {
		err = s.pool.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// scanResults reads search rows into results.
func scanResults(rows pgx.Rows) ([]SearchResult, error) {
	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var metadata []byte
		if err := rows.Scan(&r.Document.ID, &r.Document.Content, &r.Document.SourceType,
			&metadata, &r.Document.CreatedAt, &r.Score); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &r.Document.Metadata); err != nil {
				return nil, fmt.Errorf("decoding document metadata: %w", err)
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading document rows: %w", err)
	}
	return results, nil
}
