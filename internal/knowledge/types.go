// Package knowledge manages the reference-text collections backing snapshot
// generation and the advisor: regulation extracts, rulings guidance, and
// agency notices, stored in PostgreSQL with pgvector embeddings and queried
// by similarity.
package knowledge

import "time"

// Source type constants for reference documents.
const (
	// SourceRegulation is regulatory text (CFR parts, agency rules).
	SourceRegulation = "regulation"

	// SourceGuidance is agency guidance and published procedure.
	SourceGuidance = "guidance"

	// SourceRuling is customs ruling summaries indexed for retrieval.
	SourceRuling = "ruling"
)

// VectorDimension is the embedding width stored in the documents table.
// The embedder is configured to truncate its output to match; see the
// embed helper in store.go.
const VectorDimension int32 = 768

// Document is one reference text with its metadata.
type Document struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	SourceType string         `json:"source_type"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// SearchResult pairs a document with its similarity score, higher is closer.
type SearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}
