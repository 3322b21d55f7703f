// Package rag implements the indexing and retrieval pipeline: chunking,
// embedding, dual-store indexing, vector search, reference assembly and
// store reconciliation. Components are stateless and depend on small
// consumer-defined interfaces so they test without a database.
package rag

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is one window of a source's extracted text. Offsets are rune
// positions into the original text.
type Chunk struct {
	Index      int
	StartChar  int
	EndChar    int
	Text       string
	TokenCount int
}

// ScoredChunk is a retrieval hit with its similarity score in [0, 1].
type ScoredChunk struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	SourceID   uuid.UUID `json:"source_id"`
	ChunkIndex int       `json:"chunk_index"`
	Preview    string    `json:"preview"`
	Similarity float64   `json:"similarity"`
	CreatedAt  time.Time `json:"created_at"`
}

// Reference is a citation presented with a model answer.
type Reference struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	SourceID   uuid.UUID `json:"source_id"`
	SourceName string    `json:"source_name"`
	Similarity float64   `json:"similarity"`
	Preview    string    `json:"preview"`
}

// IndexRequest describes one indexing run over a source's extracted text.
// SourceName is carried for logging only.
type IndexRequest struct {
	SourceID   uuid.UUID
	TenantID   string
	SourceName string
	Text       string
	ChunkSize  int
	Overlap    int
}

// IndexResult summarizes a completed indexing run.
type IndexResult struct {
	ChunksCreated int           `json:"chunks_created"`
	TotalTokens   int           `json:"total_tokens"`
	IndexingTime  time.Duration `json:"indexing_time"`
}

// SearchRequest describes one retrieval query. MinSimilarity is required;
// there is no implicit default threshold.
type SearchRequest struct {
	TenantID         string
	Query            string
	AllowedSourceIDs []uuid.UUID
	TopK             int
	MinSimilarity    float64
}
