package rag

import (
	"context"
	"fmt"

	"github.com/cairn-ai/cairn/internal/embedder"
	"github.com/cairn-ai/cairn/internal/log"
	"github.com/cairn-ai/cairn/internal/vectorstore"
)

// VectorSearcher is the slice of the analytical store the searcher needs.
type VectorSearcher interface {
	Search(ctx context.Context, q vectorstore.Query) ([]vectorstore.Result, error)
}

// Searcher embeds a query and runs it against the vector store within the
// caller's source allow-list.
type Searcher struct {
	embedder embedder.Embedder
	vectors  VectorSearcher
	logger   log.Logger
}

// NewSearcher creates a searcher.
func NewSearcher(emb embedder.Embedder, vectors VectorSearcher, logger log.Logger) *Searcher {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Searcher{embedder: emb, vectors: vectors, logger: logger}
}

// Search returns the top-K chunks above the similarity threshold, ordered
// best first with ties going to the older chunk. An empty allow-list
// short-circuits to an empty result without touching the embedder or the
// store. MinSimilarity must be set explicitly in [0, 1].
func (s *Searcher) Search(ctx context.Context, req SearchRequest) ([]ScoredChunk, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	if req.TopK < 1 {
		return nil, fmt.Errorf("%w: top k must be positive, got %d", ErrInvalidRequest, req.TopK)
	}
	if req.MinSimilarity < 0 || req.MinSimilarity > 1 {
		return nil, fmt.Errorf("%w: min similarity must be in [0, 1], got %v", ErrInvalidRequest, req.MinSimilarity)
	}

	// No accessible sources means no results, not an error
	if len(req.AllowedSourceIDs) == 0 {
		s.logger.Debug("search short-circuited, empty allow-list", "tenant_id", req.TenantID)
		return []ScoredChunk{}, nil
	}

	vecs, err := s.embedder.Embed(ctx, []string{req.Query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("expected 1 query embedding, got %d", len(vecs))
	}

	results, err := s.vectors.Search(ctx, vectorstore.Query{
		TenantID:         req.TenantID,
		Embedding:        vecs[0],
		AllowedSourceIDs: req.AllowedSourceIDs,
		TopK:             req.TopK,
		MinSimilarity:    req.MinSimilarity,
	})
	if err != nil {
		return nil, err
	}

	chunks := make([]ScoredChunk, len(results))
	for i, r := range results {
		// Cosine similarity can be negative; scores are clamped to the
		// [0, 1] domain references report.
		sim := r.Similarity
		if sim < 0 {
			sim = 0
		}
		chunks[i] = ScoredChunk{
			ChunkID:    r.ChunkID,
			SourceID:   r.SourceID,
			ChunkIndex: r.ChunkIndex,
			Preview:    r.Preview,
			Similarity: sim,
			CreatedAt:  r.CreatedAt,
		}
	}
	return chunks, nil
}
