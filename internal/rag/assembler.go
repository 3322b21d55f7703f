package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cairn-ai/cairn/internal/log"
)

// SourceResolver resolves source IDs to display names. IDs that no longer
// exist are simply absent from the returned map.
type SourceResolver interface {
	SourceNames(ctx context.Context, tenantID string, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

// Assembler turns retrieval hits into user-facing references.
type Assembler struct {
	resolver SourceResolver
	logger   log.Logger
}

// NewAssembler creates an assembler.
func NewAssembler(resolver SourceResolver, logger log.Logger) *Assembler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Assembler{resolver: resolver, logger: logger}
}

// Assemble resolves source names with one batched lookup and builds
// references. Chunks whose source has been deleted since retrieval are
// dropped and logged; a dangling hit is stale data, not a failure.
func (a *Assembler) Assemble(ctx context.Context, tenantID string, chunks []ScoredChunk) ([]Reference, error) {
	if len(chunks) == 0 {
		return []Reference{}, nil
	}

	seen := make(map[uuid.UUID]struct{}, len(chunks))
	ids := make([]uuid.UUID, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.SourceID]; ok {
			continue
		}
		seen[c.SourceID] = struct{}{}
		ids = append(ids, c.SourceID)
	}

	names, err := a.resolver.SourceNames(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source names: %w", err)
	}

	refs := make([]Reference, 0, len(chunks))
	for _, c := range chunks {
		name, ok := names[c.SourceID]
		if !ok {
			a.logger.Debug("dropping dangling reference",
				"chunk_id", c.ChunkID, "source_id", c.SourceID)
			continue
		}
		refs = append(refs, Reference{
			ChunkID:    c.ChunkID,
			SourceID:   c.SourceID,
			SourceName: name,
			Similarity: c.Similarity,
			Preview:    c.Preview,
		})
	}
	return refs, nil
}
