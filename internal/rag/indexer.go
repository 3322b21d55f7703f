package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cairn-ai/cairn/internal/catalog"
	"github.com/cairn-ai/cairn/internal/embedder"
	"github.com/cairn-ai/cairn/internal/log"
	"github.com/cairn-ai/cairn/internal/vectorstore"
)

// IndexerCatalog is the slice of the operational store the indexer needs.
type IndexerCatalog interface {
	UpdateSourceStatus(ctx context.Context, tenantID string, id uuid.UUID, status string) error
	FinishIndexing(ctx context.Context, tenantID string, id uuid.UUID, status string, chunkCount int) error
	DeleteChunksBySource(ctx context.Context, sourceID uuid.UUID) (int64, error)
	InsertChunks(ctx context.Context, chunks []catalog.ChunkRecord) (int, error)
}

// VectorIndex is the slice of the analytical store the indexer needs.
type VectorIndex interface {
	Upsert(ctx context.Context, rows []vectorstore.Row) (int, error)
	DeleteBySource(ctx context.Context, sourceID uuid.UUID) (int64, error)
}

// Indexer runs the chunk → embed → dual-write pipeline for one source at a
// time. Re-indexing deletes prior chunks from both stores first, so a
// source's chunk set is always the product of a single run.
type Indexer struct {
	store    IndexerCatalog
	vectors  VectorIndex
	embedder embedder.Embedder
	logger   log.Logger
}

// NewIndexer creates an indexer.
func NewIndexer(store IndexerCatalog, vectors VectorIndex, emb embedder.Embedder, logger log.Logger) *Indexer {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Indexer{store: store, vectors: vectors, embedder: emb, logger: logger}
}

// IndexDocument chunks, embeds and writes one source. The operational store
// is written first, then mirrored to the analytical store; a mirror failure
// is logged and left for the reconciler rather than failing the run. A
// failure after some operational rows were written surfaces as a
// *PartialIndexError and moves the source to failed, from which a retry may
// start over.
func (ix *Indexer) IndexDocument(ctx context.Context, req IndexRequest) (*IndexResult, error) {
	start := time.Now()

	if req.SourceID == uuid.Nil || req.TenantID == "" {
		return nil, fmt.Errorf("%w: source id and tenant id are required", ErrInvalidRequest)
	}

	// Chunk before any I/O so a bad configuration fails fast
	chunks, err := ChunkText(req.Text, req.ChunkSize, req.Overlap)
	if err != nil {
		return nil, err
	}

	if err := ix.store.UpdateSourceStatus(ctx, req.TenantID, req.SourceID, catalog.StatusIndexing); err != nil {
		return nil, fmt.Errorf("failed to mark source indexing: %w", err)
	}

	// Clear out any previous run from both stores
	if _, err := ix.store.DeleteChunksBySource(ctx, req.SourceID); err != nil {
		return nil, ix.fail(ctx, req, 0, len(chunks), err)
	}
	if _, err := ix.vectors.DeleteBySource(ctx, req.SourceID); err != nil {
		return nil, ix.fail(ctx, req, 0, len(chunks), err)
	}

	if len(chunks) == 0 {
		if err := ix.store.FinishIndexing(ctx, req.TenantID, req.SourceID, catalog.StatusIndexed, 0); err != nil {
			return nil, fmt.Errorf("failed to finish indexing: %w", err)
		}
		return &IndexResult{IndexingTime: time.Since(start)}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	// The embedder batches internally and may return a partial prefix
	// alongside an error; that prefix is still written so a retry has
	// less to redo.
	vectors, embErr := ix.embedder.Embed(ctx, texts)

	records := make([]catalog.ChunkRecord, len(vectors))
	for i := range vectors {
		records[i] = catalog.ChunkRecord{
			ID:         uuid.New(),
			SourceID:   req.SourceID,
			TenantID:   req.TenantID,
			ChunkIndex: chunks[i].Index,
			StartChar:  chunks[i].StartChar,
			EndChar:    chunks[i].EndChar,
			Text:       chunks[i].Text,
			TokenCount: chunks[i].TokenCount,
			Embedding:  vectors[i],
		}
	}

	written, insErr := ix.store.InsertChunks(ctx, records)

	if written > 0 {
		ix.mirror(ctx, records[:written])
	}

	if embErr != nil {
		return nil, ix.fail(ctx, req, written, len(chunks), embErr)
	}
	if insErr != nil {
		return nil, ix.fail(ctx, req, written, len(chunks), insErr)
	}

	if err := ix.store.FinishIndexing(ctx, req.TenantID, req.SourceID, catalog.StatusIndexed, written); err != nil {
		return nil, fmt.Errorf("failed to finish indexing: %w", err)
	}

	totalTokens := 0
	for _, c := range chunks {
		totalTokens += c.TokenCount
	}

	result := &IndexResult{
		ChunksCreated: written,
		TotalTokens:   totalTokens,
		IndexingTime:  time.Since(start),
	}

	ix.logger.Info("indexed source",
		"source_id", req.SourceID,
		"source_name", req.SourceName,
		"chunks", result.ChunksCreated,
		"tokens", result.TotalTokens,
		"duration", result.IndexingTime)
	return result, nil
}

// mirror copies written records into the analytical store. Mirror failures
// are non-critical: the operational store is the source of truth and the
// reconciler replays missing rows.
func (ix *Indexer) mirror(ctx context.Context, records []catalog.ChunkRecord) {
	rows := make([]vectorstore.Row, len(records))
	for i, rec := range records {
		rows[i] = vectorstore.Row{
			ChunkID:     rec.ID,
			SourceID:    rec.SourceID,
			TenantID:    rec.TenantID,
			ChunkIndex:  rec.ChunkIndex,
			TextPreview: vectorstore.PreviewOf(rec.Text),
			Embedding:   rec.Embedding,
		}
	}

	if _, err := ix.vectors.Upsert(ctx, rows); err != nil {
		ix.logger.Warn("vector mirror failed, reconciler will replay",
			"source_id", records[0].SourceID, "rows", len(rows), "error", err)
	}
}

// fail moves the source to failed and wraps the cause in a
// *PartialIndexError.
func (ix *Indexer) fail(ctx context.Context, req IndexRequest, written, expected int, cause error) error {
	if err := ix.store.FinishIndexing(ctx, req.TenantID, req.SourceID, catalog.StatusFailed, written); err != nil {
		ix.logger.Error("failed to mark source failed", "source_id", req.SourceID, "error", err)
	}

	return &PartialIndexError{Written: written, Expected: expected, Err: cause}
}
