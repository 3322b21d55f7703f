// Package catalog is the operational store: sources, their chunk records,
// agents and shares, and chat messages. It is one half of the dual-write
// pair; the analytical half lives in internal/vectorstore and the two are
// written independently.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/cairn-ai/cairn/internal/log"
)

// ErrNotFound indicates the requested row does not exist or belongs to
// another tenant.
var ErrNotFound = errors.New("not found")

// InsertBatchSize caps how many chunk rows go into a single database batch.
const InsertBatchSize = 500

// Querier is the subset of pgx operations the store needs. Defined by the
// consumer so tests and transactions can stand in for the pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store manages the operational tables. Safe for concurrent use.
type Store struct {
	db     Querier
	logger log.Logger
}

// NewStore creates a catalog store backed by the given querier.
func NewStore(db Querier, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// CreateSource inserts a new source in status unindexed.
func (s *Store) CreateSource(ctx context.Context, tenantID, name, extractedText string) (*Source, error) {
	const q = `
		INSERT INTO sources (tenant_id, name, extracted_text)
		VALUES ($1, $2, $3)
		RETURNING id, tenant_id, name, extracted_text, status, chunk_count, created_at, updated_at`

	var src Source
	err := s.db.QueryRow(ctx, q, tenantID, name, extractedText).Scan(
		&src.ID, &src.TenantID, &src.Name, &src.ExtractedText,
		&src.Status, &src.ChunkCount, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}

	s.logger.Debug("created source", "source_id", src.ID, "tenant_id", tenantID)
	return &src, nil
}

// GetSource returns a source scoped to the tenant.
func (s *Store) GetSource(ctx context.Context, tenantID string, id uuid.UUID) (*Source, error) {
	const q = `
		SELECT id, tenant_id, name, extracted_text, status, chunk_count, created_at, updated_at
		FROM sources
		WHERE id = $1 AND tenant_id = $2 AND status <> 'deleted'`

	var src Source
	err := s.db.QueryRow(ctx, q, id, tenantID).Scan(
		&src.ID, &src.TenantID, &src.Name, &src.ExtractedText,
		&src.Status, &src.ChunkCount, &src.CreatedAt, &src.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source %s: %w", id, err)
	}
	return &src, nil
}

// ListSources returns the tenant's sources, newest first. Extracted text is
// omitted to keep listings light.
func (s *Store) ListSources(ctx context.Context, tenantID string, limit, offset int32) ([]Source, error) {
	const q = `
		SELECT id, tenant_id, name, status, chunk_count, created_at, updated_at
		FROM sources
		WHERE tenant_id = $1 AND status <> 'deleted'
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.Query(ctx, q, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.ID, &src.TenantID, &src.Name,
			&src.Status, &src.ChunkCount, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sources: %w", err)
	}
	return sources, nil
}

// UpdateSourceStatus moves a source to the given indexing status.
func (s *Store) UpdateSourceStatus(ctx context.Context, tenantID string, id uuid.UUID, status string) error {
	const q = `
		UPDATE sources SET status = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2`

	tag, err := s.db.Exec(ctx, q, id, tenantID, status)
	if err != nil {
		return fmt.Errorf("failed to update source %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	return nil
}

// FinishIndexing records the final status and chunk count after an index run.
func (s *Store) FinishIndexing(ctx context.Context, tenantID string, id uuid.UUID, status string, chunkCount int) error {
	const q = `
		UPDATE sources SET status = $3, chunk_count = $4, updated_at = now()
		WHERE id = $1 AND tenant_id = $2`

	tag, err := s.db.Exec(ctx, q, id, tenantID, status, chunkCount)
	if err != nil {
		return fmt.Errorf("failed to finish indexing for source %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteSource soft-deletes a source and hard-deletes its chunk rows. The
// soft-deleted row keeps name and timestamps for audit; the caller is
// responsible for deleting the analytical copies as well.
func (s *Store) DeleteSource(ctx context.Context, tenantID string, id uuid.UUID) error {
	const q = `
		UPDATE sources SET status = 'deleted', updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND status <> 'deleted'`

	tag, err := s.db.Exec(ctx, q, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete source %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %s: %w", id, ErrNotFound)
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM chunks WHERE source_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete chunks for source %s: %w", id, err)
	}

	s.logger.Debug("deleted source", "source_id", id, "tenant_id", tenantID)
	return nil
}

// InsertChunks writes chunk records in batches of at most InsertBatchSize
// rows. It returns how many rows were written; on error the count covers the
// rows that made it before the failure, so callers can report partial writes.
func (s *Store) InsertChunks(ctx context.Context, chunks []ChunkRecord) (int, error) {
	const q = `
		INSERT INTO chunks (id, source_id, tenant_id, chunk_index, start_char, end_char, text, token_count, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	written := 0
	for start := 0; start < len(chunks); start += InsertBatchSize {
		end := min(start+InsertBatchSize, len(chunks))

		batch := &pgx.Batch{}
		for _, c := range chunks[start:end] {
			emb := pgvector.NewVector(c.Embedding)
			batch.Queue(q, c.ID, c.SourceID, c.TenantID, c.ChunkIndex,
				c.StartChar, c.EndChar, c.Text, c.TokenCount, emb)
		}

		br := s.db.SendBatch(ctx, batch)
		batchErr := func() error {
			defer br.Close()
			for range end - start {
				if _, err := br.Exec(); err != nil {
					return err
				}
				written++
			}
			return nil
		}()
		if batchErr != nil {
			return written, fmt.Errorf("failed to insert chunk batch at offset %d: %w", start, batchErr)
		}
	}

	return written, nil
}

// DeleteChunksBySource removes all chunk records for a source and returns
// how many were deleted.
func (s *Store) DeleteChunksBySource(ctx context.Context, sourceID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM chunks WHERE source_id = $1`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks for source %s: %w", sourceID, err)
	}
	return tag.RowsAffected(), nil
}

// CountChunksBySource returns per-source chunk counts for a tenant, feeding
// the reconciler's diff.
func (s *Store) CountChunksBySource(ctx context.Context, tenantID string) (map[uuid.UUID]int64, error) {
	const q = `
		SELECT source_id, COUNT(*)
		FROM chunks
		WHERE tenant_id = $1
		GROUP BY source_id`

	rows, err := s.db.Query(ctx, q, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan chunk count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunk counts: %w", err)
	}
	return counts, nil
}

// ChunksBySource returns the operational chunk records for a source,
// embeddings included, ordered by chunk index. Used by the reconciler to
// replay rows into the analytical store.
func (s *Store) ChunksBySource(ctx context.Context, sourceID uuid.UUID) ([]ChunkRecord, error) {
	const q = `
		SELECT id, source_id, tenant_id, chunk_index, start_char, end_char, text, token_count, embedding, created_at
		FROM chunks
		WHERE source_id = $1
		ORDER BY chunk_index`

	rows, err := s.db.Query(ctx, q, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks for source %s: %w", sourceID, err)
	}
	defer rows.Close()

	var chunks []ChunkRecord
	for rows.Next() {
		var c ChunkRecord
		var emb pgvector.Vector
		if err := rows.Scan(&c.ID, &c.SourceID, &c.TenantID, &c.ChunkIndex,
			&c.StartChar, &c.EndChar, &c.Text, &c.TokenCount, &emb, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.Embedding = emb.Slice()
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	return chunks, nil
}

// SourceNames resolves source IDs to display names in one query. Missing or
// foreign-tenant IDs are simply absent from the result map.
func (s *Store) SourceNames(ctx context.Context, tenantID string, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]string{}, nil
	}

	const q = `
		SELECT id, name FROM sources
		WHERE tenant_id = $1 AND id = ANY($2) AND status <> 'deleted'`

	rows, err := s.db.Query(ctx, q, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source names: %w", err)
	}
	defer rows.Close()

	names := make(map[uuid.UUID]string, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan source name: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source names: %w", err)
	}
	return names, nil
}
