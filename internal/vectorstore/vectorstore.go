// Package vectorstore is the analytical store: the chunk_vectors table that
// similarity queries run against. Rows are mirrored from the catalog by the
// indexer; the table carries no foreign keys so the reconciler can detect
// and repair drift between the two stores.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/cairn-ai/cairn/internal/log"
)

// Querier is the subset of pgx operations this store needs. Defined here so
// tests and transactions can stand in for the pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

var (
	// ErrQueryTimeout indicates a vector search exceeded its deadline.
	// Distinct from an empty result set.
	ErrQueryTimeout = errors.New("vector search timeout")

	// ErrQuotaExceeded indicates the store refused the query for resource
	// reasons (SQLSTATE class 53).
	ErrQuotaExceeded = errors.New("vector store quota exceeded")
)

const (
	// DefaultSearchTimeout bounds a single similarity query.
	DefaultSearchTimeout = 10 * time.Second

	// PreviewLength is how much chunk text is mirrored into the
	// analytical store for display alongside search hits.
	PreviewLength = 500

	// upsertBatchSize caps rows per database batch on the mirror path.
	upsertBatchSize = 500
)

// Row is one analytical record, mirrored from a catalog chunk.
type Row struct {
	ChunkID     uuid.UUID
	SourceID    uuid.UUID
	TenantID    string
	ChunkIndex  int
	TextPreview string
	Embedding   []float32
}

// Result is a similarity search hit.
type Result struct {
	ChunkID    uuid.UUID
	SourceID   uuid.UUID
	ChunkIndex int
	Preview    string
	Similarity float64
	CreatedAt  time.Time
}

// Query describes one similarity search. AllowedSourceIDs must be non-empty;
// short-circuiting empty allow-lists is the caller's job so this layer can
// assume a real filter.
type Query struct {
	TenantID         string
	Embedding        []float32
	AllowedSourceIDs []uuid.UUID
	TopK             int
	MinSimilarity    float64
}

// Stats summarizes the analytical store for the reconciler and the CLI.
type Stats struct {
	TotalChunks  int64 `json:"total_chunks"`
	TotalSources int64 `json:"total_sources"`
}

// Store runs queries against chunk_vectors. Safe for concurrent use.
type Store struct {
	db      Querier
	timeout time.Duration
	logger  log.Logger
}

// NewStore creates a vector store. A non-positive timeout falls back to
// DefaultSearchTimeout.
func NewStore(db Querier, timeout time.Duration, logger log.Logger) *Store {
	if timeout <= 0 {
		timeout = DefaultSearchTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, timeout: timeout, logger: logger}
}

// Search runs a cosine similarity query filtered by tenant and source
// allow-list. Ranking, thresholding and truncation are all pushed into SQL;
// ties on similarity resolve to the older row.
func (s *Store) Search(ctx context.Context, q Query) ([]Result, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const sql = `
		SELECT chunk_id, source_id, chunk_index, text_preview,
		       1 - (embedding <=> $1) AS similarity, created_at
		FROM chunk_vectors
		WHERE tenant_id = $2
		  AND source_id = ANY($3)
		  AND 1 - (embedding <=> $1) >= $4
		ORDER BY similarity DESC, created_at ASC
		LIMIT $5`

	emb := pgvector.NewVector(q.Embedding)
	rows, err := s.db.Query(queryCtx, sql, emb, q.TenantID, q.AllowedSourceIDs, q.MinSimilarity, q.TopK)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ChunkID, &r.SourceID, &r.ChunkIndex,
			&r.Preview, &r.Similarity, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapError(err)
	}

	s.logger.Debug("vector search completed",
		"tenant_id", q.TenantID, "sources", len(q.AllowedSourceIDs), "hits", len(results))
	return results, nil
}

// Upsert mirrors rows into the analytical store in batches. Replaying an
// already-present chunk updates it in place, so the operation is idempotent.
// Returns how many rows were written before any failure.
func (s *Store) Upsert(ctx context.Context, rows []Row) (int, error) {
	const sql = `
		INSERT INTO chunk_vectors (chunk_id, source_id, tenant_id, chunk_index, text_preview, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chunk_id) DO UPDATE SET
			source_id = EXCLUDED.source_id,
			tenant_id = EXCLUDED.tenant_id,
			chunk_index = EXCLUDED.chunk_index,
			text_preview = EXCLUDED.text_preview,
			embedding = EXCLUDED.embedding`

	written := 0
	for start := 0; start < len(rows); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(rows))

		batch := &pgx.Batch{}
		for _, r := range rows[start:end] {
			batch.Queue(sql, r.ChunkID, r.SourceID, r.TenantID, r.ChunkIndex,
				r.TextPreview, pgvector.NewVector(r.Embedding))
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
			return written, fmt.Errorf("failed to upsert vector batch at offset %d: %w", start, batchErr)
		}
	}

	return written, nil
}

// DeleteBySource removes all analytical rows for a source and returns how
// many were deleted.
func (s *Store) DeleteBySource(ctx context.Context, sourceID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM chunk_vectors WHERE source_id = $1`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete vectors for source %s: %w", sourceID, err)
	}
	return tag.RowsAffected(), nil
}

// CountBySource returns per-source row counts for a tenant. The reconciler
// diffs this against the catalog's counts.
func (s *Store) CountBySource(ctx context.Context, tenantID string) (map[uuid.UUID]int64, error) {
	const sql = `
		SELECT source_id, COUNT(*)
		FROM chunk_vectors
		WHERE tenant_id = $1
		GROUP BY source_id`

	rows, err := s.db.Query(ctx, sql, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count vectors: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("failed to scan vector count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vector counts: %w", err)
	}
	return counts, nil
}

// Stats returns store-wide totals for a tenant.
func (s *Store) Stats(ctx context.Context, tenantID string) (*Stats, error) {
	const sql = `
		SELECT COUNT(*), COUNT(DISTINCT source_id)
		FROM chunk_vectors
		WHERE tenant_id = $1`

	var st Stats
	if err := s.db.QueryRow(ctx, sql, tenantID).Scan(&st.TotalChunks, &st.TotalSources); err != nil {
		return nil, fmt.Errorf("failed to read vector store stats: %w", err)
	}
	return &st, nil
}

// mapError translates driver failures into the package's typed errors.
func (s *Store) mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrQueryTimeout, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == "53" {
		// Class 53: insufficient resources
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}

	return fmt.Errorf("vector search failed: %w", err)
}

// PreviewOf truncates chunk text to the mirrored preview length, respecting
// rune boundaries.
func PreviewOf(text string) string {
	runes := []rune(text)
	if len(runes) <= PreviewLength {
		return text
	}
	return string(runes[:PreviewLength])
}
