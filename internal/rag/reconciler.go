package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cairn-ai/cairn/internal/catalog"
	"github.com/cairn-ai/cairn/internal/log"
	"github.com/cairn-ai/cairn/internal/vectorstore"
)

// ReconcilerCatalog is the slice of the operational store the reconciler
// needs. The catalog is the source of truth.
type ReconcilerCatalog interface {
	CountChunksBySource(ctx context.Context, tenantID string) (map[uuid.UUID]int64, error)
	ChunksBySource(ctx context.Context, sourceID uuid.UUID) ([]catalog.ChunkRecord, error)
}

// ReconcilerVectors is the slice of the analytical store the reconciler
// needs.
type ReconcilerVectors interface {
	CountBySource(ctx context.Context, tenantID string) (map[uuid.UUID]int64, error)
	Upsert(ctx context.Context, rows []vectorstore.Row) (int, error)
	DeleteBySource(ctx context.Context, sourceID uuid.UUID) (int64, error)
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	SourcesChecked  int   `json:"sources_checked"`
	SourcesRepaired int   `json:"sources_repaired"`
	RowsReplayed    int   `json:"rows_replayed"`
	OrphansDeleted  int64 `json:"orphans_deleted"`
}

// Reconciler closes the gap the dual-write design leaves open: the two
// stores are written without a cross-store transaction, so a crash between
// writes leaves the analytical store behind. A pass diffs per-source chunk
// counts, replays every mismatched source from the catalog's copies, and
// deletes analytical rows whose source no longer exists. A replay deletes
// the source's rows and rewrites the full set, so one pass converges and
// re-running it is safe.
type Reconciler struct {
	store   ReconcilerCatalog
	vectors ReconcilerVectors
	logger  log.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(store ReconcilerCatalog, vectors ReconcilerVectors, logger log.Logger) *Reconciler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Reconciler{store: store, vectors: vectors, logger: logger}
}

// Reconcile runs one pass for a tenant.
func (r *Reconciler) Reconcile(ctx context.Context, tenantID string) (*ReconcileReport, error) {
	catalogCounts, err := r.store.CountChunksBySource(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count catalog chunks: %w", err)
	}

	vectorCounts, err := r.vectors.CountBySource(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to count vector rows: %w", err)
	}

	report := &ReconcileReport{SourcesChecked: len(catalogCounts)}

	for sourceID, want := range catalogCounts {
		if vectorCounts[sourceID] == want {
			continue
		}

		replayed, err := r.replay(ctx, sourceID)
		if err != nil {
			return report, fmt.Errorf("failed to replay source %s: %w", sourceID, err)
		}

		report.SourcesRepaired++
		report.RowsReplayed += replayed
		r.logger.Info("replayed source into vector store",
			"source_id", sourceID,
			"catalog_rows", want,
			"vector_rows_before", vectorCounts[sourceID],
			"replayed", replayed)
	}

	// Analytical rows for sources the catalog no longer knows are orphans
	// left behind by deletes that never reached this store.
	for sourceID := range vectorCounts {
		if _, ok := catalogCounts[sourceID]; ok {
			continue
		}
		deleted, err := r.vectors.DeleteBySource(ctx, sourceID)
		if err != nil {
			return report, fmt.Errorf("failed to delete orphaned vectors for source %s: %w", sourceID, err)
		}
		report.OrphansDeleted += deleted
		r.logger.Info("deleted orphaned vector rows", "source_id", sourceID, "rows", deleted)
	}

	return report, nil
}

// replay rewrites a source's analytical rows from the catalog's copies.
// Existing rows are dropped first so stale rows the catalog no longer
// holds cannot survive the pass and keep the counts diverged.
func (r *Reconciler) replay(ctx context.Context, sourceID uuid.UUID) (int, error) {
	chunks, err := r.store.ChunksBySource(ctx, sourceID)
	if err != nil {
		return 0, err
	}

	if _, err := r.vectors.DeleteBySource(ctx, sourceID); err != nil {
		return 0, err
	}

	rows := make([]vectorstore.Row, len(chunks))
	for i, c := range chunks {
		rows[i] = vectorstore.Row{
			ChunkID:     c.ID,
			SourceID:    c.SourceID,
			TenantID:    c.TenantID,
			ChunkIndex:  c.ChunkIndex,
			TextPreview: vectorstore.PreviewOf(c.Text),
			Embedding:   c.Embedding,
		}
	}

	return r.vectors.Upsert(ctx, rows)
}
