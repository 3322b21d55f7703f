//go:build integration
// +build integration

package rag

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/cairn-ai/cairn/internal/catalog"
	"github.com/cairn-ai/cairn/internal/log"
	"github.com/cairn-ai/cairn/internal/testutil"
	"github.com/cairn-ai/cairn/internal/vectorstore"
)

// TestReconcileRepairsDrift_Integration simulates the dual-write gap against
// a real database: chunks land in the catalog but never reach the vector
// store, then a deleted source leaves orphaned vector rows behind.
func TestReconcileRepairsDrift_Integration(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := catalog.NewStore(db.Pool, log.NewNop())
	vectors := vectorstore.NewStore(db.Pool, 0, log.NewNop())
	reconciler := NewReconciler(store, vectors, log.NewNop())

	src, err := store.CreateSource(ctx, "tenant-a", "manual.pdf", "text")
	if err != nil {
		t.Fatalf("CreateSource() error: %v", err)
	}

	embedding := make([]float32, 768)
	embedding[0] = 1
	records := make([]catalog.ChunkRecord, 3)
	for i := range records {
		records[i] = catalog.ChunkRecord{
			ID:         uuid.New(),
			SourceID:   src.ID,
			TenantID:   "tenant-a",
			ChunkIndex: i,
			EndChar:    100,
			Text:       "chunk text",
			TokenCount: 3,
			Embedding:  embedding,
		}
	}
	if _, err := store.InsertChunks(ctx, records); err != nil {
		t.Fatalf("InsertChunks() error: %v", err)
	}

	// Orphan: vector rows whose source the catalog never had.
	orphanSource := uuid.New()
	if _, err := vectors.Upsert(ctx, []vectorstore.Row{{
		ChunkID:   uuid.New(),
		SourceID:  orphanSource,
		TenantID:  "tenant-a",
		Embedding: embedding,
	}}); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	report, err := reconciler.Reconcile(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if report.SourcesRepaired != 1 || report.RowsReplayed != 3 {
		t.Errorf("report = %+v, want 1 source repaired with 3 rows replayed", report)
	}
	if report.OrphansDeleted != 1 {
		t.Errorf("orphans deleted = %d, want 1", report.OrphansDeleted)
	}

	counts, err := vectors.CountBySource(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("CountBySource() error: %v", err)
	}
	if counts[src.ID] != 3 {
		t.Errorf("vector rows after repair = %d, want 3", counts[src.ID])
	}
	if _, ok := counts[orphanSource]; ok {
		t.Error("orphaned source still present in vector store")
	}

	// A second pass finds nothing to do.
	report, err = reconciler.Reconcile(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("second Reconcile() error: %v", err)
	}
	if report.SourcesRepaired != 0 || report.OrphansDeleted != 0 {
		t.Errorf("second pass report = %+v, want no repairs", report)
	}
}
