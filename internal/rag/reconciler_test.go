package rag

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/cairn-ai/cairn/internal/catalog"
	"github.com/cairn-ai/cairn/internal/log"
	"github.com/cairn-ai/cairn/internal/vectorstore"
)

// mockReconcilerCatalog serves fixed counts and chunk sets.
type mockReconcilerCatalog struct {
	counts map[uuid.UUID]int64
	chunks map[uuid.UUID][]catalog.ChunkRecord
}

func (m *mockReconcilerCatalog) CountChunksBySource(_ context.Context, _ string) (map[uuid.UUID]int64, error) {
	return m.counts, nil
}

func (m *mockReconcilerCatalog) ChunksBySource(_ context.Context, sourceID uuid.UUID) ([]catalog.ChunkRecord, error) {
	return m.chunks[sourceID], nil
}

// mockReconcilerVectors records repairs against fixed counts.
type mockReconcilerVectors struct {
	counts        map[uuid.UUID]int64
	upserted      []vectorstore.Row
	deletedSource []uuid.UUID
}

func (m *mockReconcilerVectors) CountBySource(_ context.Context, _ string) (map[uuid.UUID]int64, error) {
	return m.counts, nil
}

func (m *mockReconcilerVectors) Upsert(_ context.Context, rows []vectorstore.Row) (int, error) {
	m.upserted = append(m.upserted, rows...)
	return len(rows), nil
}

func (m *mockReconcilerVectors) DeleteBySource(_ context.Context, sourceID uuid.UUID) (int64, error) {
	m.deletedSource = append(m.deletedSource, sourceID)
	return m.counts[sourceID], nil
}

func makeChunkRecords(sourceID uuid.UUID, n int) []catalog.ChunkRecord {
	records := make([]catalog.ChunkRecord, n)
	for i := range records {
		records[i] = catalog.ChunkRecord{
			ID:         uuid.New(),
			SourceID:   sourceID,
			TenantID:   "tenant-a",
			ChunkIndex: i,
			Text:       "chunk text",
			Embedding:  make([]float32, 8),
		}
	}
	return records
}

func TestReconcile_InSync(t *testing.T) {
	src := uuid.New()
	store := &mockReconcilerCatalog{counts: map[uuid.UUID]int64{src: 3}}
	vectors := &mockReconcilerVectors{counts: map[uuid.UUID]int64{src: 3}}
	r := NewReconciler(store, vectors, log.NewNop())

	report, err := r.Reconcile(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}

	if report.SourcesChecked != 1 || report.SourcesRepaired != 0 || report.RowsReplayed != 0 {
		t.Errorf("report = %+v, want 1 checked and nothing repaired", report)
	}
	if len(vectors.upserted) != 0 {
		t.Error("in-sync stores should not trigger a replay")
	}
}

func TestReconcile_ReplaysMissingRows(t *testing.T) {
	behind := uuid.New()
	ok := uuid.New()
	store := &mockReconcilerCatalog{
		counts: map[uuid.UUID]int64{behind: 4, ok: 2},
		chunks: map[uuid.UUID][]catalog.ChunkRecord{behind: makeChunkRecords(behind, 4)},
	}
	vectors := &mockReconcilerVectors{counts: map[uuid.UUID]int64{behind: 1, ok: 2}}
	r := NewReconciler(store, vectors, log.NewNop())

	report, err := r.Reconcile(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}

	if report.SourcesRepaired != 1 {
		t.Errorf("SourcesRepaired = %d, want 1", report.SourcesRepaired)
	}
	// Full replay: all 4 catalog rows upserted, not just the missing 3
	if report.RowsReplayed != 4 || len(vectors.upserted) != 4 {
		t.Errorf("RowsReplayed = %d (upserted %d), want 4", report.RowsReplayed, len(vectors.upserted))
	}
	for _, row := range vectors.upserted {
		if row.SourceID != behind {
			t.Error("replayed row for the wrong source")
		}
		if len(row.Embedding) == 0 {
			t.Error("replayed row missing its embedding")
		}
	}
}

func TestReconcile_MissingSourceEntirely(t *testing.T) {
	src := uuid.New()
	store := &mockReconcilerCatalog{
		counts: map[uuid.UUID]int64{src: 2},
		chunks: map[uuid.UUID][]catalog.ChunkRecord{src: makeChunkRecords(src, 2)},
	}
	// Vector store has no rows at all for the source
	vectors := &mockReconcilerVectors{counts: map[uuid.UUID]int64{}}
	r := NewReconciler(store, vectors, log.NewNop())

	report, err := r.Reconcile(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}

	if report.RowsReplayed != 2 {
		t.Errorf("RowsReplayed = %d, want 2", report.RowsReplayed)
	}
}

// fakeVectorState backs the reconciler with an in-memory row set so a
// replay's effect on the store is observable across passes.
type fakeVectorState struct {
	rows map[uuid.UUID]vectorstore.Row
}

func (f *fakeVectorState) CountBySource(_ context.Context, _ string) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64)
	for _, row := range f.rows {
		counts[row.SourceID]++
	}
	return counts, nil
}

func (f *fakeVectorState) Upsert(_ context.Context, rows []vectorstore.Row) (int, error) {
	for _, row := range rows {
		f.rows[row.ChunkID] = row
	}
	return len(rows), nil
}

func (f *fakeVectorState) DeleteBySource(_ context.Context, sourceID uuid.UUID) (int64, error) {
	var deleted int64
	for id, row := range f.rows {
		if row.SourceID == sourceID {
			delete(f.rows, id)
			deleted++
		}
	}
	return deleted, nil
}

func TestReconcile_ConvergesWhenStoreHoldsStaleRows(t *testing.T) {
	src := uuid.New()
	records := makeChunkRecords(src, 2)
	store := &mockReconcilerCatalog{
		counts: map[uuid.UUID]int64{src: 2},
		chunks: map[uuid.UUID][]catalog.ChunkRecord{src: records},
	}

	// Three stale rows under chunk ids the catalog no longer holds, as
	// left behind by a re-index that never reached the analytical store.
	vectors := &fakeVectorState{rows: make(map[uuid.UUID]vectorstore.Row)}
	for i := 0; i < 3; i++ {
		stale := vectorstore.Row{ChunkID: uuid.New(), SourceID: src, TenantID: "tenant-a", ChunkIndex: i}
		vectors.rows[stale.ChunkID] = stale
	}

	r := NewReconciler(store, vectors, log.NewNop())

	report, err := r.Reconcile(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if report.SourcesRepaired != 1 || report.RowsReplayed != 2 {
		t.Errorf("report = %+v, want 1 repaired and 2 replayed", report)
	}
	if len(vectors.rows) != 2 {
		t.Fatalf("store holds %d rows after replay, want the catalog's 2", len(vectors.rows))
	}
	for _, rec := range records {
		if _, ok := vectors.rows[rec.ID]; !ok {
			t.Errorf("catalog chunk %s missing from store after replay", rec.ID)
		}
	}

	// The stores now agree, so a second pass is a no-op.
	report, err = r.Reconcile(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("second Reconcile() error: %v", err)
	}
	if report.SourcesRepaired != 0 || report.RowsReplayed != 0 {
		t.Errorf("second pass report = %+v, want nothing repaired", report)
	}
}

func TestReconcile_DeletesOrphans(t *testing.T) {
	orphan := uuid.New()
	store := &mockReconcilerCatalog{counts: map[uuid.UUID]int64{}}
	vectors := &mockReconcilerVectors{counts: map[uuid.UUID]int64{orphan: 5}}
	r := NewReconciler(store, vectors, log.NewNop())

	report, err := r.Reconcile(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}

	if report.OrphansDeleted != 5 {
		t.Errorf("OrphansDeleted = %d, want 5", report.OrphansDeleted)
	}
	if len(vectors.deletedSource) != 1 || vectors.deletedSource[0] != orphan {
		t.Errorf("orphan source not deleted: %v", vectors.deletedSource)
	}
}
