package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/cairn-ai/cairn/internal/catalog"
	"github.com/cairn-ai/cairn/internal/embedder"
	"github.com/cairn-ai/cairn/internal/log"
	"github.com/cairn-ai/cairn/internal/rag"
	"github.com/cairn-ai/cairn/internal/vectorstore"
)

type mockSourceCatalog struct {
	createCount int
	deleteCount int
	source      *catalog.Source
	sources     []catalog.Source
	err         error
}

func (m *mockSourceCatalog) CreateSource(_ context.Context, tenantID, name, text string) (*catalog.Source, error) {
	m.createCount++
	if m.err != nil {
		return nil, m.err
	}
	return &catalog.Source{ID: uuid.New(), TenantID: tenantID, Name: name, ExtractedText: text, Status: catalog.StatusUnindexed}, nil
}

func (m *mockSourceCatalog) GetSource(_ context.Context, _ string, _ uuid.UUID) (*catalog.Source, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.source, nil
}

func (m *mockSourceCatalog) ListSources(_ context.Context, _ string, _, _ int32) ([]catalog.Source, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.sources, nil
}

func (m *mockSourceCatalog) DeleteSource(_ context.Context, _ string, _ uuid.UUID) error {
	m.deleteCount++
	return m.err
}

type mockIndexer struct {
	callCount int
	lastReq   rag.IndexRequest
	result    *rag.IndexResult
	err       error
}

func (m *mockIndexer) IndexDocument(_ context.Context, req rag.IndexRequest) (*rag.IndexResult, error) {
	m.callCount++
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockVectorAdmin struct {
	deleteCount int
	deleteErr   error
	stats       *vectorstore.Stats
	statsErr    error
}

func (m *mockVectorAdmin) DeleteBySource(_ context.Context, _ uuid.UUID) (int64, error) {
	m.deleteCount++
	return 0, m.deleteErr
}

func (m *mockVectorAdmin) Stats(_ context.Context, _ string) (*vectorstore.Stats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.stats, nil
}

func newSourcesHandler(store *mockSourceCatalog, indexer *mockIndexer, vectors *mockVectorAdmin) *SourcesHandler {
	return NewSourcesHandler(store, indexer, vectors, 2000, 500, log.NewNop())
}

func doRequest(t *testing.T, h interface{ RegisterRoutes(*http.ServeMux) }, method, target, tenant, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if tenant != "" {
		req.Header.Set("X-Tenant-ID", tenant)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestCreateSource(t *testing.T) {
	tests := []struct {
		name       string
		tenant     string
		body       string
		storeErr   error
		wantStatus int
	}{
		{
			name:       "valid request",
			tenant:     "tenant-a",
			body:       `{"name":"manual.pdf","extracted_text":"hello world"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing tenant header",
			tenant:     "",
			body:       `{"name":"manual.pdf"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty name",
			tenant:     "tenant-a",
			body:       `{"name":""}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "name too long",
			tenant:     "tenant-a",
			body:       fmt.Sprintf(`{"name":%q}`, strings.Repeat("x", MaxSourceNameLength+1)),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			tenant:     "tenant-a",
			body:       `{"name":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "store failure",
			tenant:     "tenant-a",
			body:       `{"name":"manual.pdf"}`,
			storeErr:   errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockSourceCatalog{err: tt.storeErr}
			h := newSourcesHandler(store, &mockIndexer{}, &mockVectorAdmin{})

			rec := doRequest(t, h, http.MethodPost, "/api/sources", tt.tenant, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestGetSourceNotFound(t *testing.T) {
	store := &mockSourceCatalog{err: fmt.Errorf("source: %w", catalog.ErrNotFound)}
	h := newSourcesHandler(store, &mockIndexer{}, &mockVectorAdmin{})

	rec := doRequest(t, h, http.MethodGet, "/api/sources/"+uuid.NewString(), "tenant-a", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetSourceInvalidID(t *testing.T) {
	h := newSourcesHandler(&mockSourceCatalog{}, &mockIndexer{}, &mockVectorAdmin{})

	rec := doRequest(t, h, http.MethodGet, "/api/sources/not-a-uuid", "tenant-a", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestDeleteSourceClearsBothStores(t *testing.T) {
	store := &mockSourceCatalog{}
	vectors := &mockVectorAdmin{}
	h := newSourcesHandler(store, &mockIndexer{}, vectors)

	rec := doRequest(t, h, http.MethodDelete, "/api/sources/"+uuid.NewString(), "tenant-a", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if store.deleteCount != 1 {
		t.Errorf("catalog deleteCount = %d, want 1", store.deleteCount)
	}
	if vectors.deleteCount != 1 {
		t.Errorf("vector deleteCount = %d, want 1", vectors.deleteCount)
	}
}

func TestDeleteSourceVectorFailureStillSucceeds(t *testing.T) {
	store := &mockSourceCatalog{}
	vectors := &mockVectorAdmin{deleteErr: errors.New("analytical store down")}
	h := newSourcesHandler(store, &mockIndexer{}, vectors)

	rec := doRequest(t, h, http.MethodDelete, "/api/sources/"+uuid.NewString(), "tenant-a", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestIndexSource(t *testing.T) {
	srcID := uuid.New()
	store := &mockSourceCatalog{source: &catalog.Source{
		ID:            srcID,
		TenantID:      "tenant-a",
		Name:          "manual.pdf",
		ExtractedText: "some extracted text",
	}}
	indexer := &mockIndexer{result: &rag.IndexResult{ChunksCreated: 3, TotalTokens: 42}}
	h := newSourcesHandler(store, indexer, &mockVectorAdmin{})

	rec := doRequest(t, h, http.MethodPost, "/api/sources/"+srcID.String()+"/index", "tenant-a", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if indexer.callCount != 1 {
		t.Fatalf("indexer callCount = %d, want 1", indexer.callCount)
	}
	if indexer.lastReq.SourceID != srcID {
		t.Errorf("indexed source = %s, want %s", indexer.lastReq.SourceID, srcID)
	}
	if indexer.lastReq.ChunkSize != 2000 || indexer.lastReq.Overlap != 500 {
		t.Errorf("chunking = (%d, %d), want configured defaults (2000, 500)",
			indexer.lastReq.ChunkSize, indexer.lastReq.Overlap)
	}

	var result rag.IndexResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.ChunksCreated != 3 {
		t.Errorf("chunks_created = %d, want 3", result.ChunksCreated)
	}
}

func TestIndexSourceCustomChunking(t *testing.T) {
	srcID := uuid.New()
	store := &mockSourceCatalog{source: &catalog.Source{ID: srcID, ExtractedText: "text"}}
	indexer := &mockIndexer{result: &rag.IndexResult{}}
	h := newSourcesHandler(store, indexer, &mockVectorAdmin{})

	rec := doRequest(t, h, http.MethodPost, "/api/sources/"+srcID.String()+"/index",
		"tenant-a", `{"chunk_size":100,"overlap":20}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if indexer.lastReq.ChunkSize != 100 || indexer.lastReq.Overlap != 20 {
		t.Errorf("chunking = (%d, %d), want (100, 20)",
			indexer.lastReq.ChunkSize, indexer.lastReq.Overlap)
	}
}

func TestIndexSourceErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid chunk config", fmt.Errorf("bad: %w", rag.ErrChunkConfig), http.StatusBadRequest},
		{"rate limited", fmt.Errorf("embed: %w", embedder.ErrRateLimited), http.StatusTooManyRequests},
		{"partial failure", &rag.PartialIndexError{Written: 2, Expected: 5, Err: errors.New("boom")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srcID := uuid.New()
			store := &mockSourceCatalog{source: &catalog.Source{ID: srcID, ExtractedText: "text"}}
			h := newSourcesHandler(store, &mockIndexer{err: tt.err}, &mockVectorAdmin{})

			rec := doRequest(t, h, http.MethodPost, "/api/sources/"+srcID.String()+"/index", "tenant-a", "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestIndexStats(t *testing.T) {
	vectors := &mockVectorAdmin{stats: &vectorstore.Stats{TotalChunks: 120, TotalSources: 4}}
	h := newSourcesHandler(&mockSourceCatalog{}, &mockIndexer{}, vectors)

	rec := doRequest(t, h, http.MethodGet, "/api/index/stats", "tenant-a", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var stats vectorstore.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if stats.TotalChunks != 120 || stats.TotalSources != 4 {
		t.Errorf("stats = %+v, want 120 chunks over 4 sources", stats)
	}
}
