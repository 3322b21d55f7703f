package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/cairn-ai/cairn/internal/catalog"
	"github.com/cairn-ai/cairn/internal/log"
	"github.com/cairn-ai/cairn/internal/rag"
	"github.com/cairn-ai/cairn/internal/vectorstore"
)

// Source validation constants.
const (
	MaxSourceNameLength = 200
	MaxExtractedText    = 5_000_000
	DefaultListLimit    = 100
	MaxListLimit        = 1000
	MaxListOffset       = 100000
)

// SourceCatalog is the slice of the catalog the sources handler needs.
type SourceCatalog interface {
	CreateSource(ctx context.Context, tenantID, name, extractedText string) (*catalog.Source, error)
	GetSource(ctx context.Context, tenantID string, id uuid.UUID) (*catalog.Source, error)
	ListSources(ctx context.Context, tenantID string, limit, offset int32) ([]catalog.Source, error)
	DeleteSource(ctx context.Context, tenantID string, id uuid.UUID) error
}

// DocumentIndexer runs the indexing pipeline for one source.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, req rag.IndexRequest) (*rag.IndexResult, error)
}

// VectorAdmin is the slice of the analytical store the handler needs for
// deletes and stats.
type VectorAdmin interface {
	DeleteBySource(ctx context.Context, sourceID uuid.UUID) (int64, error)
	Stats(ctx context.Context, tenantID string) (*vectorstore.Stats, error)
}

// SourcesHandler handles source CRUD and indexing endpoints.
type SourcesHandler struct {
	store        SourceCatalog
	indexer      DocumentIndexer
	vectors      VectorAdmin
	chunkSize    int
	chunkOverlap int
	logger       log.Logger
}

// NewSourcesHandler creates a sources handler. chunkSize and chunkOverlap
// are the defaults applied when an index request does not set its own.
func NewSourcesHandler(store SourceCatalog, indexer DocumentIndexer, vectors VectorAdmin, chunkSize, chunkOverlap int, logger log.Logger) *SourcesHandler {
	return &SourcesHandler{
		store:        store,
		indexer:      indexer,
		vectors:      vectors,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		logger:       logger,
	}
}

// RegisterRoutes registers source routes on the given mux.
func (h *SourcesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sources", h.create)
	mux.HandleFunc("GET /api/sources", h.list)
	mux.HandleFunc("GET /api/sources/{id}", h.get)
	mux.HandleFunc("DELETE /api/sources/{id}", h.delete)
	mux.HandleFunc("POST /api/sources/{id}/index", h.index)
	mux.HandleFunc("GET /api/index/stats", h.stats)
}

// CreateSourceRequest is the request body for creating a source.
type CreateSourceRequest struct {
	Name          string `json:"name"`
	ExtractedText string `json:"extracted_text"`
}

func (h *SourcesHandler) create(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		writeError(w, http.StatusBadRequest, "missing_tenant", "X-Tenant-ID header is required")
		return
	}

	var req CreateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if req.Name == "" || len(req.Name) > MaxSourceNameLength {
		writeError(w, http.StatusBadRequest, "invalid_name", "name is required and must be at most 200 characters")
		return
	}
	if len(req.ExtractedText) > MaxExtractedText {
		writeError(w, http.StatusBadRequest, "text_too_large", "extracted text exceeds the size limit")
		return
	}

	src, err := h.store.CreateSource(r.Context(), tenant, req.Name, req.ExtractedText)
	if err != nil {
		h.logger.Error("failed to create source", "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, src)
}

func (h *SourcesHandler) list(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		writeError(w, http.StatusBadRequest, "missing_tenant", "X-Tenant-ID header is required")
		return
	}

	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	// #nosec G115 -- limit and offset are bounded by MaxListLimit and MaxListOffset
	sources, err := h.store.ListSources(r.Context(), tenant, int32(limit), int32(offset))
	if err != nil {
		h.logger.Error("failed to list sources", "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sources": sources,
		"total":   len(sources),
		"limit":   limit,
		"offset":  offset,
	})
}

func (h *SourcesHandler) get(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	id, err := uuid.Parse(r.PathValue("id"))
	if tenant == "" || err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant header and a valid source id are required")
		return
	}

	src, getErr := h.store.GetSource(r.Context(), tenant, id)
	if getErr != nil {
		writeDomainError(w, getErr)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (h *SourcesHandler) delete(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	id, err := uuid.Parse(r.PathValue("id"))
	if tenant == "" || err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant header and a valid source id are required")
		return
	}

	if err := h.store.DeleteSource(r.Context(), tenant, id); err != nil {
		writeDomainError(w, err)
		return
	}

	// The analytical copy goes second; if this fails the reconciler
	// cleans up the orphans on its next pass.
	if _, err := h.vectors.DeleteBySource(r.Context(), id); err != nil {
		h.logger.Warn("failed to delete analytical rows, reconciler will clean up",
			"source_id", id, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// IndexSourceRequest is the request body for triggering indexing. Omitted
// chunking fields fall back to the configured defaults.
type IndexSourceRequest struct {
	ChunkSize int `json:"chunk_size"`
	Overlap   int `json:"overlap"`
}

func (h *SourcesHandler) index(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	id, err := uuid.Parse(r.PathValue("id"))
	if tenant == "" || err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant header and a valid source id are required")
		return
	}

	req := IndexSourceRequest{ChunkSize: h.chunkSize, Overlap: h.chunkOverlap}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
			return
		}
		if req.ChunkSize == 0 {
			req.ChunkSize = h.chunkSize
		}
	}

	src, err := h.store.GetSource(r.Context(), tenant, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := h.indexer.IndexDocument(r.Context(), rag.IndexRequest{
		SourceID:   src.ID,
		TenantID:   tenant,
		SourceName: src.Name,
		Text:       src.ExtractedText,
		ChunkSize:  req.ChunkSize,
		Overlap:    req.Overlap,
	})
	if err != nil {
		h.logger.Error("indexing failed", "source_id", id, "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *SourcesHandler) stats(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		writeError(w, http.StatusBadRequest, "missing_tenant", "X-Tenant-ID header is required")
		return
	}

	stats, err := h.vectors.Stats(r.Context(), tenant)
	if err != nil {
		h.logger.Error("failed to read index stats", "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
