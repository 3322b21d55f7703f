package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/cairn-ai/cairn/internal/log"
	"github.com/cairn-ai/cairn/internal/rag"
)

// ChunkSearcher runs a scoped vector search.
type ChunkSearcher interface {
	Search(ctx context.Context, req rag.SearchRequest) ([]rag.ScoredChunk, error)
}

// ReferenceAssembler resolves retrieval hits into citations.
type ReferenceAssembler interface {
	Assemble(ctx context.Context, tenantID string, chunks []rag.ScoredChunk) ([]rag.Reference, error)
}

// AllowLister resolves the retrieval allow-list for an agent.
type AllowLister interface {
	AllowedSourceIDs(ctx context.Context, tenantID string, agentID uuid.UUID) ([]uuid.UUID, error)
}

// SearchHandler handles the direct vector search endpoint.
type SearchHandler struct {
	searcher  ChunkSearcher
	assembler ReferenceAssembler
	allow     AllowLister
	logger    log.Logger
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(searcher ChunkSearcher, assembler ReferenceAssembler, allow AllowLister, logger log.Logger) *SearchHandler {
	return &SearchHandler{searcher: searcher, assembler: assembler, allow: allow, logger: logger}
}

// RegisterRoutes registers search routes on the given mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/search", h.search)
}

// SearchAPIRequest is the request body for a direct search. MinSimilarity
// is a pointer so an omitted field is distinguishable from an explicit 0;
// the API has no server-side default for it.
type SearchAPIRequest struct {
	AgentID       string   `json:"agent_id"`
	Query         string   `json:"query"`
	TopK          int      `json:"top_k"`
	MinSimilarity *float64 `json:"min_similarity"`
}

// SearchAPIResponse pairs raw hits with their assembled citations.
type SearchAPIResponse struct {
	Chunks     []rag.ScoredChunk `json:"chunks"`
	References []rag.Reference   `json:"references"`
	Total      int               `json:"total"`
}

func (h *SearchHandler) search(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		writeError(w, http.StatusBadRequest, "missing_tenant", "X-Tenant-ID header is required")
		return
	}

	var req SearchAPIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_query", "query is required")
		return
	}
	if req.MinSimilarity == nil {
		writeError(w, http.StatusBadRequest, "missing_min_similarity", "min_similarity is required")
		return
	}
	if req.TopK == 0 {
		req.TopK = 5
	}

	agentID, err := uuid.Parse(req.AgentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_agent_id", "agent_id must be a valid UUID")
		return
	}

	allowed, err := h.allow.AllowedSourceIDs(r.Context(), tenant, agentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	chunks, err := h.searcher.Search(r.Context(), rag.SearchRequest{
		TenantID:         tenant,
		Query:            req.Query,
		AllowedSourceIDs: allowed,
		TopK:             req.TopK,
		MinSimilarity:    *req.MinSimilarity,
	})
	if err != nil {
		h.logger.Error("search failed", "error", err)
		writeDomainError(w, err)
		return
	}

	refs, err := h.assembler.Assemble(r.Context(), tenant, chunks)
	if err != nil {
		h.logger.Error("reference assembly failed", "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SearchAPIResponse{
		Chunks:     chunks,
		References: refs,
		Total:      len(chunks),
	})
}
