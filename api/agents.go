package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/cairn-ai/cairn/internal/catalog"
	"github.com/cairn-ai/cairn/internal/log"
)

// MaxAgentNameLength bounds agent names.
const MaxAgentNameLength = 200

// AgentCatalog is the slice of the catalog the agents handler needs.
type AgentCatalog interface {
	CreateAgent(ctx context.Context, tenantID, name, systemPrompt string) (*catalog.Agent, error)
	GetAgent(ctx context.Context, tenantID string, id uuid.UUID) (*catalog.Agent, error)
	ListAgents(ctx context.Context, tenantID string, limit, offset int32) ([]catalog.Agent, error)
	SetAgentSources(ctx context.Context, tenantID string, agentID uuid.UUID, sourceIDs []uuid.UUID) error
	ShareAgent(ctx context.Context, tenantID string, agentID uuid.UUID, principal, level string) error
	ListMessages(ctx context.Context, tenantID string, agentID uuid.UUID, limit int32) ([]catalog.Message, error)
}

// AgentsHandler handles agent management endpoints.
type AgentsHandler struct {
	store  AgentCatalog
	logger log.Logger
}

// NewAgentsHandler creates an agents handler.
func NewAgentsHandler(store AgentCatalog, logger log.Logger) *AgentsHandler {
	return &AgentsHandler{store: store, logger: logger}
}

// RegisterRoutes registers agent routes on the given mux.
func (h *AgentsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/agents", h.create)
	mux.HandleFunc("GET /api/agents", h.list)
	mux.HandleFunc("GET /api/agents/{id}", h.get)
	mux.HandleFunc("PUT /api/agents/{id}/sources", h.setSources)
	mux.HandleFunc("POST /api/agents/{id}/shares", h.share)
	mux.HandleFunc("GET /api/agents/{id}/messages", h.messages)
}

// CreateAgentRequest is the request body for creating an agent.
type CreateAgentRequest struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
}

func (h *AgentsHandler) create(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		writeError(w, http.StatusBadRequest, "missing_tenant", "X-Tenant-ID header is required")
		return
	}

	var req CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if req.Name == "" || len(req.Name) > MaxAgentNameLength {
		writeError(w, http.StatusBadRequest, "invalid_name", "name is required and must be at most 200 characters")
		return
	}

	agent, err := h.store.CreateAgent(r.Context(), tenant, req.Name, req.SystemPrompt)
	if err != nil {
		h.logger.Error("failed to create agent", "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (h *AgentsHandler) list(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		writeError(w, http.StatusBadRequest, "missing_tenant", "X-Tenant-ID header is required")
		return
	}

	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	// #nosec G115 -- limit and offset are bounded by MaxListLimit and MaxListOffset
	agents, err := h.store.ListAgents(r.Context(), tenant, int32(limit), int32(offset))
	if err != nil {
		h.logger.Error("failed to list agents", "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agents": agents,
		"total":  len(agents),
		"limit":  limit,
		"offset": offset,
	})
}

func (h *AgentsHandler) get(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	id, err := uuid.Parse(r.PathValue("id"))
	if tenant == "" || err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant header and a valid agent id are required")
		return
	}

	agent, getErr := h.store.GetAgent(r.Context(), tenant, id)
	if getErr != nil {
		writeDomainError(w, getErr)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// SetSourcesRequest is the request body for replacing an agent's active
// source set.
type SetSourcesRequest struct {
	SourceIDs []uuid.UUID `json:"source_ids"`
}

func (h *AgentsHandler) setSources(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	id, err := uuid.Parse(r.PathValue("id"))
	if tenant == "" || err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant header and a valid agent id are required")
		return
	}

	var req SetSourcesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	if err := h.store.SetAgentSources(r.Context(), tenant, id, req.SourceIDs); err != nil {
		h.logger.Error("failed to set agent sources", "agent_id", id, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id":   id,
		"source_ids": req.SourceIDs,
	})
}

// ShareAgentRequest is the request body for granting agent access.
type ShareAgentRequest struct {
	Principal   string `json:"principal"`
	AccessLevel string `json:"access_level"`
}

func (h *AgentsHandler) share(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	id, err := uuid.Parse(r.PathValue("id"))
	if tenant == "" || err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant header and a valid agent id are required")
		return
	}

	var req ShareAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if req.Principal == "" {
		writeError(w, http.StatusBadRequest, "invalid_principal", "principal is required")
		return
	}
	if req.AccessLevel != catalog.AccessView && req.AccessLevel != catalog.AccessUse {
		writeError(w, http.StatusBadRequest, "invalid_access_level", "access_level must be view or use")
		return
	}

	if err := h.store.ShareAgent(r.Context(), tenant, id, req.Principal, req.AccessLevel); err != nil {
		h.logger.Error("failed to share agent", "agent_id", id, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id":     id,
		"principal":    req.Principal,
		"access_level": req.AccessLevel,
	})
}

func (h *AgentsHandler) messages(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	id, err := uuid.Parse(r.PathValue("id"))
	if tenant == "" || err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "tenant header and a valid agent id are required")
		return
	}

	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)

	// Verify visibility before reading history.
	if _, err := h.store.GetAgent(r.Context(), tenant, id); err != nil {
		writeDomainError(w, err)
		return
	}

	// #nosec G115 -- limit is bounded by MaxListLimit
	msgs, err := h.store.ListMessages(r.Context(), tenant, id, int32(limit))
	if err != nil {
		h.logger.Error("failed to list messages", "agent_id", id, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"total":    len(msgs),
	})
}
