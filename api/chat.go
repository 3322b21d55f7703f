package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/cairn-ai/cairn/internal/chat"
	"github.com/cairn-ai/cairn/internal/log"
)

// MaxQuestionLength bounds a chat question.
const MaxQuestionLength = 10_000

// ChatService runs one conversational turn.
type ChatService interface {
	Ask(ctx context.Context, req chat.AskRequest) (*chat.Answer, error)
}

// ChatHandler handles the chat endpoint.
type ChatHandler struct {
	service       ChatService
	topK          int
	minSimilarity float64
	logger        log.Logger
}

// NewChatHandler creates a chat handler. topK and minSimilarity are the
// retrieval defaults applied when a request leaves them unset.
func NewChatHandler(service ChatService, topK int, minSimilarity float64, logger log.Logger) *ChatHandler {
	return &ChatHandler{
		service:       service,
		topK:          topK,
		minSimilarity: minSimilarity,
		logger:        logger,
	}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.ask)
}

// ChatRequest is the request body for one chat turn. MinSimilarity is a
// pointer so an omitted field falls back to the configured default while
// an explicit 0 is honored.
type ChatRequest struct {
	AgentID       string   `json:"agent_id"`
	Question      string   `json:"question"`
	TopK          int      `json:"top_k"`
	MinSimilarity *float64 `json:"min_similarity"`
}

func (h *ChatHandler) ask(w http.ResponseWriter, r *http.Request) {
	tenant := tenantID(r)
	if tenant == "" {
		writeError(w, http.StatusBadRequest, "missing_tenant", "X-Tenant-ID header is required")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if req.Question == "" || len(req.Question) > MaxQuestionLength {
		writeError(w, http.StatusBadRequest, "invalid_question", "question is required and must be at most 10000 characters")
		return
	}
	agentID, err := uuid.Parse(req.AgentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_agent_id", "agent_id must be a valid UUID")
		return
	}

	topK := req.TopK
	if topK <= 0 {
		topK = h.topK
	}
	minSimilarity := h.minSimilarity
	if req.MinSimilarity != nil {
		minSimilarity = *req.MinSimilarity
	}

	answer, err := h.service.Ask(r.Context(), chat.AskRequest{
		TenantID:      tenant,
		AgentID:       agentID,
		Question:      req.Question,
		TopK:          topK,
		MinSimilarity: minSimilarity,
	})
	if err != nil {
		h.logger.Error("chat turn failed", "agent_id", agentID, "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}
