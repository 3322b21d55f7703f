package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/cairn-ai/cairn/internal/catalog"
	"github.com/cairn-ai/cairn/internal/log"
)

type mockAgentCatalog struct {
	shareCount      int
	lastShareLevel  string
	setSourcesCount int
	lastSourceIDs   []uuid.UUID
	agent           *catalog.Agent
	messages        []catalog.Message
	err             error
}

func (m *mockAgentCatalog) CreateAgent(_ context.Context, tenantID, name, prompt string) (*catalog.Agent, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &catalog.Agent{ID: uuid.New(), TenantID: tenantID, Name: name, SystemPrompt: prompt}, nil
}

func (m *mockAgentCatalog) GetAgent(_ context.Context, _ string, _ uuid.UUID) (*catalog.Agent, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.agent, nil
}

func (m *mockAgentCatalog) ListAgents(_ context.Context, _ string, _, _ int32) ([]catalog.Agent, error) {
	return nil, m.err
}

func (m *mockAgentCatalog) SetAgentSources(_ context.Context, _ string, _ uuid.UUID, ids []uuid.UUID) error {
	m.setSourcesCount++
	m.lastSourceIDs = ids
	return m.err
}

func (m *mockAgentCatalog) ShareAgent(_ context.Context, _ string, _ uuid.UUID, _, level string) error {
	m.shareCount++
	m.lastShareLevel = level
	return m.err
}

func (m *mockAgentCatalog) ListMessages(_ context.Context, _ string, _ uuid.UUID, _ int32) ([]catalog.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.messages, nil
}

func TestCreateAgent(t *testing.T) {
	tests := []struct {
		name       string
		tenant     string
		body       string
		wantStatus int
	}{
		{"valid", "tenant-a", `{"name":"support-bot","system_prompt":"be nice"}`, http.StatusCreated},
		{"missing tenant", "", `{"name":"support-bot"}`, http.StatusBadRequest},
		{"empty name", "tenant-a", `{"name":""}`, http.StatusBadRequest},
		{"malformed body", "tenant-a", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAgentsHandler(&mockAgentCatalog{}, log.NewNop())

			rec := doRequest(t, h, http.MethodPost, "/api/agents", tt.tenant, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestSetAgentSources(t *testing.T) {
	store := &mockAgentCatalog{}
	h := NewAgentsHandler(store, log.NewNop())

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	body := fmt.Sprintf(`{"source_ids":[%q,%q]}`, ids[0], ids[1])
	rec := doRequest(t, h, http.MethodPut, "/api/agents/"+uuid.NewString()+"/sources", "tenant-a", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if store.setSourcesCount != 1 {
		t.Fatalf("setSourcesCount = %d, want 1", store.setSourcesCount)
	}
	if len(store.lastSourceIDs) != 2 {
		t.Errorf("source ids = %v, want 2 entries", store.lastSourceIDs)
	}
}

func TestSetAgentSourcesUnknownSource(t *testing.T) {
	store := &mockAgentCatalog{err: fmt.Errorf("source set contains unknown ids: %w", catalog.ErrNotFound)}
	h := NewAgentsHandler(store, log.NewNop())

	body := fmt.Sprintf(`{"source_ids":[%q]}`, uuid.NewString())
	rec := doRequest(t, h, http.MethodPut, "/api/agents/"+uuid.NewString()+"/sources", "tenant-a", body)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestShareAgent(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantShares int
	}{
		{"view level", `{"principal":"tenant-b","access_level":"view"}`, http.StatusOK, 1},
		{"use level", `{"principal":"tenant-b","access_level":"use"}`, http.StatusOK, 1},
		{"bad level", `{"principal":"tenant-b","access_level":"admin"}`, http.StatusBadRequest, 0},
		{"missing principal", `{"access_level":"view"}`, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockAgentCatalog{}
			h := NewAgentsHandler(store, log.NewNop())

			rec := doRequest(t, h, http.MethodPost, "/api/agents/"+uuid.NewString()+"/shares", "tenant-a", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if store.shareCount != tt.wantShares {
				t.Errorf("shareCount = %d, want %d", store.shareCount, tt.wantShares)
			}
		})
	}
}

func TestListMessagesReturnsRefsAsJSON(t *testing.T) {
	agentID := uuid.New()
	store := &mockAgentCatalog{
		agent: &catalog.Agent{ID: agentID, TenantID: "tenant-a", Name: "support-bot"},
		messages: []catalog.Message{{
			ID:      uuid.New(),
			AgentID: agentID,
			Role:    "assistant",
			Content: "see the handbook",
			Refs:    json.RawMessage(`[{"chunk_id":"x","source_name":"handbook.pdf"}]`),
		}},
	}
	h := NewAgentsHandler(store, log.NewNop())

	rec := doRequest(t, h, http.MethodGet, "/api/agents/"+agentID.String()+"/messages", "tenant-a", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	// refs must come back as the stored JSON array, not an encoded string.
	var resp struct {
		Messages []struct {
			Refs []map[string]any `json:"refs"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Messages) != 1 || len(resp.Messages[0].Refs) != 1 {
		t.Fatalf("messages = %+v, want one message with one reference", resp.Messages)
	}
	if got := resp.Messages[0].Refs[0]["source_name"]; got != "handbook.pdf" {
		t.Errorf("reference source_name = %v, want %q", got, "handbook.pdf")
	}
}

func TestListMessagesChecksVisibility(t *testing.T) {
	store := &mockAgentCatalog{err: fmt.Errorf("agent: %w", catalog.ErrNotFound)}
	h := NewAgentsHandler(store, log.NewNop())

	rec := doRequest(t, h, http.MethodGet, "/api/agents/"+uuid.NewString()+"/messages", "tenant-b", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
