package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/cairn-ai/cairn/internal/catalog"
	"github.com/cairn-ai/cairn/internal/chat"
	"github.com/cairn-ai/cairn/internal/log"
	"github.com/cairn-ai/cairn/internal/rag"
)

type mockChatService struct {
	callCount int
	lastReq   chat.AskRequest
	answer    *chat.Answer
	err       error
}

func (m *mockChatService) Ask(_ context.Context, req chat.AskRequest) (*chat.Answer, error) {
	m.callCount++
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.answer, nil
}

func TestChatValidation(t *testing.T) {
	agentID := uuid.NewString()

	tests := []struct {
		name       string
		tenant     string
		body       string
		wantStatus int
	}{
		{"missing tenant", "", fmt.Sprintf(`{"agent_id":%q,"question":"hi"}`, agentID), http.StatusBadRequest},
		{"empty question", "tenant-a", fmt.Sprintf(`{"agent_id":%q,"question":""}`, agentID), http.StatusBadRequest},
		{"bad agent id", "tenant-a", `{"agent_id":"nope","question":"hi"}`, http.StatusBadRequest},
		{"valid", "tenant-a", fmt.Sprintf(`{"agent_id":%q,"question":"hi"}`, agentID), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockChatService{answer: &chat.Answer{Text: "hello", References: []rag.Reference{}}}
			h := NewChatHandler(svc, 5, 0.3, log.NewNop())

			rec := doRequest(t, h, http.MethodPost, "/api/chat", tt.tenant, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestChatAppliesRetrievalDefaults(t *testing.T) {
	svc := &mockChatService{answer: &chat.Answer{Text: "hello"}}
	h := NewChatHandler(svc, 5, 0.3, log.NewNop())

	body := fmt.Sprintf(`{"agent_id":%q,"question":"what is a cairn?"}`, uuid.NewString())
	rec := doRequest(t, h, http.MethodPost, "/api/chat", "tenant-a", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if svc.lastReq.TopK != 5 {
		t.Errorf("TopK = %d, want default 5", svc.lastReq.TopK)
	}
	if svc.lastReq.MinSimilarity != 0.3 {
		t.Errorf("MinSimilarity = %v, want default 0.3", svc.lastReq.MinSimilarity)
	}
}

func TestChatHonorsExplicitMinSimilarity(t *testing.T) {
	tests := []struct {
		name string
		body string
		want float64
	}{
		{"explicit threshold", `"min_similarity":0.7,`, 0.7},
		{"explicit zero", `"min_similarity":0,`, 0},
		{"omitted falls back", ``, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockChatService{answer: &chat.Answer{Text: "hello"}}
			h := NewChatHandler(svc, 5, 0.3, log.NewNop())

			body := fmt.Sprintf(`{"agent_id":%q,%s"question":"hi"}`, uuid.NewString(), tt.body)
			rec := doRequest(t, h, http.MethodPost, "/api/chat", "tenant-a", body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
			}
			if svc.lastReq.MinSimilarity != tt.want {
				t.Errorf("MinSimilarity = %v, want %v", svc.lastReq.MinSimilarity, tt.want)
			}
		})
	}
}

func TestChatRespondsWithAnswer(t *testing.T) {
	refs := []rag.Reference{{ChunkID: uuid.New(), SourceID: uuid.New(), SourceName: "trail-guide.pdf", Similarity: 0.8}}
	svc := &mockChatService{answer: &chat.Answer{Text: "a stack of stones", References: refs}}
	h := NewChatHandler(svc, 5, 0.3, log.NewNop())

	body := fmt.Sprintf(`{"agent_id":%q,"question":"what is a cairn?","top_k":3}`, uuid.NewString())
	rec := doRequest(t, h, http.MethodPost, "/api/chat", "tenant-a", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if svc.lastReq.TopK != 3 {
		t.Errorf("TopK = %d, want explicit 3", svc.lastReq.TopK)
	}

	var answer chat.Answer
	if err := json.Unmarshal(rec.Body.Bytes(), &answer); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if answer.Text != "a stack of stones" {
		t.Errorf("text = %q, want %q", answer.Text, "a stack of stones")
	}
	if len(answer.References) != 1 || answer.References[0].SourceName != "trail-guide.pdf" {
		t.Errorf("references = %+v, want one citation of trail-guide.pdf", answer.References)
	}
}

func TestChatAgentNotFound(t *testing.T) {
	svc := &mockChatService{err: fmt.Errorf("failed to load agent: %w", catalog.ErrNotFound)}
	h := NewChatHandler(svc, 5, 0.3, log.NewNop())

	body := fmt.Sprintf(`{"agent_id":%q,"question":"hi"}`, uuid.NewString())
	rec := doRequest(t, h, http.MethodPost, "/api/chat", "tenant-a", body)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
