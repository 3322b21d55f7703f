// Package chat runs one conversational turn: retrieve tenant-scoped context
// for an agent, generate a grounded answer, and persist the exchange with
// its citations. Retrieval failures degrade to an uncited answer rather
// than failing the turn.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/cairn-ai/cairn/internal/catalog"
	"github.com/cairn-ai/cairn/internal/log"
	"github.com/cairn-ai/cairn/internal/rag"
)

// DefaultTimeout bounds a full chat turn, retrieval and generation
// included.
const DefaultTimeout = 15 * time.Second

// DefaultSystemPrompt is used when an agent has no prompt of its own.
const DefaultSystemPrompt = "You are a helpful assistant. Ground your answers in the provided context when it is relevant, and say so when it is not."

// AgentStore is the slice of the catalog the chat service needs.
type AgentStore interface {
	GetAgent(ctx context.Context, tenantID string, id uuid.UUID) (*catalog.Agent, error)
	AllowedSourceIDs(ctx context.Context, tenantID string, agentID uuid.UUID) ([]uuid.UUID, error)
	SaveMessage(ctx context.Context, m catalog.Message) (*catalog.Message, error)
}

// Searcher retrieves scored chunks for a query.
type Searcher interface {
	Search(ctx context.Context, req rag.SearchRequest) ([]rag.ScoredChunk, error)
}

// Assembler turns retrieval hits into citations.
type Assembler interface {
	Assemble(ctx context.Context, tenantID string, chunks []rag.ScoredChunk) ([]rag.Reference, error)
}

// Generator produces the model answer. The production implementation is
// Genkit-backed (see generator.go); tests substitute a fake.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, prompt string, docs []*ai.Document) (string, error)
}

// AskRequest is one user question to an agent.
type AskRequest struct {
	TenantID      string
	AgentID       uuid.UUID
	Question      string
	TopK          int
	MinSimilarity float64
}

// Answer is the model reply with any citations that survived assembly.
type Answer struct {
	Text       string          `json:"text"`
	References []rag.Reference `json:"references"`
}

// Service orchestrates chat turns.
type Service struct {
	store     AgentStore
	searcher  Searcher
	assembler Assembler
	generator Generator
	timeout   time.Duration
	logger    log.Logger
}

// NewService creates a chat service. A non-positive timeout falls back to
// DefaultTimeout.
func NewService(store AgentStore, searcher Searcher, assembler Assembler, gen Generator, timeout time.Duration, logger log.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{
		store:     store,
		searcher:  searcher,
		assembler: assembler,
		generator: gen,
		timeout:   timeout,
		logger:    logger,
	}
}

// Ask runs one turn under the service deadline. Retrieval problems are
// logged and the answer goes out without citations; only agent lookup and
// generation failures fail the turn.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	if req.Question == "" {
		return nil, fmt.Errorf("%w: question is required", rag.ErrInvalidRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	agent, err := s.store.GetAgent(ctx, req.TenantID, req.AgentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent: %w", err)
	}

	refs := s.retrieve(ctx, req)

	docs := make([]*ai.Document, 0, len(refs))
	for _, ref := range refs {
		docs = append(docs, ai.DocumentFromText(ref.Preview, map[string]any{
			"source_name": ref.SourceName,
			"source_id":   ref.SourceID.String(),
		}))
	}

	systemPrompt := agent.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	text, err := s.generator.Generate(ctx, systemPrompt, req.Question, docs)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	s.persist(ctx, req, text, refs)

	return &Answer{Text: text, References: refs}, nil
}

// retrieve runs search and assembly, returning no citations on any failure.
// A slow or broken retrieval path must not take chat down with it.
func (s *Service) retrieve(ctx context.Context, req AskRequest) []rag.Reference {
	allowed, err := s.store.AllowedSourceIDs(ctx, req.TenantID, req.AgentID)
	if err != nil {
		s.logger.Warn("allow-list lookup failed, answering without citations",
			"agent_id", req.AgentID, "error", err)
		return []rag.Reference{}
	}

	chunks, err := s.searcher.Search(ctx, rag.SearchRequest{
		TenantID:         req.TenantID,
		Query:            req.Question,
		AllowedSourceIDs: allowed,
		TopK:             req.TopK,
		MinSimilarity:    req.MinSimilarity,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("retrieval timed out, answering without citations", "agent_id", req.AgentID)
		} else {
			s.logger.Warn("retrieval failed, answering without citations",
				"agent_id", req.AgentID, "error", err)
		}
		return []rag.Reference{}
	}

	refs, err := s.assembler.Assemble(ctx, req.TenantID, chunks)
	if err != nil {
		s.logger.Warn("reference assembly failed, answering without citations",
			"agent_id", req.AgentID, "error", err)
		return []rag.Reference{}
	}
	return refs
}

// persist saves the turn. The answer already went to the caller, so a
// storage failure is logged rather than surfaced.
func (s *Service) persist(ctx context.Context, req AskRequest, answer string, refs []rag.Reference) {
	if _, err := s.store.SaveMessage(ctx, catalog.Message{
		AgentID:  req.AgentID,
		TenantID: req.TenantID,
		Role:     "user",
		Content:  req.Question,
	}); err != nil {
		s.logger.Error("failed to save user message", "agent_id", req.AgentID, "error", err)
		return
	}

	refsJSON, err := json.Marshal(refs)
	if err != nil {
		s.logger.Error("failed to marshal references", "error", err)
		refsJSON = []byte("[]")
	}

	if _, err := s.store.SaveMessage(ctx, catalog.Message{
		AgentID:  req.AgentID,
		TenantID: req.TenantID,
		Role:     "assistant",
		Content:  answer,
		Refs:     refsJSON,
	}); err != nil {
		s.logger.Error("failed to save assistant message", "agent_id", req.AgentID, "error", err)
	}
}
