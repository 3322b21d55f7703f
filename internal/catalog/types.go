package catalog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Source indexing status values. Transitions: unindexed → indexing →
// indexed | failed; failed → indexing on retry; deleted is a soft delete.
const (
	StatusUnindexed = "unindexed"
	StatusIndexing  = "indexing"
	StatusIndexed   = "indexed"
	StatusFailed    = "failed"
	StatusDeleted   = "deleted"
)

// Agent share access levels.
const (
	AccessView = "view"
	AccessUse  = "use"
)

// Source is a document uploaded by a tenant. ExtractedText is the plain
// text the indexer chunks; extraction happens upstream of this service.
type Source struct {
	ID            uuid.UUID `json:"id"`
	TenantID      string    `json:"tenant_id"`
	Name          string    `json:"name"`
	ExtractedText string    `json:"extracted_text,omitempty"`
	Status        string    `json:"status"`
	ChunkCount    int       `json:"chunk_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ChunkRecord is the operational copy of an indexed chunk. The embedding is
// kept here as well so missing analytical rows can be replayed.
type ChunkRecord struct {
	ID         uuid.UUID `json:"id"`
	SourceID   uuid.UUID `json:"source_id"`
	TenantID   string    `json:"tenant_id"`
	ChunkIndex int       `json:"chunk_index"`
	StartChar  int       `json:"start_char"`
	EndChar    int       `json:"end_char"`
	Text       string    `json:"text"`
	TokenCount int       `json:"token_count"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// Agent is a chat agent owned by a tenant. Its active sources live in the
// agent_sources join table.
type Agent struct {
	ID           uuid.UUID `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Name         string    `json:"name"`
	SystemPrompt string    `json:"system_prompt"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Share grants a principal access to an agent.
type Share struct {
	AgentID     uuid.UUID `json:"agent_id"`
	Principal   string    `json:"principal"`
	AccessLevel string    `json:"access_level"`
	CreatedAt   time.Time `json:"created_at"`
}

// Message is one turn of an agent conversation, with any citations the
// assistant reply carried. Refs is raw JSON so the stored array passes
// through API responses as-is instead of base64-encoded bytes.
type Message struct {
	ID        uuid.UUID       `json:"id"`
	AgentID   uuid.UUID       `json:"agent_id"`
	TenantID  string          `json:"tenant_id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Refs      json.RawMessage `json:"refs,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
