package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateAgent inserts a new agent for the tenant.
func (s *Store) CreateAgent(ctx context.Context, tenantID, name, systemPrompt string) (*Agent, error) {
	const q = `
		INSERT INTO agents (tenant_id, name, system_prompt)
		VALUES ($1, $2, $3)
		RETURNING id, tenant_id, name, system_prompt, created_at, updated_at`

	var a Agent
	err := s.db.QueryRow(ctx, q, tenantID, name, systemPrompt).Scan(
		&a.ID, &a.TenantID, &a.Name, &a.SystemPrompt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	return &a, nil
}

// GetAgent returns an agent the tenant owns or has been granted access to.
func (s *Store) GetAgent(ctx context.Context, tenantID string, id uuid.UUID) (*Agent, error) {
	const q = `
		SELECT a.id, a.tenant_id, a.name, a.system_prompt, a.created_at, a.updated_at
		FROM agents a
		WHERE a.id = $1
		  AND (a.tenant_id = $2 OR EXISTS (
			SELECT 1 FROM agent_shares sh
			WHERE sh.agent_id = a.id AND sh.principal = $2))`

	var a Agent
	err := s.db.QueryRow(ctx, q, id, tenantID).Scan(
		&a.ID, &a.TenantID, &a.Name, &a.SystemPrompt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent %s: %w", id, err)
	}
	return &a, nil
}

// ListAgents returns agents the tenant owns, newest first.
func (s *Store) ListAgents(ctx context.Context, tenantID string, limit, offset int32) ([]Agent, error) {
	const q = `
		SELECT id, tenant_id, name, system_prompt, created_at, updated_at
		FROM agents
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.Query(ctx, q, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Name, &a.SystemPrompt,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read agents: %w", err)
	}
	return agents, nil
}

// SetAgentSources replaces the agent's active source set. The join table is
// rewritten in place; sources the tenant does not own are rejected.
func (s *Store) SetAgentSources(ctx context.Context, tenantID string, agentID uuid.UUID, sourceIDs []uuid.UUID) error {
	if _, err := s.GetAgent(ctx, tenantID, agentID); err != nil {
		return err
	}

	if len(sourceIDs) > 0 {
		var owned int
		err := s.db.QueryRow(ctx,
			`SELECT COUNT(*) FROM sources WHERE tenant_id = $1 AND id = ANY($2) AND status <> 'deleted'`,
			tenantID, sourceIDs).Scan(&owned)
		if err != nil {
			return fmt.Errorf("failed to verify source ownership: %w", err)
		}
		if owned != len(sourceIDs) {
			return fmt.Errorf("source set contains unknown ids: %w", ErrNotFound)
		}
	}

	if _, err := s.db.Exec(ctx,
		`DELETE FROM agent_sources WHERE agent_id = $1`, agentID); err != nil {
		return fmt.Errorf("failed to clear agent sources: %w", err)
	}

	batch := &pgx.Batch{}
	for _, sid := range sourceIDs {
		batch.Queue(`INSERT INTO agent_sources (agent_id, source_id) VALUES ($1, $2)`, agentID, sid)
	}
	br := s.db.SendBatch(ctx, batch)
	defer br.Close()
	for range sourceIDs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to set agent sources: %w", err)
		}
	}

	s.logger.Debug("updated agent sources", "agent_id", agentID, "count", len(sourceIDs))
	return nil
}

// ShareAgent grants a principal access to an agent at the given level.
// Re-sharing updates the level.
func (s *Store) ShareAgent(ctx context.Context, tenantID string, agentID uuid.UUID, principal, level string) error {
	if level != AccessView && level != AccessUse {
		return fmt.Errorf("invalid access level %q", level)
	}

	// Only the owner may share
	var ownerID uuid.UUID
	err := s.db.QueryRow(ctx,
		`SELECT id FROM agents WHERE id = $1 AND tenant_id = $2`, agentID, tenantID).Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check agent owner: %w", err)
	}

	const q = `
		INSERT INTO agent_shares (agent_id, principal, access_level)
		VALUES ($1, $2, $3)
		ON CONFLICT (agent_id, principal) DO UPDATE SET access_level = EXCLUDED.access_level`

	if _, err := s.db.Exec(ctx, q, agentID, principal, level); err != nil {
		return fmt.Errorf("failed to share agent %s: %w", agentID, err)
	}
	return nil
}

// AllowedSourceIDs returns the effective retrieval allow-list for an agent
// query: its active sources, restricted to indexed ones visible to the
// calling tenant. An agent with no active sources yields an empty list.
func (s *Store) AllowedSourceIDs(ctx context.Context, tenantID string, agentID uuid.UUID) ([]uuid.UUID, error) {
	if _, err := s.GetAgent(ctx, tenantID, agentID); err != nil {
		return nil, err
	}

	const q = `
		SELECT src.id
		FROM agent_sources asrc
		JOIN sources src ON src.id = asrc.source_id
		WHERE asrc.agent_id = $1 AND src.status <> 'deleted'`

	rows, err := s.db.Query(ctx, q, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent allow-list: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan source id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read allow-list: %w", err)
	}
	return ids, nil
}

// SaveMessage appends a chat message with its citations serialized as JSON.
func (s *Store) SaveMessage(ctx context.Context, m Message) (*Message, error) {
	if len(m.Refs) == 0 {
		m.Refs = []byte("[]")
	}

	const q = `
		INSERT INTO messages (agent_id, tenant_id, role, content, refs)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := s.db.QueryRow(ctx, q, m.AgentID, m.TenantID, m.Role, m.Content, m.Refs).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	return &m, nil
}

// ListMessages returns an agent's conversation history, oldest first.
func (s *Store) ListMessages(ctx context.Context, tenantID string, agentID uuid.UUID, limit int32) ([]Message, error) {
	const q = `
		SELECT id, agent_id, tenant_id, role, content, refs, created_at
		FROM messages
		WHERE agent_id = $1 AND tenant_id = $2
		ORDER BY created_at
		LIMIT $3`

	rows, err := s.db.Query(ctx, q, agentID, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.AgentID, &m.TenantID, &m.Role,
			&m.Content, &m.Refs, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return msgs, nil
}
