package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentdeck/agentdeck/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PostgresStore implements Store backed by PostgreSQL via pgxpool.
// Selected when DATABASE_URL is configured.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and verifies the connection.
func NewPostgresStore(ctx context.Context, connURL string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	log.Info().Int("max_conns", maxConns).Msg("Postgres store connected")
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS ad_agents (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			system_prompt TEXT NOT NULL DEFAULT '',
			model         TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS ad_conversations (
			id         TEXT PRIMARY KEY,
			agent_id   TEXT NOT NULL REFERENCES ad_agents(id) ON DELETE CASCADE,
			title      TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS ad_messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES ad_conversations(id) ON DELETE CASCADE,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			tokens_used     BIGINT,
			latency_ms      BIGINT,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS ad_metrics (
			agent_id                 TEXT PRIMARY KEY REFERENCES ad_agents(id) ON DELETE CASCADE,
			messages_count           BIGINT NOT NULL DEFAULT 0,
			tokens_processed         BIGINT NOT NULL DEFAULT 0,
			avg_latency_ms           BIGINT NOT NULL DEFAULT 0,
			last_response_latency_ms BIGINT NOT NULL DEFAULT 0,
			updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_ad_conversations_agent ON ad_conversations (agent_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_ad_messages_conversation ON ad_messages (conversation_id, created_at ASC);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// ── Agent Store ─────────────────────────────────────────────

func (s *PostgresStore) ListAgents(ctx context.Context) ([]models.Agent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, system_prompt, model, created_at, updated_at
		FROM ad_agents ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Agent
	for rows.Next() {
		var a models.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.SystemPrompt, &a.Model, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *PostgresStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var a models.Agent
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, system_prompt, model, created_at, updated_at
		FROM ad_agents WHERE id = $1`, id).
		Scan(&a.ID, &a.Name, &a.SystemPrompt, &a.Model, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "agent", Key: id}
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) CreateAgent(ctx context.Context, agent *models.Agent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ad_agents (id, name, system_prompt, model, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		agent.ID, agent.Name, agent.SystemPrompt, agent.Model, agent.CreatedAt, agent.UpdatedAt)
	return err
}

func (s *PostgresStore) UpdateAgent(ctx context.Context, agent *models.Agent) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ad_agents SET name = $2, system_prompt = $3, model = $4, updated_at = $5
		WHERE id = $1`,
		agent.ID, agent.Name, agent.SystemPrompt, agent.Model, agent.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "agent", Key: agent.ID}
	}
	return nil
}

func (s *PostgresStore) DeleteAgent(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ad_agents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "agent", Key: id}
	}
	return nil
}

// ── Conversation Store ──────────────────────────────────────

func (s *PostgresStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ad_conversations (id, agent_id, title, created_at)
		VALUES ($1, $2, $3, $4)`,
		conv.ID, conv.AgentID, conv.Title, conv.CreatedAt)
	return err
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	err := s.pool.QueryRow(ctx, `
		SELECT id, agent_id, title, created_at
		FROM ad_conversations WHERE id = $1`, id).
		Scan(&c.ID, &c.AgentID, &c.Title, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "conversation", Key: id}
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) ListConversationsByAgent(ctx context.Context, agentID string) ([]models.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, agent_id, title, created_at
		FROM ad_conversations WHERE agent_id = $1 ORDER BY created_at DESC`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.AgentID, &c.Title, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *PostgresStore) SetConversationTitle(ctx context.Context, id, title string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE ad_conversations SET title = $2 WHERE id = $1`, id, title)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "conversation", Key: id}
	}
	return nil
}

// ── Message Store ───────────────────────────────────────────

func (s *PostgresStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ad_messages (id, conversation_id, role, content, tokens_used, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.TokensUsed, msg.LatencyMs, msg.CreatedAt)
	return err
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	// The window is the most recent `limit` messages returned oldest first,
	// hence the subquery flip.
	query := `
		SELECT id, conversation_id, role, content, tokens_used, latency_ms, created_at
		FROM ad_messages WHERE conversation_id = $1 ORDER BY created_at ASC, id ASC`
	args := []any{conversationID}
	if limit > 0 {
		query = `
			SELECT id, conversation_id, role, content, tokens_used, latency_ms, created_at
			FROM (
				SELECT id, conversation_id, role, content, tokens_used, latency_ms, created_at
				FROM ad_messages WHERE conversation_id = $1
				ORDER BY created_at DESC, id DESC LIMIT $2
			) recent ORDER BY created_at ASC, id ASC`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.TokensUsed, &m.LatencyMs, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// ── Metrics Store ───────────────────────────────────────────

func (s *PostgresStore) GetMetrics(ctx context.Context, agentID string) (*models.MetricsSnapshot, error) {
	var snap models.MetricsSnapshot
	err := s.pool.QueryRow(ctx, `
		SELECT agent_id, messages_count, tokens_processed, avg_latency_ms, last_response_latency_ms, updated_at
		FROM ad_metrics WHERE agent_id = $1`, agentID).
		Scan(&snap.AgentID, &snap.MessagesCount, &snap.TokensProcessed, &snap.AvgLatencyMs, &snap.LastResponseLatencyMs, &snap.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "metrics", Key: agentID}
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *PostgresStore) ListMetrics(ctx context.Context) ([]models.MetricsSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT agent_id, messages_count, tokens_processed, avg_latency_ms, last_response_latency_ms, updated_at
		FROM ad_metrics ORDER BY agent_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.MetricsSnapshot
	for rows.Next() {
		var snap models.MetricsSnapshot
		if err := rows.Scan(&snap.AgentID, &snap.MessagesCount, &snap.TokensProcessed, &snap.AvgLatencyMs, &snap.LastResponseLatencyMs, &snap.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}

func (s *PostgresStore) UpsertMetrics(ctx context.Context, snap *models.MetricsSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ad_metrics (agent_id, messages_count, tokens_processed, avg_latency_ms, last_response_latency_ms, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (agent_id) DO UPDATE SET
			messages_count = EXCLUDED.messages_count,
			tokens_processed = EXCLUDED.tokens_processed,
			avg_latency_ms = EXCLUDED.avg_latency_ms,
			last_response_latency_ms = EXCLUDED.last_response_latency_ms,
			updated_at = EXCLUDED.updated_at`,
		snap.AgentID, snap.MessagesCount, snap.TokensProcessed, snap.AvgLatencyMs, snap.LastResponseLatencyMs, snap.UpdatedAt)
	return err
}

func (s *PostgresStore) DeleteMetrics(ctx context.Context, agentID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM ad_metrics WHERE agent_id = $1`, agentID)
	return err
}

var _ Store = (*PostgresStore)(nil)
