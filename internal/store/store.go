// Package store provides the storage interface and implementations for the
// agentdeck gateway. The in-memory store (with file snapshots) covers local
// use and tests; the PostgreSQL store covers production deployments.
package store

import (
	"context"
	"errors"

	"github.com/agentdeck/agentdeck/pkg/models"
)

// Store is the primary storage interface. All gateway code depends on this
// interface, making it easy to swap between in-memory and PostgreSQL
// implementations.
type Store interface {
	AgentStore
	ConversationStore
	MessageStore
	MetricsStore

	// Ping checks if the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error

	// Migrate prepares the backing schema.
	Migrate(ctx context.Context) error
}

// ── Agent Store ─────────────────────────────────────────────

type AgentStore interface {
	// ListAgents returns all agents, most recently updated first.
	ListAgents(ctx context.Context) ([]models.Agent, error)
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	CreateAgent(ctx context.Context, agent *models.Agent) error
	UpdateAgent(ctx context.Context, agent *models.Agent) error
	DeleteAgent(ctx context.Context, id string) error
}

// ── Conversation Store ──────────────────────────────────────

type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)

	// ListConversationsByAgent returns an agent's conversations, newest first.
	ListConversationsByAgent(ctx context.Context, agentID string) ([]models.Conversation, error)

	// SetConversationTitle stores the derived title. The orchestrator calls
	// this at most once per conversation.
	SetConversationTitle(ctx context.Context, id, title string) error
}

// ── Message Store ───────────────────────────────────────────

type MessageStore interface {
	// AppendMessage persists a message. Messages are immutable once created.
	AppendMessage(ctx context.Context, msg *models.Message) error

	// ListMessages returns a conversation's messages oldest first. A positive
	// limit caps the result to the most recent limit messages (still oldest
	// first); zero returns everything.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
}

// ── Metrics Store ───────────────────────────────────────────

type MetricsStore interface {
	GetMetrics(ctx context.Context, agentID string) (*models.MetricsSnapshot, error)
	ListMetrics(ctx context.Context) ([]models.MetricsSnapshot, error)
	UpsertMetrics(ctx context.Context, snap *models.MetricsSnapshot) error
	DeleteMetrics(ctx context.Context, agentID string) error
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// IsNotFound reports whether err is a store not-found error.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}
