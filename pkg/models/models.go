// Package models defines the shared domain types for the agentdeck gateway.
//
// Field names in JSON follow the public API contract (camelCase), which the
// dashboard and any other API consumers depend on.
package models

import "time"

// ── Providers ────────────────────────────────────────────────

// Provider identifies a supported LLM backend.
type Provider string

const (
	ProviderGroq   Provider = "groq"
	ProviderGoogle Provider = "google"
	ProviderOpenAI Provider = "openai"
)

// KnownProviders is the fixed set of backends the gateway can route to,
// in the order they appear in capability responses.
var KnownProviders = []Provider{ProviderGroq, ProviderGoogle, ProviderOpenAI}

// IsKnownProvider reports whether name is one of the supported backends.
func IsKnownProvider(name string) bool {
	for _, p := range KnownProviders {
		if string(p) == name {
			return true
		}
	}
	return false
}

// ── Agent ────────────────────────────────────────────────────

// Agent is a stored assistant definition. Model holds either a canonical
// "provider/modelId" identifier or, for agents created before canonical
// identifiers existed, a raw provider API key (legacy format).
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	SystemPrompt string    `json:"systemPrompt"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ── Conversation ─────────────────────────────────────────────

// Conversation groups the messages of one chat thread with an agent.
// Title is nil until the first user message derives it.
type Conversation struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agentId"`
	Title     *string   `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// ── Message ──────────────────────────────────────────────────

// Role tags who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single immutable chat turn. TokensUsed and LatencyMs are only
// set on assistant messages, and TokensUsed only when the backend reported it.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	TokensUsed     *int64    `json:"tokensUsed"`
	LatencyMs      *int64    `json:"latencyMs"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ChatMessage is the provider-facing shape of a chat turn.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ── Capabilities ─────────────────────────────────────────────

// ModelOption is one selectable model in the capability catalog.
// Value is the canonical "provider/modelId" identifier.
type ModelOption struct {
	Value       string `json:"value"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// CapabilityEntry is the derived per-provider view of what is usable right
// now given configuration and credential presence. Recomputed on every query.
type CapabilityEntry struct {
	Enabled        bool          `json:"enabled"`
	Models         []ModelOption `json:"models"`
	ReasonDisabled string        `json:"reasonDisabled,omitempty"`
}

// Capabilities maps every known provider to its catalog entry.
type Capabilities struct {
	Providers map[Provider]CapabilityEntry `json:"providers"`
}

// HasModel reports whether the canonical pair provider/modelID is present in
// an enabled provider's model list.
func (c Capabilities) HasModel(provider Provider, modelID string) bool {
	entry, ok := c.Providers[provider]
	if !ok || !entry.Enabled {
		return false
	}
	value := string(provider) + "/" + modelID
	for _, m := range entry.Models {
		if m.Value == value {
			return true
		}
	}
	return false
}

// FirstModelID returns the bare model id of the first catalog entry for a
// provider, or "" when the provider is disabled or empty.
func (c Capabilities) FirstModelID(provider Provider) string {
	entry, ok := c.Providers[provider]
	if !ok || !entry.Enabled || len(entry.Models) == 0 {
		return ""
	}
	prefix := string(provider) + "/"
	v := entry.Models[0].Value
	if len(v) > len(prefix) && v[:len(prefix)] == prefix {
		return v[len(prefix):]
	}
	return v
}

// ── Metrics ──────────────────────────────────────────────────

// AllAgents is the synthetic agent id of the cross-agent composite snapshot.
const AllAgents = "ALL"

// MetricsSnapshot holds the rolling usage counters for one agent, or the
// "ALL" composite. MessagesCount moves in pairs: one user plus one assistant
// message per exchange.
type MetricsSnapshot struct {
	AgentID               string    `json:"agentId"`
	MessagesCount         int64     `json:"messagesCount"`
	TokensProcessed       int64     `json:"tokensProcessed"`
	AvgLatencyMs          int64     `json:"avgLatencyMs"`
	LastResponseLatencyMs int64     `json:"lastResponseLatencyMs"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// Exchanges returns the number of completed exchanges this snapshot covers.
func (s MetricsSnapshot) Exchanges() int64 {
	return s.MessagesCount / 2
}

// ── Completion ───────────────────────────────────────────────

// Completion is a normalized provider reply. TokensUsed is nil when the
// backend did not report usage.
type Completion struct {
	Text       string `json:"text"`
	TokensUsed *int64 `json:"tokensUsed,omitempty"`
}
