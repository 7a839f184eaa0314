// Package chat orchestrates a conversational exchange: persist the user
// turn, assemble the provider request from history, call the backend, and
// persist the assistant reply with its usage figures.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/agentdeck/agentdeck/internal/metrics"
	"github.com/agentdeck/agentdeck/internal/provider"
	"github.com/agentdeck/agentdeck/internal/router"
	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// historyWindow is how many recent messages travel upstream per request.
	historyWindow = 30

	// titleMaxLen caps derived conversation titles.
	titleMaxLen = 50
)

// ValidationError reports malformed client input. Maps to HTTP 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// Result is one completed exchange.
type Result struct {
	Conversation *models.Conversation `json:"conversation"`
	UserMessage  *models.Message      `json:"userMessage"`
	Assistant    *models.Message      `json:"assistantMessage"`
}

// Orchestrator runs exchanges against the configured stores and backends.
type Orchestrator struct {
	store    store.Store
	router   *router.Router
	registry *provider.Registry
	agg      *metrics.Aggregator
	timeout  time.Duration
}

// NewOrchestrator wires the exchange pipeline. timeout bounds each upstream
// call; zero means no bound beyond the HTTP client's own.
func NewOrchestrator(s store.Store, r *router.Router, reg *provider.Registry, agg *metrics.Aggregator, timeout time.Duration) *Orchestrator {
	return &Orchestrator{store: s, router: r, registry: reg, agg: agg, timeout: timeout}
}

// Exchange runs one turn inside an existing conversation.
func (o *Orchestrator) Exchange(ctx context.Context, conversationID, content string) (*Result, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &ValidationError{Field: "content", Reason: "must not be empty"}
	}

	conv, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	agent, err := o.store.GetAgent(ctx, conv.AgentID)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, agent, conv, content)
}

// StartExchange runs one turn for an agent, creating the conversation first
// when no conversationID is supplied. This is the direct chat path.
func (o *Orchestrator) StartExchange(ctx context.Context, agentID, conversationID, content string) (*Result, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &ValidationError{Field: "content", Reason: "must not be empty"}
	}

	agent, err := o.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	// A missing or foreign conversation id starts a fresh thread instead of
	// failing the exchange.
	var conv *models.Conversation
	if conversationID != "" {
		conv, err = o.store.GetConversation(ctx, conversationID)
		if err != nil && !store.IsNotFound(err) {
			return nil, err
		}
		if conv != nil && conv.AgentID != agent.ID {
			conv = nil
		}
	}
	if conv == nil {
		conv = &models.Conversation{
			ID:        uuid.NewString(),
			AgentID:   agent.ID,
			CreatedAt: time.Now().UTC(),
		}
		if err := o.store.CreateConversation(ctx, conv); err != nil {
			return nil, err
		}
	}
	return o.run(ctx, agent, conv, content)
}

// run executes the shared exchange pipeline. content is already validated.
func (o *Orchestrator) run(ctx context.Context, agent *models.Agent, conv *models.Conversation, content string) (*Result, error) {
	// The title is derived from the first user message, exactly once.
	if conv.Title == nil {
		title := MakeTitle(content)
		if err := o.store.SetConversationTitle(ctx, conv.ID, title); err != nil {
			return nil, err
		}
		conv.Title = &title
	}

	userMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	if err := o.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	history, err := o.store.ListMessages(ctx, conv.ID, historyWindow)
	if err != nil {
		return nil, err
	}

	target, err := o.router.Resolve(agent.Model)
	if err != nil {
		return nil, err
	}
	adapter := o.registry.Get(target.Provider)
	if adapter == nil {
		return nil, &router.ConfigError{Provider: target.Provider, Reason: "no adapter registered"}
	}

	callCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	completion, err := adapter.Complete(callCtx, target.Credential, target.ModelID, agent.SystemPrompt, toChatHistory(history))
	latency := time.Since(start).Milliseconds()
	if err != nil {
		// Failures surface as typed errors; no synthetic assistant message
		// is written, so the conversation record stays truthful.
		log.Warn().
			Err(err).
			Str("agent_id", agent.ID).
			Str("provider", string(target.Provider)).
			Int64("latency_ms", latency).
			Msg("Upstream completion failed")
		return nil, err
	}

	assistantMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        completion.Text,
		TokensUsed:     completion.TokensUsed,
		LatencyMs:      &latency,
		CreatedAt:      time.Now().UTC(),
	}
	if err := o.store.AppendMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}

	var tokens int64
	if completion.TokensUsed != nil {
		tokens = *completion.TokensUsed
	}
	if err := o.agg.Record(ctx, agent.ID, tokens, latency); err != nil {
		// Metrics are best effort; the exchange itself succeeded.
		log.Error().Err(err).Str("agent_id", agent.ID).Msg("Failed to record metrics")
	}

	log.Info().
		Str("agent_id", agent.ID).
		Str("conversation_id", conv.ID).
		Str("provider", string(target.Provider)).
		Str("model", target.ModelID).
		Int64("latency_ms", latency).
		Int64("tokens", tokens).
		Msg("Exchange completed")

	return &Result{Conversation: conv, UserMessage: userMsg, Assistant: assistantMsg}, nil
}

// toChatHistory maps stored messages to the provider-facing shape, keeping
// only user and assistant turns.
func toChatHistory(msgs []models.Message) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			continue
		}
		out = append(out, models.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// MakeTitle derives a conversation title from the first user message:
// whitespace collapses to single spaces and anything past the cap is
// replaced with an ellipsis.
func MakeTitle(content string) string {
	collapsed := strings.Join(strings.Fields(content), " ")
	runes := []rune(collapsed)
	if len(runes) <= titleMaxLen {
		return collapsed
	}
	return string(runes[:titleMaxLen]) + "…"
}
