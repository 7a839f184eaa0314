// Package provider implements the backend adapters of the gateway.
//
// Each supported backend gets one Adapter that translates a canonical
// message list into that backend's completion call and normalizes the reply.
// Adapters are substitutable behind the single Adapter interface; the model
// router picks one by provider tag, so new backends slot in without touching
// the conversation orchestrator.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/agentdeck/agentdeck/pkg/models"
)

// Completion defaults shared by all adapters.
const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1200
)

// Adapter performs one completion call against a backend.
type Adapter interface {
	// Name returns the provider tag this adapter serves.
	Name() models.Provider

	// Complete sends the system prompt and history to the backend and
	// returns the normalized reply. A missing token count is not an error;
	// failed calls return *UpstreamError.
	Complete(ctx context.Context, credential, modelID, systemPrompt string, history []models.ChatMessage) (*models.Completion, error)
}

// UpstreamError carries a backend failure to the caller. StatusCode is zero
// for transport-level failures (connection refused, timeout).
type UpstreamError struct {
	Provider   models.Provider
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: upstream call failed: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: upstream status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Registry holds the configured adapters, keyed by provider tag.
type Registry struct {
	adapters map[models.Provider]Adapter
}

// NewRegistry creates a registry with the built-in groq, google and openai
// adapters sharing one HTTP client.
func NewRegistry(client *http.Client) *Registry {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	r := &Registry{adapters: make(map[models.Provider]Adapter)}
	r.Register(NewGroqAdapter(client))
	r.Register(NewGoogleAdapter(client))
	r.Register(NewOpenAIAdapter(client))
	return r
}

// Register adds or replaces the adapter for its provider tag.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Get returns the adapter for a provider, or nil when none is registered.
func (r *Registry) Get(p models.Provider) Adapter {
	return r.adapters[p]
}

// buildMessages produces the upstream message list: the trimmed system
// prompt as a leading system turn (when present) followed by the user and
// assistant turns of the history. Stored system-role entries are never
// resent as chat turns.
func buildMessages(systemPrompt string, history []models.ChatMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(history)+1)
	if sys := strings.TrimSpace(systemPrompt); sys != "" {
		out = append(out, models.ChatMessage{Role: models.RoleSystem, Content: sys})
	}
	for _, m := range history {
		if m.Role == models.RoleUser || m.Role == models.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}
