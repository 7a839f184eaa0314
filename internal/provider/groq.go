package provider

import (
	"context"
	"net/http"

	"github.com/agentdeck/agentdeck/pkg/models"
)

// Groq exposes an OpenAI-compatible surface under its own host.
const groqEndpoint = "https://api.groq.com/openai/v1"

// GroqAdapter speaks Groq's OpenAI-compatible chat-completions API.
type GroqAdapter struct {
	endpoint string
	client   *http.Client
}

// NewGroqAdapter creates an adapter against the public Groq endpoint.
func NewGroqAdapter(client *http.Client) *GroqAdapter {
	return &GroqAdapter{endpoint: groqEndpoint, client: client}
}

func (a *GroqAdapter) Name() models.Provider { return models.ProviderGroq }

func (a *GroqAdapter) Complete(ctx context.Context, credential, modelID, systemPrompt string, history []models.ChatMessage) (*models.Completion, error) {
	return completeChatCompletions(ctx, a.client, a.Name(), a.endpoint, credential, modelID, systemPrompt, history)
}
