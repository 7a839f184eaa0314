package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/agentdeck/agentdeck/pkg/models"
)

// ── OpenAI chat-completions wire format ─────────────────────
//
// Groq speaks the same dialect, so both adapters share these DTOs and the
// request helper below.

type chatCompletionsRequest struct {
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

// completeChatCompletions performs one POST /chat/completions call and
// normalizes the reply. Used by the openai and groq adapters.
func completeChatCompletions(ctx context.Context, client *http.Client, name models.Provider, endpoint, apiKey, modelID, systemPrompt string, history []models.ChatMessage) (*models.Completion, error) {
	body, err := json.Marshal(chatCompletionsRequest{
		Model:       modelID,
		Messages:    buildMessages(systemPrompt, history),
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return nil, &UpstreamError{Provider: name, Message: "encode request: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &UpstreamError{Provider: name, Message: "create request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Provider: name, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &UpstreamError{Provider: name, StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var decoded chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &UpstreamError{Provider: name, Message: "decode response: " + err.Error()}
	}

	text := "No response"
	if len(decoded.Choices) > 0 && decoded.Choices[0].Message.Content != "" {
		text = decoded.Choices[0].Message.Content
	}

	completion := &models.Completion{Text: text}
	if decoded.Usage.TotalTokens > 0 {
		tokens := decoded.Usage.TotalTokens
		completion.TokensUsed = &tokens
	}
	return completion, nil
}

// ── OpenAI adapter ──────────────────────────────────────────

const openAIEndpoint = "https://api.openai.com/v1"

// OpenAIAdapter speaks the OpenAI chat-completions API.
type OpenAIAdapter struct {
	endpoint string
	client   *http.Client
}

// NewOpenAIAdapter creates an adapter against the public OpenAI endpoint.
func NewOpenAIAdapter(client *http.Client) *OpenAIAdapter {
	return &OpenAIAdapter{endpoint: openAIEndpoint, client: client}
}

func (a *OpenAIAdapter) Name() models.Provider { return models.ProviderOpenAI }

func (a *OpenAIAdapter) Complete(ctx context.Context, credential, modelID, systemPrompt string, history []models.ChatMessage) (*models.Completion, error) {
	return completeChatCompletions(ctx, a.client, a.Name(), a.endpoint, credential, modelID, systemPrompt, history)
}
