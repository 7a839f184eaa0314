package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/agentdeck/agentdeck/pkg/models"
)

const googleEndpoint = "https://generativelanguage.googleapis.com"

// ── Gemini generateContent wire format ──────────────────────

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int64 `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// GoogleAdapter speaks the Gemini generateContent API. Unlike the
// chat-completions dialects, the system prompt travels in a dedicated
// systemInstruction field and assistant turns use the "model" role.
type GoogleAdapter struct {
	endpoint string
	client   *http.Client
}

// NewGoogleAdapter creates an adapter against the public Gemini endpoint.
func NewGoogleAdapter(client *http.Client) *GoogleAdapter {
	return &GoogleAdapter{endpoint: googleEndpoint, client: client}
}

func (a *GoogleAdapter) Name() models.Provider { return models.ProviderGoogle }

func (a *GoogleAdapter) Complete(ctx context.Context, credential, modelID, systemPrompt string, history []models.ChatMessage) (*models.Completion, error) {
	payload := geminiRequest{
		Contents: toGeminiContents(history),
		GenerationConfig: geminiGenConfig{
			Temperature:     defaultTemperature,
			MaxOutputTokens: defaultMaxTokens,
		},
	}
	if sys := strings.TrimSpace(systemPrompt); sys != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: sys}}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &UpstreamError{Provider: a.Name(), Message: "encode request: " + err.Error()}
	}

	url := a.endpoint + "/v1beta/models/" + modelID + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &UpstreamError{Provider: a.Name(), Message: "create request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", credential)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Provider: a.Name(), Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &UpstreamError{Provider: a.Name(), StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var decoded geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &UpstreamError{Provider: a.Name(), Message: "decode response: " + err.Error()}
	}

	var text strings.Builder
	if len(decoded.Candidates) > 0 {
		for _, part := range decoded.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	out := text.String()
	if out == "" {
		out = "No response"
	}

	completion := &models.Completion{Text: out}
	if decoded.UsageMetadata.TotalTokenCount > 0 {
		tokens := decoded.UsageMetadata.TotalTokenCount
		completion.TokensUsed = &tokens
	}
	return completion, nil
}

// toGeminiContents maps user/assistant turns to Gemini's role vocabulary.
// The system prompt never appears here; it is carried by systemInstruction.
func toGeminiContents(history []models.ChatMessage) []geminiContent {
	out := make([]geminiContent, 0, len(history))
	for _, m := range buildMessages("", history) {
		role := "user"
		if m.Role == models.RoleAssistant {
			role = "model"
		}
		out = append(out, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return out
}
