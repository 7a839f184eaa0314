// Package handlers implements the HTTP handlers for the agentdeck gateway.
// All handlers go through the Store interface and the chat orchestrator;
// typed errors from the lower layers decide the response status.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/agentdeck/agentdeck/internal/capability"
	"github.com/agentdeck/agentdeck/internal/chat"
	"github.com/agentdeck/agentdeck/internal/metrics"
	"github.com/agentdeck/agentdeck/internal/provider"
	"github.com/agentdeck/agentdeck/internal/router"
	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store        store.Store
	Orchestrator *chat.Orchestrator
	Resolver     *capability.Resolver
	Aggregator   *metrics.Aggregator
	Publisher    *metrics.Publisher
}

// New creates a Handlers instance with all dependencies.
func New(s store.Store, orch *chat.Orchestrator, res *capability.Resolver, agg *metrics.Aggregator, pub *metrics.Publisher) *Handlers {
	return &Handlers{
		Store:        s,
		Orchestrator: orch,
		Resolver:     res,
		Aggregator:   agg,
		Publisher:    pub,
	}
}

// ── Agent Handlers ───────────────────────────────────────────

type agentRequest struct {
	Name         *string `json:"name"`
	SystemPrompt *string `json:"systemPrompt"`
	Model        *string `json:"model"`
}

func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Store.ListAgents(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if agents == nil {
		agents = []models.Agent{}
	}
	respondJSON(w, http.StatusOK, agents)
}

func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Model == nil || strings.TrimSpace(*req.Model) == "" {
		respondError(w, http.StatusBadRequest, "model is required")
		return
	}

	now := time.Now().UTC()
	agent := models.Agent{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(*req.Name),
		Model:     strings.TrimSpace(*req.Model),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.SystemPrompt != nil {
		agent.SystemPrompt = *req.SystemPrompt
	}

	if err := h.Store.CreateAgent(r.Context(), &agent); err != nil {
		respondStoreError(w, err)
		return
	}
	// New agents start with an empty metrics row so metrics queries never
	// miss for a known agent.
	if err := h.Aggregator.Seed(r.Context(), agent.ID); err != nil {
		log.Error().Err(err).Str("agent_id", agent.ID).Msg("Failed to seed metrics")
	}

	log.Info().Str("agent", agent.Name).Str("id", agent.ID).Msg("Agent created")
	respondJSON(w, http.StatusCreated, agent)
}

func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.Store.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (h *Handlers) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == nil && req.SystemPrompt == nil && req.Model == nil {
		respondError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	agent, err := h.Store.GetAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			respondError(w, http.StatusBadRequest, "name must not be empty")
			return
		}
		agent.Name = strings.TrimSpace(*req.Name)
	}
	if req.SystemPrompt != nil {
		agent.SystemPrompt = *req.SystemPrompt
	}
	if req.Model != nil {
		if strings.TrimSpace(*req.Model) == "" {
			respondError(w, http.StatusBadRequest, "model must not be empty")
			return
		}
		agent.Model = strings.TrimSpace(*req.Model)
	}
	agent.UpdatedAt = time.Now().UTC()

	if err := h.Store.UpdateAgent(r.Context(), agent); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if err := h.Store.DeleteAgent(r.Context(), agentID); err != nil {
		respondStoreError(w, err)
		return
	}
	if err := h.Aggregator.Drop(r.Context(), agentID); err != nil {
		log.Error().Err(err).Str("agent_id", agentID).Msg("Failed to drop metrics")
	}
	log.Info().Str("id", agentID).Msg("Agent deleted")
	w.WriteHeader(http.StatusNoContent)
}

// ── Conversation Handlers ────────────────────────────────────

func (h *Handlers) ListConversations(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if _, err := h.Store.GetAgent(r.Context(), agentID); err != nil {
		respondStoreError(w, err)
		return
	}
	convs, err := h.Store.ListConversationsByAgent(r.Context(), agentID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	respondJSON(w, http.StatusOK, convs)
}

func (h *Handlers) CreateConversation(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if _, err := h.Store.GetAgent(r.Context(), agentID); err != nil {
		respondStoreError(w, err)
		return
	}

	conv := models.Conversation{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.CreateConversation(r.Context(), &conv); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, conv)
}

func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if _, err := h.Store.GetConversation(r.Context(), conversationID); err != nil {
		respondStoreError(w, err)
		return
	}
	msgs, err := h.Store.ListMessages(r.Context(), conversationID, 0)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	respondJSON(w, http.StatusOK, msgs)
}

// ── Chat Handlers ────────────────────────────────────────────

type sendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage runs one exchange inside an existing conversation.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.Orchestrator.Exchange(r.Context(), chi.URLParam(r, "conversationID"), req.Content)
	if err != nil {
		respondExchangeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type directChatRequest struct {
	AgentID        string `json:"agentId"`
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

// DirectChat runs one exchange for an agent, creating the conversation when
// none is supplied.
func (h *Handlers) DirectChat(w http.ResponseWriter, r *http.Request) {
	var req directChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.AgentID) == "" {
		respondError(w, http.StatusBadRequest, "agentId is required")
		return
	}

	res, err := h.Orchestrator.StartExchange(r.Context(), req.AgentID, req.ConversationID, req.Content)
	if err != nil {
		respondExchangeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// ── Capability Handlers ──────────────────────────────────────

type capabilitiesResponse struct {
	Providers map[models.Provider]models.CapabilityEntry `json:"providers"`
	Debug     capabilitiesDebug                          `json:"debug"`
}

type capabilitiesDebug struct {
	ConfigPresent bool                     `json:"configPresent"`
	Credentials   map[models.Provider]bool `json:"credentials"`
}

// GetCapabilities returns the live provider/model catalog plus a debug block
// for diagnosing why a provider is disabled. No secret values leave the
// process.
func (h *Handlers) GetCapabilities(w http.ResponseWriter, r *http.Request) {
	caps := h.Resolver.Current()
	respondJSON(w, http.StatusOK, capabilitiesResponse{
		Providers: caps.Providers,
		Debug: capabilitiesDebug{
			ConfigPresent: h.Resolver.ConfigPresent(),
			Credentials:   h.Resolver.CredentialsPresent(),
		},
	})
}

// ── Metrics Handlers ─────────────────────────────────────────

// GetMetrics returns one agent's metrics row when ?agentId is given, the
// composite row for agentId=ALL, and every row otherwise.
func (h *Handlers) GetMetrics(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agentId")

	switch agentID {
	case "":
		snaps, err := h.Aggregator.All(r.Context())
		if err != nil {
			respondStoreError(w, err)
			return
		}
		if snaps == nil {
			snaps = []models.MetricsSnapshot{}
		}
		respondJSON(w, http.StatusOK, snaps)
	case models.AllAgents:
		snaps, err := h.Aggregator.All(r.Context())
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, metrics.Composite(snaps))
	default:
		snap, err := h.Aggregator.Snapshot(r.Context(), agentID)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, snap)
	}
}

// StreamMetrics is the SSE push stream.
func (h *Handlers) StreamMetrics(w http.ResponseWriter, r *http.Request) {
	h.Publisher.ServeHTTP(w, r)
}

// ── Response helpers ─────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondStoreError(w http.ResponseWriter, err error) {
	if store.IsNotFound(err) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

// respondExchangeError maps the orchestrator's typed errors to statuses:
// bad input 400, missing entity 404, unresolvable model 422, gateway
// misconfiguration 500, backend failure 502.
func respondExchangeError(w http.ResponseWriter, err error) {
	var (
		ve *chat.ValidationError
		re *router.ResolutionError
		ce *router.ConfigError
		ue *provider.UpstreamError
	)
	switch {
	case errors.As(err, &ve):
		respondError(w, http.StatusBadRequest, ve.Error())
	case store.IsNotFound(err):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &re):
		respondError(w, http.StatusUnprocessableEntity, re.Error())
	case errors.As(err, &ce):
		respondError(w, http.StatusInternalServerError, ce.Error())
	case errors.As(err, &ue):
		respondError(w, http.StatusBadGateway, ue.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
