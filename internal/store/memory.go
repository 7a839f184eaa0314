// In-memory Store implementation. Used when no DATABASE_URL is configured
// (local dev, tests). Supports file-based snapshot persistence so data
// survives restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/agentdeck/agentdeck/pkg/models"
	"github.com/rs/zerolog/log"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Agents        map[string]*models.Agent           `json:"agents"`
	Conversations map[string]*models.Conversation    `json:"conversations"`
	Messages      map[string][]*models.Message       `json:"messages"` // key: conversation id, append order
	Metrics       map[string]*models.MetricsSnapshot `json:"metrics"`  // key: agent id
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu            sync.RWMutex
	agents        map[string]*models.Agent
	conversations map[string]*models.Conversation
	messages      map[string][]*models.Message
	metrics       map[string]*models.MetricsSnapshot

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals the save goroutine to stop
	closeOnce    sync.Once
}

// NewMemoryStore creates a new in-memory store. If AGENTDECK_DATA_DIR is set,
// data is persisted to a JSON file in that directory; otherwise persistence
// is disabled.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		agents:        make(map[string]*models.Agent),
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]*models.Message),
		metrics:       make(map[string]*models.MetricsSnapshot),
		saveCh:        make(chan struct{}, 1),
		doneCh:        make(chan struct{}),
	}

	if dataDir := os.Getenv("AGENTDECK_DATA_DIR"); dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop debounces save requests (max one write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond)
			m.saveSnapshot()
		}
	}
}

func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		Agents:        m.agents,
		Conversations: m.conversations,
		Messages:      m.messages,
		Metrics:       m.metrics,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}
}

func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.Agents != nil {
		m.agents = snap.Agents
	}
	if snap.Conversations != nil {
		m.conversations = snap.Conversations
	}
	if snap.Messages != nil {
		m.messages = snap.Messages
	}
	if snap.Metrics != nil {
		m.metrics = snap.Metrics
	}

	log.Info().
		Int("agents", len(m.agents)).
		Int("conversations", len(m.conversations)).
		Str("path", m.snapshotPath).
		Msg("Snapshot loaded")
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

func (m *MemoryStore) Migrate(_ context.Context) error { return nil }

// Close stops the save goroutine and forces a final snapshot write.
// Safe to call multiple times.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		close(m.doneCh)
		if m.snapshotPath != "" {
			m.saveSnapshot()
		}
	})
	return nil
}

// ── Agent Store ─────────────────────────────────────────────

func (m *MemoryStore) ListAgents(_ context.Context) ([]models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		result = append(result, *a)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (m *MemoryStore) GetAgent(_ context.Context, id string) (*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "agent", Key: id}
	}
	copy := *a
	return &copy, nil
}

func (m *MemoryStore) CreateAgent(_ context.Context, agent *models.Agent) error {
	m.mu.Lock()
	copy := *agent
	m.agents[agent.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) UpdateAgent(_ context.Context, agent *models.Agent) error {
	m.mu.Lock()
	if _, ok := m.agents[agent.ID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "agent", Key: agent.ID}
	}
	copy := *agent
	m.agents[agent.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteAgent(_ context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.agents[id]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "agent", Key: id}
	}
	delete(m.agents, id)
	delete(m.metrics, id)
	// Cascade: drop the agent's conversations and their messages.
	for cid, c := range m.conversations {
		if c.AgentID == id {
			delete(m.conversations, cid)
			delete(m.messages, cid)
		}
	}
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Conversation Store ──────────────────────────────────────

func (m *MemoryStore) CreateConversation(_ context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	copy := *conv
	m.conversations[conv.ID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "conversation", Key: id}
	}
	copy := *c
	return &copy, nil
}

func (m *MemoryStore) ListConversationsByAgent(_ context.Context, agentID string) ([]models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.Conversation
	for _, c := range m.conversations {
		if c.AgentID == agentID {
			result = append(result, *c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) SetConversationTitle(_ context.Context, id, title string) error {
	m.mu.Lock()
	c, ok := m.conversations[id]
	if !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "conversation", Key: id}
	}
	c.Title = &title
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// ── Message Store ───────────────────────────────────────────

func (m *MemoryStore) AppendMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	if _, ok := m.conversations[msg.ConversationID]; !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "conversation", Key: msg.ConversationID}
	}
	copy := *msg
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &copy)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListMessages(_ context.Context, conversationID string, limit int) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[conversationID]
	start := 0
	if limit > 0 && len(msgs) > limit {
		start = len(msgs) - limit
	}
	result := make([]models.Message, 0, len(msgs)-start)
	for _, msg := range msgs[start:] {
		result = append(result, *msg)
	}
	return result, nil
}

// ── Metrics Store ───────────────────────────────────────────

func (m *MemoryStore) GetMetrics(_ context.Context, agentID string) (*models.MetricsSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.metrics[agentID]
	if !ok {
		return nil, &ErrNotFound{Entity: "metrics", Key: agentID}
	}
	copy := *s
	return &copy, nil
}

func (m *MemoryStore) ListMetrics(_ context.Context) ([]models.MetricsSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]models.MetricsSnapshot, 0, len(m.metrics))
	for _, s := range m.metrics {
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AgentID < result[j].AgentID
	})
	return result, nil
}

func (m *MemoryStore) UpsertMetrics(_ context.Context, snap *models.MetricsSnapshot) error {
	m.mu.Lock()
	copy := *snap
	m.metrics[snap.AgentID] = &copy
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteMetrics(_ context.Context, agentID string) error {
	m.mu.Lock()
	delete(m.metrics, agentID)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
