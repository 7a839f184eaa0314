package store

import (
	"context"
	"testing"
	"time"

	"github.com/agentdeck/agentdeck/pkg/models"
	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestAgent(name string) *models.Agent {
	now := time.Now().UTC()
	return &models.Agent{
		ID:           uuid.NewString(),
		Name:         name,
		SystemPrompt: "You are a helpful assistant.",
		Model:        "groq/llama-3.3-70b-versatile",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestAgentCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	agent := newTestAgent("support-bot")
	if err := s.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	got, err := s.GetAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got.Name != "support-bot" {
		t.Errorf("Name = %q, want support-bot", got.Name)
	}

	got.Name = "renamed"
	got.UpdatedAt = time.Now().UTC()
	if err := s.UpdateAgent(ctx, got); err != nil {
		t.Fatalf("UpdateAgent: %v", err)
	}
	again, err := s.GetAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("GetAgent after update: %v", err)
	}
	if again.Name != "renamed" {
		t.Errorf("Name after update = %q, want renamed", again.Name)
	}

	if err := s.DeleteAgent(ctx, agent.ID); err != nil {
		t.Fatalf("DeleteAgent: %v", err)
	}
	if _, err := s.GetAgent(ctx, agent.ID); !IsNotFound(err) {
		t.Errorf("GetAgent after delete: want not-found, got %v", err)
	}
}

func TestGetAgentNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetAgent(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Fatalf("want not-found error, got %v", err)
	}
}

func TestListAgentsOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := newTestAgent("older")
	older.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	newer := newTestAgent("newer")

	if err := s.CreateAgent(ctx, older); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if err := s.CreateAgent(ctx, newer); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	agents, err := s.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("ListAgents len = %d, want 2", len(agents))
	}
	if agents[0].Name != "newer" {
		t.Errorf("first agent = %q, want newer (most recently updated first)", agents[0].Name)
	}
}

func TestDeleteAgentCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	agent := newTestAgent("cascade")
	if err := s.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	conv := &models.Conversation{ID: uuid.NewString(), AgentID: agent.ID, CreatedAt: time.Now().UTC()}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	msg := &models.Message{ID: uuid.NewString(), ConversationID: conv.ID, Role: models.RoleUser, Content: "hi", CreatedAt: time.Now().UTC()}
	if err := s.AppendMessage(ctx, msg); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := s.UpsertMetrics(ctx, &models.MetricsSnapshot{AgentID: agent.ID, MessagesCount: 2}); err != nil {
		t.Fatalf("UpsertMetrics: %v", err)
	}

	if err := s.DeleteAgent(ctx, agent.ID); err != nil {
		t.Fatalf("DeleteAgent: %v", err)
	}
	if _, err := s.GetConversation(ctx, conv.ID); !IsNotFound(err) {
		t.Errorf("conversation should be gone, got %v", err)
	}
	if _, err := s.GetMetrics(ctx, agent.ID); !IsNotFound(err) {
		t.Errorf("metrics should be gone, got %v", err)
	}
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	agent := newTestAgent("chatty")
	if err := s.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	first := &models.Conversation{ID: uuid.NewString(), AgentID: agent.ID, CreatedAt: time.Now().UTC().Add(-time.Minute)}
	second := &models.Conversation{ID: uuid.NewString(), AgentID: agent.ID, CreatedAt: time.Now().UTC()}
	for _, c := range []*models.Conversation{first, second} {
		if err := s.CreateConversation(ctx, c); err != nil {
			t.Fatalf("CreateConversation: %v", err)
		}
	}

	convs, err := s.ListConversationsByAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("ListConversationsByAgent: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("len = %d, want 2", len(convs))
	}
	if convs[0].ID != second.ID {
		t.Errorf("first conversation = %s, want newest first", convs[0].ID)
	}

	if err := s.SetConversationTitle(ctx, first.ID, "Hello world"); err != nil {
		t.Fatalf("SetConversationTitle: %v", err)
	}
	got, err := s.GetConversation(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.Title == nil || *got.Title != "Hello world" {
		t.Errorf("Title = %v, want Hello world", got.Title)
	}
}

func TestAppendMessageUnknownConversation(t *testing.T) {
	s := newTestStore(t)
	msg := &models.Message{ID: uuid.NewString(), ConversationID: "nope", Role: models.RoleUser, Content: "hi"}
	if err := s.AppendMessage(context.Background(), msg); !IsNotFound(err) {
		t.Fatalf("want not-found error, got %v", err)
	}
}

func TestListMessagesWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	agent := newTestAgent("windowed")
	if err := s.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	conv := &models.Conversation{ID: uuid.NewString(), AgentID: agent.ID, CreatedAt: time.Now().UTC()}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	base := time.Now().UTC()
	contents := []string{"one", "two", "three", "four", "five"}
	for i, c := range contents {
		msg := &models.Message{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			Role:           models.RoleUser,
			Content:        c,
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if err := s.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	all, err := s.ListMessages(ctx, conv.ID, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("all len = %d, want 5", len(all))
	}
	if all[0].Content != "one" || all[4].Content != "five" {
		t.Errorf("ordering wrong: first=%q last=%q", all[0].Content, all[4].Content)
	}

	recent, err := s.ListMessages(ctx, conv.ID, 3)
	if err != nil {
		t.Fatalf("ListMessages limit: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("recent len = %d, want 3", len(recent))
	}
	// Most recent 3, still oldest first.
	if recent[0].Content != "three" || recent[2].Content != "five" {
		t.Errorf("window wrong: first=%q last=%q", recent[0].Content, recent[2].Content)
	}
}

func TestMetricsUpsertAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap := &models.MetricsSnapshot{
		AgentID:               "agent-a",
		MessagesCount:         4,
		TokensProcessed:       120,
		AvgLatencyMs:          300,
		LastResponseLatencyMs: 250,
		UpdatedAt:             time.Now().UTC(),
	}
	if err := s.UpsertMetrics(ctx, snap); err != nil {
		t.Fatalf("UpsertMetrics: %v", err)
	}

	got, err := s.GetMetrics(ctx, "agent-a")
	if err != nil {
		t.Fatalf("GetMetrics: %v", err)
	}
	if got.TokensProcessed != 120 {
		t.Errorf("TokensProcessed = %d, want 120", got.TokensProcessed)
	}

	snap.MessagesCount = 6
	if err := s.UpsertMetrics(ctx, snap); err != nil {
		t.Fatalf("UpsertMetrics again: %v", err)
	}
	got, err = s.GetMetrics(ctx, "agent-a")
	if err != nil {
		t.Fatalf("GetMetrics again: %v", err)
	}
	if got.MessagesCount != 6 {
		t.Errorf("MessagesCount = %d, want 6", got.MessagesCount)
	}

	all, err := s.ListMetrics(ctx)
	if err != nil {
		t.Fatalf("ListMetrics: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("ListMetrics len = %d, want 1", len(all))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AGENTDECK_DATA_DIR", dir)

	ctx := context.Background()
	s1 := NewMemoryStore()
	agent := newTestAgent("persisted")
	if err := s1.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2 := NewMemoryStore()
	defer s2.Close()
	got, err := s2.GetAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("GetAgent after reload: %v", err)
	}
	if got.Name != "persisted" {
		t.Errorf("Name = %q, want persisted", got.Name)
	}
}
