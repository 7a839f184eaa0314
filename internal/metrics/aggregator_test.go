package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/pkg/models"
)

func newTestAggregator(t *testing.T) (*Aggregator, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return NewAggregator(s), s
}

func TestRecordFirstExchange(t *testing.T) {
	agg, _ := newTestAggregator(t)
	ctx := context.Background()

	if err := agg.Record(ctx, "a1", 100, 400); err != nil {
		t.Fatalf("Record: %v", err)
	}

	snap, err := agg.Snapshot(ctx, "a1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.MessagesCount != 2 {
		t.Errorf("MessagesCount = %d, want 2", snap.MessagesCount)
	}
	if snap.TokensProcessed != 100 {
		t.Errorf("TokensProcessed = %d, want 100", snap.TokensProcessed)
	}
	if snap.LastResponseLatencyMs != 400 {
		t.Errorf("LastResponseLatencyMs = %d, want 400", snap.LastResponseLatencyMs)
	}
	// The first exchange seeds the average directly.
	if snap.AvgLatencyMs != 400 {
		t.Errorf("AvgLatencyMs = %d, want 400", snap.AvgLatencyMs)
	}
}

func TestRecordRollingAverage(t *testing.T) {
	agg, _ := newTestAggregator(t)
	ctx := context.Background()

	latencies := []int64{400, 600, 200}
	for _, l := range latencies {
		if err := agg.Record(ctx, "a1", 10, l); err != nil {
			t.Fatalf("Record(%d): %v", l, err)
		}
	}

	snap, err := agg.Snapshot(ctx, "a1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.MessagesCount != 6 {
		t.Errorf("MessagesCount = %d, want 6", snap.MessagesCount)
	}
	if snap.TokensProcessed != 30 {
		t.Errorf("TokensProcessed = %d, want 30", snap.TokensProcessed)
	}
	// Seed 400; (400*1+600)/2 = 500; (500*2+200)/3 = 400.
	if snap.AvgLatencyMs != 400 {
		t.Errorf("AvgLatencyMs = %d, want 400", snap.AvgLatencyMs)
	}
	if snap.LastResponseLatencyMs != 200 {
		t.Errorf("LastResponseLatencyMs = %d, want 200", snap.LastResponseLatencyMs)
	}
}

func TestRecordConcurrentSameAgent(t *testing.T) {
	agg, _ := newTestAggregator(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if err := agg.Record(ctx, "a1", 5, 100); err != nil {
				t.Errorf("Record: %v", err)
			}
		}()
	}
	wg.Wait()

	snap, err := agg.Snapshot(ctx, "a1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.MessagesCount != 2*n {
		t.Errorf("MessagesCount = %d, want %d (no lost updates)", snap.MessagesCount, 2*n)
	}
	if snap.TokensProcessed != 5*n {
		t.Errorf("TokensProcessed = %d, want %d", snap.TokensProcessed, 5*n)
	}
	// Constant latency must survive any interleaving.
	if snap.AvgLatencyMs != 100 {
		t.Errorf("AvgLatencyMs = %d, want 100", snap.AvgLatencyMs)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	agg, _ := newTestAggregator(t)
	ctx := context.Background()

	if err := agg.Seed(ctx, "a1"); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if err := agg.Record(ctx, "a1", 10, 100); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := agg.Seed(ctx, "a1"); err != nil {
		t.Fatalf("Seed again: %v", err)
	}

	snap, err := agg.Snapshot(ctx, "a1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.MessagesCount != 2 {
		t.Errorf("MessagesCount = %d, want 2 (seed must not reset)", snap.MessagesCount)
	}
}

func TestDropSerializesWithRecord(t *testing.T) {
	agg, _ := newTestAggregator(t)
	ctx := context.Background()

	if err := agg.Record(ctx, "a1", 10, 100); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Drop must reuse the agent's existing lock, not leave later Records on
	// a fresh one racing an in-flight update.
	before := agg.agentLock("a1")
	if err := agg.Drop(ctx, "a1"); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if agg.agentLock("a1") != before {
		t.Error("per-agent lock must survive Drop")
	}

	if _, err := agg.Snapshot(ctx, "a1"); !store.IsNotFound(err) {
		t.Fatalf("snapshot after drop: want not-found, got %v", err)
	}

	if err := agg.Record(ctx, "a1", 5, 50); err != nil {
		t.Fatalf("Record after drop: %v", err)
	}
	snap, err := agg.Snapshot(ctx, "a1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.MessagesCount != 2 || snap.AvgLatencyMs != 50 {
		t.Errorf("snapshot after drop+record = %+v, want a fresh seed", snap)
	}
}

func TestComposite(t *testing.T) {
	now := time.Now().UTC()
	snaps := []models.MetricsSnapshot{
		{AgentID: "a1", MessagesCount: 4, TokensProcessed: 100, AvgLatencyMs: 200, LastResponseLatencyMs: 300, UpdatedAt: now},
		{AgentID: "a2", MessagesCount: 2, TokensProcessed: 50, AvgLatencyMs: 500, LastResponseLatencyMs: 100, UpdatedAt: now.Add(-time.Minute)},
	}

	c := Composite(snaps)
	if c.AgentID != models.AllAgents {
		t.Errorf("AgentID = %s, want %s", c.AgentID, models.AllAgents)
	}
	if c.MessagesCount != 6 {
		t.Errorf("MessagesCount = %d, want 6", c.MessagesCount)
	}
	if c.TokensProcessed != 150 {
		t.Errorf("TokensProcessed = %d, want 150", c.TokensProcessed)
	}
	// Weighted by exchanges: (200*2 + 500*1) / 3 = 300.
	if c.AvgLatencyMs != 300 {
		t.Errorf("AvgLatencyMs = %d, want 300", c.AvgLatencyMs)
	}
	if c.LastResponseLatencyMs != 300 {
		t.Errorf("LastResponseLatencyMs = %d, want max 300", c.LastResponseLatencyMs)
	}
}

func TestCompositeEmpty(t *testing.T) {
	c := Composite(nil)
	if c.AgentID != models.AllAgents {
		t.Errorf("AgentID = %s", c.AgentID)
	}
	if c.MessagesCount != 0 || c.AvgLatencyMs != 0 {
		t.Errorf("empty composite should be zero, got %+v", c)
	}
}
