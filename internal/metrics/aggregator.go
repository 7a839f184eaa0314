// Package metrics maintains per-agent rolling usage statistics and pushes
// them to subscribers over SSE.
package metrics

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/pkg/models"
	"github.com/rs/zerolog/log"
)

// Aggregator folds exchange outcomes into per-agent metrics rows.
//
// Updates for the same agent are serialized through a per-agent lock so the
// read-modify-write against the store never loses an exchange under
// concurrent traffic.
type Aggregator struct {
	store store.MetricsStore

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewAggregator(s store.MetricsStore) *Aggregator {
	return &Aggregator{store: s, locks: make(map[string]*sync.Mutex)}
}

func (a *Aggregator) agentLock(agentID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[agentID]
	if !ok {
		l = &sync.Mutex{}
		a.locks[agentID] = l
	}
	return l
}

// Record folds one completed exchange (user message + assistant reply) into
// the agent's metrics. tokens may be zero when the upstream reported no
// usage.
func (a *Aggregator) Record(ctx context.Context, agentID string, tokens, latencyMs int64) error {
	l := a.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	current, err := a.store.GetMetrics(ctx, agentID)
	if err != nil {
		if !store.IsNotFound(err) {
			return err
		}
		current = &models.MetricsSnapshot{AgentID: agentID}
	}

	// The first exchange seeds the average outright; afterwards the running
	// average weights prior exchanges equally with the new one. Each exchange
	// contributes two message rows.
	newAvg := latencyMs
	if current.MessagesCount > 0 {
		exchanges := current.Exchanges()
		newAvg = int64(math.Round(float64(current.AvgLatencyMs*exchanges+latencyMs) / float64(exchanges+1)))
	}

	next := &models.MetricsSnapshot{
		AgentID:               agentID,
		MessagesCount:         current.MessagesCount + 2,
		TokensProcessed:       current.TokensProcessed + tokens,
		AvgLatencyMs:          newAvg,
		LastResponseLatencyMs: latencyMs,
		UpdatedAt:             time.Now().UTC(),
	}
	if err := a.store.UpsertMetrics(ctx, next); err != nil {
		return err
	}

	log.Debug().
		Str("agent_id", agentID).
		Int64("tokens", tokens).
		Int64("latency_ms", latencyMs).
		Int64("messages", next.MessagesCount).
		Msg("Metrics recorded")
	return nil
}

// Seed creates an empty metrics row for a newly created agent so metrics
// queries never miss for known agents.
func (a *Aggregator) Seed(ctx context.Context, agentID string) error {
	l := a.agentLock(agentID)
	l.Lock()
	defer l.Unlock()

	if _, err := a.store.GetMetrics(ctx, agentID); err == nil {
		return nil
	} else if !store.IsNotFound(err) {
		return err
	}
	return a.store.UpsertMetrics(ctx, &models.MetricsSnapshot{
		AgentID:   agentID,
		UpdatedAt: time.Now().UTC(),
	})
}

// Drop removes an agent's metrics row. The per-agent lock is taken for the
// delete and retained afterwards, so a Record racing the delete can never
// end up on a second lock for the same agent.
func (a *Aggregator) Drop(ctx context.Context, agentID string) error {
	l := a.agentLock(agentID)
	l.Lock()
	defer l.Unlock()
	return a.store.DeleteMetrics(ctx, agentID)
}

// Snapshot returns one agent's metrics row.
func (a *Aggregator) Snapshot(ctx context.Context, agentID string) (*models.MetricsSnapshot, error) {
	return a.store.GetMetrics(ctx, agentID)
}

// All returns every agent's metrics row.
func (a *Aggregator) All(ctx context.Context) ([]models.MetricsSnapshot, error) {
	return a.store.ListMetrics(ctx)
}

// Composite folds all per-agent rows into the fleet-wide view: counts and
// tokens sum, the average is weighted by each agent's exchange count, and
// the last latency is the maximum across agents.
func Composite(snaps []models.MetricsSnapshot) models.MetricsSnapshot {
	out := models.MetricsSnapshot{AgentID: models.AllAgents}
	var weightedSum, totalExchanges int64
	for _, s := range snaps {
		out.MessagesCount += s.MessagesCount
		out.TokensProcessed += s.TokensProcessed
		exchanges := s.Exchanges()
		weightedSum += s.AvgLatencyMs * exchanges
		totalExchanges += exchanges
		if s.LastResponseLatencyMs > out.LastResponseLatencyMs {
			out.LastResponseLatencyMs = s.LastResponseLatencyMs
		}
		if s.UpdatedAt.After(out.UpdatedAt) {
			out.UpdatedAt = s.UpdatedAt
		}
	}
	if totalExchanges > 0 {
		out.AvgLatencyMs = int64(math.Round(float64(weightedSum) / float64(totalExchanges)))
	}
	return out
}
