package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/pkg/models"
	"github.com/rs/zerolog/log"
)

// publishInterval is how often each SSE subscriber receives a fresh frame.
const publishInterval = 3 * time.Second

// streamFrame is one SSE payload: a single snapshot (one agent, or the
// cross-agent composite) flattened together with the emission time.
type streamFrame struct {
	models.MetricsSnapshot
	Timestamp time.Time `json:"timestamp"`
}

// Publisher streams metrics snapshots to HTTP clients as server-sent events.
type Publisher struct {
	agg      *Aggregator
	interval time.Duration
}

func NewPublisher(agg *Aggregator) *Publisher {
	return &Publisher{agg: agg, interval: publishInterval}
}

// ServeHTTP implements the SSE stream. The optional agentId query parameter
// selects one agent's snapshot; absent or "ALL" it streams the composite.
// Each subscriber gets an immediate frame, then one per interval, until the
// client disconnects.
func (p *Publisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	agentID := r.URL.Query().Get("agentId")

	// Resolve the first frame before committing to the stream so an unknown
	// agent id can still get a plain 404.
	snap, err := p.snapshot(r, agentID)
	if err != nil {
		if store.IsNotFound(err) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	log.Debug().Str("remote", r.RemoteAddr).Str("agent_id", agentID).Msg("Metrics stream subscriber connected")

	if err := p.emit(w, flusher, snap); err != nil {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("remote", r.RemoteAddr).Msg("Metrics stream subscriber disconnected")
			return
		case <-ticker.C:
			snap, err := p.snapshot(r, agentID)
			if err != nil {
				log.Error().Err(err).Str("agent_id", agentID).Msg("Failed to read metrics for stream")
				return
			}
			if err := p.emit(w, flusher, snap); err != nil {
				return
			}
		}
	}
}

// snapshot produces the subscriber's view: one agent's row, or the
// composite fold when no agent is named.
func (p *Publisher) snapshot(r *http.Request, agentID string) (models.MetricsSnapshot, error) {
	if agentID != "" && agentID != models.AllAgents {
		snap, err := p.agg.Snapshot(r.Context(), agentID)
		if err != nil {
			return models.MetricsSnapshot{}, err
		}
		return *snap, nil
	}

	snaps, err := p.agg.All(r.Context())
	if err != nil {
		return models.MetricsSnapshot{}, err
	}
	return Composite(snaps), nil
}

func (p *Publisher) emit(w http.ResponseWriter, flusher http.Flusher, snap models.MetricsSnapshot) error {
	payload, err := json.Marshal(streamFrame{
		MetricsSnapshot: snap,
		Timestamp:       time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: metrics\ndata: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
