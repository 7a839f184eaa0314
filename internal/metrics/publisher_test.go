package metrics

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agentdeck/agentdeck/pkg/models"
)

// readFirstFrame subscribes to url and returns the first SSE frame's event
// name and decoded payload fields.
func readFirstFrame(t *testing.T, url string) (string, map[string]json.RawMessage) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			event = strings.TrimPrefix(line, "event: ")
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	if data == "" {
		t.Fatal("no data frame received")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return event, fields
}

func newStreamFixture(t *testing.T) (*httptest.Server, *Aggregator) {
	t.Helper()
	agg, _ := newTestAggregator(t)
	srv := httptest.NewServer(NewPublisher(agg))
	t.Cleanup(srv.Close)
	return srv, agg
}

func TestStreamFiltersByAgent(t *testing.T) {
	srv, agg := newStreamFixture(t)
	ctx := context.Background()

	if err := agg.Record(ctx, "a1", 10, 100); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := agg.Record(ctx, "a2", 20, 300); err != nil {
		t.Fatalf("Record: %v", err)
	}

	event, fields := readFirstFrame(t, srv.URL+"?agentId=a1")
	if event != "metrics" {
		t.Errorf("event = %q, want metrics", event)
	}

	var snap models.MetricsSnapshot
	raw, _ := json.Marshal(fields)
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.AgentID != "a1" {
		t.Errorf("agentId = %q, want a1", snap.AgentID)
	}
	if snap.MessagesCount != 2 || snap.TokensProcessed != 10 {
		t.Errorf("snapshot = %+v, want only a1's figures", snap)
	}

	// The frame is one flat snapshot, not a collection.
	for _, key := range []string{"agents", "composite"} {
		if _, ok := fields[key]; ok {
			t.Errorf("frame carries %q key, want a single snapshot shape", key)
		}
	}
	if _, ok := fields["timestamp"]; !ok {
		t.Error("frame missing timestamp")
	}
}

func TestStreamDefaultsToComposite(t *testing.T) {
	srv, agg := newStreamFixture(t)
	ctx := context.Background()

	if err := agg.Record(ctx, "a1", 10, 100); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := agg.Record(ctx, "a2", 20, 300); err != nil {
		t.Fatalf("Record: %v", err)
	}

	_, fields := readFirstFrame(t, srv.URL)
	var snap models.MetricsSnapshot
	raw, _ := json.Marshal(fields)
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.AgentID != models.AllAgents {
		t.Errorf("agentId = %q, want %s", snap.AgentID, models.AllAgents)
	}
	if snap.MessagesCount != 4 || snap.TokensProcessed != 30 {
		t.Errorf("composite = %+v", snap)
	}
}

func TestStreamUnknownAgent(t *testing.T) {
	srv, _ := newStreamFixture(t)

	resp, err := http.Get(srv.URL + "?agentId=missing")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
