package logger

import (
	"context"
	"sync"
	"testing"
	"time"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
	got     chan struct{}
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{got: make(chan struct{}, 8)}
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	if logs, ok := payload.([]AggregatedLogEntry); ok {
		p.batches = append(p.batches, logs)
	}
	p.got <- struct{}{}
	return nil
}

func (p *capturePublisher) waitForBatch(t *testing.T) []AggregatedLogEntry {
	t.Helper()
	select {
	case <-p.got:
	case <-time.After(2 * time.Second):
		t.Fatal("no batch published")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.batches[len(p.batches)-1]
}

func TestCollectorAggregatesRepeatedLines(t *testing.T) {
	pub := newCapturePublisher()
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "logs.aggregated",
		Publisher:      pub,
	})

	for i := 0; i < 5; i++ {
		c.AddLog("error", "order rejected", map[string]interface{}{"asset": "BTC"}, "engine/decision.go:42")
	}
	c.AddLog("error", "order rejected", map[string]interface{}{"asset": "ETH"}, "engine/decision.go:42")
	c.Close()

	logs := pub.waitForBatch(t)
	if len(logs) != 2 {
		t.Fatalf("unique entries = %d, want 2", len(logs))
	}
	counts := map[interface{}]int{}
	for _, entry := range logs {
		counts[entry.Fields["asset"]] = entry.Count
	}
	if counts["BTC"] != 5 {
		t.Errorf("BTC count = %d, want 5", counts["BTC"])
	}
	if counts["ETH"] != 1 {
		t.Errorf("ETH count = %d, want 1", counts["ETH"])
	}
	if pub.topic != "logs.aggregated" {
		t.Errorf("topic = %q, want logs.aggregated", pub.topic)
	}
}

func TestCollectorFlushesAtCountThreshold(t *testing.T) {
	pub := newCapturePublisher()
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 2,
		Topic:          "logs.aggregated",
		Publisher:      pub,
	})
	defer c.Close()

	c.AddLog("error", "stream closed", nil, "coinbase/stream.go:88")
	c.AddLog("error", "persist failed", nil, "progression/progression.go:120")

	logs := pub.waitForBatch(t)
	if len(logs) != 2 {
		t.Fatalf("flushed entries = %d, want 2", len(logs))
	}
}

func TestAddCollectorRoutesErrorLogs(t *testing.T) {
	l, err := New(&Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	pub := newCapturePublisher()
	l.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "logs.aggregated",
		Publisher:      pub,
	})

	l.Error("cycle failed", String("asset", "BTC"))
	l.RemoveCollector()

	logs := pub.waitForBatch(t)
	if len(logs) != 1 {
		t.Fatalf("entries = %d, want 1", len(logs))
	}
	if logs[0].Message != "cycle failed" {
		t.Errorf("message = %q, want %q", logs[0].Message, "cycle failed")
	}
	if logs[0].Level != "error" {
		t.Errorf("level = %q, want error", logs[0].Level)
	}
	if logs[0].Fields["asset"] != "BTC" {
		t.Errorf("asset field = %v, want BTC", logs[0].Fields["asset"])
	}
}
