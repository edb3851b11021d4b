package coinbase

import (
	"context"
	"testing"
	"time"

	xlogger "TradePilot/pkg/logger"
)

func testLogger(t *testing.T) *xlogger.Logger {
	t.Helper()
	l, err := xlogger.New(&xlogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func TestNewStreamDefaultsIntervals(t *testing.T) {
	s := NewStream("", "", []string{"BTC"}, 0, 0, testLogger(t))
	if s.pingInterval != 30*time.Second {
		t.Errorf("ping interval = %v, want 30s default", s.pingInterval)
	}
	if s.reconnectDelay != 5*time.Second {
		t.Errorf("reconnect delay = %v, want 5s default", s.reconnectDelay)
	}
	if s.url == "" || s.quote != "USD" {
		t.Errorf("url/quote defaults not applied: %q %q", s.url, s.quote)
	}
}

func TestReadWithZeroConfigDoesNotPanic(t *testing.T) {
	s := NewStream("", "", []string{"BTC"}, 0, 0, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// unconnected stream: the read loop must surface an error, and the
	// ping loop must start cleanly even when the config left the
	// intervals unset
	_, errs := s.Read(ctx)
	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("want an error from an unconnected stream")
		}
	case <-time.After(time.Second):
		t.Fatal("no error from an unconnected stream")
	}
}
