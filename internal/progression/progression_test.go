package progression

import (
	"context"
	"os"
	"path/filepath"
	"testing"

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

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	path := filepath.Join(t.TempDir(), "progression.json")
	tr, err := New(path, nil, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func TestStartsWithOnlyBTC(t *testing.T) {
	tr := newTracker(t)
	if !tr.CanTrade("BTC") {
		t.Error("BTC must be tradable from level 1")
	}
	if tr.CanTrade("ETH") {
		t.Error("ETH must be locked at level 1")
	}
}

func TestUpdateBalanceUnlocksLevels(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	unlocked, err := tr.UpdateBalance(ctx, 90)
	if err != nil {
		t.Fatalf("UpdateBalance: %v", err)
	}
	if len(unlocked) != 1 || unlocked[0] != "ETH" {
		t.Fatalf("unlocked = %v, want [ETH]", unlocked)
	}
	if !tr.CanTrade("ETH") {
		t.Error("ETH must be tradable after crossing 85")
	}
	if tr.CanTrade("SOL") {
		t.Error("SOL must stay locked below 120")
	}
}

func TestUpdateBalanceSkipsMultipleLevels(t *testing.T) {
	tr := newTracker(t)

	unlocked, err := tr.UpdateBalance(context.Background(), 500)
	if err != nil {
		t.Fatalf("UpdateBalance: %v", err)
	}
	want := []string{"ETH", "SOL", "XRP", "ADA", "DOGE"}
	if len(unlocked) != len(want) {
		t.Fatalf("unlocked = %v, want %v", unlocked, want)
	}
	for i, a := range want {
		if unlocked[i] != a {
			t.Fatalf("unlocked = %v, want %v", unlocked, want)
		}
	}
	if tr.CanTrade("AVAX") {
		t.Error("AVAX requires 600")
	}
}

func TestDrawdownNeverRelocks(t *testing.T) {
	tr := newTracker(t)
	ctx := context.Background()

	if _, err := tr.UpdateBalance(ctx, 200); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.UpdateBalance(ctx, 50); err != nil {
		t.Fatal(err)
	}
	if !tr.CanTrade("SOL") {
		t.Error("a drawdown must not re-lock SOL")
	}

	p := tr.Snapshot()
	if p.PeakBalance != 200 {
		t.Errorf("peak = %v, want high-water mark 200", p.PeakBalance)
	}
}

func TestStatePersistsAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progression.json")
	tr, err := New(path, nil, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := tr.UpdateBalance(context.Background(), 150); err != nil {
		t.Fatal(err)
	}

	reloaded, err := New(path, nil, testLogger(t))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.CanTrade("SOL") {
		t.Error("level must survive a restart")
	}
	if p := reloaded.Snapshot(); p.PeakBalance != 150 {
		t.Errorf("peak = %v, want 150 after reload", p.PeakBalance)
	}
}

func TestCorruptStateFileFailsFast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progression.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(path, nil, testLogger(t)); err == nil {
		t.Fatal("corrupt state must be a hard error")
	}
}

func TestSnapshotNextLevel(t *testing.T) {
	tr := newTracker(t)
	p := tr.Snapshot()
	if p.NextThreshold != 85 {
		t.Errorf("next threshold = %v, want 85", p.NextThreshold)
	}
	if len(p.NextUnlocks) != 1 || p.NextUnlocks[0] != "ETH" {
		t.Errorf("next unlocks = %v, want [ETH]", p.NextUnlocks)
	}
}

func TestCreatesMissingStateDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nested", "progression.json")
	tr, err := New(path, nil, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := tr.UpdateBalance(context.Background(), 500); err != nil {
		t.Fatalf("UpdateBalance must persist into a fresh directory: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("state file not written: %v", err)
	}

	reloaded, err := New(path, nil, testLogger(t))
	if err != nil {
		t.Fatalf("New after restart: %v", err)
	}
	if !reloaded.CanTrade("DOGE") {
		t.Error("level reached before restart must survive it")
	}
}
