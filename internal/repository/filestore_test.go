package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
)

func TestFileStoreTradeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	entry := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	trade := models.TradeRecord{
		EntryTime:    entry,
		Asset:        "BTC",
		Side:         models.ActionBuy,
		Price:        100,
		Amount:       0.5,
		Pattern:      models.PatternSupportBounce,
		ContextLabel: "waxing_gibbous",
	}
	if err := s.Append(ctx, trade); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// close it through Update
	exit := 105.0
	win := true
	trade.ExitPrice = &exit
	trade.Win = &win
	if err := s.Update(ctx, trade); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// reload from disk
	s2, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	trades, err := s2.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	got := trades[0]
	if !got.EntryTime.Equal(entry) || got.Asset != "BTC" || !got.Closed() {
		t.Errorf("reloaded trade = %+v", got)
	}
	if *got.ExitPrice != 105 {
		t.Errorf("exit price = %v, want 105", *got.ExitPrice)
	}
}

func TestFileStoreUpdateUnknownTrade(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	err = s.Update(context.Background(), models.TradeRecord{
		EntryTime: time.Now(),
		Asset:     "BTC",
	})
	if err == nil {
		t.Fatal("updating a missing trade must fail")
	}
}

func TestFileStoreStatsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	pat := models.PatternStat{Name: "support_bounce"}
	pat.Record(5, true)
	if err := s.PutPatternStat(ctx, pat); err != nil {
		t.Fatalf("PutPatternStat: %v", err)
	}
	cstat := models.ContextStat{Label: "full_moon"}
	cstat.Record(-2, false)
	if err := s.PutContextStat(ctx, cstat); err != nil {
		t.Fatalf("PutContextStat: %v", err)
	}

	s2, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}

	gotPat, ok, err := s2.PatternStat(ctx, "support_bounce")
	if err != nil || !ok {
		t.Fatalf("PatternStat: ok=%v err=%v", ok, err)
	}
	if gotPat.WinRate != 100 || gotPat.TotalTrades != 1 {
		t.Errorf("pattern stat = %+v", gotPat.OutcomeStats)
	}

	gotCtx, ok, err := s2.ContextStat(ctx, "full_moon")
	if err != nil || !ok {
		t.Fatalf("ContextStat: ok=%v err=%v", ok, err)
	}
	if gotCtx.Losses != 1 {
		t.Errorf("context stat = %+v", gotCtx.OutcomeStats)
	}

	if _, ok, _ := s2.PatternStat(ctx, "unknown"); ok {
		t.Error("unknown pattern must report ok=false")
	}
}

func TestFileStoreCorruptFileFailsFast(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, tradesFile), []byte("[{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(dir); err == nil {
		t.Fatal("corrupt ledger must be a hard error")
	}
}

func TestFileStoreEmptyDirStartsClean(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	trades, err := s.All(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 0 {
		t.Errorf("got %d trades, want empty ledger", len(trades))
	}
}
