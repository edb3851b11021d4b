package learning

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
	xlogger "TradePilot/pkg/logger"
)

type fakeLedger struct {
	mu     sync.Mutex
	trades []models.TradeRecord
}

func (f *fakeLedger) Append(_ context.Context, t models.TradeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, t)
	return nil
}

func (f *fakeLedger) Update(_ context.Context, t models.TradeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.trades {
		if f.trades[i].EntryTime.Equal(t.EntryTime) && f.trades[i].Asset == t.Asset {
			f.trades[i] = t
			return nil
		}
	}
	return fmt.Errorf("trade not found")
}

func (f *fakeLedger) All(_ context.Context) ([]models.TradeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.TradeRecord, len(f.trades))
	copy(out, f.trades)
	return out, nil
}

type fakeStats struct {
	mu       sync.Mutex
	patterns map[string]models.PatternStat
	contexts map[string]models.ContextStat
}

func newFakeStats() *fakeStats {
	return &fakeStats{
		patterns: make(map[string]models.PatternStat),
		contexts: make(map[string]models.ContextStat),
	}
}

func (f *fakeStats) PatternStat(_ context.Context, name string) (models.PatternStat, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.patterns[name]
	return s, ok, nil
}

func (f *fakeStats) PutPatternStat(_ context.Context, s models.PatternStat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patterns[s.Name] = s
	return nil
}

func (f *fakeStats) AllPatternStats(_ context.Context) ([]models.PatternStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PatternStat
	for _, s := range f.patterns {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStats) ContextStat(_ context.Context, label string) (models.ContextStat, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.contexts[label]
	return s, ok, nil
}

func (f *fakeStats) PutContextStat(_ context.Context, s models.ContextStat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts[s.Label] = s
	return nil
}

func (f *fakeStats) AllContextStats(_ context.Context) ([]models.ContextStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ContextStat
	for _, s := range f.contexts {
		out = append(out, s)
	}
	return out, nil
}

func testLogger(t *testing.T) *xlogger.Logger {
	t.Helper()
	l, err := xlogger.New(&xlogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func newTestStore(t *testing.T) (*Store, *fakeLedger, *fakeStats) {
	t.Helper()
	ledger := &fakeLedger{}
	stats := newFakeStats()
	return New(ledger, stats, nil, testLogger(t)), ledger, stats
}

func buyTrade(asset string, at time.Time, price, amount float64, pattern models.Pattern, label string) models.TradeRecord {
	return models.TradeRecord{
		EntryTime:    at,
		Asset:        asset,
		Side:         models.ActionBuy,
		Price:        price,
		Amount:       amount,
		ValueUSD:     price * amount,
		Pattern:      pattern,
		ContextLabel: label,
	}
}

func TestRecordExitWinScenario(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	entry := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	trade := buyTrade("BTC", entry, 100, 0.5, models.PatternSupportBounce, "waxing")
	if err := store.RecordEntry(ctx, trade); err != nil {
		t.Fatalf("RecordEntry: %v", err)
	}

	closed, err := store.RecordExit(ctx, "BTC", 105, entry.Add(time.Hour))
	if err != nil {
		t.Fatalf("RecordExit: %v", err)
	}
	if closed.Win == nil || !*closed.Win {
		t.Fatalf("expected winning close, got %+v", closed)
	}
	if got := *closed.ProfitLossPct; got != 5.00 {
		t.Errorf("profit pct = %v, want 5.00", got)
	}
	if got := *closed.ProfitLoss; got != 2.5 {
		t.Errorf("profit = %v, want 2.5", got)
	}

	stat, ok, err := store.PatternStat(ctx, string(models.PatternSupportBounce))
	if err != nil || !ok {
		t.Fatalf("PatternStat: ok=%v err=%v", ok, err)
	}
	if stat.TotalTrades != 1 || stat.Wins != 1 || stat.WinRate != 100 {
		t.Errorf("pattern stat = %+v, want 1 trade, 1 win, 100%% win rate", stat.OutcomeStats)
	}
	if stat.AvgWinPct != 5.00 {
		t.Errorf("avg win pct = %v, want 5.00", stat.AvgWinPct)
	}

	cstat, ok, err := store.ContextStat(ctx, "waxing")
	if err != nil || !ok {
		t.Fatalf("ContextStat: ok=%v err=%v", ok, err)
	}
	if cstat.TotalTrades != 1 || cstat.WinRate != 100 {
		t.Errorf("context stat = %+v", cstat.OutcomeStats)
	}
}

func TestRecordExitMatchesMostRecentOpenBuy(t *testing.T) {
	store, ledger, _ := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	first := buyTrade("ETH", t0, 2000, 1, models.PatternMeanReversion, "full")
	second := buyTrade("ETH", t0.Add(2*time.Hour), 2100, 1, models.PatternTrendFollow, "full")
	for _, tr := range []models.TradeRecord{first, second} {
		if err := store.RecordEntry(ctx, tr); err != nil {
			t.Fatalf("RecordEntry: %v", err)
		}
	}

	closed, err := store.RecordExit(ctx, "ETH", 2200, t0.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("RecordExit: %v", err)
	}
	if !closed.EntryTime.Equal(second.EntryTime) {
		t.Fatalf("closed entry %v, want most recent %v", closed.EntryTime, second.EntryTime)
	}

	trades, _ := ledger.All(ctx)
	if trades[0].Closed() {
		t.Error("older entry must stay open")
	}
	if !trades[1].Closed() {
		t.Error("most recent entry must be closed")
	}
}

func TestRecordExitNoOpenTrade(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// an open buy on another asset must not match
	if err := store.RecordEntry(ctx, buyTrade("SOL", t0, 150, 2, models.PatternSupportBounce, "new")); err != nil {
		t.Fatalf("RecordEntry: %v", err)
	}

	if _, err := store.RecordExit(ctx, "BTC", 100, t0.Add(time.Hour)); !errors.Is(err, ErrNoOpenTrade) {
		t.Fatalf("err = %v, want ErrNoOpenTrade", err)
	}

	// once closed it must not match again
	if _, err := store.RecordExit(ctx, "SOL", 160, t0.Add(time.Hour)); err != nil {
		t.Fatalf("RecordExit: %v", err)
	}
	if _, err := store.RecordExit(ctx, "SOL", 170, t0.Add(2*time.Hour)); !errors.Is(err, ErrNoOpenTrade) {
		t.Fatalf("err = %v, want ErrNoOpenTrade after close", err)
	}
}

func TestRecordEntryRejectsClosedTrade(t *testing.T) {
	store, _, _ := newTestStore(t)
	win := true
	trade := buyTrade("BTC", time.Now(), 100, 1, models.PatternSupportBounce, "full")
	trade.Win = &win
	if err := store.RecordEntry(context.Background(), trade); err == nil {
		t.Fatal("expected error for already-closed entry")
	}
}

func TestRebuildMatchesIncrementalAggregates(t *testing.T) {
	store, _, stats := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// mixed wins and losses across two patterns and two labels
	scenario := []struct {
		pattern models.Pattern
		label   string
		entry   float64
		exit    float64
	}{
		{models.PatternSupportBounce, "waxing", 100, 107},
		{models.PatternSupportBounce, "full", 100, 96},
		{models.PatternMeanReversion, "waxing", 50, 53},
		{models.PatternSupportBounce, "waxing", 200, 210},
		{models.PatternMeanReversion, "full", 80, 76},
	}
	for i, s := range scenario {
		at := t0.Add(time.Duration(i) * time.Hour)
		if err := store.RecordEntry(ctx, buyTrade("BTC", at, s.entry, 1, s.pattern, s.label)); err != nil {
			t.Fatalf("RecordEntry: %v", err)
		}
		if _, err := store.RecordExitAt(ctx, at, s.exit, at.Add(30*time.Minute)); err != nil {
			t.Fatalf("RecordExitAt: %v", err)
		}
	}

	incrementalPatterns := make(map[string]models.PatternStat)
	for k, v := range stats.patterns {
		incrementalPatterns[k] = v
	}
	incrementalContexts := make(map[string]models.ContextStat)
	for k, v := range stats.contexts {
		incrementalContexts[k] = v
	}

	stats.patterns = make(map[string]models.PatternStat)
	stats.contexts = make(map[string]models.ContextStat)
	if err := store.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	for name, want := range incrementalPatterns {
		got, ok := stats.patterns[name]
		if !ok {
			t.Fatalf("rebuild lost pattern %s", name)
		}
		if got != want {
			t.Errorf("pattern %s: rebuild %+v != incremental %+v", name, got.OutcomeStats, want.OutcomeStats)
		}
	}
	for label, want := range incrementalContexts {
		got, ok := stats.contexts[label]
		if !ok {
			t.Fatalf("rebuild lost context %s", label)
		}
		if got != want {
			t.Errorf("context %s: rebuild %+v != incremental %+v", label, got.OutcomeStats, want.OutcomeStats)
		}
	}
}

func TestEdgeAgainstGlobalBaseline(t *testing.T) {
	store, _, stats := newTestStore(t)
	ctx := context.Background()

	// waxing: 8/10 wins, full: 2/10 wins, global baseline 50%
	waxing := models.ContextStat{Label: "waxing"}
	for i := 0; i < 10; i++ {
		waxing.Record(2, i < 8)
	}
	full := models.ContextStat{Label: "full"}
	for i := 0; i < 10; i++ {
		full.Record(-1, i < 2)
	}
	if err := stats.PutContextStat(ctx, waxing); err != nil {
		t.Fatal(err)
	}
	if err := stats.PutContextStat(ctx, full); err != nil {
		t.Fatal(err)
	}

	edge, err := store.Edge(ctx, "waxing")
	if err != nil {
		t.Fatalf("Edge: %v", err)
	}
	if edge.Edge != 30.0 {
		t.Errorf("waxing edge = %v, want 30.0", edge.Edge)
	}
	if edge.Confidence != models.SampleMedium {
		t.Errorf("confidence = %v, want medium at 10 samples", edge.Confidence)
	}

	edge, err = store.Edge(ctx, "full")
	if err != nil {
		t.Fatalf("Edge: %v", err)
	}
	if edge.Edge != -30.0 {
		t.Errorf("full edge = %v, want -30.0", edge.Edge)
	}

	// unknown label degrades to a neutral report
	edge, err = store.Edge(ctx, "waning")
	if err != nil {
		t.Fatalf("Edge: %v", err)
	}
	if edge.WinRate != 50.0 || edge.Edge != 0 || edge.Confidence != models.SampleNone {
		t.Errorf("unknown label edge = %+v, want neutral", edge)
	}
}

func TestBestPatternsFilterAndOrder(t *testing.T) {
	store, _, stats := newTestStore(t)
	ctx := context.Background()

	put := func(name string, trades, wins int) {
		s := models.PatternStat{Name: name}
		for i := 0; i < trades; i++ {
			s.Record(1, i < wins)
		}
		if err := stats.PutPatternStat(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	put("support_bounce", 10, 7)   // 70%
	put("mean_reversion", 10, 9)   // 90%
	put("trend_follow", 10, 5)     // 50%, filtered by win rate
	put("resistance_reject", 2, 2) // filtered by sample count

	best, err := store.BestPatterns(ctx, 3)
	if err != nil {
		t.Fatalf("BestPatterns: %v", err)
	}
	if len(best) != 2 {
		t.Fatalf("got %d patterns, want 2", len(best))
	}
	if best[0].Name != "mean_reversion" || best[1].Name != "support_bounce" {
		t.Errorf("order = [%s %s], want [mean_reversion support_bounce]", best[0].Name, best[1].Name)
	}
}

func TestSummaryDefaultLesson(t *testing.T) {
	store, _, _ := newTestStore(t)

	sum, err := store.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalTrades != 0 {
		t.Errorf("total trades = %d, want 0", sum.TotalTrades)
	}
	if len(sum.Lessons) != 1 || sum.Lessons[0] != "Keep trading to learn patterns" {
		t.Errorf("lessons = %v, want the default lesson", sum.Lessons)
	}
}

func TestSummaryTotals(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	exits := []float64{110, 95, 104} // +10%, -5%, +4%
	for i, exit := range exits {
		at := t0.Add(time.Duration(i) * time.Hour)
		if err := store.RecordEntry(ctx, buyTrade("BTC", at, 100, 1, models.PatternSupportBounce, "waxing")); err != nil {
			t.Fatal(err)
		}
		if _, err := store.RecordExitAt(ctx, at, exit, at.Add(time.Minute)); err != nil {
			t.Fatal(err)
		}
	}
	// one still-open trade must not count
	if err := store.RecordEntry(ctx, buyTrade("BTC", t0.Add(10*time.Hour), 100, 1, models.PatternSupportBounce, "waxing")); err != nil {
		t.Fatal(err)
	}

	sum, err := store.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalTrades != 3 {
		t.Errorf("total trades = %d, want 3", sum.TotalTrades)
	}
	if sum.WinRate != 66.67 {
		t.Errorf("win rate = %v, want 66.67", sum.WinRate)
	}
	if sum.CumulativePct != 9.0 {
		t.Errorf("cumulative pct = %v, want 9.0", sum.CumulativePct)
	}
}

func TestTradesNewestFirstWithSinceAndLimit(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		at := t0.Add(time.Duration(i) * time.Hour)
		if err := store.RecordEntry(ctx, buyTrade("BTC", at, 100, 1, models.PatternSupportBounce, "waxing")); err != nil {
			t.Fatal(err)
		}
	}

	trades, err := store.Trades(ctx, t0.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("Trades: %v", err)
	}
	if len(trades) != 4 {
		t.Fatalf("len = %d, want 4", len(trades))
	}
	if !trades[0].EntryTime.Equal(t0.Add(4 * time.Hour)) {
		t.Errorf("first entry = %v, want newest", trades[0].EntryTime)
	}

	trades, err = store.Trades(ctx, time.Time{}, 2)
	if err != nil {
		t.Fatalf("Trades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("len = %d, want 2", len(trades))
	}
	if !trades[1].EntryTime.Equal(t0.Add(3 * time.Hour)) {
		t.Errorf("second entry = %v, want t0+3h", trades[1].EntryTime)
	}
}
