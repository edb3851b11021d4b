package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
	drepo "TradePilot/internal/domain/repository"
	"TradePilot/internal/engine"
	"TradePilot/internal/indicator"
	"TradePilot/internal/learning"
	"TradePilot/internal/progression"
	xlogger "TradePilot/pkg/logger"
)

type fakeExchange struct {
	mu       sync.Mutex
	price    float64
	candles  []models.Candle
	balances map[string]float64
	orders   []string // "side asset"
	priceErr error
}

func (f *fakeExchange) CurrentPrice(_ context.Context, asset string) (float64, error) {
	if f.priceErr != nil {
		return 0, f.priceErr
	}
	return f.price, nil
}

func (f *fakeExchange) Candles(_ context.Context, _ string, _ drepo.Granularity, _ int) ([]models.Candle, error) {
	if f.candles == nil {
		return nil, fmt.Errorf("candles unavailable")
	}
	return f.candles, nil
}

func (f *fakeExchange) Balances(_ context.Context) (map[string]float64, error) {
	out := make(map[string]float64, len(f.balances))
	for k, v := range f.balances {
		out[k] = v
	}
	return out, nil
}

func (f *fakeExchange) TotalBalanceUSD(_ context.Context) (float64, error) {
	total := 0.0
	for cur, amt := range f.balances {
		if cur == "USD" {
			total += amt
		} else {
			total += amt * f.price
		}
	}
	return total, nil
}

func (f *fakeExchange) PlaceMarketOrder(_ context.Context, asset string, side models.Action, _, _ float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, string(side)+" "+asset)
	return fmt.Sprintf("order-%d", len(f.orders)), nil
}

type memLedger struct {
	mu     sync.Mutex
	trades []models.TradeRecord
}

func (m *memLedger) Append(_ context.Context, t models.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, t)
	return nil
}

func (m *memLedger) Update(_ context.Context, t models.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.trades {
		if m.trades[i].EntryTime.Equal(t.EntryTime) && m.trades[i].Asset == t.Asset {
			m.trades[i] = t
			return nil
		}
	}
	return fmt.Errorf("trade not found")
}

func (m *memLedger) All(_ context.Context) ([]models.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.TradeRecord, len(m.trades))
	copy(out, m.trades)
	return out, nil
}

type memStats struct {
	mu       sync.Mutex
	patterns map[string]models.PatternStat
	contexts map[string]models.ContextStat
}

func newMemStats() *memStats {
	return &memStats{
		patterns: make(map[string]models.PatternStat),
		contexts: make(map[string]models.ContextStat),
	}
}

func (m *memStats) PatternStat(_ context.Context, name string) (models.PatternStat, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.patterns[name]
	return s, ok, nil
}

func (m *memStats) PutPatternStat(_ context.Context, s models.PatternStat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns[s.Name] = s
	return nil
}

func (m *memStats) AllPatternStats(_ context.Context) ([]models.PatternStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PatternStat
	for _, s := range m.patterns {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStats) ContextStat(_ context.Context, label string) (models.ContextStat, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.contexts[label]
	return s, ok, nil
}

func (m *memStats) PutContextStat(_ context.Context, s models.ContextStat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts[s.Label] = s
	return nil
}

func (m *memStats) AllContextStats(_ context.Context) ([]models.ContextStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ContextStat
	for _, s := range m.contexts {
		out = append(out, s)
	}
	return out, nil
}

type neutralSentiment struct{}

func (neutralSentiment) Sentiment(_ context.Context, asset string) (models.SentimentReport, error) {
	return models.NeutralSentiment(asset), nil
}

type fixedLabeler struct{ label string }

func (l fixedLabeler) Label(time.Time) string { return l.label }

type openGate struct{}

func (openGate) CanTrade(string) bool { return true }

type nopMetrics struct{}

func (nopMetrics) RecordDecision(string, string)  {}
func (nopMetrics) RecordTradeClosed(string, bool) {}
func (nopMetrics) RecordLastPrice(string, float64) {}
func (nopMetrics) RecordLatency(string, float64)  {}
func (nopMetrics) RecordError(string)             {}

type fixedRand struct{ f float64 }

func (r fixedRand) Float64() float64 { return r.f }
func (fixedRand) Intn(n int) int     { return 0 }

func newTestLadder(t *testing.T, log *xlogger.Logger) *progression.Tracker {
	t.Helper()
	tr, err := progression.New(filepath.Join(t.TempDir(), "progression.json"), nil, log)
	if err != nil {
		t.Fatalf("progression: %v", err)
	}
	return tr
}

func testLogger(t *testing.T) *xlogger.Logger {
	t.Helper()
	l, err := xlogger.New(&xlogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

// oversoldCandles builds a newest-first series whose current price sits
// near the bottom of the range with a falling close, so the support
// bounce rule fires.
func oversoldCandles(n int) []models.Candle {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		// newest first: index 0 is the most recent candle
		price := 100.0 + float64(i)*0.5 // older candles are higher, so recent deltas are losses
		out[i] = models.Candle{
			Open:      price + 0.2,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    10,
			Timestamp: base.Add(-time.Duration(i) * time.Hour),
		}
	}
	return out
}

type cycleEnv struct {
	cycle    *Cycle
	exchange *fakeExchange
	ledger   *memLedger
	store    *learning.Store
}

func newCycleEnv(t *testing.T) *cycleEnv {
	t.Helper()
	log := testLogger(t)

	ledger := &memLedger{}
	stats := newMemStats()
	store := learning.New(ledger, stats, nil, log)
	decider := engine.New(store, openGate{}, engine.Config{}, fixedRand{f: 1}, log)
	indicators := indicator.New(indicator.Config{})

	ex := &fakeExchange{
		price:    100,
		candles:  oversoldCandles(200),
		balances: map[string]float64{"USD": 1000},
	}

	cycle := NewCycle(
		CycleConfig{Assets: []string{"BTC"}, Quote: "USD"},
		ex, indicators, store, decider,
		neutralSentiment{}, fixedLabeler{label: "full_moon"},
		newTestLadder(t, log), nil, nil, nopMetrics{}, log,
	)
	return &cycleEnv{cycle: cycle, exchange: ex, ledger: ledger, store: store}
}

func TestRunOnceBuysOnStrongSetup(t *testing.T) {
	env := newCycleEnv(t)
	ctx := context.Background()

	env.cycle.RunOnce(ctx)

	env.exchange.mu.Lock()
	orders := append([]string(nil), env.exchange.orders...)
	env.exchange.mu.Unlock()
	if len(orders) != 1 || orders[0] != "BUY BTC" {
		t.Fatalf("orders = %v, want one BTC buy", orders)
	}

	trades, _ := env.ledger.All(ctx)
	if len(trades) != 1 {
		t.Fatalf("ledger has %d trades, want 1", len(trades))
	}
	tr := trades[0]
	if tr.Asset != "BTC" || tr.Side != models.ActionBuy || tr.Closed() {
		t.Errorf("recorded trade = %+v", tr)
	}
	if tr.ContextLabel != "full_moon" {
		t.Errorf("context label = %s, want full_moon", tr.ContextLabel)
	}
	if tr.Pattern == models.PatternNone {
		t.Error("entry must carry the matched pattern")
	}
}

func TestRunOnceSellsAndClosesTrade(t *testing.T) {
	env := newCycleEnv(t)
	ctx := context.Background()

	// open position bought at 90
	entry := time.Date(2025, 5, 30, 10, 0, 0, 0, time.UTC)
	if err := env.store.RecordEntry(ctx, models.TradeRecord{
		EntryTime:    entry,
		Asset:        "BTC",
		Side:         models.ActionBuy,
		Price:        90,
		Amount:       1,
		Pattern:      models.PatternSupportBounce,
		ContextLabel: "full_moon",
	}); err != nil {
		t.Fatal(err)
	}

	// overbought at the top of the range while holding BTC
	env.exchange.balances["BTC"] = 1
	env.exchange.price = 110
	env.exchange.candles = overboughtCandles(200)

	env.cycle.RunOnce(ctx)

	env.exchange.mu.Lock()
	orders := append([]string(nil), env.exchange.orders...)
	env.exchange.mu.Unlock()
	if len(orders) != 1 || orders[0] != "SELL BTC" {
		t.Fatalf("orders = %v, want one BTC sell", orders)
	}

	trades, _ := env.ledger.All(ctx)
	if len(trades) != 1 || !trades[0].Closed() {
		t.Fatalf("trades = %+v, want the open entry closed", trades)
	}
	if !*trades[0].Win {
		t.Error("selling at 110 against a 90 entry must be a win")
	}
}

// overboughtCandles is the mirror of oversoldCandles: rising closes with
// the current price near the top of the range.
func overboughtCandles(n int) []models.Candle {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		price := 110.0 - float64(i)*0.5
		out[i] = models.Candle{
			Open:      price - 0.2,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    10,
			Timestamp: base.Add(-time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestRunOnceSkipsAssetOnDataFailure(t *testing.T) {
	env := newCycleEnv(t)
	env.exchange.candles = nil // candle fetch fails

	env.cycle.RunOnce(context.Background())

	env.exchange.mu.Lock()
	defer env.exchange.mu.Unlock()
	if len(env.exchange.orders) != 0 {
		t.Fatalf("orders = %v, want none when data is unavailable", env.exchange.orders)
	}
}

func TestEvaluateUsesStreamedPriceFallback(t *testing.T) {
	env := newCycleEnv(t)
	env.exchange.priceErr = fmt.Errorf("rest ticker down")

	// no watcher wired: evaluation must fail cleanly
	_, _, err := env.cycle.Evaluate(context.Background(), "BTC", map[string]float64{"USD": 1000})
	if err == nil {
		t.Fatal("expected error without a streamed fallback")
	}
}
