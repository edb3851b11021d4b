package learning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	drepo "TradePilot/internal/domain/repository"
	xlogger "TradePilot/pkg/logger"
)

// ErrNoOpenTrade is returned when an exit has no matching open entry. The
// caller logs it and skips the close; it is never fatal.
var ErrNoOpenTrade = errors.New("no open trade to close")

// Store is the learning system: a durable trade ledger plus per-pattern and
// per-context outcome aggregates. The aggregates are a cache over the
// ledger — Rebuild recomputes them from a full replay.
type Store struct {
	ledger  drepo.TradeLedger
	stats   drepo.StatStore
	history drepo.TradeHistorySink // optional analytics mirror
	logger  *xlogger.Logger

	assets   keyedMutex
	patterns keyedMutex
	contexts keyedMutex
}

// New creates a learning store over the given ledger and stat collections.
// history may be nil.
func New(ledger drepo.TradeLedger, stats drepo.StatStore, history drepo.TradeHistorySink, logger *xlogger.Logger) *Store {
	return &Store{
		ledger:  ledger,
		stats:   stats,
		history: history,
		logger:  logger,
	}
}

// RecordEntry appends a new open trade to the ledger. The record is durable
// before the call returns.
func (s *Store) RecordEntry(ctx context.Context, trade models.TradeRecord) error {
	if trade.Closed() {
		return fmt.Errorf("record entry: trade already closed")
	}
	unlock := s.assets.lock(trade.Asset)
	defer unlock()

	if err := s.ledger.Append(ctx, trade); err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	return nil
}

// RecordExit closes the most recent unclosed BUY for the asset. Older open
// entries are deliberately left open: the matching policy is most-recent
// only, and accumulating stale entries is a known property of it, not data
// loss. Returns ErrNoOpenTrade when nothing matches.
func (s *Store) RecordExit(ctx context.Context, asset string, exitPrice float64, exitTime time.Time) (models.TradeRecord, error) {
	unlock := s.assets.lock(asset)
	defer unlock()

	trades, err := s.ledger.All(ctx)
	if err != nil {
		return models.TradeRecord{}, fmt.Errorf("read ledger: %w", err)
	}
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		if t.Asset == asset && t.Side == models.ActionBuy && !t.Closed() {
			return s.closeTrade(ctx, t, exitPrice, exitTime)
		}
	}
	return models.TradeRecord{}, ErrNoOpenTrade
}

// RecordExitAt closes the open BUY identified by its entry timestamp.
func (s *Store) RecordExitAt(ctx context.Context, entryTime time.Time, exitPrice float64, exitTime time.Time) (models.TradeRecord, error) {
	trades, err := s.ledger.All(ctx)
	if err != nil {
		return models.TradeRecord{}, fmt.Errorf("read ledger: %w", err)
	}
	for _, t := range trades {
		if t.Side == models.ActionBuy && !t.Closed() && t.EntryTime.Equal(entryTime) {
			unlock := s.assets.lock(t.Asset)
			defer unlock()
			return s.closeTrade(ctx, t, exitPrice, exitTime)
		}
	}
	return models.TradeRecord{}, ErrNoOpenTrade
}

// closeTrade computes the outcome, persists the mutated ledger record, then
// folds the outcome into both aggregates. Caller holds the asset lock.
func (s *Store) closeTrade(ctx context.Context, trade models.TradeRecord, exitPrice float64, exitTime time.Time) (models.TradeRecord, error) {
	pl := (exitPrice - trade.Price) * trade.Amount
	plPct := 0.0
	if trade.Price > 0 {
		plPct = round2((exitPrice - trade.Price) / trade.Price * 100)
	}
	win := pl > 0

	trade.ExitPrice = &exitPrice
	trade.ExitTime = &exitTime
	trade.ProfitLoss = &pl
	trade.ProfitLossPct = &plPct
	trade.Win = &win

	if err := s.ledger.Update(ctx, trade); err != nil {
		return models.TradeRecord{}, fmt.Errorf("update trade: %w", err)
	}

	if err := s.recordPatternOutcome(ctx, string(trade.Pattern), plPct, win); err != nil {
		return models.TradeRecord{}, err
	}
	if err := s.recordContextOutcome(ctx, trade.ContextLabel, plPct, win); err != nil {
		return models.TradeRecord{}, err
	}

	if s.history != nil {
		if err := s.history.RecordClosed(ctx, trade); err != nil {
			s.logger.Warn("trade history mirror failed", xlogger.Error(err))
		}
	}
	return trade, nil
}

func (s *Store) recordPatternOutcome(ctx context.Context, name string, plPct float64, win bool) error {
	if name == "" {
		return nil
	}
	unlock := s.patterns.lock(name)
	defer unlock()

	stat, ok, err := s.stats.PatternStat(ctx, name)
	if err != nil {
		return fmt.Errorf("read pattern stat: %w", err)
	}
	if !ok {
		stat = models.PatternStat{Name: name}
	}
	stat.Record(plPct, win)
	if err := s.stats.PutPatternStat(ctx, stat); err != nil {
		return fmt.Errorf("write pattern stat: %w", err)
	}
	return nil
}

func (s *Store) recordContextOutcome(ctx context.Context, label string, plPct float64, win bool) error {
	if label == "" {
		return nil
	}
	unlock := s.contexts.lock(label)
	defer unlock()

	stat, ok, err := s.stats.ContextStat(ctx, label)
	if err != nil {
		return fmt.Errorf("read context stat: %w", err)
	}
	if !ok {
		stat = models.ContextStat{Label: label}
	}
	stat.Record(plPct, win)
	if err := s.stats.PutContextStat(ctx, stat); err != nil {
		return fmt.Errorf("write context stat: %w", err)
	}
	return nil
}

// PatternStat returns the aggregate for one pattern; ok=false means no
// closed trade has referenced it yet.
func (s *Store) PatternStat(ctx context.Context, name string) (models.PatternStat, bool, error) {
	return s.stats.PatternStat(ctx, name)
}

// ContextStat returns the aggregate for one context label.
func (s *Store) ContextStat(ctx context.Context, label string) (models.ContextStat, bool, error) {
	return s.stats.ContextStat(ctx, label)
}

// Trades returns ledger entries with an entry time at or after since,
// newest first. A non-positive limit means no cap.
func (s *Store) Trades(ctx context.Context, since time.Time, limit int) ([]models.TradeRecord, error) {
	all, err := s.ledger.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	out := make([]models.TradeRecord, 0, len(all))
	for _, t := range all {
		if t.EntryTime.Before(since) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EntryTime.After(out[j].EntryTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// BestPatterns returns patterns with at least minTrades samples and a win
// rate of 60% or better, sorted by win rate descending.
func (s *Store) BestPatterns(ctx context.Context, minTrades int) ([]models.PatternStat, error) {
	all, err := s.stats.AllPatternStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("read pattern stats: %w", err)
	}
	var out []models.PatternStat
	for _, p := range all {
		if p.TotalTrades >= minTrades && p.WinRate >= 60 {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].WinRate > out[j].WinRate })
	return out, nil
}

// Edge reports the label's win rate against the global win rate across all
// labels. The baseline is recomputed from raw aggregates on every call.
func (s *Store) Edge(ctx context.Context, label string) (models.EdgeReport, error) {
	all, err := s.stats.AllContextStats(ctx)
	if err != nil {
		return models.EdgeReport{}, fmt.Errorf("read context stats: %w", err)
	}

	var stat *models.ContextStat
	totalTrades, totalWins := 0, 0
	for i, c := range all {
		totalTrades += c.TotalTrades
		totalWins += c.Wins
		if c.Label == label {
			stat = &all[i]
		}
	}
	if stat == nil {
		return models.EdgeReport{Label: label, WinRate: 50.0, Confidence: models.SampleNone}, nil
	}

	baseline := 50.0
	if totalTrades > 0 {
		baseline = float64(totalWins) / float64(totalTrades) * 100
	}
	return models.EdgeReport{
		Label:      label,
		WinRate:    stat.WinRate,
		Edge:       round2(stat.WinRate - baseline),
		Confidence: models.TierSampleConfidence(stat.TotalTrades),
		SampleSize: stat.TotalTrades,
	}, nil
}

// Summary condenses the whole ledger and both aggregate collections into
// the display view: totals, top and bottom patterns, context labels with a
// material edge, and generated plain-language lessons.
func (s *Store) Summary(ctx context.Context) (models.LearningSummary, error) {
	trades, err := s.ledger.All(ctx)
	if err != nil {
		return models.LearningSummary{}, fmt.Errorf("read ledger: %w", err)
	}

	var sum models.LearningSummary
	wins := 0
	for _, t := range trades {
		if !t.Closed() {
			continue
		}
		sum.TotalTrades++
		if *t.Win {
			wins++
		}
		sum.CumulativePct += *t.ProfitLossPct
	}
	sum.CumulativePct = round2(sum.CumulativePct)
	if sum.TotalTrades > 0 {
		sum.WinRate = round2(float64(wins) / float64(sum.TotalTrades) * 100)
	}

	best, err := s.BestPatterns(ctx, 3)
	if err != nil {
		return models.LearningSummary{}, err
	}
	for i, p := range best {
		if i == 3 {
			break
		}
		sum.BestPatterns = append(sum.BestPatterns, p.Name)
	}

	all, err := s.stats.AllPatternStats(ctx)
	if err != nil {
		return models.LearningSummary{}, fmt.Errorf("read pattern stats: %w", err)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].WinRate < all[j].WinRate })
	for _, p := range all {
		if len(sum.AvoidPatterns) == 3 {
			break
		}
		if p.TotalTrades >= 3 && p.WinRate < 40 {
			sum.AvoidPatterns = append(sum.AvoidPatterns, p.Name)
		}
	}

	labels, err := s.stats.AllContextStats(ctx)
	if err != nil {
		return models.LearningSummary{}, fmt.Errorf("read context stats: %w", err)
	}
	sort.SliceStable(labels, func(i, j int) bool { return labels[i].Label < labels[j].Label })
	for _, c := range labels {
		edge, err := s.Edge(ctx, c.Label)
		if err != nil {
			return models.LearningSummary{}, err
		}
		if edge.SampleSize >= 5 && math.Abs(edge.Edge) > 5 {
			sum.ContextEdges = append(sum.ContextEdges, fmt.Sprintf("%s: %+.1f%% edge", c.Label, edge.Edge))
		}
	}

	sum.Lessons, err = s.lessons(ctx, labels)
	if err != nil {
		return models.LearningSummary{}, err
	}
	return sum, nil
}

// lessons generates the human-readable takeaways: the best pattern with 5+
// samples, the worst pattern with 5+ samples under a 40% win rate, and any
// context label with 10+ samples and a 10+ point edge.
func (s *Store) lessons(ctx context.Context, labels []models.ContextStat) ([]string, error) {
	var out []string

	best, err := s.BestPatterns(ctx, 5)
	if err != nil {
		return nil, err
	}
	if len(best) > 0 {
		out = append(out, fmt.Sprintf("%s works well (%.1f%% win rate)", best[0].Name, best[0].WinRate))
	}

	all, err := s.stats.AllPatternStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("read pattern stats: %w", err)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].WinRate < all[j].WinRate })
	for _, p := range all {
		if p.TotalTrades >= 5 && p.WinRate < 40 {
			out = append(out, fmt.Sprintf("Avoid %s (%.1f%% win rate)", p.Name, p.WinRate))
			break
		}
	}

	for _, c := range labels {
		if c.TotalTrades < 10 {
			continue
		}
		edge, err := s.Edge(ctx, c.Label)
		if err != nil {
			return nil, err
		}
		if edge.Edge > 10 {
			out = append(out, fmt.Sprintf("%s shows %+.1f%% edge", c.Label, edge.Edge))
		}
	}

	if len(out) == 0 {
		out = append(out, "Keep trading to learn patterns")
	}
	return out, nil
}

// Rebuild recomputes every aggregate by replaying the ledger from empty
// state and overwrites the stored values. The ledger is the source of
// truth; this is the crash-recovery and verification path.
func (s *Store) Rebuild(ctx context.Context) error {
	trades, err := s.ledger.All(ctx)
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}

	patterns := make(map[string]*models.PatternStat)
	contexts := make(map[string]*models.ContextStat)
	for _, t := range trades {
		if !t.Closed() {
			continue
		}
		if name := string(t.Pattern); name != "" {
			p, ok := patterns[name]
			if !ok {
				p = &models.PatternStat{Name: name}
				patterns[name] = p
			}
			p.Record(*t.ProfitLossPct, *t.Win)
		}
		if t.ContextLabel != "" {
			c, ok := contexts[t.ContextLabel]
			if !ok {
				c = &models.ContextStat{Label: t.ContextLabel}
				contexts[t.ContextLabel] = c
			}
			c.Record(*t.ProfitLossPct, *t.Win)
		}
	}

	for _, p := range patterns {
		if err := s.stats.PutPatternStat(ctx, *p); err != nil {
			return fmt.Errorf("rebuild pattern %s: %w", p.Name, err)
		}
	}
	for _, c := range contexts {
		if err := s.stats.PutContextStat(ctx, *c); err != nil {
			return fmt.Errorf("rebuild context %s: %w", c.Label, err)
		}
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// keyedMutex serializes operations per key so concurrent closes touching
// the same pattern, label, or asset cannot interleave.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
