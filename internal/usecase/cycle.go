package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	drepo "TradePilot/internal/domain/repository"
	"TradePilot/internal/engine"
	"TradePilot/internal/indicator"
	"TradePilot/internal/learning"
	"TradePilot/internal/progression"
	xlogger "TradePilot/pkg/logger"
)

// CycleConfig holds the trading loop settings.
type CycleConfig struct {
	Assets      []string
	Quote       string
	Interval    time.Duration
	CandleCount int
	Granularity drepo.Granularity
	MinOrderUSD float64
}

func (c *CycleConfig) fillDefaults() {
	if c.Quote == "" {
		c.Quote = "USD"
	}
	if c.Interval == 0 {
		c.Interval = 15 * time.Minute
	}
	if c.CandleCount == 0 {
		c.CandleCount = 200
	}
	if c.Granularity == "" {
		c.Granularity = drepo.GranOneHour
	}
	if c.MinOrderUSD == 0 {
		c.MinOrderUSD = 5
	}
}

// Cycle drives the signal-to-decision pipeline: every interval it pulls
// market data per asset, derives indicators, asks the decision engine for
// an action, and executes it. One asset's failure never blocks another;
// a failed cycle step is logged and skipped.
type Cycle struct {
	cfg        CycleConfig
	exchange   drepo.Exchange
	indicators *indicator.Engine
	store      *learning.Store
	decider    *engine.Engine
	sentiment  drepo.SentimentSource
	labeler    drepo.ContextLabeler
	ladder     *progression.Tracker
	watcher    *PriceWatcher
	publisher  drepo.DecisionPublisher // optional
	metrics    drepo.Metrics
	logger     *xlogger.Logger

	// serializes order placement so concurrent buys cannot overspend
	orderMu sync.Mutex
}

func NewCycle(
	cfg CycleConfig,
	exchange drepo.Exchange,
	indicators *indicator.Engine,
	store *learning.Store,
	decider *engine.Engine,
	sentiment drepo.SentimentSource,
	labeler drepo.ContextLabeler,
	ladder *progression.Tracker,
	watcher *PriceWatcher,
	publisher drepo.DecisionPublisher,
	metrics drepo.Metrics,
	logger *xlogger.Logger,
) *Cycle {
	cfg.fillDefaults()
	return &Cycle{
		cfg:        cfg,
		exchange:   exchange,
		indicators: indicators,
		store:      store,
		decider:    decider,
		sentiment:  sentiment,
		labeler:    labeler,
		ladder:     ladder,
		watcher:    watcher,
		publisher:  publisher,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run executes cycles until the context is canceled. The first cycle
// starts immediately.
func (c *Cycle) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce evaluates every configured asset concurrently and acts on the
// resulting decisions.
func (c *Cycle) RunOnce(ctx context.Context) {
	start := time.Now()

	balances, err := c.exchange.Balances(ctx)
	if err != nil {
		c.metrics.RecordError("balances")
		c.logger.Warn("cycle skipped: balances unavailable", xlogger.Error(err))
		return
	}

	book := newBalanceBook(balances)

	var wg sync.WaitGroup
	for _, asset := range c.cfg.Assets {
		wg.Add(1)
		go func(asset string) {
			defer wg.Done()
			decision, tech, err := c.Evaluate(ctx, asset, balances)
			if err != nil {
				c.metrics.RecordError("evaluate")
				c.logger.Warn("asset skipped this cycle",
					xlogger.String("asset", asset), xlogger.Error(err))
				return
			}
			c.act(ctx, decision, tech, book)
		}(asset)
	}
	wg.Wait()

	c.advanceLadder(ctx)
	c.metrics.RecordLatency("cycle", time.Since(start).Seconds())
}

// Evaluate produces the decision and technical state for one asset
// without executing anything. The HTTP API reuses it for dry runs.
func (c *Cycle) Evaluate(ctx context.Context, asset string, balances map[string]float64) (models.Decision, models.TechnicalState, error) {
	price, err := c.exchange.CurrentPrice(ctx, asset)
	if err != nil {
		if c.watcher != nil {
			if p, ok := c.watcher.LastPrice(asset); ok {
				c.logger.Warn("using streamed last price",
					xlogger.String("asset", asset), xlogger.Error(err))
				price, err = p, nil
			}
		}
		if err != nil {
			return models.Decision{}, models.TechnicalState{}, fmt.Errorf("current price: %w", err)
		}
	}

	candles, err := c.exchange.Candles(ctx, asset, c.cfg.Granularity, c.cfg.CandleCount)
	if err != nil {
		return models.Decision{}, models.TechnicalState{}, fmt.Errorf("candles: %w", err)
	}

	tech, err := c.indicators.Analyze(candles, price)
	if err != nil {
		return models.Decision{}, models.TechnicalState{}, fmt.Errorf("analyze: %w", err)
	}

	sentiment, err := c.sentiment.Sentiment(ctx, asset)
	if err != nil {
		sentiment = models.NeutralSentiment(asset)
	}
	label := c.labeler.Label(time.Now().UTC())

	decision := c.decider.Decide(ctx, asset, tech, sentiment, label, balances[asset])
	return decision, tech, nil
}

// EvaluateLive fetches fresh balances and evaluates one asset. Used by
// the HTTP API for dry runs; nothing is executed.
func (c *Cycle) EvaluateLive(ctx context.Context, asset string) (models.Decision, models.TechnicalState, error) {
	balances, err := c.exchange.Balances(ctx)
	if err != nil {
		return models.Decision{}, models.TechnicalState{}, fmt.Errorf("balances: %w", err)
	}
	return c.Evaluate(ctx, asset, balances)
}

// Analysis returns the technical snapshot for an asset over the given
// candle count without consulting the decision engine.
func (c *Cycle) Analysis(ctx context.Context, asset string, count int) (models.TechnicalState, error) {
	if count <= 0 {
		count = c.cfg.CandleCount
	}
	price, err := c.exchange.CurrentPrice(ctx, asset)
	if err != nil {
		return models.TechnicalState{}, fmt.Errorf("current price: %w", err)
	}
	candles, err := c.exchange.Candles(ctx, asset, c.cfg.Granularity, count)
	if err != nil {
		return models.TechnicalState{}, fmt.Errorf("candles: %w", err)
	}
	tech, err := c.indicators.Analyze(candles, price)
	if err != nil {
		return models.TechnicalState{}, fmt.Errorf("analyze: %w", err)
	}
	return tech, nil
}

func (c *Cycle) act(ctx context.Context, d models.Decision, tech models.TechnicalState, book *balanceBook) {
	c.metrics.RecordDecision(d.Asset, string(d.Action))
	c.logger.Info("decision",
		xlogger.String("asset", d.Asset),
		xlogger.String("action", string(d.Action)),
		xlogger.Float64("confidence", d.Confidence),
		xlogger.String("pattern", string(d.Pattern)))

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, d); err != nil {
			c.logger.Warn("decision publish failed", xlogger.Error(err))
		}
	}

	switch d.Action {
	case models.ActionBuy:
		c.executeBuy(ctx, d, tech, book)
	case models.ActionSell:
		c.executeSell(ctx, d, tech, book)
	}
}

func (c *Cycle) executeBuy(ctx context.Context, d models.Decision, tech models.TechnicalState, book *balanceBook) {
	c.orderMu.Lock()
	defer c.orderMu.Unlock()

	quote := book.get(c.cfg.Quote)
	size := engine.PositionSize(quote, d.Confidence, d.RiskTier)
	if size < c.cfg.MinOrderUSD {
		c.logger.Info("buy skipped: size below minimum",
			xlogger.String("asset", d.Asset), xlogger.Float64("size_usd", size))
		return
	}

	orderID, err := c.exchange.PlaceMarketOrder(ctx, d.Asset, models.ActionBuy, size, 0)
	if err != nil {
		c.metrics.RecordError("order")
		c.logger.Error("buy order failed", xlogger.String("asset", d.Asset), xlogger.Error(err))
		return
	}
	book.add(c.cfg.Quote, -size)

	now := time.Now().UTC()
	trade := models.TradeRecord{
		EntryTime:     now,
		Asset:         d.Asset,
		Side:          models.ActionBuy,
		Price:         tech.Price,
		Amount:        size / tech.Price,
		ValueUSD:      size,
		RSI:           tech.RSI,
		RangePosition: tech.RangePosition,
		ContextLabel:  c.labeler.Label(now),
		Pattern:       d.Pattern,
		Rationale:     d.Reasoning(),
	}
	if err := c.store.RecordEntry(ctx, trade); err != nil {
		c.logger.Error("entry not recorded",
			xlogger.String("asset", d.Asset),
			xlogger.String("order_id", orderID),
			xlogger.Error(err))
	}
}

func (c *Cycle) executeSell(ctx context.Context, d models.Decision, tech models.TechnicalState, book *balanceBook) {
	c.orderMu.Lock()
	defer c.orderMu.Unlock()

	held := book.get(d.Asset)
	if held <= 0 {
		return
	}

	if _, err := c.exchange.PlaceMarketOrder(ctx, d.Asset, models.ActionSell, 0, held); err != nil {
		c.metrics.RecordError("order")
		c.logger.Error("sell order failed", xlogger.String("asset", d.Asset), xlogger.Error(err))
		return
	}
	book.add(d.Asset, -held)

	closed, err := c.store.RecordExit(ctx, d.Asset, tech.Price, time.Now().UTC())
	if err != nil {
		if errors.Is(err, learning.ErrNoOpenTrade) {
			c.logger.Warn("sell executed with no open entry", xlogger.String("asset", d.Asset))
			return
		}
		c.logger.Error("exit not recorded", xlogger.String("asset", d.Asset), xlogger.Error(err))
		return
	}
	c.metrics.RecordTradeClosed(string(closed.Pattern), *closed.Win)
	c.logger.Info("trade closed",
		xlogger.String("asset", d.Asset),
		xlogger.Float64("profit_pct", *closed.ProfitLossPct),
		xlogger.Bool("win", *closed.Win))
}

// advanceLadder revalues the account and persists any level-ups.
func (c *Cycle) advanceLadder(ctx context.Context) {
	total, err := c.exchange.TotalBalanceUSD(ctx)
	if err != nil {
		c.metrics.RecordError("balance_total")
		c.logger.Warn("ladder update skipped", xlogger.Error(err))
		return
	}
	unlocked, err := c.ladder.UpdateBalance(ctx, total)
	if err != nil {
		c.logger.Error("ladder state not persisted", xlogger.Error(err))
		return
	}
	if len(unlocked) > 0 {
		c.logger.Info("assets unlocked", xlogger.Strings("assets", unlocked))
	}
}

// balanceBook tracks remaining balances across the acting phase of one
// cycle. The evaluation phase reads the original snapshot instead.
type balanceBook struct {
	mu sync.Mutex
	m  map[string]float64
}

func newBalanceBook(balances map[string]float64) *balanceBook {
	m := make(map[string]float64, len(balances))
	for k, v := range balances {
		m[k] = v
	}
	return &balanceBook{m: m}
}

func (b *balanceBook) get(asset string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.m[asset]
}

func (b *balanceBook) add(asset string, delta float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[asset] += delta
}
