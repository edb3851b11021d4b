package engine

import (
	"context"
	"fmt"
	"math"

	"TradePilot/internal/domain/models"
	drepo "TradePilot/internal/domain/repository"
	"TradePilot/internal/learning"
	xlogger "TradePilot/pkg/logger"
)

// Rand is the injectable randomness source for the exploration branch.
// *math/rand.Rand satisfies it; tests supply a seeded or fixed source.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// Config holds the decision thresholds.
type Config struct {
	ExplorationRate float64 // default 0.15
	MinConfidence   float64 // default 0.65
}

func (c *Config) fillDefaults() {
	if c.ExplorationRate == 0 {
		c.ExplorationRate = 0.15
	}
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.65
	}
}

// Engine fuses technical state, learned statistics, and external context
// into a single action. Stateless across calls except for reads against
// the learning store.
type Engine struct {
	store  *learning.Store
	gate   drepo.UnlockGate
	cfg    Config
	rand   Rand
	logger *xlogger.Logger
}

// New creates a decision engine. rnd drives the exploration branch only.
func New(store *learning.Store, gate drepo.UnlockGate, cfg Config, rnd Rand, logger *xlogger.Logger) *Engine {
	cfg.fillDefaults()
	return &Engine{store: store, gate: gate, cfg: cfg, rand: rnd, logger: logger}
}

// candidate is one matched pattern rule scored for this cycle.
type candidate struct {
	pattern      models.Pattern
	direction    models.Action
	confidence   float64
	reason       string
	historicalWR float64
}

// rule is one entry of the fixed, ordered pattern table. Ties in candidate
// confidence resolve by declaration order (stable sort).
type rule struct {
	pattern       models.Pattern
	direction     models.Action
	cap           float64
	defaultWR     float64
	matches       func(rsi, rangePos float64, trend models.Trend) bool
	reason        func(rsi, rangePos float64) string
}

var rules = []rule{
	{
		pattern:   models.PatternSupportBounce,
		direction: models.ActionBuy,
		cap:       0.9,
		defaultWR: 65.0,
		matches:   func(rsi, rangePos float64, _ models.Trend) bool { return rangePos < 25 && rsi < 35 },
		reason: func(rsi, rangePos float64) string {
			return fmt.Sprintf("Near support (%.0f%%) + RSI oversold (%.0f)", rangePos, rsi)
		},
	},
	{
		pattern:   models.PatternResistanceReject,
		direction: models.ActionSell,
		cap:       0.9,
		defaultWR: 65.0,
		matches:   func(rsi, rangePos float64, _ models.Trend) bool { return rangePos > 75 && rsi > 65 },
		reason: func(rsi, rangePos float64) string {
			return fmt.Sprintf("Near resistance (%.0f%%) + RSI overbought (%.0f)", rangePos, rsi)
		},
	},
	{
		pattern:   models.PatternMeanReversion,
		direction: models.ActionBuy,
		cap:       0.85,
		defaultWR: 62.0,
		matches:   func(rsi, _ float64, _ models.Trend) bool { return rsi < 30 },
		reason: func(rsi, _ float64) string {
			return fmt.Sprintf("RSI oversold (%.0f) - likely to bounce", rsi)
		},
	},
	{
		pattern:   models.PatternMeanReversion,
		direction: models.ActionSell,
		cap:       0.85,
		defaultWR: 62.0,
		matches:   func(rsi, _ float64, _ models.Trend) bool { return rsi > 70 },
		reason: func(rsi, _ float64) string {
			return fmt.Sprintf("RSI overbought (%.0f) - likely to pull back", rsi)
		},
	},
	{
		pattern:   models.PatternTrendFollow,
		direction: models.ActionBuy,
		cap:       0.8,
		defaultWR: 63.0,
		matches: func(_, rangePos float64, trend models.Trend) bool {
			return trend == models.TrendUp && rangePos > 30 && rangePos < 70
		},
		reason: func(_, _ float64) string {
			return "Uptrend in progress - follow momentum"
		},
	},
}

// Decide evaluates one asset and returns the action for this cycle. It
// never fails on well-typed input: out-of-range state is clamped and
// missing statistics degrade to documented defaults.
func (e *Engine) Decide(ctx context.Context, asset string, tech models.TechnicalState, sentiment models.SentimentReport, contextLabel string, heldAmount float64) models.Decision {
	if !e.gate.CanTrade(asset) {
		return models.Decision{
			Asset:           asset,
			Action:          models.ActionHold,
			Confidence:      1.0,
			Rationale:       []string{fmt.Sprintf("%s is locked - unlock by reaching the next level", asset)},
			RiskTier:        models.RiskNone,
			ExpectedOutcome: "N/A",
		}
	}

	// a state with no price is the no-data result of analysis; there is
	// nothing to act on
	if tech.Price <= 0 {
		return models.Decision{
			Asset:           asset,
			Action:          models.ActionHold,
			Confidence:      0.5,
			Rationale:       []string{"No market data this cycle"},
			RiskTier:        models.RiskNone,
			ExpectedOutcome: "N/A",
		}
	}

	e.logger.Debug("market state classified",
		xlogger.String("asset", asset),
		xlogger.String("rsi_condition", ClassifyRSI(tech.RSI)),
		xlogger.String("range_condition", ClassifyRange(tech.RangePosition)))

	edge := e.contextEdge(ctx, contextLabel)
	candidates := e.detectPatterns(ctx, tech)

	if heldAmount > 0 {
		if d, ok := e.evaluate(models.ActionSell, asset, candidates, edge, sentiment, contextLabel); ok {
			return d
		}
	}
	if d, ok := e.evaluate(models.ActionBuy, asset, candidates, edge, sentiment, contextLabel); ok {
		return d
	}

	return models.Decision{
		Asset:           asset,
		Action:          models.ActionHold,
		Confidence:      0.5,
		Rationale:       []string{"No qualifying setup - waiting for a better one"},
		RiskTier:        models.RiskNone,
		ExpectedOutcome: "N/A",
	}
}

// ClassifyRSI buckets an RSI reading into its named condition.
func ClassifyRSI(rsi float64) string {
	switch {
	case rsi < 25:
		return "extreme_oversold"
	case rsi < 30:
		return "oversold"
	case rsi < 40:
		return "slightly_oversold"
	case rsi < 60:
		return "neutral"
	case rsi < 70:
		return "slightly_overbought"
	case rsi < 75:
		return "overbought"
	default:
		return "extreme_overbought"
	}
}

// ClassifyRange buckets a range position into its named zone.
func ClassifyRange(rangePos float64) string {
	switch {
	case rangePos < 15:
		return "at_support"
	case rangePos < 30:
		return "near_support"
	case rangePos < 70:
		return "mid_range"
	case rangePos < 85:
		return "near_resistance"
	default:
		return "at_resistance"
	}
}

// contextEdge reads the learned edge for the label, degrading to a zero
// edge when the store is unavailable.
func (e *Engine) contextEdge(ctx context.Context, label string) models.EdgeReport {
	edge, err := e.store.Edge(ctx, label)
	if err != nil {
		e.logger.Warn("context edge unavailable, using neutral", xlogger.String("label", label), xlogger.Error(err))
		return models.EdgeReport{Label: label, WinRate: 50.0, Confidence: models.SampleNone}
	}
	return edge
}

// detectPatterns evaluates the rule table against the technical state and
// returns candidates sorted by confidence descending (stable).
func (e *Engine) detectPatterns(ctx context.Context, tech models.TechnicalState) []candidate {
	rsi := clamp(tech.RSI, 0, 100)
	rangePos := clamp(tech.RangePosition, 0, 100)

	var out []candidate
	for _, r := range rules {
		if !r.matches(rsi, rangePos, tech.Trend) {
			continue
		}
		wr := e.historicalWinRate(ctx, r.pattern, r.defaultWR)
		out = append(out, candidate{
			pattern:      r.pattern,
			direction:    r.direction,
			confidence:   math.Min(r.cap, wr/100),
			reason:       r.reason(rsi, rangePos),
			historicalWR: wr,
		})
	}

	// stable insertion sort keeps declaration order on ties
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].confidence > out[j-1].confidence; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// historicalWinRate returns the learned win rate for a pattern, or the
// rule's default below three samples to avoid biasing toward untested
// patterns.
func (e *Engine) historicalWinRate(ctx context.Context, pattern models.Pattern, def float64) float64 {
	stat, ok, err := e.store.PatternStat(ctx, string(pattern))
	if err != nil {
		e.logger.Warn("pattern stat unavailable, using default",
			xlogger.String("pattern", string(pattern)), xlogger.Error(err))
		return def
	}
	if !ok || stat.TotalTrades < 3 {
		return def
	}
	return stat.WinRate
}

// evaluate scores the best candidate of one direction through context and
// sentiment fusion, the exploration branch, and the confidence threshold.
func (e *Engine) evaluate(direction models.Action, asset string, candidates []candidate, edge models.EdgeReport, sentiment models.SentimentReport, contextLabel string) (models.Decision, bool) {
	var side []candidate
	for _, c := range candidates {
		if c.direction == direction {
			side = append(side, c)
		}
	}
	if len(side) == 0 {
		return models.Decision{}, false
	}

	best := side[0]
	confidence := best.confidence

	// context edge is symmetric: it supports entries and opposes exits
	if direction == models.ActionBuy {
		confidence += edge.Edge / 100
	} else {
		confidence -= edge.Edge / 100
	}

	switch {
	case direction == models.ActionBuy && sentiment.Verdict == models.VerdictBullish,
		direction == models.ActionSell && sentiment.Verdict == models.VerdictBearish:
		confidence += 0.05
	case direction == models.ActionBuy && sentiment.Verdict == models.VerdictBearish,
		direction == models.ActionSell && sentiment.Verdict == models.VerdictBullish:
		confidence -= 0.10
	}
	confidence = clamp(confidence, 0, 1)

	// Exploration: occasionally try a non-top candidate with its own raw
	// confidence so the store gathers unbiased statistics on it.
	if len(side) > 1 && e.rand.Float64() < e.cfg.ExplorationRate {
		best = side[1+e.rand.Intn(len(side)-1)]
		confidence = best.confidence
	}

	if confidence < e.cfg.MinConfidence {
		return models.Decision{}, false
	}

	rationale := []string{best.reason}
	if math.Abs(edge.Edge) > 5 {
		rationale = append(rationale, fmt.Sprintf("%s context (%+.0f%% edge)", contextLabel, edge.Edge))
	}
	if sentiment.Verdict != models.VerdictNeutral {
		rationale = append(rationale, fmt.Sprintf("Market sentiment: %s", sentiment.Verdict))
	}
	if best.historicalWR > 0 {
		rationale = append(rationale, fmt.Sprintf("Historical: %.0f%% win rate", best.historicalWR))
	}

	d := models.Decision{
		Asset:      asset,
		Action:     direction,
		Confidence: round2(confidence),
		Pattern:    best.pattern,
		Rationale:  rationale,
	}
	if direction == models.ActionBuy {
		if confidence > 0.7 {
			d.RiskTier = models.RiskMedium
			d.ExpectedOutcome = "+2-5%"
		} else {
			d.RiskTier = models.RiskHigh
			d.ExpectedOutcome = "+1-3%"
		}
	} else {
		d.RiskTier = models.RiskLow
		d.ExpectedOutcome = "Lock profit / avoid loss"
	}
	return d, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
