package indicator

import (
	"errors"
	"math"

	"TradePilot/internal/domain/models"
)

// ErrNoData is returned when analysis is requested with no candle history.
var ErrNoData = errors.New("no candle data")

// Config holds the indicator lookback windows.
type Config struct {
	RSIPeriod     int // default 14
	SRWindow      int // support/resistance lookback, default 24
	VolumeWindow  int // trailing volume average, default 20
	ShortMAPeriod int // default 20
	LongMAPeriod  int // default 50
}

func (c *Config) fillDefaults() {
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	if c.SRWindow <= 0 {
		c.SRWindow = 24
	}
	if c.VolumeWindow <= 0 {
		c.VolumeWindow = 20
	}
	if c.ShortMAPeriod <= 0 {
		c.ShortMAPeriod = 20
	}
	if c.LongMAPeriod <= 0 {
		c.LongMAPeriod = 50
	}
}

// Engine derives a TechnicalState from raw candle history. It is a pure
// computation: no persistence, no side effects.
type Engine struct {
	cfg Config
}

// New creates an indicator engine, filling zero config fields with defaults.
func New(cfg Config) *Engine {
	cfg.fillDefaults()
	return &Engine{cfg: cfg}
}

// Analyze computes the full technical state for the given history and
// current price. Candles may arrive newest-first or oldest-first; order is
// normalized here and never assumed downstream. Sparse history degrades to
// documented neutral defaults; only an empty history is an error.
func (e *Engine) Analyze(candles []models.Candle, currentPrice float64) (models.TechnicalState, error) {
	if len(candles) == 0 {
		return models.TechnicalState{}, ErrNoData
	}

	cs := newestFirst(candles)
	prices := make([]float64, len(cs))
	for i, c := range cs {
		prices[i] = c.Close
	}

	state := models.TechnicalState{
		Price:       currentPrice,
		RSI:         RSI(prices, e.cfg.RSIPeriod),
		MA20:        MovingAverage(prices, 20),
		MA50:        MovingAverage(prices, 50),
		MA200:       MovingAverage(prices, 200),
		VolumeRatio: VolumeRatio(cs, e.cfg.VolumeWindow),
	}

	window := cs
	if len(window) > e.cfg.SRWindow {
		window = window[:e.cfg.SRWindow]
	}
	state.Support, state.Resistance, state.RangePct = SupportResistance(window)
	state.RangePosition = RangePosition(currentPrice, state.Support, state.Resistance)

	state.Trend, state.TrendStrength = DetectTrend(prices, e.cfg.ShortMAPeriod, e.cfg.LongMAPeriod)
	state.Signals = signals(state)

	return state, nil
}

// newestFirst returns the candles ordered newest-first, copying only when a
// reversal is needed. Order is detected from timestamps; untimestamped input
// is assumed to already be newest-first.
func newestFirst(candles []models.Candle) []models.Candle {
	if len(candles) < 2 {
		return candles
	}
	first, last := candles[0].Timestamp, candles[len(candles)-1].Timestamp
	if first.IsZero() || last.IsZero() || !first.Before(last) {
		return candles
	}
	out := make([]models.Candle, len(candles))
	for i, c := range candles {
		out[len(candles)-1-i] = c
	}
	return out
}

// RSI computes the Relative Strength Index over newest-first closing
// prices using the Wilder seed: average gain/loss over the first `period`
// deltas of the chronologically ordered series. Returns the neutral 50
// when fewer than period+1 prices exist, 100 when there are no losses.
func RSI(newestFirstPrices []float64, period int) float64 {
	if len(newestFirstPrices) < period+1 {
		return 50.0
	}

	// oldest-first for delta computation
	prices := make([]float64, len(newestFirstPrices))
	for i, p := range newestFirstPrices {
		prices[len(newestFirstPrices)-1-i] = p
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return round2(100.0 - 100.0/(1.0+rs))
}

// MovingAverage is the arithmetic mean of the most recent `period` closes
// (prices newest-first). With fewer prices than the period it degrades to
// the most recent close, or 0 with no prices at all.
func MovingAverage(newestFirstPrices []float64, period int) float64 {
	if len(newestFirstPrices) == 0 {
		return 0
	}
	if len(newestFirstPrices) < period {
		return newestFirstPrices[0]
	}
	var sum float64
	for _, p := range newestFirstPrices[:period] {
		sum += p
	}
	return sum / float64(period)
}

// SupportResistance returns min(low), max(high) and the range width as a
// percentage of support over the given window.
func SupportResistance(candles []models.Candle) (support, resistance, rangePct float64) {
	if len(candles) == 0 {
		return 0, 0, 0
	}
	support = candles[0].Low
	resistance = candles[0].High
	for _, c := range candles[1:] {
		if c.Low < support {
			support = c.Low
		}
		if c.High > resistance {
			resistance = c.High
		}
	}
	if support > 0 {
		rangePct = round2((resistance - support) / support * 100)
	}
	return round2(support), round2(resistance), rangePct
}

// RangePosition places price within [support, resistance] as 0..100,
// clamped. A degenerate range (resistance <= support) reads as 50.
func RangePosition(price, support, resistance float64) float64 {
	if resistance <= support {
		return 50.0
	}
	pos := (price - support) / (resistance - support) * 100
	return math.Max(0, math.Min(100, round2(pos)))
}

// VolumeRatio compares the current candle's volume with the mean of the
// trailing window right after it (candles newest-first). With fewer than
// two candles or a zero average it reads as the neutral 1.0.
func VolumeRatio(candles []models.Candle, window int) float64 {
	if len(candles) < 2 {
		return 1.0
	}
	trailing := candles[1:]
	if len(trailing) > window {
		trailing = trailing[:window]
	}
	var sum float64
	for _, c := range trailing {
		sum += c.Volume
	}
	avg := sum / float64(len(trailing))
	if avg == 0 {
		return 1.0
	}
	return round2(candles[0].Volume / avg)
}

// DetectTrend compares the short and long moving averages. Strength is
// tiered by the percentage gap: >2% strong, >0.5% moderate, else weak.
// Fewer prices than the long period means the trend is unknown.
func DetectTrend(newestFirstPrices []float64, shortPeriod, longPeriod int) (models.Trend, models.TrendStrength) {
	if len(newestFirstPrices) < longPeriod {
		return models.TrendUnknown, models.StrengthWeak
	}

	maShort := MovingAverage(newestFirstPrices, shortPeriod)
	maLong := MovingAverage(newestFirstPrices, longPeriod)

	var trend models.Trend
	var diffPct float64
	if maShort > maLong {
		trend = models.TrendUp
		diffPct = (maShort - maLong) / maLong * 100
	} else {
		trend = models.TrendDown
		diffPct = (maLong - maShort) / maLong * 100
	}

	strength := models.StrengthWeak
	switch {
	case diffPct > 2:
		strength = models.StrengthStrong
	case diffPct > 0.5:
		strength = models.StrengthModerate
	}
	return trend, strength
}

// Signal annotation strings. Advisory only: the DecisionEngine re-derives
// its own triggers from the same TechnicalState fields.
const (
	SignalOversold      = "RSI OVERSOLD - potential buy"
	SignalOverbought    = "RSI OVERBOUGHT - potential sell"
	SignalNearSupport   = "NEAR SUPPORT - bounce opportunity"
	SignalNearResist    = "NEAR RESISTANCE - take profit"
	SignalHighVolume    = "HIGH VOLUME - strong move confirmation"
	SignalFollowUptrend = "UPTREND - follow the trend"
	SignalAvoidLongs    = "DOWNTREND - avoid longs"
)

func signals(s models.TechnicalState) []string {
	var out []string
	if s.RSI < 30 {
		out = append(out, SignalOversold)
	} else if s.RSI > 70 {
		out = append(out, SignalOverbought)
	}
	if s.RangePosition < 20 {
		out = append(out, SignalNearSupport)
	} else if s.RangePosition > 80 {
		out = append(out, SignalNearResist)
	}
	if s.VolumeRatio > 2.0 {
		out = append(out, SignalHighVolume)
	}
	trending := s.TrendStrength == models.StrengthModerate || s.TrendStrength == models.StrengthStrong
	if s.Trend == models.TrendUp && trending {
		out = append(out, SignalFollowUptrend)
	} else if s.Trend == models.TrendDown && trending {
		out = append(out, SignalAvoidLongs)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
