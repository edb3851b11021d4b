package models

// Trend is the moving-average crossover direction.
type Trend string

const (
	TrendUp      Trend = "uptrend"
	TrendDown    Trend = "downtrend"
	TrendUnknown Trend = "unknown"
)

// TrendStrength tiers the MA gap: >2% strong, >0.5% moderate, else weak.
type TrendStrength string

const (
	StrengthWeak     TrendStrength = "weak"
	StrengthModerate TrendStrength = "moderate"
	StrengthStrong   TrendStrength = "strong"
)

// TechnicalState is the derived indicator snapshot for one asset at one
// price. Recomputed every cycle, never mutated.
type TechnicalState struct {
	Price         float64       `json:"price"`
	RSI           float64       `json:"rsi"`
	MA20          float64       `json:"ma20"`
	MA50          float64       `json:"ma50"`
	MA200         float64       `json:"ma200"`
	Support       float64       `json:"support"`
	Resistance    float64       `json:"resistance"`
	RangePct      float64       `json:"range_pct"`      // resistance-support width as % of support
	RangePosition float64       `json:"range_position"` // 0 = at support, 100 = at resistance
	VolumeRatio   float64       `json:"volume_ratio"`
	Trend         Trend         `json:"trend"`
	TrendStrength TrendStrength `json:"trend_strength"`
	Signals       []string      `json:"signals"` // advisory annotations for display only
}
