package models

// OutcomeStats is the aggregate shape shared by pattern and context
// statistics. Averages are maintained online per win/loss bucket:
// avg' = (avg*(n-1) + value) / n.
type OutcomeStats struct {
	TotalTrades   int     `json:"total_trades"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinRate       float64 `json:"win_rate"` // percent, 0..100
	AvgWinPct     float64 `json:"avg_win_pct"`
	AvgLossPct    float64 `json:"avg_loss_pct"`
	BestTradePct  float64 `json:"best_trade_pct"`
	WorstTradePct float64 `json:"worst_trade_pct"`
	CumulativePct float64 `json:"cumulative_pct"`
}

// Record folds one closed-trade outcome into the aggregate.
func (s *OutcomeStats) Record(plPct float64, win bool) {
	s.TotalTrades++
	if win {
		s.Wins++
		s.AvgWinPct = (s.AvgWinPct*float64(s.Wins-1) + plPct) / float64(s.Wins)
		if plPct > s.BestTradePct {
			s.BestTradePct = plPct
		}
	} else {
		s.Losses++
		s.AvgLossPct = (s.AvgLossPct*float64(s.Losses-1) + plPct) / float64(s.Losses)
		if plPct < s.WorstTradePct {
			s.WorstTradePct = plPct
		}
	}
	s.WinRate = float64(s.Wins) / float64(s.TotalTrades) * 100
	s.CumulativePct += plPct
}

// PatternStat accumulates outcomes for one pattern. Created lazily on the
// first closed trade referencing the pattern, updated only on close, never
// deleted.
type PatternStat struct {
	Name string `json:"name"`
	OutcomeStats
}

// ContextStat has the same shape keyed by an opaque context label (e.g. a
// lunar phase). Edge against the global baseline is derived at query time,
// not stored.
type ContextStat struct {
	Label string `json:"label"`
	OutcomeStats
}

// SampleConfidence tiers a statistic by sample count.
type SampleConfidence string

const (
	SampleNone   SampleConfidence = "none"
	SampleLow    SampleConfidence = "low"
	SampleMedium SampleConfidence = "medium"
	SampleHigh   SampleConfidence = "high"
)

// TierSampleConfidence maps a sample count to its confidence tier:
// 0 none, <10 low, <30 medium, else high.
func TierSampleConfidence(samples int) SampleConfidence {
	switch {
	case samples == 0:
		return SampleNone
	case samples < 10:
		return SampleLow
	case samples < 30:
		return SampleMedium
	default:
		return SampleHigh
	}
}

// EdgeReport is a context label's win rate against the global baseline
// (win rate across all labels), recomputed at query time.
type EdgeReport struct {
	Label      string           `json:"label"`
	WinRate    float64          `json:"win_rate"`
	Edge       float64          `json:"edge"` // points vs the global win rate
	Confidence SampleConfidence `json:"confidence"`
	SampleSize int              `json:"sample_size"`
}

// LearningSummary is the aggregate view over all closed trades.
type LearningSummary struct {
	TotalTrades   int      `json:"total_trades"`
	WinRate       float64  `json:"win_rate"`
	CumulativePct float64  `json:"cumulative_pct"`
	BestPatterns  []string `json:"best_patterns"`
	AvoidPatterns []string `json:"avoid_patterns"`
	ContextEdges  []string `json:"context_edges"`
	Lessons       []string `json:"lessons"`
}
