package models

import "strings"

// Action is the decision emitted for one evaluation cycle.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Pattern names a rule-defined market setup whose historical win rate is
// tracked. The set is closed: the DecisionEngine rule table covers exactly
// these values.
type Pattern string

const (
	PatternSupportBounce    Pattern = "support_bounce"
	PatternResistanceReject Pattern = "resistance_reject"
	PatternMeanReversion    Pattern = "mean_reversion"
	PatternTrendFollow      Pattern = "trend_follow"
	PatternNone             Pattern = ""
)

// RiskTier sizes the capital allocation for an entry.
type RiskTier string

const (
	RiskNone   RiskTier = "none"
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Decision is the engine output for one asset. Transient: consumed by the
// caller, never persisted.
type Decision struct {
	Asset           string
	Action          Action
	Confidence      float64 // 0..1
	Pattern         Pattern
	Rationale       []string // ordered clauses; join with Reasoning for display
	RiskTier        RiskTier
	ExpectedOutcome string
}

// Reasoning joins the rationale clauses for display.
func (d Decision) Reasoning() string {
	return strings.Join(d.Rationale, " | ")
}
