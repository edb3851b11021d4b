package models

import "time"

// Verdict is the external sentiment call consumed by the DecisionEngine.
type Verdict string

const (
	VerdictBullish Verdict = "BULLISH"
	VerdictBearish Verdict = "BEARISH"
	VerdictNeutral Verdict = "NEUTRAL"
)

// SentimentReport is the market-intelligence output. The core treats it as
// an opaque input; its correctness is the provider's contract.
type SentimentReport struct {
	Asset          string    `json:"asset"`
	Score          int       `json:"score"`
	Verdict        Verdict   `json:"verdict"`
	Confidence     int       `json:"confidence"` // percent
	Recommendation string    `json:"recommendation"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// NeutralSentiment is the defined fallback when the provider is unavailable.
func NeutralSentiment(asset string) SentimentReport {
	return SentimentReport{
		Asset:      asset,
		Verdict:    VerdictNeutral,
		Confidence: 50,
		FetchedAt:  time.Now(),
	}
}
