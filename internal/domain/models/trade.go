package models

import "time"

// TradeRecord is one entry in the trade ledger. Exit fields stay nil until
// the trade is closed.
type TradeRecord struct {
	EntryTime time.Time `json:"entry_time"`
	Asset     string    `json:"asset"`
	Side      Action    `json:"side"`
	Price     float64   `json:"price"`
	Amount    float64   `json:"amount"`
	ValueUSD  float64   `json:"value_usd"`

	// Technical/context snapshot at entry.
	RSI           float64 `json:"rsi"`
	RangePosition float64 `json:"range_position"`
	ContextLabel  string  `json:"context_label"`

	Pattern   Pattern `json:"pattern"`
	Rationale string  `json:"rationale"`

	ExitPrice     *float64   `json:"exit_price,omitempty"`
	ExitTime      *time.Time `json:"exit_time,omitempty"`
	ProfitLoss    *float64   `json:"profit_loss,omitempty"`
	ProfitLossPct *float64   `json:"profit_loss_pct,omitempty"`
	Win           *bool      `json:"win,omitempty"`
}

// Closed reports whether the outcome has been recorded.
func (t *TradeRecord) Closed() bool {
	return t.Win != nil
}
