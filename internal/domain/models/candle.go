package models

import "time"

// Candle represents one OHLCV observation over a fixed time bucket.
type Candle struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp time.Time
}

// Tick is a lightweight last-price update from the exchange stream.
type Tick struct {
	Asset     string
	Price     float64
	Timestamp time.Time
}
