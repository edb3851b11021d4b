package repository

import (
	"context"
	"time"

	"TradePilot/internal/domain/models"
)

// Granularity represents candle resolution buckets.
type Granularity string

const (
	GranOneMinute     Granularity = "ONE_MINUTE"
	GranFiveMinute    Granularity = "FIVE_MINUTE"
	GranFifteenMinute Granularity = "FIFTEEN_MINUTE"
	GranOneHour       Granularity = "ONE_HOUR"
	GranSixHour       Granularity = "SIX_HOUR"
	GranOneDay        Granularity = "ONE_DAY"
)

// Exchange is the execution gateway. The core never talks to an exchange
// directly; any error from this boundary means "data unavailable this
// cycle" and the cycle is skipped, never fatal.
type Exchange interface {
	CurrentPrice(ctx context.Context, asset string) (float64, error)
	Candles(ctx context.Context, asset string, gran Granularity, count int) ([]models.Candle, error)
	Balances(ctx context.Context) (map[string]float64, error)
	TotalBalanceUSD(ctx context.Context) (float64, error)
	PlaceMarketOrder(ctx context.Context, asset string, side models.Action, quoteSizeUSD, baseSize float64) (string, error)
}

// TradeLedger is the append-mostly trade collection, mutable by entry
// timestamp for close.
type TradeLedger interface {
	Append(ctx context.Context, trade models.TradeRecord) error
	Update(ctx context.Context, trade models.TradeRecord) error
	All(ctx context.Context) ([]models.TradeRecord, error)
}

// StatStore holds the keyed pattern/context aggregates. Upserts are
// whole-value per key; read-after-write consistency per key is required.
type StatStore interface {
	PatternStat(ctx context.Context, name string) (models.PatternStat, bool, error)
	PutPatternStat(ctx context.Context, stat models.PatternStat) error
	AllPatternStats(ctx context.Context) ([]models.PatternStat, error)
	ContextStat(ctx context.Context, label string) (models.ContextStat, bool, error)
	PutContextStat(ctx context.Context, stat models.ContextStat) error
	AllContextStats(ctx context.Context) ([]models.ContextStat, error)
}

// TradeHistorySink receives closed trades for offline analytics. It is a
// mirror, never the source of truth: failures are logged and ignored.
type TradeHistorySink interface {
	RecordClosed(ctx context.Context, trade models.TradeRecord) error
	Close() error
}

// DecisionPublisher emits decision events to an external stream for
// downstream consumers.
type DecisionPublisher interface {
	Publish(ctx context.Context, decision models.Decision) error
	Close() error
}

// SentimentSource provides the external market-intelligence verdict.
type SentimentSource interface {
	Sentiment(ctx context.Context, asset string) (models.SentimentReport, error)
}

// ContextLabeler provides the opaque context label tracked against trade
// outcomes (e.g. the current lunar phase).
type ContextLabeler interface {
	Label(at time.Time) string
}

// UnlockGate reports whether an asset is currently tradable.
type UnlockGate interface {
	CanTrade(asset string) bool
}

// PriceStream delivers live last-price updates.
type PriceStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Metrics records operational measurements.
type Metrics interface {
	RecordDecision(asset string, action string)
	RecordTradeClosed(pattern string, win bool)
	RecordLastPrice(asset string, price float64)
	RecordLatency(op string, seconds float64)
	RecordError(kind string)
}
