package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"TradePilot/internal/domain/models"
	pkgch "TradePilot/pkg/clickhouse"
	xlogger "TradePilot/pkg/logger"
)

// HistorySchema creates the analytics table. Passed to the client's
// InitSchema at startup; every statement is idempotent.
var HistorySchema = []string{
	`CREATE DATABASE IF NOT EXISTS tradepilot`,
	`CREATE TABLE IF NOT EXISTS tradepilot.trade_history (
        entry_time      DateTime,
        exit_time       DateTime,
        asset           LowCardinality(String),
        side            LowCardinality(String),
        entry_price     Float64,
        exit_price      Float64,
        amount          Float64,
        profit_loss     Float64,
        profit_loss_pct Float64,
        win             UInt8,
        pattern         LowCardinality(String),
        context_label   LowCardinality(String),
        rsi             Float64,
        range_position  Float64
    ) ENGINE = MergeTree()
    ORDER BY (asset, entry_time)`,
}

// CHTradeHistory mirrors closed trades into ClickHouse for offline
// analytics. It is write-only and never read by the trading loop.
type CHTradeHistory struct {
	db     *sql.DB
	logger *xlogger.Logger
}

func NewCHTradeHistory(ch *pkgch.Client, logger *xlogger.Logger) *CHTradeHistory {
	return &CHTradeHistory{db: ch.DB(), logger: logger}
}

func (s *CHTradeHistory) RecordClosed(ctx context.Context, trade models.TradeRecord) error {
	if !trade.Closed() {
		return fmt.Errorf("record closed: trade is still open")
	}

	start := time.Now()
	const q = `INSERT INTO tradepilot.trade_history
        (entry_time, exit_time, asset, side, entry_price, exit_price, amount,
         profit_loss, profit_loss_pct, win, pattern, context_label, rsi, range_position)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	win := uint8(0)
	if *trade.Win {
		win = 1
	}
	_, err := s.db.ExecContext(ctx, q,
		trade.EntryTime,
		*trade.ExitTime,
		trade.Asset,
		string(trade.Side),
		trade.Price,
		*trade.ExitPrice,
		trade.Amount,
		*trade.ProfitLoss,
		*trade.ProfitLossPct,
		win,
		string(trade.Pattern),
		trade.ContextLabel,
		trade.RSI,
		trade.RangePosition,
	)
	if err != nil {
		return fmt.Errorf("insert trade history: %w", err)
	}

	s.logger.Debug("trade history recorded",
		xlogger.String("asset", trade.Asset),
		xlogger.String("pattern", string(trade.Pattern)),
		xlogger.Duration("duration_ms", time.Since(start)))
	return nil
}

func (s *CHTradeHistory) Close() error {
	return nil // pool is owned by the client
}
