package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"TradePilot/internal/domain/models"
	xlogger "TradePilot/pkg/logger"
)

// Stream implements the live price feed over the Coinbase ticker channel.
type Stream struct {
	url            string
	quote          string
	assets         []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	logger         *xlogger.Logger

	conn      *websocket.Conn
	connected bool
}

// NewStream creates a ticker stream for the given assets.
func NewStream(url, quote string, assets []string, reconnectDelay, pingInterval time.Duration, logger *xlogger.Logger) *Stream {
	if url == "" {
		url = "wss://ws-feed.exchange.coinbase.com"
	}
	if quote == "" {
		quote = "USD"
	}
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Stream{
		url:            url,
		quote:          quote,
		assets:         assets,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		logger:         logger,
	}
}

func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("coinbase stream connect: %w", err)
	}
	s.conn = conn
	s.connected = true
	s.logger.Info("price stream connected", xlogger.String("url", s.url))
	return nil
}

func (s *Stream) Subscribe(ctx context.Context) error {
	if s.conn == nil || !s.connected {
		return fmt.Errorf("coinbase stream not connected")
	}
	products := make([]string, len(s.assets))
	for i, a := range s.assets {
		products[i] = a + "-" + s.quote
	}
	msg := map[string]interface{}{
		"type":        "subscribe",
		"product_ids": products,
		"channels":    []string{"ticker"},
	}
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe ticker: %w", err)
	}
	s.logger.Info("price stream subscribed", xlogger.Strings("products", products))
	return nil
}

type tickerMessage struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Time      string `json:"time"`
}

// Read streams ticks and errors. The tick channel drops on backpressure;
// a stale last price is better than a blocked read loop.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.conn != nil {
					_ = s.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	go func() {
		defer close(ticks)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if s.conn == nil {
					errs <- fmt.Errorf("coinbase stream conn nil")
					return
				}
				_, b, err := s.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("coinbase stream read: %w", err)
					return
				}
				var m tickerMessage
				if err := json.Unmarshal(b, &m); err != nil {
					continue // ignore non-JSON frames
				}
				if m.Type != "ticker" || m.Price == "" {
					continue
				}
				price, err := strconv.ParseFloat(m.Price, 64)
				if err != nil {
					continue
				}
				at, err := time.Parse(time.RFC3339Nano, m.Time)
				if err != nil {
					at = time.Now().UTC()
				}
				tick := &models.Tick{
					Asset:     strings.TrimSuffix(m.ProductID, "-"+s.quote),
					Price:     price,
					Timestamp: at,
				}
				select {
				case ticks <- tick:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return ticks, errs
}

func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	time.Sleep(s.reconnectDelay)
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

func (s *Stream) Close() error {
	s.connected = false
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Stream) IsConnected() bool { return s.connected }
