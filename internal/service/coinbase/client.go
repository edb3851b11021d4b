package coinbase

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"TradePilot/internal/domain/models"
	drepo "TradePilot/internal/domain/repository"
	"TradePilot/internal/service/ratelimit"
	xhttp "TradePilot/pkg/http"
	xlogger "TradePilot/pkg/logger"
)

// Config holds the exchange gateway settings.
type Config struct {
	BaseURL        string
	APIKey         string
	APISecret      string
	Quote          string // quote currency, e.g. USD
	MaxRetries     uint64
	RequestsPerSec float64 // public API budget
}

// Client is the Coinbase REST gateway. Transient upstream failures are
// retried with exponential backoff; an exhausted retry budget surfaces
// as an error and the caller skips the cycle.
type Client struct {
	http    *xhttp.Client
	cfg     Config
	limiter *ratelimit.Limiter
	logger  *xlogger.Logger
}

func NewClient(httpClient *xhttp.Client, cfg Config, logger *xlogger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.exchange.coinbase.com"
	}
	if cfg.Quote == "" {
		cfg.Quote = "USD"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RequestsPerSec == 0 {
		cfg.RequestsPerSec = 8
	}
	return &Client{http: httpClient, cfg: cfg, limiter: ratelimit.New(), logger: logger}
}

// granularitySeconds maps candle resolutions to the API's bucket sizes.
var granularitySeconds = map[drepo.Granularity]int{
	drepo.GranOneMinute:     60,
	drepo.GranFiveMinute:    300,
	drepo.GranFifteenMinute: 900,
	drepo.GranOneHour:       3600,
	drepo.GranSixHour:       21600,
	drepo.GranOneDay:        86400,
}

func (c *Client) productID(asset string) string {
	return asset + "-" + c.cfg.Quote
}

func (c *Client) CurrentPrice(ctx context.Context, asset string) (float64, error) {
	var resp struct {
		Price string `json:"price"`
	}
	url := fmt.Sprintf("%s/products/%s/ticker", c.cfg.BaseURL, c.productID(asset))
	if err := c.get(ctx, "ticker", url, nil, &resp); err != nil {
		return 0, fmt.Errorf("current price %s: %w", asset, err)
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", resp.Price, err)
	}
	return price, nil
}

// Candles returns up to count candles, newest first, matching the API's
// native ordering.
func (c *Client) Candles(ctx context.Context, asset string, gran drepo.Granularity, count int) ([]models.Candle, error) {
	secs, ok := granularitySeconds[gran]
	if !ok {
		return nil, fmt.Errorf("unsupported granularity: %s", gran)
	}

	// each row is [time, low, high, open, close, volume]
	var rows [][]float64
	url := fmt.Sprintf("%s/products/%s/candles", c.cfg.BaseURL, c.productID(asset))
	params := map[string][]string{"granularity": {strconv.Itoa(secs)}}
	if err := c.get(ctx, "candles", url, params, &rows); err != nil {
		return nil, fmt.Errorf("candles %s: %w", asset, err)
	}

	if count > 0 && len(rows) > count {
		rows = rows[:count]
	}
	out := make([]models.Candle, 0, len(rows))
	for _, r := range rows {
		if len(r) < 6 {
			return nil, fmt.Errorf("candles %s: malformed row of %d fields", asset, len(r))
		}
		out = append(out, models.Candle{
			Timestamp: time.Unix(int64(r[0]), 0).UTC(),
			Low:       r[1],
			High:      r[2],
			Open:      r[3],
			Close:     r[4],
			Volume:    r[5],
		})
	}
	return out, nil
}

func (c *Client) Balances(ctx context.Context) (map[string]float64, error) {
	var accounts []struct {
		Currency string `json:"currency"`
		Balance  string `json:"balance"`
	}
	url := c.cfg.BaseURL + "/accounts"
	if err := c.get(ctx, "accounts", url, nil, &accounts); err != nil {
		return nil, fmt.Errorf("balances: %w", err)
	}

	out := make(map[string]float64, len(accounts))
	for _, a := range accounts {
		bal, err := strconv.ParseFloat(a.Balance, 64)
		if err != nil {
			return nil, fmt.Errorf("parse balance %s=%q: %w", a.Currency, a.Balance, err)
		}
		if bal > 0 {
			out[a.Currency] = bal
		}
	}
	return out, nil
}

// TotalBalanceUSD values every holding at the current market price.
func (c *Client) TotalBalanceUSD(ctx context.Context) (float64, error) {
	balances, err := c.Balances(ctx)
	if err != nil {
		return 0, err
	}

	total := 0.0
	for currency, amount := range balances {
		if currency == c.cfg.Quote {
			total += amount
			continue
		}
		price, err := c.CurrentPrice(ctx, currency)
		if err != nil {
			return 0, fmt.Errorf("value %s holding: %w", currency, err)
		}
		total += amount * price
	}
	return total, nil
}

// PlaceMarketOrder submits a market order and returns the order id. Buys
// are sized in quote currency, sells in base units.
func (c *Client) PlaceMarketOrder(ctx context.Context, asset string, side models.Action, quoteSizeUSD, baseSize float64) (string, error) {
	body := map[string]interface{}{
		"product_id": c.productID(asset),
		"type":       "market",
	}
	switch side {
	case models.ActionBuy:
		body["side"] = "buy"
		body["funds"] = strconv.FormatFloat(quoteSizeUSD, 'f', 2, 64)
	case models.ActionSell:
		body["side"] = "sell"
		body["size"] = strconv.FormatFloat(baseSize, 'f', -1, 64)
	default:
		return "", fmt.Errorf("place order: unsupported side %s", side)
	}

	var resp struct {
		ID string `json:"id"`
	}
	err := c.withRetry(ctx, "place_order", func() error {
		return c.http.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:  xhttp.MethodPost,
			URL:     c.cfg.BaseURL + "/orders",
			Headers: c.authHeaders(),
			Body:    body,
		}, &resp)
	})
	if err != nil {
		return "", fmt.Errorf("place %s order %s: %w", side, asset, err)
	}

	c.logger.Info("order placed",
		xlogger.String("asset", asset),
		xlogger.String("side", string(side)),
		xlogger.String("order_id", resp.ID))
	return resp.ID, nil
}

func (c *Client) get(ctx context.Context, op, url string, params map[string][]string, dest interface{}) error {
	return c.withRetry(ctx, op, func() error {
		return c.http.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:      xhttp.MethodGet,
			URL:         url,
			Headers:     c.authHeaders(),
			QueryParams: params,
		}, dest)
	})
}

func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	paced := func() error {
		if err := c.limiter.Wait(ctx, "rest", c.cfg.RequestsPerSec, c.cfg.RequestsPerSec); err != nil {
			return backoff.Permanent(err)
		}
		return fn()
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.MaxRetries), ctx)
	return backoff.RetryNotify(paced, bo, func(err error, next time.Duration) {
		c.logger.Warn("coinbase request retry",
			xlogger.String("op", op),
			xlogger.Duration("backoff", next),
			xlogger.Error(err))
	})
}

func (c *Client) authHeaders() map[string]string {
	if c.cfg.APIKey == "" {
		return nil
	}
	return map[string]string{
		"CB-ACCESS-KEY":        c.cfg.APIKey,
		"CB-ACCESS-PASSPHRASE": c.cfg.APISecret,
	}
}
