package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/pkg/cache"
	xhttp "TradePilot/pkg/http"
	xlogger "TradePilot/pkg/logger"
)

const defaultBaseURL = "https://api.alternative.me/fng/"

// Config holds the market-intelligence service settings.
type Config struct {
	BaseURL  string
	CacheTTL time.Duration
}

// Service derives a market sentiment verdict from the crypto fear and
// greed index. Responses are cached so one upstream call covers many
// decision cycles. A fetch failure degrades to a neutral report; the
// decision engine must keep working without this collaborator.
type Service struct {
	client  *xhttp.Client
	cache   cache.Service
	baseURL string
	ttl     time.Duration
	logger  *xlogger.Logger
}

func New(client *xhttp.Client, c cache.Service, cfg Config, logger *xlogger.Logger) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	return &Service{
		client:  client,
		cache:   c,
		baseURL: cfg.BaseURL,
		ttl:     cfg.CacheTTL,
		logger:  logger,
	}
}

// fngResponse mirrors the index API payload. Values arrive as strings.
type fngResponse struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
		Timestamp      string `json:"timestamp"`
	} `json:"data"`
}

// Sentiment returns the current verdict for the asset. The index is
// market-wide, so the asset only labels the report.
func (s *Service) Sentiment(ctx context.Context, asset string) (models.SentimentReport, error) {
	key := cache.GenerateKey("intel:sentiment", asset)

	var cached string
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		var report models.SentimentReport
		if err := json.Unmarshal([]byte(cached), &report); err == nil {
			return report, nil
		}
	}

	report, err := s.fetch(ctx, asset)
	if err != nil {
		s.logger.Warn("sentiment fetch failed, using neutral",
			xlogger.String("asset", asset), xlogger.Error(err))
		return models.NeutralSentiment(asset), nil
	}

	if data, err := json.Marshal(report); err == nil {
		if err := s.cache.Set(ctx, key, string(data), s.ttl); err != nil {
			s.logger.Warn("sentiment cache write failed", xlogger.Error(err))
		}
	}
	return report, nil
}

func (s *Service) fetch(ctx context.Context, asset string) (models.SentimentReport, error) {
	var resp fngResponse
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         s.baseURL,
		QueryParams: map[string][]string{"limit": {"1"}},
	}, &resp)
	if err != nil {
		return models.SentimentReport{}, fmt.Errorf("fetch fear and greed index: %w", err)
	}
	if len(resp.Data) == 0 {
		return models.SentimentReport{}, fmt.Errorf("fear and greed index: empty payload")
	}

	value, err := strconv.Atoi(resp.Data[0].Value)
	if err != nil {
		return models.SentimentReport{}, fmt.Errorf("parse index value %q: %w", resp.Data[0].Value, err)
	}

	return Score(asset, value), nil
}

// Score maps an index value (0 extreme fear, 100 extreme greed) to a
// contrarian verdict: extreme fear reads as a buy signal, extreme greed
// as caution. News and liquidation feeds would add to the composite
// score; without them they contribute zero.
func Score(asset string, value int) models.SentimentReport {
	score := 0
	switch {
	case value < 20:
		score += 15 // extreme fear, contrarian buy signal
	case value < 40:
		score += 5
	case value > 80:
		score -= 15 // extreme greed
	case value > 60:
		score -= 5
	}

	report := models.SentimentReport{
		Asset:     asset,
		Score:     score,
		FetchedAt: time.Now().UTC(),
	}
	switch {
	case score >= 15:
		report.Verdict = models.VerdictBullish
		report.Confidence = int(math.Min(100, float64(50+score)))
	case score <= -15:
		report.Verdict = models.VerdictBearish
		report.Confidence = int(math.Min(100, float64(50-score)))
	default:
		report.Verdict = models.VerdictNeutral
		report.Confidence = 50
	}
	report.Recommendation = recommend(report.Verdict, report.Confidence)
	return report
}

func recommend(verdict models.Verdict, confidence int) string {
	switch verdict {
	case models.VerdictBullish:
		if confidence > 70 {
			return "Strong buy signal - multiple bullish indicators"
		}
		return "Buy signal - moderately bullish conditions"
	case models.VerdictBearish:
		if confidence > 70 {
			return "Strong sell signal - multiple bearish indicators"
		}
		return "Caution - moderately bearish conditions"
	default:
		return "Neutral - wait for clearer signals"
	}
}
