package di

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"time"

	drepo "TradePilot/internal/domain/repository"
	"TradePilot/internal/engine"
	"TradePilot/internal/handler/api"
	"TradePilot/internal/indicator"
	"TradePilot/internal/intel"
	"TradePilot/internal/learning"
	"TradePilot/internal/lunar"
	"TradePilot/internal/progression"
	internalrepo "TradePilot/internal/repository"
	"TradePilot/internal/service/coinbase"
	"TradePilot/internal/usecase"
	"TradePilot/pkg/cache"
	pkgch "TradePilot/pkg/clickhouse"
	"TradePilot/pkg/config"
	xhttp "TradePilot/pkg/http"
	pkgkafka "TradePilot/pkg/kafka"
	xlogger "TradePilot/pkg/logger"
	"TradePilot/pkg/metrics"
	"TradePilot/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*xlogger.Logger, error) {
	return xlogger.New(&xlogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// Stores bundles the ledger and stat backends, which always come from
// the same storage engine.
type Stores struct {
	Ledger drepo.TradeLedger
	Stats  drepo.StatStore
}

// ProvideStores creates the learning persistence backend (file or redis).
func ProvideStores(cfg *config.Config) (*Stores, error) {
	switch cfg.Learning.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Learning.Redis.Addr,
			Password: cfg.Learning.Redis.Password,
			DB:       cfg.Learning.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		rs := internalrepo.NewRedisStore(client)
		return &Stores{Ledger: rs, Stats: rs}, nil
	default:
		dir := cfg.Learning.DataDir
		if dir == "" {
			dir = "data"
		}
		fs, err := internalrepo.NewFileStore(dir)
		if err != nil {
			return nil, fmt.Errorf("file store: %w", err)
		}
		return &Stores{Ledger: fs, Stats: fs}, nil
	}
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when the
// analytics mirror is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}

	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.HistorySchema); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideTradeHistory creates the closed-trade analytics mirror.
func ProvideTradeHistory(chClient *pkgch.Client, logger *xlogger.Logger) drepo.TradeHistorySink {
	if chClient == nil {
		return nil
	}
	return internalrepo.NewCHTradeHistory(chClient, logger)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}

	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideDecisionPublisher creates the Kafka decision event publisher.
func ProvideDecisionPublisher(producer *pkgkafka.Producer, cfg *config.Config) drepo.DecisionPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaDecisionPublisher(producer, cfg.Kafka.Topic)
}

// ProvideLearningStore creates the trade memory.
func ProvideLearningStore(stores *Stores, history drepo.TradeHistorySink, logger *xlogger.Logger) *learning.Store {
	return learning.New(stores.Ledger, stores.Stats, history, logger)
}

// ProvideLadder creates the asset progression tracker.
func ProvideLadder(cfg *config.Config, logger *xlogger.Logger) (*progression.Tracker, error) {
	path := cfg.Progression.StatePath
	if path == "" {
		path = "data/progression.json"
	}
	return progression.New(path, progression.DefaultLadder(), logger)
}

// ProvideLabeler creates the lunar phase context labeler.
func ProvideLabeler() drepo.ContextLabeler {
	return lunar.NewTracker()
}

// ProvideSentiment creates the fear-and-greed sentiment source. With the
// redis backend the response cache is layered over the same instance so
// restarts keep warm entries; otherwise it is in-memory only.
func ProvideSentiment(cfg *config.Config, logger *xlogger.Logger) drepo.SentimentSource {
	client := xhttp.NewClient(xhttp.WithTimeout(10 * time.Second))

	var c cache.Service = cache.NewMemoryCache()
	if cfg.Learning.Backend == "redis" {
		host, port := splitHostPort(cfg.Learning.Redis.Addr)
		rc, err := cache.NewRedisCache(
			cache.WithRedisHost(host),
			cache.WithRedisPort(port),
			cache.WithRedisPassword(cfg.Learning.Redis.Password),
			cache.WithRedisDB(cfg.Learning.Redis.DB),
		)
		if err != nil {
			logger.Warn("redis cache unavailable, falling back to memory", xlogger.Error(err))
		} else {
			c = cache.NewLayeredCache(rc)
		}
	}

	return intel.New(client, c, intel.Config{
		BaseURL:  cfg.Intel.BaseURL,
		CacheTTL: cfg.Intel.CacheTTL,
	}, logger)
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6379
	}
	return host, port
}

// ProvideIndicators creates the technical indicator engine.
func ProvideIndicators(cfg *config.Config) *indicator.Engine {
	return indicator.New(indicator.Config{
		RSIPeriod:     cfg.Indicators.RSIPeriod,
		SRWindow:      cfg.Indicators.SRWindow,
		VolumeWindow:  cfg.Indicators.VolumeWindow,
		ShortMAPeriod: cfg.Indicators.ShortMAPeriod,
		LongMAPeriod:  cfg.Indicators.LongMAPeriod,
	})
}

// ProvideDecisionEngine creates the decision engine.
func ProvideDecisionEngine(store *learning.Store, ladder *progression.Tracker, cfg *config.Config, logger *xlogger.Logger) *engine.Engine {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return engine.New(store, ladder, engine.Config{
		ExplorationRate: cfg.Engine.ExplorationRate,
		MinConfidence:   cfg.Engine.MinConfidence,
	}, rnd, logger)
}

// ProvideExchange creates the Coinbase REST gateway.
func ProvideExchange(cfg *config.Config, logger *xlogger.Logger) drepo.Exchange {
	client := xhttp.NewClient(xhttp.WithTimeout(15 * time.Second))
	return coinbase.NewClient(client, coinbase.Config{
		BaseURL:        cfg.Exchange.BaseURL,
		APIKey:         cfg.Exchange.APIKey,
		APISecret:      cfg.Exchange.APISecret,
		Quote:          cfg.Exchange.Quote,
		MaxRetries:     uint64(cfg.Exchange.MaxRetries),
		RequestsPerSec: cfg.Exchange.RequestsPerSec,
	}, logger)
}

// ProvidePriceStream creates the Coinbase WebSocket ticker stream.
func ProvidePriceStream(cfg *config.Config, logger *xlogger.Logger) drepo.PriceStream {
	return coinbase.NewStream(
		cfg.Exchange.WebSocketURL,
		cfg.Exchange.Quote,
		cfg.Trading.Assets,
		cfg.Exchange.ReconnectDelay,
		cfg.Exchange.PingInterval,
		logger,
	)
}

// ProvidePriceWatcher creates the live price cache fed by the stream.
func ProvidePriceWatcher(stream drepo.PriceStream, m drepo.Metrics, logger *xlogger.Logger) *usecase.PriceWatcher {
	return usecase.NewPriceWatcher(stream, m, logger)
}

// ProvideCycle creates the trading loop use case.
func ProvideCycle(
	cfg *config.Config,
	exchange drepo.Exchange,
	indicators *indicator.Engine,
	store *learning.Store,
	decider *engine.Engine,
	sentiment drepo.SentimentSource,
	labeler drepo.ContextLabeler,
	ladder *progression.Tracker,
	watcher *usecase.PriceWatcher,
	publisher drepo.DecisionPublisher,
	m drepo.Metrics,
	logger *xlogger.Logger,
) *usecase.Cycle {
	return usecase.NewCycle(usecase.CycleConfig{
		Assets:      cfg.Trading.Assets,
		Quote:       cfg.Exchange.Quote,
		Interval:    cfg.Trading.Interval,
		CandleCount: cfg.Trading.CandleCount,
		Granularity: drepo.Granularity(cfg.Trading.Granularity),
		MinOrderUSD: cfg.Trading.MinOrderUSD,
	}, exchange, indicators, store, decider, sentiment, labeler, ladder, watcher, publisher, m, logger)
}

// ProvideHTTPHandler creates the trading API handler.
func ProvideHTTPHandler(logger *xlogger.Logger, cycle *usecase.Cycle, store *learning.Store, ladder *progression.Tracker) xhttp.Handler {
	return api.NewTradingHandler(logger, cycle, store, ladder)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	cycle *usecase.Cycle,
	watcher *usecase.PriceWatcher,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	logger *xlogger.Logger,
) *server.App {
	return server.New(cfg, cycle, watcher, handler, chClient, producer, logger)
}
