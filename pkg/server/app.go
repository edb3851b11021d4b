package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"TradePilot/internal/usecase"
	pkgch "TradePilot/pkg/clickhouse"
	"TradePilot/pkg/config"
	xhttp "TradePilot/pkg/http"
	pkgkafka "TradePilot/pkg/kafka"
	applogger "TradePilot/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	cycle       *usecase.Cycle
	watcher     *usecase.PriceWatcher
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
	chClient    *pkgch.Client
	producer    *pkgkafka.Producer
	logger      *applogger.Logger
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	cycle *usecase.Cycle,
	watcher *usecase.PriceWatcher,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	logger *applogger.Logger,
) *App {
	return &App{
		cfg:         cfg,
		cycle:       cycle,
		watcher:     watcher,
		httpHandler: handler,
		chClient:    chClient,
		producer:    producer,
		logger:      logger,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// The watcher is a live price fallback; the cycle works without it.
	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			a.logger.Warn("price stream unavailable, using REST prices only", applogger.Error(err))
		} else {
			a.logger.Info("price stream started", applogger.Strings("assets", a.cfg.Trading.Assets))
		}
	}

	go a.cycle.Run(ctx)
	a.logger.Info("trading cycle started",
		applogger.Strings("assets", a.cfg.Trading.Assets),
		applogger.Duration("interval", a.cfg.Trading.Interval),
	)

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	cancel()
	return a.shutdown(context.Background())
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			a.logger.Warn("price stream close error", applogger.Error(err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
