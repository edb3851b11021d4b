//go:build wireinject
// +build wireinject

package di

import (
	"TradePilot/pkg/config"
	"TradePilot/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideStores,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories and gateways
		ProvideTradeHistory,
		ProvideDecisionPublisher,
		ProvideExchange,
		ProvidePriceStream,
		ProvideSentiment,
		ProvideLabeler,

		// Core services
		ProvideLearningStore,
		ProvideLadder,
		ProvideIndicators,
		ProvideDecisionEngine,

		// Use cases
		ProvidePriceWatcher,
		ProvideCycle,

		// HTTP surface and application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
