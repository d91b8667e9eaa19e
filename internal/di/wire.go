//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"DeepResearch/pkg/config"
	"DeepResearch/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideResultCache,

		// Scoring core
		ProvideConfidenceMemory,
		ProvideScoringEngine,
		ProvideSynthesizer,
		ProvideExecutor,

		// Market data
		ProvideLiquidationMonitor,
		ProvideLiquidationCollector,
		ProvideResolver,
		ProvideMLPredictor,
		ProvideSentimentSource,

		// Result delivery
		ProvideResultStorage,
		ProvideResultPublisher,
		ProvideResultProcessor,
		ProvideResultPipeline,

		// Use cases
		ProvideResearchSettings,
		ProvideResearchUseCase,
		ProvideCandlesUseCase,
		ProvideKafkaConsumer,

		// Transport
		ProvideResearchHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
