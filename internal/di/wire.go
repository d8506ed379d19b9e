//go:build wireinject
// +build wireinject

package di

import (
	"IPOPulse/pkg/config"
	"IPOPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application and
// a cleanup that releases every client it opened.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Infrastructure
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideRedisCache,
		ProvideCacheService,
		ProvideStorage,
		ProvidePredictionCache,
		ProvideHistory,

		// Acquisition
		ProvideSessionManager,
		ProvideExchangeSource,
		ProvidePremiumSource,
		ProvideAcquisition,
		ProvideAIPredictor,

		// Delivery
		ProvideHub,
		ProvidePublishPipeline,

		// Use cases
		ProvideOrchestrator,
		ProvideJobQueue,
		ProvideKafkaConsumer,

		// Application server
		ProvidePipelineHandler,
		ProvideApp,
	)
	return nil, nil, nil
}
