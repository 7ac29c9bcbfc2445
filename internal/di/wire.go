//go:build wireinject
// +build wireinject

package di

import (
	"OptEdge/pkg/config"
	"OptEdge/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Market data
		ProvideSources,
		ProvideResolver,

		// Features and models
		ProvideSchema,
		ProvideBuilder,
		ProvideCascade,

		// Side channels
		ProvideJournal,
		ProvidePublisher,

		// Use case
		ProvidePredictionCache,
		ProvidePredictor,

		// HTTP
		ProvideHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
