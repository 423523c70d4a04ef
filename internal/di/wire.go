//go:build wireinject
// +build wireinject

package di

import (
	"ScalpPulse/pkg/config"
	"ScalpPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisClient,
		ProvideBus,
		ProvideEventBus,
		ProvideCommandSource,
		ProvideRiskStore,
		ProvideAuditSink,

		// Per-session factories
		ProvideStreamFactory,
		ProvideFetcherFactory,
		ProvideRiskFactory,

		// Orchestration
		ProvideSessionManager,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
