package di

import (
	"fmt"

	"ScalpPulse/internal/audit"
	"ScalpPulse/internal/broker"
	"ScalpPulse/internal/domain/repository"
	"ScalpPulse/internal/feed"
	"ScalpPulse/internal/handler/api"
	"ScalpPulse/internal/risk"
	"ScalpPulse/internal/session"
	"ScalpPulse/pkg/bus"
	"ScalpPulse/pkg/cache"
	"ScalpPulse/pkg/config"
	xhttp "ScalpPulse/pkg/http"
	pkgkafka "ScalpPulse/pkg/kafka"
	applogger "ScalpPulse/pkg/logger"
	"ScalpPulse/pkg/metrics"
	"ScalpPulse/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedisClient creates the shared redis client used by the command
// bus and the event bus.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideBus creates the redis pub/sub bus.
func ProvideBus(client *redis.Client, log *applogger.Logger) *bus.Redis {
	return bus.NewRedis(client, log)
}

// ProvideEventBus exposes the bus as the outbound event publisher.
func ProvideEventBus(b *bus.Redis) repository.EventBus { return b }

// ProvideCommandSource exposes the bus as the inbound command listener.
func ProvideCommandSource(b *bus.Redis) repository.CommandSource { return b }

// ProvideRiskStore creates the redis cache backing the risk counters.
func ProvideRiskStore(cfg *config.Config) (cache.Service, error) {
	store, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("risk store: %w", err)
	}
	return store, nil
}

// ProvideRiskFactory builds per-user risk gates over the shared store.
func ProvideRiskFactory(cfg *config.Config, store cache.Service, log *applogger.Logger) session.RiskFactory {
	limits := risk.DefaultLimits()
	if cfg.Risk.MaxTrades > 0 {
		limits.MaxTrades = cfg.Risk.MaxTrades
	}
	if cfg.Risk.MaxLossAmt > 0 {
		limits.MaxLossAmt = cfg.Risk.MaxLossAmt
	}
	return func(userID string) repository.RiskGate {
		return risk.New(userID, limits, store, log)
	}
}

// ProvideAuditSink creates the Kafka audit sink, or a no-op when Kafka is
// disabled.
func ProvideAuditSink(cfg *config.Config, log *applogger.Logger) (repository.AuditSink, error) {
	if !cfg.Kafka.Enabled {
		return audit.NopSink{}, nil
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
	return audit.NewKafkaSink(producer, cfg.Kafka.AuditTopic, log), nil
}

// ProvideStreamFactory creates the per-session feed connection factory.
func ProvideStreamFactory(cfg *config.Config, log *applogger.Logger) repository.StreamFactory {
	return feed.NewFactory(feed.Config{
		URL:                  cfg.Broker.FeedURL,
		ReconnectDelay:       cfg.Broker.ReconnectDelay,
		MaxReconnectDelay:    cfg.Broker.MaxReconnectDelay,
		MaxReconnectAttempts: cfg.Broker.MaxReconnectAttempts,
		PingInterval:         cfg.Broker.PingInterval,
	}, log)
}

// ProvideFetcherFactory creates the per-session broker REST client factory.
func ProvideFetcherFactory(cfg *config.Config, log *applogger.Logger) repository.FetcherFactory {
	httpClient := xhttp.NewClient(xhttp.WithTimeout(cfg.Broker.RequestTimeout))
	return func(accessToken string) repository.ChainFetcher {
		return broker.New(cfg.Broker.RESTBaseURL, accessToken, httpClient, log)
	}
}

// ProvideSessionManager creates the session manager.
func ProvideSessionManager(
	cfg *config.Config,
	streams repository.StreamFactory,
	fetchers repository.FetcherFactory,
	eventBus repository.EventBus,
	auditSink repository.AuditSink,
	riskFor session.RiskFactory,
	log *applogger.Logger,
	m repository.Metrics,
) *session.Manager {
	return session.NewManager(session.Config{
		InitTimeout:       cfg.Engine.InitTimeout,
		ChainPollInterval: cfg.Engine.ChainPollInterval,
	}, streams, fetchers, eventBus, auditSink, riskFor, log, m)
}

// ProvideHTTPHandler creates the HTTP status handler.
func ProvideHTTPHandler(log *applogger.Logger, manager *session.Manager) xhttp.Handler {
	return api.NewSessionsHandler(log, manager)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	manager *session.Manager,
	commands repository.CommandSource,
	auditSink repository.AuditSink,
	handler xhttp.Handler,
) *server.App {
	return server.New(cfg, log, manager, commands, auditSink, handler)
}
