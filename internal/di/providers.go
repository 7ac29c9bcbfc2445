package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"OptEdge/internal/domain/repository"
	"OptEdge/internal/handler/api"
	internalrepo "OptEdge/internal/repository"
	icache "OptEdge/internal/service/cache"
	"OptEdge/internal/service/marketdata"
	"OptEdge/internal/services/features"
	mlmodels "OptEdge/internal/services/models"
	"OptEdge/internal/usecase"
	pkgch "OptEdge/pkg/clickhouse"
	"OptEdge/pkg/config"
	pkgkafka "OptEdge/pkg/kafka"
	applogger "OptEdge/pkg/logger"
	"OptEdge/pkg/metrics"
	"OptEdge/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideSources builds the market data fallback chain in configured order.
// Disabled providers are skipped; the resolver appends a mock tail itself.
func ProvideSources(cfg *config.Config, log *applogger.Logger) ([]marketdata.Source, error) {
	sources := make([]marketdata.Source, 0, len(cfg.MarketData.Order))
	for _, name := range cfg.MarketData.Order {
		p := cfg.MarketData.Providers[name]
		if !p.Enabled {
			continue
		}
		switch name {
		case "companion":
			opts := []marketdata.CompanionOption{}
			if p.StreamQuotes {
				wsURL := strings.Replace(p.BaseURL, "http", "ws", 1) + "/ws/quotes"
				stream := marketdata.NewCompanionStream(wsURL, cfg.MarketData.Symbols, 0)
				opts = append(opts, marketdata.WithQuoteStream(stream))
			}
			sources = append(sources, marketdata.NewCompanionSource(p.BaseURL, p.Timeout, opts...))
		case "ibkr":
			baseURL := p.BaseURL
			if baseURL == "" {
				baseURL = fmt.Sprintf("https://%s:%d", p.Host, p.Port)
			}
			sources = append(sources, marketdata.NewIBKRSource(baseURL, p.Timeout))
		case "redis":
			sources = append(sources, marketdata.NewRedisSource(marketdata.RedisConfig{
				Addr:     p.Addr,
				Password: p.Password,
				DB:       p.DB,
			}))
		case "mock":
			sources = append(sources, marketdata.NewMockSource())
		default:
			return nil, fmt.Errorf("unknown market data provider '%s'", name)
		}
	}
	log.Info("market data chain built", applogger.Strings("order", cfg.MarketData.Order))
	return sources, nil
}

// ProvideResolver creates the caching resolver over the source chain.
func ProvideResolver(sources []marketdata.Source, cfg *config.Config, log *applogger.Logger, m repository.Metrics) *marketdata.Resolver {
	attempts := make(map[string]int, len(cfg.MarketData.Providers))
	timeouts := make(map[string]time.Duration, len(cfg.MarketData.Providers))
	for name, p := range cfg.MarketData.Providers {
		if p.RetryAttempts > 0 {
			attempts[name] = p.RetryAttempts
		}
		if p.Timeout > 0 {
			timeouts[name] = p.Timeout
		}
	}
	return marketdata.NewResolver(sources, marketdata.ResolverConfig{
		QuoteTTL:         cfg.MarketData.QuoteTTL,
		BarsTTL:          cfg.MarketData.BarsTTL,
		VixTTL:           cfg.MarketData.VixTTL,
		DemotionCooldown: cfg.MarketData.DemotionCooldown,
		Attempts:         attempts,
		Timeouts:         timeouts,
	}, log, m)
}

// ProvideSchema loads the feature schema the models were trained against.
func ProvideSchema(cfg *config.Config) (*features.Schema, error) {
	return features.LoadSchema(cfg.Models.SchemaPath)
}

// ProvideBuilder creates the feature vector builder.
func ProvideBuilder(cfg *config.Config, log *applogger.Logger) *features.Builder {
	return features.NewBuilder(cfg.MarketData.Symbols, log)
}

// ProvideCascade loads every model artifact and builds the lookup cascade.
func ProvideCascade(cfg *config.Config, log *applogger.Logger) (*mlmodels.Cascade, error) {
	registry, err := mlmodels.LoadDir(cfg.Models.Dir, log)
	if err != nil {
		return nil, err
	}
	if len(registry) == 0 {
		return nil, fmt.Errorf("no models loaded from %s", cfg.Models.Dir)
	}
	return mlmodels.NewCascade(registry, cfg.Models.DefaultName, log), nil
}

// ProvidePredictionCache creates the result memoization cache.
func ProvidePredictionCache(cfg *config.Config, m repository.Metrics) *icache.PredictionCache {
	return icache.NewPredictionCache(cfg.Prediction.CacheTTL, cfg.Prediction.CacheMaxEntries, m)
}

// ProvideJournal creates the ClickHouse prediction journal, or nil when
// journaling is disabled.
func ProvideJournal(cfg *config.Config, log *applogger.Logger) (repository.Journal, error) {
	if !cfg.Journal.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.Journal.Host),
		pkgch.WithPort(cfg.Journal.Port),
		pkgch.WithDatabase(cfg.Journal.Database),
		pkgch.WithCredentials(cfg.Journal.User, cfg.Journal.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.Journal.UseHTTP),
		pkgch.WithAsyncInsert(cfg.Journal.AsyncInsert, cfg.Journal.WaitForAsync),
		pkgch.WithTimeouts(cfg.Journal.DialTimeout, cfg.Journal.ReadTimeout, cfg.Journal.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	table := cfg.Journal.Table
	if !strings.Contains(table, ".") {
		table = "optedge." + table
	}
	journal := internalrepo.NewCHPredictionJournal(client, table, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := journal.Init(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return journal, nil
}

// ProvidePublisher creates the Kafka prediction event publisher, or nil when
// events are disabled.
func ProvidePublisher(cfg *config.Config) (repository.Publisher, error) {
	if !cfg.Events.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Events.Brokers),
		pkgkafka.WithCompression(cfg.Events.Compression),
		pkgkafka.WithRequiredAcks(cfg.Events.RequiredAcks),
		pkgkafka.WithTimeouts(cfg.Events.WriteTimeout, cfg.Events.WriteTimeout),
		pkgkafka.WithAsync(cfg.Events.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Events.Topic), nil
}

// ProvidePredictor creates the end-to-end prediction orchestrator.
func ProvidePredictor(
	resolver *marketdata.Resolver,
	builder *features.Builder,
	schema *features.Schema,
	cascade *mlmodels.Cascade,
	predCache *icache.PredictionCache,
	journal repository.Journal,
	publisher repository.Publisher,
	m repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.Predictor {
	return usecase.NewPredictor(resolver, builder, schema, cascade, predCache, journal, publisher, m, log, usecase.PredictorConfig{
		MinWinProbability: cfg.Prediction.MinWinProbability,
		BatchBudget:       cfg.Prediction.BatchBudget,
		SkipOnError:       cfg.Prediction.SkipOnError == nil || *cfg.Prediction.SkipOnError,
		Symbols:           cfg.MarketData.Symbols,
		BarCount:          cfg.MarketData.BarCount,
		BarInterval:       repository.NormalizeInterval(cfg.MarketData.BarInterval),
	})
}

// ProvideHandler creates the HTTP handler.
func ProvideHandler(
	log *applogger.Logger,
	predictor *usecase.Predictor,
	resolver *marketdata.Resolver,
	cfg *config.Config,
) *api.PredictEchoHandler {
	return api.NewPredictEchoHandler(log, predictor, resolver, api.RateLimit{
		PerSec: cfg.Prediction.RateLimitPerSec,
		Burst:  cfg.Prediction.RateLimitBurst,
	}, repository.NormalizeInterval(cfg.MarketData.BarInterval))
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	handler *api.PredictEchoHandler,
	resolver *marketdata.Resolver,
	journal repository.Journal,
	publisher repository.Publisher,
) *server.App {
	return server.New(cfg, log, handler, resolver, journal, publisher)
}
