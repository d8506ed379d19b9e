package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"IPOPulse/internal/domain/models"
	domrepo "IPOPulse/internal/domain/repository"
	"IPOPulse/internal/domain/service"
	"IPOPulse/internal/handler/api"
	"IPOPulse/internal/handler/ws"
	mid "IPOPulse/internal/middleware"
	internalrepo "IPOPulse/internal/repository"
	"IPOPulse/internal/service/acquisition"
	"IPOPulse/internal/service/ai"
	icache "IPOPulse/internal/service/cache"
	"IPOPulse/internal/service/gmp"
	"IPOPulse/internal/service/nse"
	"IPOPulse/internal/service/ratelimit"
	"IPOPulse/internal/service/session"
	"IPOPulse/internal/services/prediction"
	"IPOPulse/internal/usecase"
	pkgcache "IPOPulse/pkg/cache"
	pkgch "IPOPulse/pkg/clickhouse"
	"IPOPulse/pkg/config"
	pkgkafka "IPOPulse/pkg/kafka"
	applogger "IPOPulse/pkg/logger"
	"IPOPulse/pkg/metrics"
	"IPOPulse/pkg/queue"
	"IPOPulse/pkg/server"
)

// ProvideKafkaProducer creates the shared producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers...),
		pkgkafka.WithCodec(cfg.Kafka.Compression),
		pkgkafka.WithDelivery(cfg.Kafka.RequiredAcks, cfg.Kafka.RetryMax),
		pkgkafka.WithTimeout(cfg.Kafka.WriteTimeout),
		pkgkafka.WithLinger(10*time.Millisecond),
		pkgkafka.WithKeyAffinity(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the application logger. With logging.collect enabled
// aggregated entries are shipped to Kafka through the producer.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logging.Collect.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logging.Collect.Interval,
			CountThreshold: cfg.Logging.Collect.Threshold,
			Topic:          cfg.Logging.Collect.Topic,
			Service:        "ipopulse",
			Publisher:      producer,
		})
	}
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideRedisCache connects to Redis, or returns nil when it is disabled.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(net.JoinHostPort(cfg.Redis.Host, strconv.Itoa(cfg.Redis.Port))),
		pkgcache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdle),
		pkgcache.WithRedisPrefix(cfg.Cache.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCacheService picks the two-level cache when configured and an
// in-process LRU otherwise.
func ProvideCacheService(cfg *config.Config, rc *pkgcache.RedisCache) (pkgcache.Service, func()) {
	if cfg.Cache.Layered && rc != nil {
		lc := pkgcache.NewLayeredCache(rc, pkgcache.WithL1(cfg.Cache.MemoryMaxSize, cfg.Cache.L1TTL))
		return lc, func() { _ = lc.Close() }
	}
	mc := pkgcache.NewMemoryCache(
		pkgcache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize),
		pkgcache.WithMemoryCleanup(cfg.Cache.CleanupInterval),
	)
	return mc, func() { _ = mc.Close() }
}

func ProvideStorage(cfg *config.Config, rc *pkgcache.RedisCache) (domrepo.Storage, error) {
	switch cfg.Storage.Backend {
	case "redis":
		if rc == nil {
			return nil, fmt.Errorf("storage backend redis needs redis.enabled")
		}
		return internalrepo.NewRedisStorage(rc.Client(), cfg.Cache.Prefix+":store", cfg.Storage.Source), nil
	default:
		store, err := internalrepo.NewFileStorage(cfg.Storage.Dir, cfg.Storage.Source)
		if err != nil {
			return nil, fmt.Errorf("file storage: %w", err)
		}
		return store, nil
	}
}

func ProvidePredictionCache(cfg *config.Config, svc pkgcache.Service, m domrepo.Metrics, lgr *applogger.Logger) *icache.PredictionCache {
	return icache.NewPredictionCache(svc, cfg.Pipeline.CacheTTL, m, lgr)
}

// ProvideHistory opens the analytical store named by history.backend and
// makes sure its schema exists.
func ProvideHistory(cfg *config.Config, lgr *applogger.Logger) (domrepo.PredictionHistory, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var h domrepo.PredictionHistory
	switch cfg.History.Backend {
	case "clickhouse":
		client, err := pkgch.NewClient(
			pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
			pkgch.WithAuth(cfg.ClickHouse.Database, cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithPoolSize(cfg.ClickHouse.PoolSize),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
			pkgch.WithBootstrap(),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		h = internalrepo.NewClickHouseHistory(client, lgr)
	case "postgres":
		pool, err := internalrepo.NewPostgresPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		h = internalrepo.NewPostgresHistory(pool, lgr)
	default:
		return internalrepo.NopHistory{}, func() {}, nil
	}

	if err := h.Init(ctx); err != nil {
		_ = h.Close()
		return nil, nil, fmt.Errorf("history schema: %w", err)
	}
	return h, func() { _ = h.Close() }, nil
}

// ProvideSessionManager returns nil in fixture mode, where nothing talks
// to the exchange.
func ProvideSessionManager(cfg *config.Config, lgr *applogger.Logger, m domrepo.Metrics) (*session.Manager, func()) {
	if cfg.Acquisition.Strategy == acquisition.StrategyFixture {
		return nil, func() {}
	}
	s := cfg.Session
	opts := []session.Option{
		session.WithBaseURL(s.BaseURL),
		session.WithAPIPath(s.APIPath),
		session.WithDuration(s.Duration, s.SafetyMargin),
		session.WithDelay(s.MinDelay, s.MaxDelay),
		session.WithMaxAttempts(s.MaxAttempts),
		session.WithRequestTimeout(s.RequestTimeout),
		session.WithBlockedBackoff(s.BlockedBackoffMin, s.BlockedBackoffMax),
		session.WithTransientBackoff(s.TransientBackoffMin, s.TransientBackoffMax),
		session.WithBreaker(s.BreakerFailures, s.BreakerCooldown),
	}
	if s.UserAgent != "" {
		opts = append(opts, session.WithUserAgent(s.UserAgent))
	}
	mgr := session.NewManager(lgr, m, opts...)
	return mgr, mgr.Close
}

func ProvideExchangeSource(mgr *session.Manager, lgr *applogger.Logger) *nse.Source {
	if mgr == nil {
		return nil
	}
	return nse.NewSource(mgr, lgr)
}

// ProvidePremiumSource returns a nil interface when premium scraping is off.
func ProvidePremiumSource(cfg *config.Config, lgr *applogger.Logger) service.PremiumSource {
	p := cfg.Acquisition.Premium
	if !p.Enabled {
		return nil
	}
	return gmp.NewScraper(lgr, ratelimit.New(),
		gmp.WithSources(gmp.FilterSources(gmp.DefaultSources(), p.Sources)),
		gmp.WithInterval(p.Interval),
		gmp.WithTimeout(p.RequestTimeout),
	)
}

func ProvideAcquisition(
	cfg *config.Config,
	src *nse.Source,
	premiums service.PremiumSource,
	store domrepo.Storage,
	m domrepo.Metrics,
	lgr *applogger.Logger,
) (service.Acquisition, error) {
	fixture := acquisition.NewFixture(store, cfg.Acquisition.FixtureMaxAge, lgr)
	var primary *acquisition.Primary
	if src != nil {
		primary = acquisition.NewPrimary(src, premiums, store, lgr)
	}
	return acquisition.New(cfg.Acquisition.Strategy, cfg.Acquisition.FallbackOnError, primary, fixture, m, lgr)
}

func ProvideAIPredictor(cfg *config.Config, lgr *applogger.Logger) service.AIPredictor {
	return ai.New(cfg, lgr)
}

func ProvideHub(cfg *config.Config, lgr *applogger.Logger) *ws.Hub {
	opts := []ws.HubOption{ws.WithSendBuffer(cfg.Server.WSSendBuffer)}
	if len(cfg.Server.WSOrigins) > 0 {
		opts = append(opts, ws.WithAllowedOrigins(cfg.Server.WSOrigins...))
	}
	return ws.NewHub(lgr, opts...)
}

// ProvidePublishPipeline fans predictions out to the websocket hub and,
// when Kafka is enabled, to the predictions topic.
func ProvidePublishPipeline(
	cfg *config.Config,
	producer *pkgkafka.Producer,
	hub *ws.Hub,
	m domrepo.Metrics,
	lgr *applogger.Logger,
) *mid.PublishPipeline {
	opts := []mid.PipelineOption{
		mid.WithBufferSize(cfg.Pipeline.PublishBuffer),
		mid.WithBackoff(cfg.Pipeline.PublishRetry, cfg.Pipeline.PublishMaxGap),
		mid.WithSink("ws", hub),
	}
	if producer != nil {
		opts = append(opts, mid.WithSink("kafka", internalrepo.NewKafkaPublisher(producer, cfg.Kafka.PredictionsTopic)))
	}
	return mid.NewPublishPipeline(m, lgr, opts...)
}

func ProvideOrchestrator(
	cfg *config.Config,
	acq service.Acquisition,
	predictor service.AIPredictor,
	store domrepo.Storage,
	m domrepo.Metrics,
	lgr *applogger.Logger,
	pcache *icache.PredictionCache,
	history domrepo.PredictionHistory,
	publisher *mid.PublishPipeline,
	svc pkgcache.Service,
	rc *pkgcache.RedisCache,
) *usecase.Orchestrator {
	fusion := prediction.DefaultFusionParams()
	fusion.WithPremium = models.Weights{
		Premium: cfg.Fusion.WithPremium.Premium,
		Math:    cfg.Fusion.WithPremium.Math,
		AI:      cfg.Fusion.WithPremium.AI,
	}
	fusion.WithoutPremium = models.Weights{
		Math: cfg.Fusion.WithoutPremium.Math,
		AI:   cfg.Fusion.WithoutPremium.AI,
	}
	opts := []usecase.OrchestratorOption{
		usecase.WithPredictors(nil, nil, prediction.NewFusionEngine(fusion)),
		usecase.WithWorkers(cfg.Pipeline.Workers),
		usecase.WithTimeouts(cfg.Pipeline.StageTimeout, cfg.Pipeline.RunTimeout),
		usecase.WithPredictionCache(pcache),
		usecase.WithHistory(history),
		usecase.WithPublisher(publisher),
	}
	// a lock in a process-local cache would only guard this process
	if rc != nil {
		opts = append(opts, usecase.WithLocker(svc))
	}
	return usecase.NewOrchestrator(acq, predictor, store, m, lgr, opts...)
}

// ProvideJobQueue builds the stage-refresh queue, or nil when disabled.
func ProvideJobQueue(cfg *config.Config, rc *pkgcache.RedisCache, orch *usecase.Orchestrator, lgr *applogger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(lgr, queue.Config{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.MaxRetries,
		RetryDelay: cfg.Queue.RetryInterval,
		JobTimeout: cfg.Pipeline.RunTimeout,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Queue.Name), queue.WithMode(queueMode(cfg.Queue.Mode)))
	q.RegisterJob(usecase.NewStageRefreshJob(orch))
	return q
}

func queueMode(name string) queue.Mode {
	switch name {
	case "producer-only":
		return queue.ModeProducerOnly
	case "consumer-only":
		return queue.ModeConsumerOnly
	default:
		return queue.ModeProducerConsumer
	}
}

// ProvideKafkaConsumer subscribes the run trigger handler to the run
// requests topic, or returns nil when Kafka is off.
func ProvideKafkaConsumer(cfg *config.Config, orch *usecase.Orchestrator, lgr *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.GroupID),
		pkgkafka.WithConsumerWorkers(1),
		pkgkafka.WithConsumerRetry(cfg.Kafka.RetryMax, time.Second, 30*time.Second),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.DLQTopic),
		pkgkafka.WithConsumerLogger(lgr),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.TraceHook(), pkgkafka.LoggingHook(lgr)))
	consumer.RegisterHandler(usecase.NewRunTriggerHandler(cfg.Kafka.RunRequestsTopic, orch, lgr))
	return consumer, nil
}

// ProvidePipelineHandler registers the REST surface. Optional collaborators
// are only attached when present so nil pointers never hide in interfaces.
func ProvidePipelineHandler(
	cfg *config.Config,
	lgr *applogger.Logger,
	orch *usecase.Orchestrator,
	mgr *session.Manager,
	src *nse.Source,
	q *queue.RedisQueue,
) *api.PipelineHandler {
	opts := []api.Option{api.WithRunRateLimit(cfg.Server.RunRateLimit, cfg.Server.RunRateBurst)}
	if mgr != nil {
		opts = append(opts, api.WithSession(mgr))
	}
	if src != nil {
		opts = append(opts, api.WithMarketStatus(src))
	}
	if q != nil {
		opts = append(opts, api.WithJobQueue(q))
	}
	return api.NewPipelineHandler(lgr, orch, opts...)
}

func ProvideApp(
	cfg *config.Config,
	lgr *applogger.Logger,
	orch *usecase.Orchestrator,
	handler *api.PipelineHandler,
	hub *ws.Hub,
	publisher *mid.PublishPipeline,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
) *server.App {
	opts := []server.Option{}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer))
	}
	if q != nil {
		opts = append(opts, server.WithJobQueue(q))
	}
	return server.New(cfg, lgr, orch, handler, hub, publisher, opts...)
}
