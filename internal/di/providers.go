package di

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"DeepResearch/internal/domain/models"
	"DeepResearch/internal/domain/repository"
	domsvc "DeepResearch/internal/domain/service"
	"DeepResearch/internal/handler/api"
	mid "DeepResearch/internal/middleware"
	internalrepo "DeepResearch/internal/repository"
	"DeepResearch/internal/service/binance"
	"DeepResearch/internal/service/confmem"
	"DeepResearch/internal/service/ratelimit"
	"DeepResearch/internal/service/resolver"
	"DeepResearch/internal/service/timedcall"
	"DeepResearch/internal/services/analytics"
	"DeepResearch/internal/services/mtf"
	"DeepResearch/internal/services/scoring"
	"DeepResearch/internal/usecase"
	"DeepResearch/pkg/cache"
	pkgch "DeepResearch/pkg/clickhouse"
	"DeepResearch/pkg/config"
	xhttp "DeepResearch/pkg/http"
	pkgkafka "DeepResearch/pkg/kafka"
	"DeepResearch/pkg/logger"
	"DeepResearch/pkg/metrics"
	"DeepResearch/pkg/server"
)

const (
	userAdapterMax = 256
	userAdapterTTL = 30 * time.Minute
	rateLimitKeys  = 10000
)

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient connects when clickhouse is enabled, nil otherwise.
func ProvideClickHouseClient(cfg *config.Config, l *logger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
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
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	l.Info("clickhouse connected",
		logger.String("host", cfg.ClickHouse.Host), logger.String("database", cfg.ClickHouse.Database))
	return client, func() {
		if err := client.Close(); err != nil {
			l.Warn("clickhouse close", logger.Error(err))
		}
	}, nil
}

// ProvideKafkaProducer creates a producer when brokers are configured.
func ProvideKafkaProducer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Producer, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, 10*time.Second),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() {
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close", logger.Error(err))
		}
	}, nil
}

// ProvideResultCache is an in-process LRU, fronting Redis when enabled.
func ProvideResultCache(cfg *config.Config, l *logger.Logger) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		mc := cache.NewMemoryCache(
			cache.WithMemoryMaxSize(2000),
			cache.WithMemoryDefaultTTL(cfg.Research.ResultTTL),
			cache.WithMemoryCleanup(time.Minute),
		)
		return mc, func() { _ = mc.Close() }, nil
	}
	rc, err := cache.NewRedisCache(context.Background(),
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix("deepresearch"),
		cache.WithRedisPool(20, 4, 3*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	lc := cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(1000),
		cache.WithLayeredMemoryTTL(cfg.Research.ResultTTL/3),
	)
	l.Info("result cache layered on redis", logger.String("addr", cfg.Redis.Addr))
	return lc, func() {
		if err := lc.Close(); err != nil {
			l.Warn("redis close", logger.Error(err))
		}
	}, nil
}

// ProvideConfidenceMemory is bounded by entry count and age.
func ProvideConfidenceMemory(cfg *config.Config) (domsvc.ConfidenceMemory, func()) {
	m := confmem.New(
		confmem.WithMaxEntries(cfg.Research.Memory.MaxEntries),
		confmem.WithTTL(cfg.Research.Memory.TTL),
	)
	return m, func() { _ = m.Close() }
}

func ProvideScoringEngine(mem domsvc.ConfidenceMemory) *scoring.Engine {
	return scoring.NewEngine(mem, scoring.DefaultShaping)
}

func ProvideSynthesizer(cfg *config.Config, engine *scoring.Engine) *mtf.Synthesizer {
	return mtf.NewSynthesizer(engine, cfg.Research.MinSecondary)
}

func ProvideExecutor(m repository.Metrics, l *logger.Logger) *timedcall.Executor {
	return timedcall.NewExecutor(m, l.With(logger.String("component", "executor")))
}

// ProvideLiquidationMonitor is nil when the liquidation feed is off.
func ProvideLiquidationMonitor(cfg *config.Config) *binance.LiquidationMonitor {
	if !cfg.Binance.Enabled || !cfg.Binance.LiquidationFeed {
		return nil
	}
	return binance.NewLiquidationMonitor(cfg.Binance.LiqWindow)
}

// ProvideLiquidationCollector streams force orders into the monitor.
func ProvideLiquidationCollector(cfg *config.Config, mon *binance.LiquidationMonitor, m repository.Metrics, l *logger.Logger) *usecase.LiquidationCollector {
	if mon == nil {
		return nil
	}
	stream := binance.NewLiquidationStream(cfg.Binance.LiquidationURL, cfg.Binance.ReconnectDelay, l)
	return usecase.NewLiquidationCollector(stream, mon, m, l, cfg.Binance.ReconnectDelay)
}

// ProvideResolver orders sources: user keys, public Binance, ClickHouse candles.
func ProvideResolver(cfg *config.Config, ch *pkgch.Client, mon *binance.LiquidationMonitor, l *logger.Logger) *resolver.Resolver {
	var opts []resolver.Option
	opts = append(opts, resolver.WithLogger(l.With(logger.String("component", "resolver"))))

	if cfg.Binance.Enabled {
		rps := cfg.Binance.RequestsPerSec
		if rps <= 0 {
			rps = 10
		}
		// public and per-user adapters share one IP weight budget
		limiter := rate.NewLimiter(rate.Limit(rps), rps)
		adapterOpts := []binance.Option{binance.WithLimiter(limiter), binance.WithLogger(l)}
		if mon != nil {
			adapterOpts = append(adapterOpts, binance.WithLiquidations(mon))
		}
		base := binance.Config{
			Testnet:        cfg.Binance.Testnet,
			RequestsPerSec: cfg.Binance.RequestsPerSec,
			Retries:        cfg.Binance.Retries,
		}
		public := base
		public.APIKey, public.SecretKey = cfg.Binance.APIKey, cfg.Binance.SecretKey
		opts = append(opts,
			resolver.WithPublic(binance.NewAdapter(public, adapterOpts...)),
			resolver.WithUserAdapters(func(u models.UserContext) repository.Adapter {
				uc := base
				uc.APIKey, uc.SecretKey = u.APIKey, u.SecretKey
				return binance.NewAdapter(uc, adapterOpts...)
			}, userAdapterMax, userAdapterTTL),
		)
	}
	if ch != nil {
		src := internalrepo.NewCHCandleSource(ch, ch.Database(), cfg.ClickHouse.CandleTable)
		src.SetLogger(l)
		opts = append(opts, resolver.WithWarehouse(src))
	}
	return resolver.New(opts...)
}

// ProvideResultStorage is nil without ClickHouse.
func ProvideResultStorage(cfg *config.Config, ch *pkgch.Client) (repository.ResultStorage, error) {
	if ch == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHouseResultStorage(ch.DB(), ch.Database()+"."+cfg.Sink.Table)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("result schema: %w", err)
	}
	return store, nil
}

// ProvideResultPublisher is nil without a producer.
func ProvideResultPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.ResultPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.ResultTopic)
}

func ProvideResultProcessor(cfg *config.Config, pub repository.ResultPublisher, store repository.ResultStorage, m repository.Metrics) *usecase.ResultProcessor {
	return usecase.NewResultProcessor(pub, store, m, cfg.Sink.Backend)
}

// ProvideResultPipeline is nil when results are not shipped anywhere.
func ProvideResultPipeline(cfg *config.Config, proc *usecase.ResultProcessor, m repository.Metrics, l *logger.Logger) *mid.ResultPipeline {
	if cfg.Sink.Backend == "none" {
		return nil
	}
	return mid.NewResultPipeline(proc, m,
		mid.WithBufferSize(cfg.Sink.BufferSize),
		mid.WithMinInterval(cfg.Sink.MinInterval),
		mid.WithPipelineLogger(l),
	)
}

// ProvideMLPredictor is nil without a model service URL.
func ProvideMLPredictor(cfg *config.Config) *analytics.HTTPMLPredictor {
	if cfg.Analytics.MLServiceURL == "" {
		return nil
	}
	return analytics.NewHTTPMLPredictor(cfg.Analytics.MLServiceURL, cfg.Analytics.Timeout)
}

// ProvideSentimentSource is nil without a sentiment URL.
func ProvideSentimentSource(cfg *config.Config) *analytics.HTTPSentimentSource {
	if cfg.Analytics.SentimentURL == "" {
		return nil
	}
	return analytics.NewHTTPSentimentSource(cfg.Analytics.SentimentURL, cfg.Analytics.Timeout)
}

// ProvideResearchSettings maps the research config section.
func ProvideResearchSettings(cfg *config.Config) usecase.ResearchSettings {
	r := cfg.Research
	return usecase.ResearchSettings{
		Deadline:       r.Deadline,
		Primary:        repository.NormalizeTimeframe(r.Primary),
		Short:          repository.NormalizeTimeframe(r.Timeframes.Short),
		Medium:         repository.NormalizeTimeframe(r.Timeframes.Medium),
		Long:           repository.NormalizeTimeframe(r.Timeframes.Long),
		CandleLimit:    r.CandleLimit,
		MinCandles:     r.MinCandles,
		MinSecondary:   r.MinSecondary,
		OrderbookDepth: r.OrderbookDepth,
		Timeouts: usecase.CallTimeouts{
			Candles:     r.Timeouts.Candles,
			Orderbook:   r.Timeouts.Orderbook,
			Ticker:      r.Timeouts.Ticker,
			Derivatives: r.Timeouts.Derivatives,
			Sentiment:   r.Timeouts.Sentiment,
			ML:          r.Timeouts.ML,
		},
		ResultTTL: r.ResultTTL,
	}
}

// ProvideResearchUseCase attaches only the optional parts that exist; a nil
// pointer must never reach an interface-typed option.
func ProvideResearchUseCase(
	settings usecase.ResearchSettings,
	res *resolver.Resolver,
	engine *scoring.Engine,
	synth *mtf.Synthesizer,
	exec *timedcall.Executor,
	results cache.Service,
	pipe *mid.ResultPipeline,
	ml *analytics.HTTPMLPredictor,
	sentiment *analytics.HTTPSentimentSource,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.ResearchUseCase {
	opts := []usecase.ResearchOption{
		usecase.WithResultCache(results),
		usecase.WithResearchMetrics(m),
		usecase.WithResearchLogger(l.With(logger.String("component", "research"))),
	}
	if pipe != nil {
		opts = append(opts, usecase.WithResultSink(pipe))
	}
	if ml != nil {
		opts = append(opts, usecase.WithMLPredictor(ml))
	}
	if sentiment != nil {
		opts = append(opts, usecase.WithSentimentSource(sentiment))
	}
	return usecase.NewResearchUseCase(res, engine, synth, exec, settings, opts...)
}

func ProvideCandlesUseCase(res *resolver.Resolver) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(res)
}

// ProvideKafkaConsumer consumes research requests when enabled.
func ProvideKafkaConsumer(cfg *config.Config, research *usecase.ResearchUseCase, m repository.Metrics, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.TraceHook{
		OnFailure: func(topic, traceID string, err error) {
			m.RecordError("kafka_request_exhausted")
			l.Warn("research request gave up",
				logger.String("topic", topic), logger.String("trace_id", traceID), logger.Error(err))
		},
	})
	consumer.RegisterHandler(usecase.NewResearchRequestHandler(cfg.Kafka.RequestTopic, research, m, l))
	return consumer, nil
}

// ProvideResearchHandler builds the HTTP handler with health probes for
// every configured dependency.
func ProvideResearchHandler(
	cfg *config.Config,
	l *logger.Logger,
	research *usecase.ResearchUseCase,
	candles *usecase.CandlesUseCase,
	proc *usecase.ResultProcessor,
	store repository.ResultStorage,
	res *resolver.Resolver,
	ml *analytics.HTTPMLPredictor,
	collector *usecase.LiquidationCollector,
) *api.ResearchEchoHandler {
	opts := []api.HandlerOption{
		api.WithRateLimiter(ratelimit.New(cfg.Server.RateLimit.PerMinute, cfg.Server.RateLimit.Burst, rateLimitKeys)),
		api.WithHealthProbes(api.HealthProbe{
			Name:     "sources",
			Required: true,
			Check: func(context.Context) (interface{}, error) {
				s := res.Sources()
				if len(s) == 0 {
					return nil, fmt.Errorf("no market data source configured")
				}
				return s, nil
			},
		}),
	}
	if store != nil {
		opts = append(opts, api.WithHistory(proc), api.WithHealthProbes(api.HealthProbe{
			Name:     "clickhouse",
			Required: cfg.Sink.Backend == "clickhouse",
			Check: func(ctx context.Context) (interface{}, error) {
				return nil, store.Health(ctx)
			},
		}))
	}
	if ml != nil {
		opts = append(opts, api.WithHealthProbes(api.HealthProbe{
			Name: "ml",
			Check: func(ctx context.Context) (interface{}, error) {
				h, err := ml.Health(ctx)
				if err != nil {
					return nil, err
				}
				if h.Status != "ready" {
					return h, fmt.Errorf("model service %s", h.Status)
				}
				return h, nil
			},
		}))
	}
	if collector != nil {
		opts = append(opts, api.WithHealthProbes(api.HealthProbe{
			Name: "liquidations",
			Check: func(context.Context) (interface{}, error) {
				if !collector.IsConnected() {
					return nil, fmt.Errorf("liquidation stream disconnected")
				}
				return "connected", nil
			},
		}))
	}
	return api.NewResearchEchoHandler(l, research, candles, opts...)
}

func ProvideHTTPServer(cfg *config.Config, l *logger.Logger, h *api.ResearchEchoHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(true, cfg.Server.AllowOrigins...),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(l),
	)
}

// ProvideApp assembles the lifecycle. The error digest ships through Kafka
// when both are configured.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	collector *usecase.LiquidationCollector,
	pipe *mid.ResultPipeline,
	producer *pkgkafka.Producer,
) *server.App {
	if cfg.Log.Digest.Enabled && producer != nil {
		l.AttachDigest(&logger.DigestConfig{
			Interval:  cfg.Log.Digest.Interval,
			MaxUnique: cfg.Log.Digest.MaxUnique,
			Topic:     cfg.Log.Digest.Topic,
			Publisher: producer,
		})
	}
	opts := []server.Option{server.WithHTTPServer(httpServer)}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer))
	}
	if collector != nil {
		opts = append(opts, server.WithLiquidationCollector(collector))
	}
	if pipe != nil {
		opts = append(opts, server.WithResultPipeline(pipe))
	}
	return server.New(cfg, l, opts...)
}
