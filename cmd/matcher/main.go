package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joripage/exchange-core/config"
	"github.com/joripage/exchange-core/pkg/cache"
	postgres_wrapper "github.com/joripage/exchange-core/pkg/infra/postgres"
	redis_wrapper "github.com/joripage/exchange-core/pkg/infra/redis"
	kafkawrapper "github.com/joripage/exchange-core/pkg/kafka_wrapper"
	"github.com/joripage/exchange-core/pkg/logging"
	"github.com/joripage/exchange-core/pkg/matching"
	"github.com/joripage/exchange-core/pkg/metrics"
	"github.com/joripage/exchange-core/pkg/model"
	"github.com/joripage/exchange-core/pkg/orderbook"
	"github.com/joripage/exchange-core/pkg/resilience"
	"github.com/joripage/exchange-core/pkg/store"
	"github.com/joripage/exchange-core/pkg/writebuffer"
	"go.uber.org/zap"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel))
	defer logger.Sync() // nolint
	undo := logger.ReplaceGlobals()
	defer undo()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		zap.S().Errorf("matcher stopped with error: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.AppConfig, logger *logging.Logger) error {
	log := logger.Named("matcher")

	recorder := metrics.New(metrics.DefaultConfig())
	if cfg.MetricsAddr != "" {
		srv := metrics.StartMetricsServer(cfg.MetricsAddr, recorder)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.CoreDB == nil {
		return errors.New("core_db is not configured")
	}
	db, err := postgres_wrapper.InitPostgresWithBackoff(cfg.CoreDB)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	repo := store.NewRepo(db)

	orderCache, closeCache, err := newOrderCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "core_db",
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
		OpenTimeout:      cfg.CircuitBreaker.OpenTimeout(),
		Logger:           logger.Named("resilience"),
		OnStateChange: func(name string, _, to resilience.State) {
			recorder.BreakerState(name, int(to))
		},
	})
	retry := resilience.NewRetryPolicy(resilience.RetryConfig{
		Name:       "core_db",
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay(),
		MaxDelay:   cfg.Retry.MaxDelay(),
		Jitter:     cfg.Retry.Jitter,
		Logger:     logger.Named("resilience"),
		OnRetry: func(name string, _ int, _ time.Duration, _ error) {
			recorder.RetryAttempt(name)
		},
	})
	sink := writebuffer.NewResilientSink(store.NewSQLSink(repo), breaker, retry)

	var producer *kafkawrapper.Producer
	if cfg.Kafka.Enabled() && cfg.Kafka.TradeTopic != "" {
		producer = kafkawrapper.NewProducer(kafkawrapper.ProducerConfig{Brokers: cfg.Kafka.Brokers})
		defer producer.Close() // nolint
	}

	mgr := matching.NewManager(log)
	fees := matching.FeeSchedule{MakerRate: cfg.Fees.MakerRate, TakerRate: cfg.Fees.TakerRate}
	for _, pair := range cfg.Pairs {
		m, err := newMatcher(cfg, pair, logger, recorder, repo, orderCache, sink, producer, fees)
		if err != nil {
			return err
		}
		if err := mgr.Register(m); err != nil {
			return err
		}
	}

	loaded, err := mgr.Load(ctx, repo.Order())
	if err != nil {
		return err
	}
	log.Info("order books restored", zap.Int("orders", loaded), zap.Int("pairs", len(cfg.Pairs)))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mgr.Run(ctx)
	}()

	if cfg.Kafka.Enabled() {
		consumer, err := kafkawrapper.NewConsumerGroup(kafkawrapper.ConsumerConfig{
			Brokers:     cfg.Kafka.Brokers,
			GroupID:     cfg.Kafka.GroupID,
			Topic:       cfg.Kafka.OrderTopic,
			DLQTopic:    cfg.Kafka.DLQTopic,
			WorkerCount: cfg.Kafka.WorkerCount,
			MaxRetries:  cfg.Retry.MaxRetries,
			BackoffMin:  cfg.Retry.BaseDelay(),
			BackoffMax:  cfg.Retry.MaxDelay(),
			Logger:      logger.Named("intake"),
		})
		if err != nil {
			return err
		}
		defer consumer.Close() // nolint
		intake := &commandHandler{
			mgr:    mgr,
			orders: orderbook.NewCachedOrderSource(orderCache, repo.Order(), logger.Named("intake")),
			logger: logger.Named("intake"),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = consumer.Run(ctx, intake.Handle)
		}()
	}

	log.Info("matcher started")
	<-ctx.Done()
	log.Info("shutting down")
	wg.Wait()

	for pair, res := range mgr.Flush(context.Background()) {
		if !res.Success() {
			log.Error("final flush incomplete", zap.String("pair", pair), zap.Errors("errors", res.Errors))
		}
	}
	log.Info("exited cleanly")
	return nil
}

type orderCache interface {
	orderbook.OrderCache
	cache.OrderDeleter
}

func newOrderCache(ctx context.Context, cfg *config.AppConfig) (orderCache, func(), error) {
	if cfg.Redis == nil || cfg.Redis.ConnectionURL == "" {
		zap.S().Info("redis not configured, using in-process order cache")
		return cache.NewMemoryOrderCache(cache.DefaultOrderTTL), func() {}, nil
	}
	client, err := redis_wrapper.InitRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	ttl := time.Duration(cfg.Redis.OrderTTLSeconds) * time.Second
	return cache.NewRedisOrderCache(client, ttl), func() { _ = client.Close() }, nil
}

func newMatcher(
	cfg *config.AppConfig,
	pair model.Pair,
	logger *logging.Logger,
	recorder *metrics.Recorder,
	repo store.IRepo,
	orderCache orderCache,
	sink writebuffer.Sink,
	producer *kafkawrapper.Producer,
	fees matching.FeeSchedule,
) (*matching.Matcher, error) {
	cacheLog := logger.Named("cache")
	opts := []writebuffer.Option{
		writebuffer.WithLogger(logger.Named("writebuffer")),
		writebuffer.WithMetrics(recorder),
		writebuffer.WithOrderListener(func(ctx context.Context, updates []*model.OrderUpdate) {
			if err := cache.EvictClosed(ctx, orderCache, updates); err != nil {
				cacheLog.Warn("evict closed orders failed", zap.Error(err))
			}
		}),
	}
	if producer != nil {
		topic := cfg.Kafka.TradeTopic
		publishLog := logger.Named("publisher")
		opts = append(opts, writebuffer.WithTradeListener(func(ctx context.Context, trades []*model.Trade) {
			headers := map[string]string{"request_id": logging.RequestID(ctx)}
			if err := producer.PublishTrades(ctx, topic, trades, headers); err != nil {
				publishLog.Error("publish trades failed", zap.Int("trades", len(trades)), zap.Error(err))
			}
		}))
	}

	buffer, err := writebuffer.New(writebuffer.Config{
		Pair:          pair.String(),
		MaxBufferSize: cfg.WriteBuffer.MaxBufferSize,
		FlushInterval: cfg.WriteBuffer.FlushInterval(),
		MaxRetries:    cfg.Retry.MaxRetries,
		Mode:          writebuffer.Mode(cfg.WriteBuffer.Mode),
	}, sink, opts...)
	if err != nil {
		return nil, err
	}

	service := matching.NewService(buffer,
		matching.WithOrderCache(orderCache),
		matching.WithServiceLogger(logger.Named("matching")),
	)
	source := orderbook.NewCachedOrderSource(orderCache, repo.Order(), logger.Named("orderbook"))
	return matching.NewMatcher(pair, source, service, fees,
		matching.WithMatcherLogger(logger.Named("matching")),
		matching.WithMatcherMetrics(recorder),
	), nil
}
