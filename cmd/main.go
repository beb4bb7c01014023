package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/order-ledger/internal/metrics"
	"github.com/sakashimaa/order-ledger/internal/repository"
	"github.com/sakashimaa/order-ledger/internal/service"
	httpTransport "github.com/sakashimaa/order-ledger/internal/transport/http"
	"github.com/sakashimaa/order-ledger/internal/transport/http/handler"
	kafkaTransport "github.com/sakashimaa/order-ledger/internal/transport/kafka"
	"github.com/sakashimaa/order-ledger/pkg/config"
	"github.com/sakashimaa/order-ledger/pkg/db"
	"github.com/sakashimaa/order-ledger/pkg/kafka"
	outbox "github.com/sakashimaa/order-ledger/pkg/outbox/repository"
	"github.com/sakashimaa/order-ledger/pkg/outbox/worker"
	"github.com/sakashimaa/order-ledger/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not found, using system envs")
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := utils.InitTracer(ctx, utils.TracerConfig{
		ServiceName: cfg.Otel.ServiceName,
		Endpoint:    cfg.Otel.Endpoint,
		Env:         cfg.Env,
	})
	if err != nil {
		log.Fatalf("Error init tracer: %v", err)
	}

	logger, err := config.NewLogger(cfg.LoggerConfig())
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres.URL, db.PoolOptions{
		MaxConns: cfg.Postgres.MaxConns,
		MinConns: cfg.Postgres.MinConns,
	})
	if err != nil {
		logger.Fatal("error creating postgres db", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})

	kafkaProducer, err := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	if err != nil {
		logger.Fatal("error creating kafka producer", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	gate := repository.NewVersionGate(logger)
	userRepo := repository.NewUserRepository(pool, logger)
	categoryRepo := repository.NewCategoryRepository(pool, logger)
	productRepo := repository.NewProductRepository(pool, gate, logger)
	historyRepo := repository.NewPriceHistoryRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, gate, logger)
	analyticsRepo := repository.NewAnalyticsRepository(pool, logger)
	outboxRepo := outbox.NewOutboxRepository(logger)

	outboxProcessor := worker.NewOutboxProcessor(
		pool,
		outboxRepo,
		kafkaProducer,
		logger,
		worker.WithBatchSize(cfg.Outbox.BatchSize),
		worker.WithInterval(cfg.Outbox.Interval),
	)
	go outboxProcessor.Start(ctx)

	productCache := service.NewProductCache(rdb, cfg.Redis.CacheTTL, m, logger)

	cacheConsumer := kafkaTransport.NewCacheEvictionConsumer(productCache, pool, logger)
	go func() {
		if err := cacheConsumer.Start(ctx, cfg.Kafka.Brokers, cfg.Kafka.GroupID); err != nil {
			logger.Error("cache eviction consumer stopped", zap.Error(err))
		}
	}()

	ledger := service.NewInventoryLedger(productRepo, m, logger)
	orderService := service.NewOrderService(service.OrderDeps{
		Pool:        pool,
		Logger:      logger,
		Metrics:     m,
		UserRepo:    userRepo,
		ProductRepo: productRepo,
		OrderRepo:   orderRepo,
		OutboxRepo:  outboxRepo,
		Ledger:      ledger,
	})
	productService := service.NewCachedProductService(
		service.NewProductService(pool, productRepo, historyRepo, outboxRepo, m, logger),
		productCache,
	)
	userService := service.NewUserService(userRepo, logger)
	categoryService := service.NewCategoryService(categoryRepo)
	analyticsService := service.NewAnalyticsService(analyticsRepo)

	validate := validator.New()
	handlers := &httpTransport.Handlers{
		Order:   handler.NewOrderHandler(orderService, validate, cfg.HTTP.Timeout, logger),
		Product: handler.NewProductHandler(productService, analyticsService, validate, cfg.HTTP.Timeout, logger),
		User:    handler.NewUserHandler(userService, categoryService, analyticsService, validate, cfg.HTTP.Timeout, logger),
		Health:  handler.NewHealthHandler(pool, logger),
	}

	app := httpTransport.NewApp(httpTransport.AppConfig{
		ServiceName:       cfg.Otel.ServiceName,
		LimiterMax:        cfg.Limiter.Max,
		LimiterExpiration: cfg.Limiter.Expiration,
	}, handlers, m)

	metricsServer := &http.Server{
		Addr:              cfg.Metrics.Port,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Metrics server listening", zap.String("addr", cfg.Metrics.Port))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics serving failed", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Port))
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			logger.Fatal("Error listening on HTTP", zap.Error(err))
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down gracefully...")

	shutdownTimeout := utils.ParseDurationWithFallback("SHUTDOWN_TIMEOUT", 5*time.Second)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down metrics server", zap.Error(err))
	}

	if err := kafkaProducer.Close(); err != nil {
		logger.Error("Kafka close error", zap.Error(err))
	}

	if err := rdb.Close(); err != nil {
		logger.Error("Redis close error", zap.Error(err))
	}

	pool.Close()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error closing telemetry", zap.Error(err))
	}

	logger.Info("Stopped")
}
