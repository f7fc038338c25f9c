package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"checkout-pipeline/config"
	"checkout-pipeline/consumers"
	"checkout-pipeline/controllers"
	"checkout-pipeline/database"
	"checkout-pipeline/idempotency"
	"checkout-pipeline/pipeline"
	"checkout-pipeline/rabbitmq"
	"checkout-pipeline/repository"
	"checkout-pipeline/resilience"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
}

func main() {
	cfg := config.LoadConfig()

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	logger := log.WithField("role", cfg.Role)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.DSN(cfg))
	if err != nil {
		logger.WithError(err).Fatal("database initialization failed")
	}
	defer db.Close()

	rmq, err := rabbitmq.NewRabbitMQ(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("RabbitMQ initialization failed")
	}
	defer rmq.Close()

	if err := rmq.SetupQueues(); err != nil {
		logger.WithError(err).Fatal("failed to setup RabbitMQ queues")
	}

	lines := repository.NewOrderLine(db)
	inventory := repository.NewInventory(db)

	var wg sync.WaitGroup

	if cfg.RunsProcess() {
		processor := pipeline.NewProcessor(pipeline.ProcessorConfig{
			Lines: lines,
			Inventory: resilience.NewInventory(inventory, resilience.BreakerSettings{
				Name:         "inventory",
				MaxRequests:  cfg.BreakerMaxRequests,
				Interval:     cfg.BreakerInterval,
				Timeout:      cfg.BreakerTimeout,
				MinRequests:  cfg.BreakerMinRequests,
				FailureRatio: cfg.BreakerFailureRatio,
				Logger:       logger,
			}),
			Publisher:     rmq,
			FinalizeQueue: cfg.FinalizeQueue,
			Logger:        logger,
		})
		startConsumer(ctx, &wg, rmq, cfg, cfg.CheckoutQueue, processor, logger)
	}

	if cfg.RunsFinalize() {
		finalizer := pipeline.NewFinalizer(pipeline.FinalizerConfig{
			Lines:  lines,
			Logger: logger,
		})
		startConsumer(ctx, &wg, rmq, cfg, cfg.FinalizeQueue, finalizer, logger)
	}

	if cfg.RunsAPI() {
		runAPI(ctx, cfg, db, rmq, lines, inventory, logger)
	} else {
		<-ctx.Done()
	}

	logger.Info("shutting down, waiting for consumers")
	wg.Wait()
}

// startConsumer runs a stage consumer and the dead-letter watcher of its
// queue until ctx is cancelled.
func startConsumer(ctx context.Context, wg *sync.WaitGroup, rmq *rabbitmq.RabbitMQ, cfg *config.Config, queue string, h consumers.Handler, logger log.FieldLogger) {
	deliveries, ch, err := rmq.Consume(queue, "checkout-pipeline-"+queue, cfg.ConsumerPrefetch)
	if err != nil {
		logger.WithError(err).WithField("queue", queue).Fatal("failed to register consumer")
	}

	c := consumers.New(consumers.Config{
		Name:    queue,
		Handler: h,
		Workers: cfg.ConsumerWorkers,
		Logger:  logger.WithField("queue", queue),
	})

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer ch.Close()
		c.Run(ctx, deliveries)
	}()
	go func() {
		defer wg.Done()
		consumers.WatchDeadLetters(ctx, rabbitmq.DeadLetterQueue(queue), rmq, cfg.DeadLetterPollInterval, logger)
	}()
}

func runAPI(ctx context.Context, cfg *config.Config, db *sql.DB, rmq *rabbitmq.RabbitMQ, lines *repository.OrderLineRepository, inventory *repository.InventoryRepository, logger log.FieldLogger) {
	checks := map[string]controllers.HealthCheck{
		"database": db.PingContext,
		"rabbitmq": func(context.Context) error {
			if !rmq.Healthy() {
				return errors.New("connection closed")
			}
			return nil
		},
	}

	enqueueCfg := pipeline.EnqueuerConfig{
		Publisher: rmq,
		Queue:     cfg.CheckoutQueue,
		Logger:    logger,
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		store := idempotency.NewRedisStore(rdb, cfg.IdempotencyTTL)
		enqueueCfg.Idempotency = store
		checks["redis"] = store.Ping
	}

	gin.SetMode(gin.ReleaseMode)
	router := controllers.NewRouter(controllers.RouterConfig{
		Orders: controllers.NewOrderController(controllers.OrderControllerConfig{
			Enqueuer:  pipeline.NewEnqueuer(enqueueCfg),
			Lines:     lines,
			Inventory: inventory,
			ListLimit: cfg.ListLimit,
			Logger:    logger,
		}),
		JWTSecret: cfg.JWTSecret,
		Checks:    checks,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("http shutdown failed")
		}
	}()

	logger.WithField("addr", cfg.HTTPAddr).Info("checkout API starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("failed to start server")
	}
}
