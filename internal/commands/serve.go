package commands

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskflow/internal/analytics"
	"taskflow/internal/cache"
	"taskflow/internal/config"
	"taskflow/internal/handler"
	"taskflow/internal/httpserver"
	"taskflow/internal/model"
	"taskflow/internal/mqhandler"
	"taskflow/internal/repository"
	"taskflow/internal/service"
	"taskflow/pkg/circuitbreaker"
	"taskflow/pkg/mq"
	"taskflow/pkg/outbox"
	pkgredis "taskflow/pkg/redis"
	"taskflow/pkg/util"
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, outbox dispatcher and cache invalidation consumer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		defer log.Sync()
		return serve(cmd.Context(), cfg, log)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply migrations before serving")
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if configEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// DB
	pool, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	if migrateOnStart {
		if err := repository.Migrate(ctx, pool, log); err != nil {
			return err
		}
	}

	outboxRepo := outbox.NewRepository(pool)
	store := repository.NewTaskRepository(pool, outboxRepo, log)

	// Redis：分析缓存 + 消费者去重/重试计数
	var rdb *goredis.Client
	if cfg.Cache.Enabled || cfg.Consumer.Enabled {
		log.Info("Initializing Redis client...", zap.String("addr", cfg.Redis.Addr))
		rdb, err = pkgredis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		defer rdb.Close()
	}

	var analyticsCache cache.AnalyticsCache = cache.Noop{}
	if cfg.Cache.Enabled {
		analyticsCache = cache.NewRedisCache(rdb, cfg.Cache.TTL, log)
	}

	// MQ publisher
	log.Info("Initializing MQ publisher...")
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}
	defer publisher.Close()
	if err := publisher.EnsureDLQ(model.RoutingKeyProgressUpdated); err != nil {
		return fmt.Errorf("declare dlq: %w", err)
	}

	// Outbox dispatcher
	breaker := circuitbreaker.NewCircuitBreaker(cfg.Outbox.Breaker,
		circuitbreaker.WithStateChange(func(from, to circuitbreaker.State) {
			log.Warn("Outbox circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}),
	)
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, breaker, log).
		WithInterval(cfg.Outbox.Interval).
		WithBatchSize(cfg.Outbox.BatchSize).
		WithMaxRetries(cfg.Outbox.MaxRetries)

	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Start(dispatchCtx)
	}()

	// MQ consumer for assignee.progress.updated
	var consumer *mq.Consumer
	if cfg.Consumer.Enabled {
		log.Info("Initializing MQ consumer...",
			zap.String("queue", mqhandler.QueueCacheInvalidate),
			zap.String("routing_key", model.RoutingKeyProgressUpdated),
		)
		consumer, err = mq.NewConsumer(cfg.MQ.URL, mqhandler.QueueCacheInvalidate, model.RoutingKeyProgressUpdated, log)
		if err != nil {
			return fmt.Errorf("init consumer: %w", err)
		}
		defer consumer.Close()

		invalidate := mqhandler.NewProgressUpdatedHandler(
			analyticsCache,
			util.NewDeduper(rdb, cfg.Consumer.DedupTTL, log),
			util.NewRetryCounter(rdb, cfg.Consumer.RetryTTL),
			publisher,
			cfg.Consumer.MaxRetries,
			log,
		)
		consumer.SetHandler(invalidate.Handle)

		go func() {
			if err := consumer.StartConsuming(ctx); err != nil {
				log.Error("Consumer stopped with error", zap.Error(err))
			}
		}()
	}

	// Services
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	weekly, err := cfg.WeeklyAveragePolicy()
	if err != nil {
		return err
	}
	agg := analytics.New(analytics.WithLocation(loc), analytics.WithWeeklyAverage(weekly))
	attempts := service.WithMaxAttempts(cfg.App.MaxUpdateAttempts)
	progressSvc := service.NewProgressService(store, analyticsCache, log, attempts)
	taskSvc := service.NewTaskService(store, analyticsCache, log, attempts)
	analyticsSvc := service.NewAnalyticsService(store, analyticsCache, agg, log)
	replaySvc := outbox.NewReplayService(outboxRepo, publisher, log, cfg.Outbox.MaxRetries)

	// HTTP Server
	var mqCheck httpserver.ConnChecker
	if consumer != nil {
		mqCheck = consumer
	}
	router := httpserver.NewRouter(httpserver.Handlers{
		Progress:  handler.NewProgressHandler(progressSvc, taskSvc, log),
		Tasks:     handler.NewTaskHandler(taskSvc, log),
		Analytics: handler.NewAnalyticsHandler(analyticsSvc, log),
		Admin:     handler.NewAdminHandler(replaySvc, log),
	}, cfg.JWT.Secret, store, mqCheck, log)

	srv := httpserver.NewServer(cfg.Server.Port, router, log)
	serverErr := srv.Start()

	log.Info("taskflow is fully initialized and running",
		zap.String("http_addr", cfg.Server.Port),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
		zap.Bool("consumer_enabled", cfg.Consumer.Enabled),
	)

	// 优雅退出处理
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down taskflow gracefully...")
	case err, ok := <-serverErr:
		if ok && err != nil {
			log.Error("HTTP server failed", zap.Error(err))
			runErr = err
		}
	}

	if consumer != nil {
		log.Info("Stopping MQ consumer...")
		consumer.Stop()
	}

	log.Info("Stopping outbox dispatcher...")
	stopDispatch()
	<-dispatchDone

	log.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	log.Info("taskflow shutdown complete")
	return runErr
}
