package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/notification-engine/internal/config"
	"github.com/jwalitptl/notification-engine/internal/delivery"
	healthHandler "github.com/jwalitptl/notification-engine/internal/handler/health"
	"github.com/jwalitptl/notification-engine/internal/repository"
	"github.com/jwalitptl/notification-engine/internal/repository/postgres"
	"github.com/jwalitptl/notification-engine/internal/repository/redisq"
	preferenceService "github.com/jwalitptl/notification-engine/internal/service/preference"
	"github.com/jwalitptl/notification-engine/internal/worker"
	"github.com/jwalitptl/notification-engine/pkg/logger"
	brokerRedis "github.com/jwalitptl/notification-engine/pkg/messaging/redis"
	"github.com/jwalitptl/notification-engine/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := config.LoadWorkerEnv(cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to load worker env overrides")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse redis URL")
	}
	redisOpts.PoolSize = cfg.Redis.PoolSize
	redisOpts.MinIdleConns = cfg.Redis.MinIdleConns
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()

	appMetrics := metrics.NewMetrics("notification_engine", "worker")

	queue := redisq.NewQueue(rdb, redisq.Config{
		LeaseTimeout: cfg.Queue.LeaseTimeout,
	}, appLogger.Zerolog())

	baseRepo := postgres.NewBaseRepository(db, appMetrics)
	notificationRepo := postgres.NewNotificationRepository(baseRepo)
	preferenceRepo := postgres.NewPreferenceRepository(baseRepo)
	prefSvc := preferenceService.NewService(preferenceRepo, appLogger)

	broker := brokerRedis.FromClient(rdb, appLogger.Zerolog())
	defer broker.Close()

	senders := []delivery.Sender{
		delivery.NewWebsocketSender(broker),
		delivery.NewEmailSender(cfg.Delivery.SMTP),
		delivery.NewSMSSender(cfg.Delivery.SMS),
	}
	manager := delivery.NewManager(senders, notificationRepo, cfg.Delivery.SendTimeout, appLogger, appMetrics)

	deliveryWorker := worker.NewDeliveryWorker(
		queue,
		notificationRepo,
		prefSvc,
		manager,
		cfg.Queue,
		appLogger,
		appMetrics,
	)

	setupHealthServer(db, rdb, queue, appMetrics, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		appLogger.Info("shutting down...")
		cancel()
	}()

	deliveryWorker.Start(ctx)
}

// setupHealthServer serves liveness, readiness, queue stats and
// prometheus metrics for the worker on its own port.
func setupHealthServer(db *sqlx.DB, rdb *redis.Client, queue repository.DeliveryQueue, m *metrics.Metrics, appLogger *logger.Logger) {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	healthH := healthHandler.NewHandler(db, rdb, queue, m)
	healthH.RegisterRoutes(&engine.RouterGroup)
	engine.GET("/metrics", func(c *gin.Context) {
		promhttp.Handler().ServeHTTP(c.Writer, c.Request)
	})

	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", healthPort), engine); err != nil {
			appLogger.Error(err, "health server failed")
			os.Exit(1)
		}
	}()
}

const healthPort = 8081
