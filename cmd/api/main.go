package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/notification-engine/internal/config"
	"github.com/jwalitptl/notification-engine/internal/handler"
	healthHandler "github.com/jwalitptl/notification-engine/internal/handler/health"
	notificationHandler "github.com/jwalitptl/notification-engine/internal/handler/notification"
	preferenceHandler "github.com/jwalitptl/notification-engine/internal/handler/preference"
	"github.com/jwalitptl/notification-engine/internal/middleware"
	"github.com/jwalitptl/notification-engine/internal/repository/postgres"
	"github.com/jwalitptl/notification-engine/internal/repository/redisq"
	"github.com/jwalitptl/notification-engine/internal/router"
	eventService "github.com/jwalitptl/notification-engine/internal/service/event"
	notificationService "github.com/jwalitptl/notification-engine/internal/service/notification"
	preferenceService "github.com/jwalitptl/notification-engine/internal/service/preference"
	"github.com/jwalitptl/notification-engine/pkg/auth"
	"github.com/jwalitptl/notification-engine/pkg/logger"
	"github.com/jwalitptl/notification-engine/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
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

	appMetrics := metrics.NewMetrics("notification_engine", "api")

	queue := redisq.NewQueue(rdb, redisq.Config{
		LeaseTimeout: cfg.Queue.LeaseTimeout,
	}, appLogger.Zerolog())

	baseRepo := postgres.NewBaseRepository(db, appMetrics)
	notificationRepo := postgres.NewNotificationRepository(baseRepo)
	preferenceRepo := postgres.NewPreferenceRepository(baseRepo)

	prefSvc := preferenceService.NewService(preferenceRepo, appLogger)
	notifSvc := notificationService.NewService(notificationRepo, queue, prefSvc, appLogger, appMetrics)
	mapper := eventService.NewRegistry()

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc)

	h := handler.NewHandler()
	notifHandler := notificationHandler.NewHandler(notifSvc, mapper)
	prefHandler := preferenceHandler.NewHandler(prefSvc)
	healthH := healthHandler.NewHandler(db, rdb, queue, appMetrics)

	r := router.NewRouter(authMiddleware, notifHandler, prefHandler, healthH, h, router.RouterConfig{
		RateLimit: 50,
		RateBurst: 100,
	})
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
