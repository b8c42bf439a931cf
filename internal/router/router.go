package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/notification-engine/internal/handler"
	"github.com/jwalitptl/notification-engine/internal/handler/health"
	notificationHandler "github.com/jwalitptl/notification-engine/internal/handler/notification"
	preferenceHandler "github.com/jwalitptl/notification-engine/internal/handler/preference"
	"github.com/jwalitptl/notification-engine/internal/middleware"
)

type RouterConfig struct {
	RateLimit rate.Limit
	RateBurst int
}

type Router struct {
	engine        *gin.Engine
	auth          *middleware.AuthMiddleware
	notificationH *notificationHandler.Handler
	preferenceH   *preferenceHandler.Handler
	healthH       *health.Handler
	h             *handler.Handler
	config        RouterConfig
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	notificationH *notificationHandler.Handler,
	preferenceH *preferenceHandler.Handler,
	healthH *health.Handler,
	h *handler.Handler,
	config RouterConfig,
) *Router {
	gin.SetMode(gin.ReleaseMode)

	return &Router{
		engine:        gin.New(),
		auth:          auth,
		notificationH: notificationH,
		preferenceH:   preferenceH,
		healthH:       healthH,
		h:             h,
		config:        config,
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) Setup() {
	handler.RegisterValidators()

	limiter := middleware.NewRateLimiter(r.config.RateLimit, r.config.RateBurst)

	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.Logger())
	r.engine.Use(middleware.Recovery())
	r.engine.Use(limiter.Handler())

	r.healthH.RegisterRoutes(&r.engine.RouterGroup)
	r.engine.GET("/metrics", r.h.MetricsHandler)

	api := r.engine.Group("/api/v1")
	api.Use(r.auth.RequireAuth())
	{
		r.notificationH.RegisterRoutes(api)
		r.preferenceH.RegisterRoutes(api)
	}
}
