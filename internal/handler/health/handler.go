package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/notification-engine/internal/model"
	"github.com/jwalitptl/notification-engine/internal/repository"
	"github.com/jwalitptl/notification-engine/pkg/metrics"
)

// backlogDegradedThreshold flags the queue as degraded rather than
// rejecting producers; medical notifications must never be dropped at
// the door.
const backlogDegradedThreshold = 10000

type Handler struct {
	db      *sqlx.DB
	rdb     *redis.Client
	queue   repository.DeliveryQueue
	metrics *metrics.Metrics
}

func NewHandler(db *sqlx.DB, rdb *redis.Client, queue repository.DeliveryQueue, metrics *metrics.Metrics) *Handler {
	return &Handler{
		db:      db,
		rdb:     rdb,
		queue:   queue,
		metrics: metrics,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	health := r.Group("/health")
	{
		health.GET("/live", h.LivenessCheck)
		health.GET("/ready", h.ReadinessCheck)
		health.GET("/stats", h.Stats)
	}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "DOWN",
				"reason": "database connection failed",
			})
			return
		}
	}
	if h.rdb != nil {
		if err := h.rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "DOWN",
				"reason": "redis connection failed",
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// Stats exposes queue depths per tier, in-flight and terminal-failure
// counts and per-channel attempt/success counters.
func (h *Handler) Stats(c *gin.Context) {
	depths, err := h.queue.Depths(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "DOWN",
			"reason": err.Error(),
		})
		return
	}

	status := "healthy"
	if depths.Total() > backlogDegradedThreshold {
		status = "degraded"
	}

	snap := h.metrics.SnapshotFor(model.AllChannels)
	c.JSON(http.StatusOK, gin.H{
		"status":          status,
		"queued":          depths.Total(),
		"queued_per_tier": depths.Tiers,
		"delayed":         depths.Delayed,
		"in_flight":       depths.InFlight,
		"enqueued_total":  snap.Enqueued,
		"expired_total":   snap.Expired,
		"failed_terminal": snap.TerminalFailures,
		"channels":        snap.Channels,
	})
}
