package notification

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/notification-engine/internal/handler"
	"github.com/jwalitptl/notification-engine/internal/model"
	"github.com/jwalitptl/notification-engine/internal/repository"
	"github.com/jwalitptl/notification-engine/internal/service/event"
	"github.com/jwalitptl/notification-engine/internal/service/notification"
	apperrors "github.com/jwalitptl/notification-engine/pkg/errors"
)

type Handler struct {
	service notification.Service
	mapper  *event.Registry
}

func NewHandler(service notification.Service, mapper *event.Registry) *Handler {
	return &Handler{
		service: service,
		mapper:  mapper,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.POST("", h.CreateNotification)
		notifications.GET("/:id", h.GetNotification)
	}
	r.POST("/events", h.IngestEvent)
	r.GET("/users/:id/notifications", h.ListUserNotifications)
}

func (h *Handler) CreateNotification(c *gin.Context) {
	var input model.NotificationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	n, err := h.service.Create(c.Request.Context(), &input)
	if err != nil {
		if ve, ok := apperrors.IsValidation(err); ok {
			c.JSON(http.StatusBadRequest, handler.NewValidationResponse(ve.Field, ve.Message))
			return
		}
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(n))
}

type eventRequest struct {
	Kind    event.Kind    `json:"kind" binding:"required"`
	Payload event.Payload `json:"payload" binding:"required"`
}

// IngestEvent maps a domain event onto a notification and creates it.
func (h *Handler) IngestEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	input, err := h.mapper.Map(req.Kind, req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	n, err := h.service.Create(c.Request.Context(), input)
	if err != nil {
		if ve, ok := apperrors.IsValidation(err); ok {
			c.JSON(http.StatusBadRequest, handler.NewValidationResponse(ve.Field, ve.Message))
			return
		}
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(n))
}

func (h *Handler) GetNotification(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid notification ID"))
		return
	}

	n, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		if err == repository.ErrNotFound {
			c.JSON(http.StatusNotFound, handler.NewErrorResponse("notification not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(n))
}

func (h *Handler) ListUserNotifications(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid user ID"))
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	notifications, err := h.service.ListForUser(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(notifications))
}
