package preference

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/notification-engine/internal/handler"
	"github.com/jwalitptl/notification-engine/internal/model"
	"github.com/jwalitptl/notification-engine/internal/service/preference"
	apperrors "github.com/jwalitptl/notification-engine/pkg/errors"
)

type Handler struct {
	service preference.Service
}

func NewHandler(service preference.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users/:id/preferences")
	{
		users.GET("", h.GetPreferences)
		users.PUT("", h.SetPreferences)
		users.POST("/reset", h.ResetPreferences)
	}
}

func (h *Handler) GetPreferences(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid user ID"))
		return
	}

	prefs := h.service.Get(c.Request.Context(), userID)
	c.JSON(http.StatusOK, handler.NewSuccessResponse(prefs))
}

func (h *Handler) SetPreferences(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid user ID"))
		return
	}

	var prefs model.UserPreferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.service.Set(c.Request.Context(), userID, &prefs); err != nil {
		if ve, ok := apperrors.IsValidation(err); ok {
			c.JSON(http.StatusBadRequest, handler.NewValidationResponse(ve.Field, ve.Message))
			return
		}
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(&prefs))
}

func (h *Handler) ResetPreferences(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid user ID"))
		return
	}

	prefs, err := h.service.Reset(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(prefs))
}
