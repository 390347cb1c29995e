package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jessiekimhj/scheduler-api/internal/service"
	"github.com/jessiekimhj/scheduler-api/pkg/response"
)

// NotificationHandler exposes low-credit alerts.
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List godoc
// @Summary List low-credit alerts
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	alerts, err := h.notifications.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, alerts, nil)
}

// Refresh godoc
// @Summary Recompute low-credit alerts immediately
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/refresh [post]
func (h *NotificationHandler) Refresh(c *gin.Context) {
	alerts, err := h.notifications.Refresh(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, alerts, nil)
}
