package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JRCMora/jms-api/internal/dto"
	"github.com/JRCMora/jms-api/internal/models"
	appErrors "github.com/JRCMora/jms-api/pkg/errors"
	"github.com/JRCMora/jms-api/pkg/response"
)

type notificationInbox interface {
	List(ctx context.Context, userID string, query dto.NotificationQuery) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

// NotificationHandler serves the caller's in-app notifications.
type NotificationHandler struct {
	service notificationInbox
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(svc notificationInbox) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// List godoc
// @Summary List my notifications
// @Tags Notifications
// @Produce json
// @Param unread query bool false "Only unread"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	items, err := h.service.List(c.Request.Context(), claims.UserID, dto.NotificationQuery{
		UnreadOnly: queryBool(c, "unread"),
		Limit:      queryInt(c, "limit", 50),
		Offset:     queryInt(c, "offset", 0),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// MarkRead godoc
// @Summary Mark a notification as read
// @Tags Notifications
// @Param id path string true "Notification ID"
// @Success 204
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
