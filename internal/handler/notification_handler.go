package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/dispatch-backend/internal/model"
	"github.com/shinyyama/dispatch-backend/internal/service"
)

type NotificationHandler struct {
	svc service.NotificationService
}

func NewNotificationHandler(svc service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

type NotificationResponse struct {
	ID         uint64 `json:"id"`
	DeliveryID uint64 `json:"deliveryId"`
	Type       string `json:"type"`
	Channel    string `json:"channel"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	Read       bool   `json:"read"`
	CreatedAt  string `json:"createdAt"`
}

func toNotificationResponse(n model.Notification) NotificationResponse {
	return NotificationResponse{
		ID:         n.ID,
		DeliveryID: n.DeliveryID,
		Type:       n.Type,
		Channel:    n.Channel,
		Title:      n.Title,
		Body:       n.Body,
		Read:       n.ReadAt != nil,
		CreatedAt:  n.CreatedAt.Format(time.RFC3339),
	}
}

func (h *NotificationHandler) List(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badID(c, "transporter")
	}
	unreadOnly := c.QueryParam("unread_only") != "false"
	list, unreadCount, err := h.svc.ListForTransporter(c.Request().Context(), id, unreadOnly, queryInt(c, "limit", 20))
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]NotificationResponse, 0, len(list))
	for _, n := range list {
		resp = append(resp, toNotificationResponse(n))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"notifications": resp,
		"unreadCount":   unreadCount,
	})
}

func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badID(c, "transporter")
	}
	if err := h.svc.MarkAllRead(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
