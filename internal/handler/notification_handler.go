package handler

import (
	"fmt"
	"net/http"
	"time"

	entity "casebridge/internal/domain/notification"
	"casebridge/internal/notification"
	"casebridge/internal/transport/httpdto"
	casebridge_errors "casebridge/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type NotificationHandler struct {
	orchestrator *notification.Orchestrator
	scheduler    *notification.Scheduler
}

func NewNotificationHandler(orchestrator *notification.Orchestrator, scheduler *notification.Scheduler) *NotificationHandler {
	return &NotificationHandler{orchestrator: orchestrator, scheduler: scheduler}
}

func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	unreadOnly := c.Query("unread") == "true"
	items, err := h.orchestrator.ListNotifications(c.Request.Context(), userID, unreadOnly, queryInt(c, "limit"), queryInt(c, "offset"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromNotificationSlice(items)))
}

func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	count, err := h.orchestrator.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.UnreadCountResponse{Count: count}))
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	n, err := h.orchestrator.MarkNotificationRead(c.Request.Context(), id, userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(notification.NewPayload(n)))
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	updated, err := h.orchestrator.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.MarkAllReadResponse{Updated: updated}))
}

func (h *NotificationHandler) GetPreferences(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	prefs, err := h.orchestrator.GetPreferences(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromPreferenceSlice(prefs)))
}

func (h *NotificationHandler) UpdatePreferences(c *gin.Context) {
	var req httpdto.UpdatePreferencesRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	for _, p := range req.Preferences {
		if _, err := h.orchestrator.SetPreference(c.Request.Context(), entity.Preference{
			UserID: userID,
			Type:   p.Type,
			InApp:  p.InApp,
			Email:  p.Email,
			SMS:    p.SMS,
		}); err != nil {
			fail(c, err)
			return
		}
	}
	h.GetPreferences(c)
}

// Schedule queues a notification. Without deliverAt, or with one in the past, it is
// delivered before the response and scheduleId is "immediate".
func (h *NotificationHandler) Schedule(c *gin.Context) {
	var req httpdto.ScheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if req.UserID == uuid.Nil {
		req.UserID = userID
	}
	if req.UserID != userID {
		fail(c, fmt.Errorf("scheduling for another user: %w", casebridge_errors.ErrNotAuthorized))
		return
	}
	req.ScheduleID = nil

	at := time.Now()
	if req.DeliverAt != nil {
		at = *req.DeliverAt
	}
	id, err := h.scheduler.Schedule(c.Request.Context(), req.Request, at)
	if err != nil {
		fail(c, err)
		return
	}

	immediate := id == notification.Immediate
	status := http.StatusAccepted
	if immediate {
		status = http.StatusOK
	}
	c.JSON(status, httpdto.NewSuccessResponse(httpdto.ScheduleResponse{ScheduleID: id, Immediate: immediate}))
}

func (h *NotificationHandler) CancelSchedule(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.scheduler.CancelForUser(c.Request.Context(), id, userID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.CancelScheduleResponse{
		ScheduleID: id,
		Status:     string(entity.ScheduleCancelled),
	}))
}
