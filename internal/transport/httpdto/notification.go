package httpdto

import (
	"time"

	entity "casebridge/internal/domain/notification"
	"casebridge/internal/notification"

	"github.com/google/uuid"
)

type NotificationResponse = notification.Payload

type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

type Preference struct {
	Type  entity.Type `json:"type" binding:"required"`
	InApp bool        `json:"inApp"`
	Email bool        `json:"email"`
	SMS   bool        `json:"sms"`
}

type UpdatePreferencesRequest struct {
	Preferences []Preference `json:"preferences" binding:"required"`
}

func FromPreference(p entity.Preference) Preference {
	return Preference{Type: p.Type, InApp: p.InApp, Email: p.Email, SMS: p.SMS}
}

func FromPreferenceSlice(items []entity.Preference) []Preference {
	out := make([]Preference, 0, len(items))
	for _, p := range items {
		out = append(out, FromPreference(p))
	}
	return out
}

// ScheduleRequest schedules a notification. A missing deliverAt sends it now.
type ScheduleRequest struct {
	notification.Request
	DeliverAt *time.Time `json:"deliverAt"`
}

type ScheduleResponse struct {
	ScheduleID string `json:"scheduleId"`
	Immediate  bool   `json:"immediate"`
}

func FromNotificationSlice(items []entity.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, notification.NewPayload(n))
	}
	return out
}

type CancelScheduleResponse struct {
	ScheduleID uuid.UUID `json:"scheduleId"`
	Status     string    `json:"status"`
}
