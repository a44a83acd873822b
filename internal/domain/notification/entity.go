package notification

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Type string

const (
	TypeNewMessage          Type = "NEW_MESSAGE"
	TypeNewConversation     Type = "NEW_CONVERSATION"
	TypeParticipantAdded    Type = "PARTICIPANT_ADDED"
	TypeCaseStatusChanged   Type = "CASE_STATUS_CHANGED"
	TypeCaseApproved        Type = "CASE_APPROVED"
	TypeCaseRejected        Type = "CASE_REJECTED"
	TypeNewDocument         Type = "NEW_DOCUMENT"
	TypeDocumentApproved    Type = "DOCUMENT_APPROVED"
	TypeDocumentRejected    Type = "DOCUMENT_REJECTED"
	TypeActionRequired      Type = "ACTION_REQUIRED"
	TypeAppointmentReminder Type = "APPOINTMENT_REMINDER"
	TypePaymentDue          Type = "PAYMENT_DUE"
)

// KnownTypes lists every type with a built-in template, in display order.
var KnownTypes = []Type{
	TypeNewMessage,
	TypeNewConversation,
	TypeParticipantAdded,
	TypeCaseStatusChanged,
	TypeCaseApproved,
	TypeCaseRejected,
	TypeNewDocument,
	TypeDocumentApproved,
	TypeDocumentRejected,
	TypeActionRequired,
	TypeAppointmentReminder,
	TypePaymentDue,
}

// HighImportance reports whether email is on by default for the type.
func (t Type) HighImportance() bool {
	switch t {
	case TypeCaseApproved, TypeCaseRejected, TypeDocumentApproved, TypeDocumentRejected, TypeActionRequired:
		return true
	}
	return false
}

// Notification represents the notifications table. Rows are only written by the in-app channel.
type Notification struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID      `gorm:"type:uuid;not null;index:idx_notifications_user_created,priority:1"`
	Type       Type           `gorm:"size:64;not null"`
	Title      string         `gorm:"size:255;not null"`
	Message    string         `gorm:"type:text;not null"`
	IsRead     bool           `gorm:"not null;default:false"`
	EntityID   sql.NullString `gorm:"size:64"`
	EntityType sql.NullString `gorm:"size:64"`
	Link       sql.NullString `gorm:"size:1024"`
	Metadata   datatypes.JSON
	ScheduleID uuid.NullUUID `gorm:"type:uuid;uniqueIndex"`
	CreatedAt  time.Time     `gorm:"not null;index:idx_notifications_user_created,priority:2"`
	ReadAt     sql.NullTime
}

// Preference represents notification_preferences
type Preference struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	Type      Type      `gorm:"size:64;primaryKey"`
	InApp     bool      `gorm:"not null"`
	Email     bool      `gorm:"not null"`
	SMS       bool      `gorm:"not null"`
	UpdatedAt time.Time
}

// DefaultPreference is applied when no row exists for (user, type).
func DefaultPreference(userID uuid.UUID, t Type) Preference {
	return Preference{
		UserID: userID,
		Type:   t,
		InApp:  true,
		Email:  t.HighImportance(),
		SMS:    false,
	}
}

type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "PENDING"
	ScheduleDelivered ScheduleStatus = "DELIVERED"
	ScheduleCancelled ScheduleStatus = "CANCELLED"
)

// Scheduled represents scheduled_notifications. Payload holds the encoded request.
type Scheduled struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID      `gorm:"type:uuid;not null;index"`
	Type        Type           `gorm:"size:64;not null"`
	Payload     datatypes.JSON `gorm:"not null"`
	DeliverAt   time.Time      `gorm:"not null;index:idx_scheduled_status_deliver,priority:2"`
	Status      ScheduleStatus `gorm:"size:16;not null;index:idx_scheduled_status_deliver,priority:1"`
	DeliveredAt sql.NullTime
	Attempts    int    `gorm:"not null;default:0"`
	LastError   string `gorm:"type:text"`
	CreatedAt   time.Time
}

func (Notification) TableName() string {
	return "notifications"
}

func (Preference) TableName() string {
	return "notification_preferences"
}

func (Scheduled) TableName() string {
	return "scheduled_notifications"
}
