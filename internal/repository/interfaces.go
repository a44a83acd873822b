package repository

import (
	"context"
	"time"

	"casebridge/internal/domain/conversation"
	"casebridge/internal/domain/message"
	"casebridge/internal/domain/notification"
	"casebridge/internal/domain/user"

	"github.com/google/uuid"
)

type ConversationRepository interface {
	Create(ctx context.Context, c *conversation.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error)
	// GetForUpdate loads the conversation and holds a row lock until the transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (conversation.Conversation, error)
	GetByDirectKey(ctx context.Context, key string) (conversation.Conversation, error)
	TouchLastMessage(ctx context.Context, id uuid.UUID, at time.Time) error
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]conversation.Conversation, error)

	AddParticipant(ctx context.Context, p *conversation.Participant) error
	GetActiveParticipant(ctx context.Context, conversationID, userID uuid.UUID) (conversation.Participant, error)
	ListActiveParticipants(ctx context.Context, conversationID uuid.UUID) ([]conversation.Participant, error)
	ListActiveConversationIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	MarkParticipantLeft(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) error
	AdvanceLastRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) error
}

type MessageRepository interface {
	Create(ctx context.Context, m *message.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (message.Message, error)
	List(ctx context.Context, conversationID uuid.UUID, q MessageQuery) ([]message.Message, error)
	LatestByConversation(ctx context.Context, conversationIDs []uuid.UUID) (map[uuid.UUID]message.Message, error)

	CreateReceipts(ctx context.Context, receipts []message.Receipt) error
	GetReceipt(ctx context.Context, messageID, userID uuid.UUID) (message.Receipt, error)
	ListReceipts(ctx context.Context, messageID uuid.UUID) ([]message.Receipt, error)
	// AdvanceReceipt moves one receipt forward. It reports false when the receipt
	// is missing or already at or past status.
	AdvanceReceipt(ctx context.Context, messageID, userID uuid.UUID, status message.ReceiptStatus) (bool, error)
	AdvanceConversationReceipts(ctx context.Context, conversationID, userID uuid.UUID, status message.ReceiptStatus) (int64, error)
	CountUnread(ctx context.Context, userID uuid.UUID, conversationIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}

// MessageQuery bounds a message listing. Results are always newest first.
type MessageQuery struct {
	Limit  int
	Before *time.Time
	After  *time.Time
}

type TemplateRepository interface {
	Create(ctx context.Context, t *message.Template) error
	GetByID(ctx context.Context, id uuid.UUID) (message.Template, error)
	GetActiveByName(ctx context.Context, name string) (message.Template, error)
	List(ctx context.Context, category string) ([]message.Template, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *notification.Notification) error
	GetByID(ctx context.Context, id uuid.UUID) (notification.Notification, error)
	ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]notification.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)

	GetPreference(ctx context.Context, userID uuid.UUID, t notification.Type) (notification.Preference, error)
	ListPreferences(ctx context.Context, userID uuid.UUID) ([]notification.Preference, error)
	UpsertPreference(ctx context.Context, p *notification.Preference) error
}

type ScheduleRepository interface {
	Create(ctx context.Context, s *notification.Scheduled) error
	GetByID(ctx context.Context, id uuid.UUID) (notification.Scheduled, error)
	ListPending(ctx context.Context, limit int) ([]notification.Scheduled, error)
	// Transition moves a schedule from one status to another and reports whether it did.
	Transition(ctx context.Context, id uuid.UUID, from, to notification.ScheduleStatus, at time.Time) (bool, error)
	RecordAttempt(ctx context.Context, id uuid.UUID, lastErr string) error
}

type ContactRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (user.Contact, error)
	Upsert(ctx context.Context, c *user.Contact) error
}
