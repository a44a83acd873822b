package message

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Message represents the messages table. CreatedAt is strictly increasing within a conversation.
type Message struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey"`
	ConversationID  uuid.UUID     `gorm:"type:uuid;not null;index:idx_messages_conversation_created,priority:1"`
	SenderID        uuid.UUID     `gorm:"type:uuid;not null"`
	Content         string        `gorm:"type:text;not null"`
	ParentID        uuid.NullUUID `gorm:"type:uuid"`
	IsSystemMessage bool          `gorm:"not null;default:false"`
	TemplateID      uuid.NullUUID `gorm:"type:uuid"`
	CreatedAt       time.Time     `gorm:"not null;index:idx_messages_conversation_created,priority:2"`
	Metadata        datatypes.JSON

	// Relationships
	Attachments []Attachment `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
}

// Attachment represents message_attachments
type Attachment struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	MessageID   uuid.UUID `gorm:"type:uuid;not null;index"`
	FileName    string    `gorm:"size:255;not null"`
	FileType    string    `gorm:"size:128;not null"`
	FileSize    int64     `gorm:"not null"`
	StoragePath string    `gorm:"size:1024;not null"`
	UploadedBy  uuid.UUID `gorm:"type:uuid;not null"`
	UploadedAt  time.Time `gorm:"not null"`
}

// Receipt represents message_receipts. Status only moves forward.
type Receipt struct {
	MessageID      uuid.UUID     `gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID     `gorm:"type:uuid;primaryKey;index:idx_receipts_user_conversation,priority:1"`
	ConversationID uuid.UUID     `gorm:"type:uuid;not null;index:idx_receipts_user_conversation,priority:2"`
	Status         ReceiptStatus `gorm:"size:16;not null"`
	StatusRank     int           `gorm:"not null"`
	UpdatedAt      time.Time
}

// Template represents message_templates
type Template struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"size:128;not null;uniqueIndex"`
	Content   string    `gorm:"type:text;not null"`
	Category  string    `gorm:"size:64;not null;index"`
	IsActive  bool      `gorm:"not null"`
	Variables datatypes.JSON
	Metadata  datatypes.JSON
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Message) TableName() string {
	return "messages"
}

func (Attachment) TableName() string {
	return "message_attachments"
}

func (Receipt) TableName() string {
	return "message_receipts"
}

func (Template) TableName() string {
	return "message_templates"
}

type ReceiptStatus string

const (
	ReceiptSent      ReceiptStatus = "SENT"
	ReceiptDelivered ReceiptStatus = "DELIVERED"
	ReceiptRead      ReceiptStatus = "READ"
)

// Rank orders receipt states. Unknown states rank 0.
func (s ReceiptStatus) Rank() int {
	switch s {
	case ReceiptSent:
		return 1
	case ReceiptDelivered:
		return 2
	case ReceiptRead:
		return 3
	}
	return 0
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
func (s ReceiptStatus) CanAdvanceTo(next ReceiptStatus) bool {
	return next.Rank() > s.Rank()
}

func NewReceipt(messageID, userID, conversationID uuid.UUID, at time.Time) Receipt {
	return Receipt{
		MessageID:      messageID,
		UserID:         userID,
		ConversationID: conversationID,
		Status:         ReceiptSent,
		StatusRank:     ReceiptSent.Rank(),
		UpdatedAt:      at,
	}
}

// Preview returns at most n runes of the content.
func (m Message) Preview(n int) string {
	r := []rune(m.Content)
	if len(r) <= n {
		return m.Content
	}
	return string(r[:n]) + "…"
}
