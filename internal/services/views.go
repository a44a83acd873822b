package services

import (
	"encoding/json"
	"time"

	"casebridge/internal/domain/conversation"
	"casebridge/internal/domain/message"

	"github.com/google/uuid"
)

// MessageView is the wire shape of a message in events and API responses.
type MessageView struct {
	ID              uuid.UUID        `json:"id"`
	ConversationID  uuid.UUID        `json:"conversationId"`
	SenderID        uuid.UUID        `json:"senderId"`
	Content         string           `json:"content"`
	ParentID        *uuid.UUID       `json:"parentId,omitempty"`
	TemplateID      *uuid.UUID       `json:"templateId,omitempty"`
	IsSystemMessage bool             `json:"isSystemMessage"`
	Attachments     []AttachmentView `json:"attachments"`
	Metadata        json.RawMessage  `json:"metadata,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

type AttachmentView struct {
	ID          uuid.UUID `json:"id"`
	FileName    string    `json:"fileName"`
	FileType    string    `json:"fileType"`
	FileSize    int64     `json:"fileSize"`
	StoragePath string    `json:"storagePath"`
	URL         string    `json:"url,omitempty"`
}

type ParticipantView struct {
	UserID     uuid.UUID  `json:"userId"`
	IsAdmin    bool       `json:"isAdmin"`
	JoinedAt   time.Time  `json:"joinedAt"`
	LastReadAt *time.Time `json:"lastReadAt,omitempty"`
}

type ConversationView struct {
	ID             uuid.UUID         `json:"id"`
	Type           conversation.Type `json:"type"`
	Title          string            `json:"title,omitempty"`
	CaseID         string            `json:"caseId,omitempty"`
	CreatedBy      uuid.UUID         `json:"createdBy"`
	CreatedAt      time.Time         `json:"createdAt"`
	LastMessageAt  *time.Time        `json:"lastMessageAt,omitempty"`
	LastActivityAt time.Time         `json:"lastActivityAt"`
	Participants   []ParticipantView `json:"participants"`
	Metadata       json.RawMessage   `json:"metadata,omitempty"`
	LastMessage    *MessageView      `json:"lastMessage,omitempty"`
	UnreadCount    int64             `json:"unreadCount"`
}

func NewMessageView(m message.Message) MessageView {
	v := MessageView{
		ID:              m.ID,
		ConversationID:  m.ConversationID,
		SenderID:        m.SenderID,
		Content:         m.Content,
		IsSystemMessage: m.IsSystemMessage,
		Attachments:     make([]AttachmentView, 0, len(m.Attachments)),
		CreatedAt:       m.CreatedAt,
	}
	if m.ParentID.Valid {
		id := m.ParentID.UUID
		v.ParentID = &id
	}
	if m.TemplateID.Valid {
		id := m.TemplateID.UUID
		v.TemplateID = &id
	}
	if len(m.Metadata) > 0 {
		v.Metadata = json.RawMessage(m.Metadata)
	}
	for _, a := range m.Attachments {
		v.Attachments = append(v.Attachments, AttachmentView{
			ID:          a.ID,
			FileName:    a.FileName,
			FileType:    a.FileType,
			FileSize:    a.FileSize,
			StoragePath: a.StoragePath,
		})
	}
	return v
}

func NewConversationView(c conversation.Conversation) ConversationView {
	v := ConversationView{
		ID:             c.ID,
		Type:           c.Type,
		Title:          c.Title.String,
		CaseID:         c.CaseID.String,
		CreatedBy:      c.CreatedBy,
		CreatedAt:      c.CreatedAt,
		LastActivityAt: c.LastActivityAt,
		Participants:   make([]ParticipantView, 0, len(c.Participants)),
	}
	if c.LastMessageAt.Valid {
		t := c.LastMessageAt.Time
		v.LastMessageAt = &t
	}
	if len(c.Metadata) > 0 {
		v.Metadata = json.RawMessage(c.Metadata)
	}
	for _, p := range c.ActiveParticipants() {
		pv := ParticipantView{UserID: p.UserID, IsAdmin: p.IsAdmin, JoinedAt: p.JoinedAt}
		if p.LastReadAt.Valid {
			t := p.LastReadAt.Time
			pv.LastReadAt = &t
		}
		v.Participants = append(v.Participants, pv)
	}
	return v
}

// Event payloads that are not a plain message or conversation.

type ReadPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	UserID         uuid.UUID `json:"userId"`
	ReadAt         time.Time `json:"readAt"`
	Count          int64     `json:"count"`
}

type ParticipantPayload struct {
	ConversationID uuid.UUID  `json:"conversationId"`
	UserID         uuid.UUID  `json:"userId"`
	AddedBy        *uuid.UUID `json:"addedBy,omitempty"`
}

type DeliveredPayload struct {
	ConversationID uuid.UUID   `json:"conversationId"`
	MessageID      uuid.UUID   `json:"messageId"`
	UserIDs        []uuid.UUID `json:"userIds"`
}
