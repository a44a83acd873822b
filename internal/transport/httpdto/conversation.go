package httpdto

import (
	"time"

	"casebridge/internal/services"

	"github.com/google/uuid"
)

type CreateConversationRequest struct {
	Type           string                 `json:"type" binding:"required"`
	Title          string                 `json:"title"`
	CaseID         string                 `json:"caseId"`
	ParticipantIDs []uuid.UUID            `json:"participantIds"`
	InitialMessage string                 `json:"initialMessage"`
	Metadata       map[string]interface{} `json:"metadata"`
}

type SendMessageRequest struct {
	Content     string                     `json:"content"`
	ParentID    *uuid.UUID                 `json:"parentId"`
	TemplateID  *uuid.UUID                 `json:"templateId"`
	Variables   map[string]interface{}     `json:"variables"`
	Attachments []services.AttachmentInput `json:"attachments"`
	Metadata    map[string]interface{}     `json:"metadata"`
}

type AddParticipantRequest struct {
	UserID uuid.UUID `json:"userId" binding:"required"`
}

type ListConversationsResponse struct {
	Conversations []services.ConversationView `json:"conversations"`
}

type ListMessagesResponse struct {
	Messages []services.MessageView `json:"messages"`
	HasMore  bool                   `json:"hasMore"`
}

type ReadResponse struct {
	ConversationID uuid.UUID `json:"conversationId"`
	ReadAt         time.Time `json:"readAt"`
	Count          int64     `json:"count"`
}
