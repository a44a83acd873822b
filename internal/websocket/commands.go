package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"casebridge/internal/broadcast"
	"casebridge/internal/services"
	casebridge_errors "casebridge/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Inbound command types.
const (
	CmdAuthenticate  = "authenticate"
	CmdSendMessage   = "send_message"
	CmdMarkRead      = "mark_read"
	CmdMarkDelivered = "mark_delivered"
	CmdTyping        = "typing"
	CmdSubscribe     = "subscribe"
	CmdPing          = "ping"
)

const commandTimeout = 10 * time.Second

// Command is a client frame. Fields are read according to Type.
type Command struct {
	Type           string                     `json:"type"`
	RequestID      string                     `json:"requestId,omitempty"`
	Token          string                     `json:"token,omitempty"`
	ConversationID *uuid.UUID                 `json:"conversationId,omitempty"`
	MessageID      *uuid.UUID                 `json:"messageId,omitempty"`
	Content        string                     `json:"content,omitempty"`
	ParentID       *uuid.UUID                 `json:"parentId,omitempty"`
	TemplateID     *uuid.UUID                 `json:"templateId,omitempty"`
	Variables      map[string]interface{}     `json:"variables,omitempty"`
	Attachments    []services.AttachmentInput `json:"attachments,omitempty"`
	Metadata       map[string]interface{}     `json:"metadata,omitempty"`
	IsTyping       bool                       `json:"isTyping,omitempty"`
}

// ErrorPayload is the body of an error frame.
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

type authenticatedPayload struct {
	UserID    uuid.UUID `json:"userId"`
	SessionID string    `json:"sessionId"`
}

type deliveredAck struct {
	MessageID uuid.UUID `json:"messageId"`
	Advanced  bool      `json:"advanced"`
}

var errMissingConversation = fmt.Errorf("conversationId is required: %w", casebridge_errors.ErrInvalidInput)

func (h *Handler) handleFrame(c *Client, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		h.replyError(c, "", nil, fmt.Errorf("malformed frame: %w", casebridge_errors.ErrInvalidInput))
		return
	}

	userID, sessionID, authed := c.identity()
	if !authed && cmd.Type != CmdAuthenticate {
		h.replyError(c, cmd.RequestID, cmd.ConversationID, casebridge_errors.ErrUnauthorized)
		return
	}
	if !c.limiter.Allow(cmd.Type) {
		h.logger.Warn("rate_limited", userID, sessionID, zap.String("command", cmd.Type))
		h.replyError(c, cmd.RequestID, cmd.ConversationID, casebridge_errors.ErrRateLimited)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	ctx = services.WithSessionContext(services.WithUserContext(ctx, userID), sessionID)

	var (
		payload interface{}
		err     error
	)
	switch cmd.Type {
	case CmdAuthenticate:
		payload, err = h.authenticate(ctx, c, cmd)
	case CmdSendMessage:
		payload, err = h.sendMessage(ctx, userID, cmd)
	case CmdMarkRead:
		payload, err = h.markRead(ctx, userID, cmd)
	case CmdMarkDelivered:
		payload, err = h.markDelivered(ctx, userID, cmd)
	case CmdTyping:
		payload, err = h.setTyping(userID, sessionID, cmd)
	case CmdSubscribe:
		payload, err = h.subscribe(ctx, userID, sessionID, cmd)
	case CmdPing:
		h.reply(c, broadcast.Event{Type: broadcast.KindPong, RequestID: cmd.RequestID})
		return
	default:
		err = fmt.Errorf("unknown command %q: %w", cmd.Type, casebridge_errors.ErrInvalidInput)
	}

	if err != nil {
		if casebridge_errors.Code(err) == "INTERNAL_ERROR" {
			h.logger.Error("command_failed", userID, sessionID, err, zap.String("command", cmd.Type))
		}
		h.replyError(c, cmd.RequestID, cmd.ConversationID, err)
		return
	}
	h.reply(c, broadcast.Event{
		Type:           broadcast.KindAck,
		ConversationID: cmd.ConversationID,
		RequestID:      cmd.RequestID,
		Payload:        payload,
	})
}

func (h *Handler) authenticate(ctx context.Context, c *Client, cmd Command) (interface{}, error) {
	if userID, sessionID, ok := c.identity(); ok {
		return authenticatedPayload{UserID: userID, SessionID: sessionID}, nil
	}
	userID, err := h.verifier.Verify(ctx, cmd.Token)
	if err != nil {
		return nil, err
	}
	sessionID, err := h.attach(ctx, c, userID)
	if err != nil {
		return nil, err
	}
	return authenticatedPayload{UserID: userID, SessionID: sessionID}, nil
}

func (h *Handler) sendMessage(ctx context.Context, userID uuid.UUID, cmd Command) (interface{}, error) {
	if cmd.ConversationID == nil {
		return nil, errMissingConversation
	}
	m, err := h.conversations.SendMessage(ctx, services.SendMessageInput{
		ConversationID: *cmd.ConversationID,
		SenderID:       userID,
		Content:        cmd.Content,
		ParentID:       cmd.ParentID,
		TemplateID:     cmd.TemplateID,
		Variables:      cmd.Variables,
		Attachments:    cmd.Attachments,
		Metadata:       cmd.Metadata,
	})
	if err != nil {
		return nil, err
	}
	return services.NewMessageView(m), nil
}

func (h *Handler) markRead(ctx context.Context, userID uuid.UUID, cmd Command) (interface{}, error) {
	if cmd.ConversationID == nil {
		return nil, errMissingConversation
	}
	res, err := h.conversations.MarkRead(ctx, *cmd.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	return services.ReadPayload{
		ConversationID: res.ConversationID,
		UserID:         res.UserID,
		ReadAt:         res.ReadAt,
		Count:          res.Count,
	}, nil
}

func (h *Handler) markDelivered(ctx context.Context, userID uuid.UUID, cmd Command) (interface{}, error) {
	if cmd.MessageID == nil {
		return nil, fmt.Errorf("messageId is required: %w", casebridge_errors.ErrInvalidInput)
	}
	advanced, err := h.conversations.MarkDelivered(ctx, *cmd.MessageID, userID)
	if err != nil {
		return nil, err
	}
	return deliveredAck{MessageID: *cmd.MessageID, Advanced: advanced}, nil
}

// setTyping is answered from the in-memory rooms. A session only joins rooms
// it participates in, so room membership is the participation check.
func (h *Handler) setTyping(userID uuid.UUID, sessionID string, cmd Command) (interface{}, error) {
	if cmd.ConversationID == nil {
		return nil, errMissingConversation
	}
	if !h.registry.IsSubscribed(sessionID, *cmd.ConversationID) {
		return nil, casebridge_errors.ErrNotAuthorized
	}
	h.typing.SetTyping(*cmd.ConversationID, userID, cmd.IsTyping, sessionID)
	return nil, nil
}

func (h *Handler) subscribe(ctx context.Context, userID uuid.UUID, sessionID string, cmd Command) (interface{}, error) {
	if cmd.ConversationID == nil {
		return nil, errMissingConversation
	}
	if err := h.conversations.EnsureParticipant(ctx, *cmd.ConversationID, userID); err != nil {
		return nil, err
	}
	if err := h.registry.Subscribe(sessionID, *cmd.ConversationID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (h *Handler) reply(c *Client, ev broadcast.Event) {
	data, err := h.engine.Encode(ev)
	if err != nil {
		userID, sessionID, _ := c.identity()
		h.logger.Error("encode_failed", userID, sessionID, err, zap.String("type", string(ev.Type)))
		return
	}
	c.Send(data)
}

func (h *Handler) replyError(c *Client, requestID string, conversationID *uuid.UUID, err error) {
	code := casebridge_errors.Code(err)
	msg := err.Error()
	if code == "INTERNAL_ERROR" || errors.Is(err, context.DeadlineExceeded) {
		code, msg = "INTERNAL_ERROR", "internal error"
	}
	h.reply(c, broadcast.Event{
		Type:           broadcast.KindError,
		ConversationID: conversationID,
		RequestID:      requestID,
		Payload:        ErrorPayload{Code: code, Message: msg, RequestID: requestID},
	})
}
