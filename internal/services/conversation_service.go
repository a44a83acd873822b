package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"casebridge/internal/broadcast"
	"casebridge/internal/domain/conversation"
	"casebridge/internal/domain/message"
	entity "casebridge/internal/domain/notification"
	"casebridge/internal/notification"
	"casebridge/internal/presence"
	"casebridge/internal/repository"
	"casebridge/internal/template"
	casebridge_errors "casebridge/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	defaultConversationLimit = 50
	maxConversationLimit     = 100
	previewLength            = 120
)

type ConversationService struct {
	store      *repository.Store
	registry   *presence.Registry
	broadcast  *broadcast.Engine
	dispatcher notification.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

func NewConversationService(store *repository.Store, registry *presence.Registry, engine *broadcast.Engine, dispatcher notification.Dispatcher, logger *zap.Logger) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{
		store:      store,
		registry:   registry,
		broadcast:  engine,
		dispatcher: dispatcher,
		logger:     logger.With(zap.String("component", "conversation")),
		now:        time.Now,
	}
}

type CreateConversationInput struct {
	CreatorID      uuid.UUID
	Type           conversation.Type
	Title          string
	CaseID         string
	ParticipantIDs []uuid.UUID
	InitialMessage string
	Metadata       map[string]interface{}
}

type AttachmentInput struct {
	FileName    string `json:"fileName"`
	FileType    string `json:"fileType"`
	FileSize    int64  `json:"fileSize"`
	StoragePath string `json:"storagePath"`
}

type SendMessageInput struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Content        string
	ParentID       *uuid.UUID
	TemplateID     *uuid.UUID
	Variables      map[string]interface{}
	Attachments    []AttachmentInput
	Metadata       map[string]interface{}
}

// FetchOptions selects a page of messages. Before pages backwards, After returns
// what was committed since a timestamp the client already has.
type FetchOptions struct {
	Limit  int
	Before *time.Time
	After  *time.Time
}

type ReadResult struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
	ReadAt         time.Time
	Count          int64
}

func (s *ConversationService) CreateConversation(ctx context.Context, in CreateConversationInput) (conversation.Conversation, error) {
	members, err := validateCreate(in)
	if err != nil {
		return conversation.Conversation{}, err
	}

	now := s.timestamp()
	c := conversation.Conversation{
		ID:             uuid.New(),
		Title:          nullString(strings.TrimSpace(in.Title)),
		Type:           in.Type,
		CaseID:         nullString(strings.TrimSpace(in.CaseID)),
		CreatedBy:      in.CreatorID,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if in.Type == conversation.TypeDirect {
		key := conversation.DirectKey(members[0], members[1])
		if existing, err := s.store.Conversations.GetByDirectKey(ctx, key); err == nil {
			return conversation.Conversation{}, &casebridge_errors.DirectExistsError{ConversationID: existing.ID}
		} else if !errors.Is(err, casebridge_errors.ErrNotFound) {
			return conversation.Conversation{}, err
		}
		c.DirectKey = nullString(key)
	}
	if c.Metadata, err = encodeJSON(in.Metadata); err != nil {
		return conversation.Conversation{}, err
	}

	var initial *message.Message
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Conversations.Create(ctx, &c); err != nil {
			return err
		}
		for _, userID := range members {
			p := conversation.Participant{
				ID:             uuid.New(),
				ConversationID: c.ID,
				UserID:         userID,
				JoinedAt:       now,
				IsAdmin:        userID == in.CreatorID,
			}
			if userID != in.CreatorID {
				p.AddedBy = uuid.NullUUID{UUID: in.CreatorID, Valid: true}
			}
			if err := tx.Conversations.AddParticipant(ctx, &p); err != nil {
				return err
			}
			c.Participants = append(c.Participants, p)
		}

		if content := strings.TrimSpace(in.InitialMessage); content != "" {
			m := message.Message{
				ID:             uuid.New(),
				ConversationID: c.ID,
				SenderID:       in.CreatorID,
				Content:        content,
				CreatedAt:      now,
			}
			if err := s.writeMessage(ctx, tx, &m, c.Participants); err != nil {
				return err
			}
			c.LastMessageAt = sql.NullTime{Time: now, Valid: true}
			initial = &m
		}
		return nil
	})
	if err != nil {
		if c.DirectKey.Valid && errors.Is(err, casebridge_errors.ErrAlreadyExists) {
			if existing, lookupErr := s.store.Conversations.GetByDirectKey(ctx, c.DirectKey.String); lookupErr == nil {
				return conversation.Conversation{}, &casebridge_errors.DirectExistsError{ConversationID: existing.ID}
			}
		}
		return conversation.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}

	for _, userID := range members {
		s.registry.SubscribeUser(userID, c.ID)
	}
	view := NewConversationView(c)
	if initial != nil {
		mv := NewMessageView(*initial)
		view.LastMessage = &mv
	}
	s.broadcast.Publish(c.ID, broadcast.KindNewConversation, view, broadcast.ExcludeUser(in.CreatorID))

	for _, userID := range members {
		if userID == in.CreatorID {
			continue
		}
		s.notify(ctx, notification.Request{
			UserID:     userID,
			Type:       entity.TypeNewConversation,
			Title:      conversationTitle(c),
			Message:    "You were added to a new conversation.",
			EntityID:   c.ID.String(),
			EntityType: "conversation",
			Link:       conversationLink(c.ID),
		})
	}

	s.logger.Info("conversation created",
		zap.String("conversation_id", c.ID.String()),
		zap.String("type", string(c.Type)),
		zap.Int("participants", len(members)),
	)
	return c, nil
}

func (s *ConversationService) SendMessage(ctx context.Context, in SendMessageInput) (message.Message, error) {
	content, templateID, err := s.resolveContent(ctx, in)
	if err != nil {
		return message.Message{}, err
	}
	metadata, err := encodeJSON(in.Metadata)
	if err != nil {
		return message.Message{}, err
	}

	var (
		m          message.Message
		conv       conversation.Conversation
		recipients []uuid.UUID
	)
	err = s.broadcast.Sequence(in.ConversationID, func() error {
		err := s.store.Transaction(ctx, func(tx *repository.Store) error {
			var err error
			conv, err = tx.Conversations.GetForUpdate(ctx, in.ConversationID)
			if err != nil {
				return fmt.Errorf("conversation %s: %w", in.ConversationID, err)
			}
			if _, err := tx.Conversations.GetActiveParticipant(ctx, conv.ID, in.SenderID); err != nil {
				if errors.Is(err, casebridge_errors.ErrNotFound) {
					return casebridge_errors.ErrNotAuthorized
				}
				return err
			}
			if in.ParentID != nil {
				parent, err := tx.Messages.GetByID(ctx, *in.ParentID)
				if err != nil || parent.ConversationID != conv.ID {
					return fmt.Errorf("parent message %s: %w", *in.ParentID, casebridge_errors.ErrNotFound)
				}
			}
			participants, err := tx.Conversations.ListActiveParticipants(ctx, conv.ID)
			if err != nil {
				return err
			}

			m = message.Message{
				ID:             uuid.New(),
				ConversationID: conv.ID,
				SenderID:       in.SenderID,
				Content:        content,
				TemplateID:     templateID,
				CreatedAt:      s.nextMessageTime(conv),
				Metadata:       metadata,
			}
			if in.ParentID != nil {
				m.ParentID = uuid.NullUUID{UUID: *in.ParentID, Valid: true}
			}
			for _, a := range in.Attachments {
				m.Attachments = append(m.Attachments, message.Attachment{
					ID:          uuid.New(),
					FileName:    a.FileName,
					FileType:    a.FileType,
					FileSize:    a.FileSize,
					StoragePath: a.StoragePath,
					UploadedBy:  in.SenderID,
					UploadedAt:  m.CreatedAt,
				})
			}
			if err := s.writeMessage(ctx, tx, &m, participants); err != nil {
				return err
			}
			recipients = others(participants, in.SenderID)
			return nil
		})
		if err != nil {
			return err
		}
		s.publishMessage(m, recipients)
		return nil
	})
	if err != nil {
		return message.Message{}, err
	}

	for _, userID := range recipients {
		s.notify(ctx, notification.Request{
			UserID:     userID,
			Type:       entity.TypeNewMessage,
			Title:      conversationTitle(conv),
			Message:    m.Preview(previewLength),
			EntityID:   conv.ID.String(),
			EntityType: "conversation",
			Link:       conversationLink(conv.ID),
			Data: map[string]interface{}{
				"messageId": m.ID.String(),
				"senderId":  m.SenderID.String(),
			},
		})
	}
	return m, nil
}

// MarkRead advances the caller's read cursor and every unread receipt in the conversation.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID, userID uuid.UUID) (ReadResult, error) {
	var res ReadResult
	err := s.broadcast.Sequence(conversationID, func() error {
		err := s.store.Transaction(ctx, func(tx *repository.Store) error {
			conv, err := tx.Conversations.GetForUpdate(ctx, conversationID)
			if err != nil {
				return fmt.Errorf("conversation %s: %w", conversationID, err)
			}
			if _, err := tx.Conversations.GetActiveParticipant(ctx, conv.ID, userID); err != nil {
				if errors.Is(err, casebridge_errors.ErrNotFound) {
					return fmt.Errorf("user is not an active participant: %w", casebridge_errors.ErrInvalidState)
				}
				return err
			}

			readAt := s.timestamp()
			if conv.LastMessageAt.Valid && conv.LastMessageAt.Time.After(readAt) {
				readAt = conv.LastMessageAt.Time
			}
			if err := tx.Conversations.AdvanceLastRead(ctx, conv.ID, userID, readAt); err != nil {
				return err
			}
			count, err := tx.Messages.AdvanceConversationReceipts(ctx, conv.ID, userID, message.ReceiptRead)
			if err != nil {
				return err
			}
			res = ReadResult{ConversationID: conv.ID, UserID: userID, ReadAt: readAt, Count: count}
			return nil
		})
		if err != nil {
			return err
		}

		origin, _ := SessionIDFromContext(ctx)
		s.broadcast.Publish(conversationID, broadcast.KindMessagesRead, ReadPayload{
			ConversationID: res.ConversationID,
			UserID:         res.UserID,
			ReadAt:         res.ReadAt,
			Count:          res.Count,
		}, broadcast.ExcludeSession(origin))
		return nil
	})
	return res, err
}

func (s *ConversationService) AddParticipant(ctx context.Context, conversationID, userID, addedBy uuid.UUID) (conversation.Participant, error) {
	var (
		p          conversation.Participant
		conv       conversation.Conversation
		system     message.Message
		recipients []uuid.UUID
	)
	err := s.broadcast.Sequence(conversationID, func() error {
		err := s.store.Transaction(ctx, func(tx *repository.Store) error {
			var err error
			conv, err = tx.Conversations.GetForUpdate(ctx, conversationID)
			if err != nil {
				return fmt.Errorf("conversation %s: %w", conversationID, err)
			}
			// A DIRECT member who left may rejoin on their own; nobody else may join.
			selfRejoin := conv.Type == conversation.TypeDirect && addedBy == userID && conv.InDirectPair(userID)
			if !selfRejoin {
				if _, err := tx.Conversations.GetActiveParticipant(ctx, conv.ID, addedBy); err != nil {
					if errors.Is(err, casebridge_errors.ErrNotFound) {
						return casebridge_errors.ErrNotAuthorized
					}
					return err
				}
			}
			if conv.Type == conversation.TypeDirect && !conv.InDirectPair(userID) {
				return fmt.Errorf("direct conversations have fixed membership: %w", casebridge_errors.ErrInvalidState)
			}
			if _, err := tx.Conversations.GetActiveParticipant(ctx, conv.ID, userID); err == nil {
				return casebridge_errors.ErrAlreadyParticipant
			} else if !errors.Is(err, casebridge_errors.ErrNotFound) {
				return err
			}

			p = conversation.Participant{
				ID:             uuid.New(),
				ConversationID: conv.ID,
				UserID:         userID,
				JoinedAt:       s.timestamp(),
				AddedBy:        uuid.NullUUID{UUID: addedBy, Valid: true},
			}
			if err := tx.Conversations.AddParticipant(ctx, &p); err != nil {
				return err
			}

			participants, err := tx.Conversations.ListActiveParticipants(ctx, conv.ID)
			if err != nil {
				return err
			}
			system, err = s.systemMessage(conv, addedBy, "participant_added", userID)
			if err != nil {
				return err
			}
			if err := s.writeMessage(ctx, tx, &system, participants); err != nil {
				return err
			}
			recipients = others(participants, addedBy)
			return nil
		})
		if err != nil {
			return err
		}

		s.registry.SubscribeUser(userID, conv.ID)
		s.publishMessage(system, recipients)
		by := addedBy
		s.broadcast.Publish(conv.ID, broadcast.KindUserAdded, ParticipantPayload{
			ConversationID: conv.ID,
			UserID:         userID,
			AddedBy:        &by,
		})
		return nil
	})
	if err != nil {
		return conversation.Participant{}, err
	}

	s.notify(ctx, notification.Request{
		UserID:     userID,
		Type:       entity.TypeParticipantAdded,
		Title:      conversationTitle(conv),
		Message:    "You were added to a conversation.",
		EntityID:   conv.ID.String(),
		EntityType: "conversation",
		Link:       conversationLink(conv.ID),
	})
	return p, nil
}

// LeaveConversation ends the caller's participation. History is kept.
func (s *ConversationService) LeaveConversation(ctx context.Context, conversationID, userID uuid.UUID) error {
	return s.broadcast.Sequence(conversationID, func() error {
		var (
			system     message.Message
			recipients []uuid.UUID
		)
		err := s.store.Transaction(ctx, func(tx *repository.Store) error {
			conv, err := tx.Conversations.GetForUpdate(ctx, conversationID)
			if err != nil {
				return fmt.Errorf("conversation %s: %w", conversationID, err)
			}
			if err := tx.Conversations.MarkParticipantLeft(ctx, conv.ID, userID, s.timestamp()); err != nil {
				if errors.Is(err, casebridge_errors.ErrNotFound) {
					return fmt.Errorf("user is not an active participant: %w", casebridge_errors.ErrInvalidState)
				}
				return err
			}
			remaining, err := tx.Conversations.ListActiveParticipants(ctx, conv.ID)
			if err != nil {
				return err
			}
			system, err = s.systemMessage(conv, userID, "participant_left", userID)
			if err != nil {
				return err
			}
			if err := s.writeMessage(ctx, tx, &system, remaining); err != nil {
				return err
			}
			recipients = others(remaining, userID)
			return nil
		})
		if err != nil {
			return err
		}

		s.registry.UnsubscribeUser(userID, conversationID)
		s.publishMessage(system, recipients)
		s.broadcast.Publish(conversationID, broadcast.KindUserLeft, ParticipantPayload{
			ConversationID: conversationID,
			UserID:         userID,
		})
		return nil
	})
}

// ListForUser returns the user's active conversations, most recently active first,
// each with its last message and unread count.
func (s *ConversationService) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ConversationView, error) {
	if limit <= 0 {
		limit = defaultConversationLimit
	}
	if limit > maxConversationLimit {
		limit = maxConversationLimit
	}
	if offset < 0 {
		offset = 0
	}

	conversations, err := s.store.Conversations.ListForUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(conversations))
	for _, c := range conversations {
		ids = append(ids, c.ID)
	}
	latest, err := s.store.Messages.LatestByConversation(ctx, ids)
	if err != nil {
		return nil, err
	}
	unread, err := s.store.Messages.CountUnread(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	out := make([]ConversationView, 0, len(conversations))
	for _, c := range conversations {
		v := NewConversationView(c)
		if m, ok := latest[c.ID]; ok {
			mv := NewMessageView(m)
			v.LastMessage = &mv
		}
		v.UnreadCount = unread[c.ID]
		out = append(out, v)
	}
	return out, nil
}

func (s *ConversationService) GetConversation(ctx context.Context, conversationID, viewerID uuid.UUID) (conversation.Conversation, error) {
	c, err := s.store.Conversations.GetByID(ctx, conversationID)
	if err != nil {
		return conversation.Conversation{}, fmt.Errorf("conversation %s: %w", conversationID, err)
	}
	for _, p := range c.ActiveParticipants() {
		if p.UserID == viewerID {
			return c, nil
		}
	}
	return conversation.Conversation{}, casebridge_errors.ErrNotAuthorized
}

// FetchMessages returns messages newest first.
func (s *ConversationService) FetchMessages(ctx context.Context, conversationID, viewerID uuid.UUID, opts FetchOptions) ([]message.Message, error) {
	if err := s.EnsureParticipant(ctx, conversationID, viewerID); err != nil {
		return nil, err
	}
	return s.store.Messages.List(ctx, conversationID, repository.MessageQuery{
		Limit:  opts.Limit,
		Before: opts.Before,
		After:  opts.After,
	})
}

// EnsureParticipant returns NotFound for a missing conversation and NotAuthorized
// when userID is not an active participant.
func (s *ConversationService) EnsureParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	if _, err := s.store.Conversations.GetActiveParticipant(ctx, conversationID, userID); err != nil {
		if !errors.Is(err, casebridge_errors.ErrNotFound) {
			return err
		}
		if _, err := s.store.Conversations.GetByID(ctx, conversationID); err != nil {
			return fmt.Errorf("conversation %s: %w", conversationID, err)
		}
		return casebridge_errors.ErrNotAuthorized
	}
	return nil
}

// MarkDelivered records a client acknowledgement. It reports false when the receipt was
// already DELIVERED or READ.
func (s *ConversationService) MarkDelivered(ctx context.Context, messageID, userID uuid.UUID) (bool, error) {
	m, err := s.store.Messages.GetByID(ctx, messageID)
	if err != nil {
		return false, fmt.Errorf("message %s: %w", messageID, err)
	}
	advanced, err := s.store.Messages.AdvanceReceipt(ctx, messageID, userID, message.ReceiptDelivered)
	if err != nil {
		return false, err
	}
	if !advanced {
		if _, err := s.store.Messages.GetReceipt(ctx, messageID, userID); err != nil {
			return false, fmt.Errorf("receipt for message %s: %w", messageID, err)
		}
		return false, nil
	}
	s.broadcast.PushToUser(m.SenderID, broadcast.KindMessageDelivered, DeliveredPayload{
		ConversationID: m.ConversationID,
		MessageID:      m.ID,
		UserIDs:        []uuid.UUID{userID},
	})
	return true, nil
}

// writeMessage persists m with a SENT receipt for every participant but the sender
// and moves the conversation's activity cursor.
func (s *ConversationService) writeMessage(ctx context.Context, tx *repository.Store, m *message.Message, participants []conversation.Participant) error {
	if err := tx.Messages.Create(ctx, m); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	recipients := others(participants, m.SenderID)
	receipts := make([]message.Receipt, 0, len(recipients))
	for _, userID := range recipients {
		receipts = append(receipts, message.NewReceipt(m.ID, userID, m.ConversationID, m.CreatedAt))
	}
	if err := tx.Messages.CreateReceipts(ctx, receipts); err != nil {
		return fmt.Errorf("create receipts: %w", err)
	}
	return tx.Conversations.TouchLastMessage(ctx, m.ConversationID, m.CreatedAt)
}

// publishMessage fans the message out and advances receipts of recipients reached live.
func (s *ConversationService) publishMessage(m message.Message, recipients []uuid.UUID) {
	d := s.broadcast.Publish(m.ConversationID, broadcast.KindNewMessage, NewMessageView(m), broadcast.ExcludeUser(m.SenderID))

	ctx := context.Background()
	var delivered []uuid.UUID
	for _, userID := range recipients {
		if !d.Reached(userID) {
			continue
		}
		ok, err := s.store.Messages.AdvanceReceipt(ctx, m.ID, userID, message.ReceiptDelivered)
		if err != nil {
			s.logger.Warn("advance receipt", zap.String("message_id", m.ID.String()), zap.Error(err))
			continue
		}
		if ok {
			delivered = append(delivered, userID)
		}
	}
	if len(delivered) > 0 {
		s.broadcast.PushToUser(m.SenderID, broadcast.KindMessageDelivered, DeliveredPayload{
			ConversationID: m.ConversationID,
			MessageID:      m.ID,
			UserIDs:        delivered,
		})
	}
}

func (s *ConversationService) resolveContent(ctx context.Context, in SendMessageInput) (string, uuid.NullUUID, error) {
	content := strings.TrimSpace(in.Content)
	var templateID uuid.NullUUID
	if in.TemplateID != nil {
		tpl, err := s.store.Templates.GetByID(ctx, *in.TemplateID)
		if err != nil {
			return "", templateID, fmt.Errorf("template %s: %w", *in.TemplateID, err)
		}
		if !tpl.IsActive {
			return "", templateID, fmt.Errorf("template %s is inactive: %w", tpl.ID, casebridge_errors.ErrNotFound)
		}
		content = strings.TrimSpace(template.Render(tpl.Content, in.Variables))
		templateID = uuid.NullUUID{UUID: tpl.ID, Valid: true}
	}
	if content == "" && len(in.Attachments) == 0 {
		return "", templateID, fmt.Errorf("message needs content, attachments or a template: %w", casebridge_errors.ErrInvalidInput)
	}
	for _, a := range in.Attachments {
		if a.FileName == "" || a.StoragePath == "" || a.FileSize < 0 {
			return "", templateID, fmt.Errorf("attachment needs a file name and storage path: %w", casebridge_errors.ErrInvalidInput)
		}
	}
	return content, templateID, nil
}

func (s *ConversationService) systemMessage(conv conversation.Conversation, actor uuid.UUID, event string, subject uuid.UUID) (message.Message, error) {
	var content string
	switch event {
	case "participant_added":
		content = "A participant was added to the conversation."
	case "participant_left":
		content = "A participant left the conversation."
	}
	meta, err := encodeJSON(map[string]interface{}{
		"event":  event,
		"userId": subject.String(),
		"actor":  actor.String(),
	})
	if err != nil {
		return message.Message{}, err
	}
	return message.Message{
		ID:              uuid.New(),
		ConversationID:  conv.ID,
		SenderID:        actor,
		Content:         content,
		IsSystemMessage: true,
		CreatedAt:       s.nextMessageTime(conv),
		Metadata:        meta,
	}, nil
}

// nextMessageTime keeps created_at strictly increasing per conversation even when
// the clock stalls or steps back.
func (s *ConversationService) nextMessageTime(conv conversation.Conversation) time.Time {
	at := s.timestamp()
	if conv.LastMessageAt.Valid {
		floor := conv.LastMessageAt.Time.UTC().Add(time.Microsecond)
		if at.Before(floor) {
			at = floor
		}
	}
	return at
}

func (s *ConversationService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *ConversationService) notify(ctx context.Context, req notification.Request) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Dispatch(ctx, req)
}

func validateCreate(in CreateConversationInput) ([]uuid.UUID, error) {
	if in.CreatorID == uuid.Nil {
		return nil, fmt.Errorf("creator is required: %w", casebridge_errors.ErrInvalidInput)
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("unknown conversation type %q: %w", in.Type, casebridge_errors.ErrInvalidInput)
	}
	if in.Type == conversation.TypeCase && strings.TrimSpace(in.CaseID) == "" {
		return nil, fmt.Errorf("case conversations need a caseId: %w", casebridge_errors.ErrInvalidInput)
	}

	members := []uuid.UUID{in.CreatorID}
	seen := map[uuid.UUID]struct{}{in.CreatorID: {}}
	for _, id := range in.ParticipantIDs {
		if id == uuid.Nil {
			return nil, fmt.Errorf("participant id is empty: %w", casebridge_errors.ErrInvalidInput)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}

	switch {
	case in.Type == conversation.TypeDirect && len(members) != 2:
		return nil, fmt.Errorf("direct conversations need exactly two users: %w", casebridge_errors.ErrInvalidInput)
	case len(members) < 2:
		return nil, fmt.Errorf("conversation needs another participant: %w", casebridge_errors.ErrInvalidInput)
	}
	return members, nil
}

func others(participants []conversation.Participant, userID uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(participants))
	for _, p := range participants {
		if p.UserID != userID {
			out = append(out, p.UserID)
		}
	}
	return out
}

func conversationTitle(c conversation.Conversation) string {
	if c.Title.Valid && c.Title.String != "" {
		return c.Title.String
	}
	if c.CaseID.Valid {
		return "Case " + c.CaseID.String
	}
	return "Conversation"
}

func conversationLink(id uuid.UUID) string {
	return "/conversations/" + id.String()
}

func encodeJSON(v map[string]interface{}) (datatypes.JSON, error) {
	if len(v) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %v: %w", err, casebridge_errors.ErrInvalidInput)
	}
	return datatypes.JSON(raw), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
