package repository

import (
	"context"
	"fmt"
	"time"

	"casebridge/internal/domain/conversation"
	casebridge_errors "casebridge/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GormConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &GormConversationRepository{db: db}
}

func (r *GormConversationRepository) Create(ctx context.Context, c *conversation.Conversation) error {
	res := r.db.WithContext(ctx).Omit("Participants").Create(c)
	return translate(res.Error)
}

func (r *GormConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error) {
	var c conversation.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC")
		}).
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return conversation.Conversation{}, translate(err)
	}
	return c, nil
}

func (r *GormConversationRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (conversation.Conversation, error) {
	var c conversation.Conversation
	err := forUpdate(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return conversation.Conversation{}, translate(err)
	}
	return c, nil
}

func (r *GormConversationRepository) GetByDirectKey(ctx context.Context, key string) (conversation.Conversation, error) {
	var c conversation.Conversation
	err := r.db.WithContext(ctx).
		Where("direct_key = ?", key).
		First(&c).Error
	if err != nil {
		return conversation.Conversation{}, translate(err)
	}
	return c, nil
}

func (r *GormConversationRepository) TouchLastMessage(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&conversation.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_message_at":  at,
			"last_activity_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return casebridge_errors.ErrNotFound
	}
	return nil
}

func (r *GormConversationRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]conversation.Conversation, error) {
	var conversations []conversation.Conversation

	subQuery := r.db.Model(&conversation.Participant{}).
		Select("conversation_id").
		Where("user_id = ? AND left_at IS NULL", userID)

	err := r.db.WithContext(ctx).
		Preload("Participants", "left_at IS NULL").
		Where("id IN (?)", subQuery).
		Order("last_activity_at DESC").
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

func (r *GormConversationRepository) AddParticipant(ctx context.Context, p *conversation.Participant) error {
	res := r.db.WithContext(ctx).Create(p)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return casebridge_errors.ErrAlreadyParticipant
		}
		return res.Error
	}
	return nil
}

func (r *GormConversationRepository) GetActiveParticipant(ctx context.Context, conversationID, userID uuid.UUID) (conversation.Participant, error) {
	var p conversation.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ? AND left_at IS NULL", conversationID, userID).
		First(&p).Error
	if err != nil {
		return conversation.Participant{}, translate(err)
	}
	return p, nil
}

func (r *GormConversationRepository) ListActiveParticipants(ctx context.Context, conversationID uuid.UUID) ([]conversation.Participant, error) {
	var participants []conversation.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND left_at IS NULL", conversationID).
		Order("joined_at ASC").
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *GormConversationRepository) ListActiveConversationIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&conversation.Participant{}).
		Where("user_id = ? AND left_at IS NULL", userID).
		Pluck("conversation_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list active conversations: %w", err)
	}
	return ids, nil
}

func (r *GormConversationRepository) MarkParticipantLeft(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&conversation.Participant{}).
		Where("conversation_id = ? AND user_id = ? AND left_at IS NULL", conversationID, userID).
		Update("left_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return casebridge_errors.ErrNotFound
	}
	return nil
}

// AdvanceLastRead moves the read cursor forward only. A cursor already past at is left alone.
func (r *GormConversationRepository) AdvanceLastRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&conversation.Participant{}).
		Where("conversation_id = ? AND user_id = ? AND left_at IS NULL", conversationID, userID).
		Where("(last_read_at IS NULL OR last_read_at < ?)", at).
		Update("last_read_at", at)
	return res.Error
}
