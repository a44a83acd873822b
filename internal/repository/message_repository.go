package repository

import (
	"context"
	"fmt"

	"casebridge/internal/domain/message"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GormMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &GormMessageRepository{db: db}
}

// Create writes the message and its attachments.
func (r *GormMessageRepository) Create(ctx context.Context, m *message.Message) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit("Attachments").Create(m).Error; err != nil {
		return translate(err)
	}
	if len(m.Attachments) == 0 {
		return nil
	}
	for i := range m.Attachments {
		m.Attachments[i].MessageID = m.ID
	}
	if err := db.Create(&m.Attachments).Error; err != nil {
		return fmt.Errorf("create attachments: %w", translate(err))
	}
	return nil
}

func (r *GormMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).
		Preload("Attachments", orderAttachments).
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		return message.Message{}, translate(err)
	}
	return m, nil
}

func (r *GormMessageRepository) List(ctx context.Context, conversationID uuid.UUID, q MessageQuery) ([]message.Message, error) {
	var messages []message.Message
	tx := r.db.WithContext(ctx).
		Preload("Attachments", orderAttachments).
		Where("conversation_id = ?", conversationID)
	if q.Before != nil {
		tx = tx.Where("created_at < ?", *q.Before)
	}
	// An After-only query pages forward from the cursor, so the oldest missed
	// messages are selected first and then returned newest first.
	forward := q.After != nil && q.Before == nil
	if q.After != nil {
		tx = tx.Where("created_at > ?", *q.After)
	}
	order := "created_at DESC"
	if forward {
		order = "created_at ASC"
	}
	err := tx.Order(order).
		Limit(clampLimit(q.Limit, 50, 200)).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	if forward {
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}
	return messages, nil
}

// LatestByConversation returns the newest message of each conversation that has one.
func (r *GormMessageRepository) LatestByConversation(ctx context.Context, conversationIDs []uuid.UUID) (map[uuid.UUID]message.Message, error) {
	out := make(map[uuid.UUID]message.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return out, nil
	}

	var messages []message.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id IN ?", conversationIDs).
		Where("created_at = (SELECT MAX(m2.created_at) FROM messages m2 WHERE m2.conversation_id = messages.conversation_id)").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		out[m.ConversationID] = m
	}
	return out, nil
}

func (r *GormMessageRepository) CreateReceipts(ctx context.Context, receipts []message.Receipt) error {
	if len(receipts) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Create(&receipts).Error)
}

func (r *GormMessageRepository) GetReceipt(ctx context.Context, messageID, userID uuid.UUID) (message.Receipt, error) {
	var receipt message.Receipt
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		First(&receipt).Error
	if err != nil {
		return message.Receipt{}, translate(err)
	}
	return receipt, nil
}

func (r *GormMessageRepository) ListReceipts(ctx context.Context, messageID uuid.UUID) ([]message.Receipt, error) {
	var receipts []message.Receipt
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("user_id ASC").
		Find(&receipts).Error
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// AdvanceReceipt is a compare-and-set on status_rank, so concurrent callers can never regress a receipt.
func (r *GormMessageRepository) AdvanceReceipt(ctx context.Context, messageID, userID uuid.UUID, status message.ReceiptStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&message.Receipt{}).
		Where("message_id = ? AND user_id = ? AND status_rank < ?", messageID, userID, status.Rank()).
		Updates(map[string]interface{}{
			"status":      status,
			"status_rank": status.Rank(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormMessageRepository) AdvanceConversationReceipts(ctx context.Context, conversationID, userID uuid.UUID, status message.ReceiptStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&message.Receipt{}).
		Where("conversation_id = ? AND user_id = ? AND status_rank < ?", conversationID, userID, status.Rank()).
		Updates(map[string]interface{}{
			"status":      status,
			"status_rank": status.Rank(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

type unreadRow struct {
	ConversationID uuid.UUID
	Unread         int64
}

// CountUnread counts the user's receipts below READ per conversation. Conversations with
// nothing unread are absent from the result.
func (r *GormMessageRepository) CountUnread(ctx context.Context, userID uuid.UUID, conversationIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return out, nil
	}

	var rows []unreadRow
	err := r.db.WithContext(ctx).
		Model(&message.Receipt{}).
		Select("conversation_id, COUNT(*) AS unread").
		Where("user_id = ? AND status_rank < ? AND conversation_id IN ?", userID, message.ReceiptRead.Rank(), conversationIDs).
		Group("conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ConversationID] = row.Unread
	}
	return out, nil
}

func orderAttachments(db *gorm.DB) *gorm.DB {
	return db.Order("uploaded_at ASC")
}
