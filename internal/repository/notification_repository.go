package repository

import (
	"context"
	"time"

	"casebridge/internal/domain/notification"
	casebridge_errors "casebridge/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormNotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &GormNotificationRepository{db: db}
}

func (r *GormNotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	return translate(r.db.WithContext(ctx).Create(n).Error)
}

func (r *GormNotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (notification.Notification, error) {
	var n notification.Notification
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		return notification.Notification{}, translate(err)
	}
	return n, nil
}

func (r *GormNotificationRepository) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]notification.Notification, error) {
	var items []notification.Notification
	tx := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		tx = tx.Where("is_read = ?", false)
	}
	err := tx.Order("created_at DESC").
		Limit(clampLimit(limit, 50, 100)).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormNotificationRepository) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&notification.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return casebridge_errors.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&notification.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": at,
		})
	return res.RowsAffected, res.Error
}

func (r *GormNotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&notification.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (r *GormNotificationRepository) GetPreference(ctx context.Context, userID uuid.UUID, t notification.Type) (notification.Preference, error) {
	var p notification.Preference
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, t).
		First(&p).Error
	if err != nil {
		return notification.Preference{}, translate(err)
	}
	return p, nil
}

func (r *GormNotificationRepository) ListPreferences(ctx context.Context, userID uuid.UUID) ([]notification.Preference, error) {
	var prefs []notification.Preference
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&prefs).Error; err != nil {
		return nil, err
	}
	return prefs, nil
}

func (r *GormNotificationRepository) UpsertPreference(ctx context.Context, p *notification.Preference) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "type"}},
			DoUpdates: clause.AssignmentColumns([]string{"in_app", "email", "sms", "updated_at"}),
		}).
		Create(p).Error
}
