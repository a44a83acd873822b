package repository

import (
	"context"
	"time"

	"casebridge/internal/domain/notification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GormScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) ScheduleRepository {
	return &GormScheduleRepository{db: db}
}

func (r *GormScheduleRepository) Create(ctx context.Context, s *notification.Scheduled) error {
	return translate(r.db.WithContext(ctx).Create(s).Error)
}

func (r *GormScheduleRepository) GetByID(ctx context.Context, id uuid.UUID) (notification.Scheduled, error) {
	var s notification.Scheduled
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return notification.Scheduled{}, translate(err)
	}
	return s, nil
}

func (r *GormScheduleRepository) ListPending(ctx context.Context, limit int) ([]notification.Scheduled, error) {
	var items []notification.Scheduled
	err := r.db.WithContext(ctx).
		Where("status = ?", notification.SchedulePending).
		Order("deliver_at ASC").
		Limit(clampLimit(limit, 500, 5000)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormScheduleRepository) Transition(ctx context.Context, id uuid.UUID, from, to notification.ScheduleStatus, at time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if to == notification.ScheduleDelivered {
		updates["delivered_at"] = at
	}
	res := r.db.WithContext(ctx).
		Model(&notification.Scheduled{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormScheduleRepository) RecordAttempt(ctx context.Context, id uuid.UUID, lastErr string) error {
	return r.db.WithContext(ctx).
		Model(&notification.Scheduled{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": lastErr,
		}).Error
}
