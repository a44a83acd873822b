package repository

import (
	"context"

	"casebridge/internal/domain/user"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormContactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) ContactRepository {
	return &GormContactRepository{db: db}
}

func (r *GormContactRepository) Get(ctx context.Context, userID uuid.UUID) (user.Contact, error) {
	var c user.Contact
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&c).Error; err != nil {
		return user.Contact{}, translate(err)
	}
	return c, nil
}

func (r *GormContactRepository) Upsert(ctx context.Context, c *user.Contact) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "email", "phone", "updated_at"}),
		}).
		Create(c).Error
}
