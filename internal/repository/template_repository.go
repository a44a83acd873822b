package repository

import (
	"context"

	"casebridge/internal/domain/message"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GormTemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &GormTemplateRepository{db: db}
}

func (r *GormTemplateRepository) Create(ctx context.Context, t *message.Template) error {
	return translate(r.db.WithContext(ctx).Create(t).Error)
}

func (r *GormTemplateRepository) GetByID(ctx context.Context, id uuid.UUID) (message.Template, error) {
	var t message.Template
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return message.Template{}, translate(err)
	}
	return t, nil
}

func (r *GormTemplateRepository) GetActiveByName(ctx context.Context, name string) (message.Template, error) {
	var t message.Template
	err := r.db.WithContext(ctx).
		Where("name = ? AND is_active = ?", name, true).
		First(&t).Error
	if err != nil {
		return message.Template{}, translate(err)
	}
	return t, nil
}

func (r *GormTemplateRepository) List(ctx context.Context, category string) ([]message.Template, error) {
	var templates []message.Template
	tx := r.db.WithContext(ctx)
	if category != "" {
		tx = tx.Where("category = ?", category)
	}
	if err := tx.Order("name ASC").Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}
