package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"casebridge/internal/domain/message"
	"casebridge/internal/repository"
	"casebridge/internal/template"
	casebridge_errors "casebridge/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TemplateService manages reusable message templates. Names of the form
// email.<TYPE> and sms.<TYPE> override the built-in notification templates.
type TemplateService struct {
	templates repository.TemplateRepository
}

func NewTemplateService(templates repository.TemplateRepository) *TemplateService {
	return &TemplateService{templates: templates}
}

type CreateTemplateInput struct {
	Name     string
	Content  string
	Category string
	Metadata map[string]interface{}
}

func (s *TemplateService) Create(ctx context.Context, in CreateTemplateInput) (message.Template, error) {
	name := strings.TrimSpace(in.Name)
	category := strings.TrimSpace(in.Category)
	if name == "" || category == "" || strings.TrimSpace(in.Content) == "" {
		return message.Template{}, fmt.Errorf("template needs a name, category and content: %w", casebridge_errors.ErrInvalidInput)
	}

	vars, err := json.Marshal(template.Variables(in.Content))
	if err != nil {
		return message.Template{}, err
	}
	metadata, err := encodeJSON(in.Metadata)
	if err != nil {
		return message.Template{}, err
	}

	t := message.Template{
		ID:        uuid.New(),
		Name:      name,
		Content:   in.Content,
		Category:  category,
		IsActive:  true,
		Variables: datatypes.JSON(vars),
		Metadata:  metadata,
	}
	if err := s.templates.Create(ctx, &t); err != nil {
		return message.Template{}, fmt.Errorf("create template %q: %w", name, err)
	}
	return t, nil
}

// List returns active and inactive templates, optionally filtered by category.
func (s *TemplateService) List(ctx context.Context, category string) ([]message.Template, error) {
	return s.templates.List(ctx, strings.TrimSpace(category))
}
