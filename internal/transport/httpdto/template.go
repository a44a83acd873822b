package httpdto

import (
	"encoding/json"
	"time"

	"casebridge/internal/domain/message"

	"github.com/google/uuid"
)

type CreateTemplateRequest struct {
	Name     string                 `json:"name" binding:"required"`
	Content  string                 `json:"content" binding:"required"`
	Category string                 `json:"category" binding:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

type TemplateResponse struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Content   string          `json:"content"`
	Category  string          `json:"category"`
	IsActive  bool            `json:"isActive"`
	Variables []string        `json:"variables"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func FromTemplate(t message.Template) TemplateResponse {
	res := TemplateResponse{
		ID:        t.ID,
		Name:      t.Name,
		Content:   t.Content,
		Category:  t.Category,
		IsActive:  t.IsActive,
		Variables: []string{},
		CreatedAt: t.CreatedAt,
	}
	if len(t.Variables) > 0 {
		_ = json.Unmarshal(t.Variables, &res.Variables)
	}
	if len(t.Metadata) > 0 {
		res.Metadata = json.RawMessage(t.Metadata)
	}
	return res
}

func FromTemplateSlice(items []message.Template) []TemplateResponse {
	out := make([]TemplateResponse, 0, len(items))
	for _, t := range items {
		out = append(out, FromTemplate(t))
	}
	return out
}
