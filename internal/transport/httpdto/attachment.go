package httpdto

import (
	"time"

	"github.com/google/uuid"
)

type PresignUploadRequest struct {
	ConversationID uuid.UUID `json:"conversationId" binding:"required"`
	FileName       string    `json:"fileName" binding:"required"`
	FileType       string    `json:"fileType" binding:"required"`
	FileSize       int64     `json:"fileSize" binding:"required"`
}

type PresignUploadResponse struct {
	UploadURL   string            `json:"uploadUrl"`
	Headers     map[string]string `json:"headers"`
	StoragePath string            `json:"storagePath"`
	ExpiresAt   time.Time         `json:"expiresAt"`
}
