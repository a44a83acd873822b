package handler

import (
	"context"
	"net/http"
	"time"

	"casebridge/internal/storage"
	"casebridge/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string, sizeBytes int64) (string, map[string]string, error)
	PresignTTL() time.Duration
}

type ParticipantChecker interface {
	EnsureParticipant(ctx context.Context, conversationID, userID uuid.UUID) error
}

type AttachmentHandler struct {
	presigner    Presigner
	participants ParticipantChecker
}

// NewAttachmentHandler builds the handler. A nil presigner disables uploads.
func NewAttachmentHandler(presigner Presigner, participants ParticipantChecker) *AttachmentHandler {
	return &AttachmentHandler{presigner: presigner, participants: participants}
}

// Presign returns an upload URL and the storage path to reference in send_message.
func (h *AttachmentHandler) Presign(c *gin.Context) {
	if h.presigner == nil {
		c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("attachment storage is not configured", "STORAGE_DISABLED"))
		return
	}
	var req httpdto.PresignUploadRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.participants.EnsureParticipant(ctx, req.ConversationID, userID); err != nil {
		fail(c, err)
		return
	}
	if err := storage.ValidateUpload(req.FileType, req.FileSize); err != nil {
		fail(c, err)
		return
	}

	key := storage.AttachmentKey(req.ConversationID, req.FileName)
	url, headers, err := h.presigner.PresignPut(ctx, key, req.FileType, req.FileSize)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.PresignUploadResponse{
		UploadURL:   url,
		Headers:     headers,
		StoragePath: key,
		ExpiresAt:   time.Now().Add(h.presigner.PresignTTL()).UTC(),
	}))
}
