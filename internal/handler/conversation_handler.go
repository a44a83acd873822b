package handler

import (
	"context"
	"errors"
	"net/http"

	"casebridge/internal/domain/conversation"
	"casebridge/internal/domain/message"
	"casebridge/internal/services"
	"casebridge/internal/transport/httpdto"
	casebridge_errors "casebridge/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultMessageLimit = 50

// URLSigner issues download links for attachment storage paths.
type URLSigner interface {
	PresignGet(ctx context.Context, key string) (string, error)
}

type ConversationHandler struct {
	service *services.ConversationService
	signer  URLSigner
	logger  *zap.Logger
}

// NewConversationHandler builds the handler. signer may be nil, in which case
// attachments are returned without URLs.
func NewConversationHandler(service *services.ConversationService, signer URLSigner, logger *zap.Logger) *ConversationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationHandler{service: service, signer: signer, logger: logger}
}

func (h *ConversationHandler) Create(c *gin.Context) {
	var req httpdto.CreateConversationRequest
	if !bindJSON(c, &req) {
		return
	}
	creatorID, ok := currentUser(c)
	if !ok {
		return
	}

	conv, err := h.service.CreateConversation(c.Request.Context(), services.CreateConversationInput{
		CreatorID:      creatorID,
		Type:           conversation.Type(req.Type),
		Title:          req.Title,
		CaseID:         req.CaseID,
		ParticipantIDs: req.ParticipantIDs,
		InitialMessage: req.InitialMessage,
		Metadata:       req.Metadata,
	})
	if err != nil {
		var dup *casebridge_errors.DirectExistsError
		if errors.As(err, &dup) {
			res := httpdto.NewErrorResponse(err.Error(), "ALREADY_EXISTS")
			res.Data = gin.H{"conversationId": dup.ConversationID}
			c.JSON(http.StatusConflict, res)
			return
		}
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(services.NewConversationView(conv)))
}

func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	items, err := h.service.ListForUser(c.Request.Context(), userID, queryInt(c, "limit"), queryInt(c, "offset"))
	if err != nil {
		fail(c, err)
		return
	}
	for i := range items {
		if items[i].LastMessage != nil {
			h.sign(c.Request.Context(), items[i].LastMessage)
		}
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ListConversationsResponse{Conversations: items}))
}

func (h *ConversationHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	conv, err := h.service.GetConversation(c.Request.Context(), conversationID, userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(services.NewConversationView(conv)))
}

// Messages pages history newest first. after returns what was written since a
// timestamp the client already holds.
func (h *ConversationHandler) Messages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	before, err := queryTime(c, "before")
	if err != nil {
		fail(c, err)
		return
	}
	after, err := queryTime(c, "after")
	if err != nil {
		fail(c, err)
		return
	}
	limit := queryInt(c, "limit")
	if limit <= 0 {
		limit = defaultMessageLimit
	}

	items, err := h.service.FetchMessages(c.Request.Context(), conversationID, userID, services.FetchOptions{
		Limit:  limit,
		Before: before,
		After:  after,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ListMessagesResponse{
		Messages: h.views(c.Request.Context(), items),
		HasMore:  len(items) == limit,
	}))
}

func (h *ConversationHandler) SendMessage(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	m, err := h.service.SendMessage(c.Request.Context(), services.SendMessageInput{
		ConversationID: conversationID,
		SenderID:       userID,
		Content:        req.Content,
		ParentID:       req.ParentID,
		TemplateID:     req.TemplateID,
		Variables:      req.Variables,
		Attachments:    req.Attachments,
		Metadata:       req.Metadata,
	})
	if err != nil {
		fail(c, err)
		return
	}
	view := services.NewMessageView(m)
	h.sign(c.Request.Context(), &view)
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(view))
}

func (h *ConversationHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.service.MarkRead(c.Request.Context(), conversationID, userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ReadResponse{
		ConversationID: res.ConversationID,
		ReadAt:         res.ReadAt,
		Count:          res.Count,
	}))
}

func (h *ConversationHandler) AddParticipant(c *gin.Context) {
	var req httpdto.AddParticipantRequest
	if !bindJSON(c, &req) {
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := h.service.AddParticipant(c.Request.Context(), conversationID, req.UserID, userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(services.ParticipantView{
		UserID:   p.UserID,
		IsAdmin:  p.IsAdmin,
		JoinedAt: p.JoinedAt,
	}))
}

func (h *ConversationHandler) Leave(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.LeaveConversation(c.Request.Context(), conversationID, userID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"left": true}))
}

func (h *ConversationHandler) views(ctx context.Context, items []message.Message) []services.MessageView {
	out := make([]services.MessageView, 0, len(items))
	for _, m := range items {
		v := services.NewMessageView(m)
		h.sign(ctx, &v)
		out = append(out, v)
	}
	return out
}

func (h *ConversationHandler) sign(ctx context.Context, v *services.MessageView) {
	if h.signer == nil {
		return
	}
	for i := range v.Attachments {
		url, err := h.signer.PresignGet(ctx, v.Attachments[i].StoragePath)
		if err != nil {
			h.logger.Warn("presign attachment failed",
				zap.String("message_id", v.ID.String()),
				zap.Error(err),
			)
			continue
		}
		v.Attachments[i].URL = url
	}
}
