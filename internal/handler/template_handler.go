package handler

import (
	"net/http"

	"casebridge/internal/services"
	"casebridge/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type TemplateHandler struct {
	service *services.TemplateService
}

func NewTemplateHandler(service *services.TemplateService) *TemplateHandler {
	return &TemplateHandler{service: service}
}

func (h *TemplateHandler) Create(c *gin.Context) {
	var req httpdto.CreateTemplateRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.service.Create(c.Request.Context(), services.CreateTemplateInput{
		Name:     req.Name,
		Content:  req.Content,
		Category: req.Category,
		Metadata: req.Metadata,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.FromTemplate(t)))
}

func (h *TemplateHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromTemplateSlice(items)))
}
