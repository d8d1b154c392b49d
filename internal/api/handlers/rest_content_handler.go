package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"realty/site/internal/services"
)

// RestContentHandler handles REST requests for editable page content.
type RestContentHandler struct {
	contentService services.IContentService
}

// NewRestContentHandler creates a new RestContentHandler.
func NewRestContentHandler(contentService services.IContentService) *RestContentHandler {
	return &RestContentHandler{contentService: contentService}
}

// GetPublicContent handles GET /v1/content
func (h *RestContentHandler) GetPublicContent(c *gin.Context) {
	content, err := h.contentService.GetAllPublic(c.Request.Context())
	if err != nil {
		respondError(c, err, "Content not found")
		return
	}
	c.JSON(http.StatusOK, content)
}

// GetContent handles GET /v1/admin/content/:key
func (h *RestContentHandler) GetContent(c *gin.Context) {
	entry, err := h.contentService.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, err, "Content key not found")
		return
	}
	c.JSON(http.StatusOK, entry)
}

type setContentRequest struct {
	Value  interface{} `json:"value"`
	Public *bool       `json:"public"`
}

// SetContent handles PUT /v1/admin/content/:key. Entries are public unless stated otherwise.
func (h *RestContentHandler) SetContent(c *gin.Context) {
	var req setContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	public := req.Public == nil || *req.Public
	key := c.Param("key")
	if err := h.contentService.Set(c.Request.Context(), key, req.Value, public); err != nil {
		respondError(c, err, "Content key not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": req.Value, "public": public})
}

// DeleteContent handles DELETE /v1/admin/content/:key
func (h *RestContentHandler) DeleteContent(c *gin.Context) {
	if err := h.contentService.Delete(c.Request.Context(), c.Param("key")); err != nil {
		respondError(c, err, "Content key not found")
		return
	}
	c.Status(http.StatusNoContent)
}
