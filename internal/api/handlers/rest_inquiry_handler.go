package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"realty/site/internal/config"
	"realty/site/internal/metrics"
	"realty/site/internal/models"
	"realty/site/internal/services"
	"realty/site/internal/tasks"
	"realty/site/internal/utils"
)

// RestInquiryHandler serves the public contact form and the admin inquiry endpoints.
type RestInquiryHandler struct {
	cfg        *config.Config
	store      services.IInquiryService
	taskClient IAsynqClient
}

// NewRestInquiryHandler creates a new RestInquiryHandler. taskClient may be nil, in which
// case no notification emails are queued.
func NewRestInquiryHandler(cfg *config.Config, store services.IInquiryService, taskClient IAsynqClient) *RestInquiryHandler {
	return &RestInquiryHandler{cfg: cfg, store: store, taskClient: taskClient}
}

// CreateInquiry handles POST /v1/inquiry
func (h *RestInquiryHandler) CreateInquiry(c *gin.Context) {
	var input models.InquiryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	inq, err := h.store.CreateInquiry(c.Request.Context(), input)
	if err != nil {
		respondError(c, err, "Inquiry not found")
		return
	}
	log.Printf("Inquiry %s created for property %q", inq.ID, inq.Property)

	// The inquiry is saved; email problems never fail the request.
	h.enqueueEmails(c.Request.Context(), inq)

	c.JSON(http.StatusCreated, gin.H{"id": inq.ID})
}

func (h *RestInquiryHandler) enqueueEmails(ctx context.Context, inq *models.Inquiry) {
	if h.taskClient == nil {
		log.Printf("WARNING: No task client; notification email for inquiry %s not queued", inq.ID)
		return
	}
	task, err := tasks.NewInquiryNotifyTask(inq, h.cfg.InquiryEmailMaxRetry)
	if err != nil {
		log.Printf("ERROR: Failed to build notify task for inquiry %s: %v", inq.ID, err)
		return
	}
	if _, err := h.taskClient.EnqueueContext(ctx, task); err != nil {
		log.Printf("ERROR: Failed to enqueue notify task for inquiry %s: %v", inq.ID, err)
	}

	if !h.cfg.InquirySendAck {
		return
	}
	ack, err := tasks.NewInquiryAckTask(inq, h.cfg.InquiryEmailMaxRetry)
	if err != nil {
		log.Printf("ERROR: Failed to build ack task for inquiry %s: %v", inq.ID, err)
		return
	}
	if _, err := h.taskClient.EnqueueContext(ctx, ack); err != nil {
		log.Printf("ERROR: Failed to enqueue ack task for inquiry %s: %v", inq.ID, err)
	}
}

// ListInquiries handles GET /v1/admin/inquiries?archived=true|false
func (h *RestInquiryHandler) ListInquiries(c *gin.Context) {
	var filter models.InquiryFilter
	switch c.Query("archived") {
	case "":
	case "true":
		filter.Archived = models.BoolPtr(true)
	case "false":
		filter.Archived = models.BoolPtr(false)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "archived must be true or false"})
		return
	}

	list, err := h.store.ListInquiries(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "Inquiries not found")
		return
	}
	if list == nil {
		list = []models.Inquiry{}
	}
	c.JSON(http.StatusOK, gin.H{"inquiries": list})
}

// GetInquiry handles GET /v1/admin/inquiries/:id
func (h *RestInquiryHandler) GetInquiry(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	inq, err := h.store.GetInquiry(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Inquiry not found")
		return
	}
	c.JSON(http.StatusOK, inq)
}

// UpdateInquiry handles PATCH /v1/admin/inquiries/:id
func (h *RestInquiryHandler) UpdateInquiry(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var update models.InquiryUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	err := h.store.UpdateInquiry(c.Request.Context(), id, update)
	metrics.InquiryMutations.WithLabelValues("update", metrics.Result(err)).Inc()
	if err != nil {
		respondError(c, err, "Inquiry not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteInquiry handles DELETE /v1/admin/inquiries/:id. Only archived inquiries can be deleted.
func (h *RestInquiryHandler) DeleteInquiry(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	inq, err := h.store.GetInquiry(ctx, id)
	if err != nil {
		respondError(c, err, "Inquiry not found")
		return
	}
	if !inq.Archived {
		respondError(c, models.PolicyError("only archived inquiries can be deleted"), "")
		return
	}

	err = h.store.DeleteInquiry(ctx, id)
	metrics.InquiryMutations.WithLabelValues("delete", metrics.Result(err)).Inc()
	if err != nil {
		respondError(c, err, "Inquiry not found")
		return
	}
	c.Status(http.StatusNoContent)
}

// batchRequest is the body of POST /v1/admin/inquiries/batch.
type batchRequest struct {
	IDs []string `json:"ids"`
	models.InquiryUpdate
}

type batchItem struct {
	ID    utils.SixID `json:"id"`
	OK    bool        `json:"ok"`
	Error string      `json:"error,omitempty"`
}

// BatchUpdateInquiries handles POST /v1/admin/inquiries/batch. Each id is updated
// independently; the response lists every outcome.
func (h *RestInquiryHandler) BatchUpdateInquiries(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if len(req.IDs) == 0 {
		respondError(c, models.ErrEmptySelection, "")
		return
	}
	if req.InquiryUpdate.IsEmpty() {
		respondError(c, &models.ValidationError{Fields: []string{"read", "archived"}}, "")
		return
	}

	ids := make([]utils.SixID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := utils.ParseSixID(raw)
		if err != nil || id.IsZero() {
			respondError(c, &models.ValidationError{Fields: []string{"ids"}}, "")
			return
		}
		ids = append(ids, id)
	}

	results := h.store.BatchUpdateInquiries(c.Request.Context(), ids, req.InquiryUpdate)
	items := make([]batchItem, 0, len(results))
	succeeded := 0
	for _, r := range results {
		metrics.InquiryMutations.WithLabelValues("batch_update", metrics.Result(r.Err)).Inc()
		item := batchItem{ID: r.ID, OK: r.OK()}
		if r.OK() {
			succeeded++
		} else {
			item.Error = r.Err.Error()
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"results": items, "succeeded": succeeded})
}
