package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"realty/site/internal/models"
	"realty/site/internal/utils"
)

// IAsynqClient defines the interface for the Asynq client methods used by the handlers.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// respondError maps the application error kinds onto HTTP responses.
func respondError(c *gin.Context, err error, notFoundMsg string) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid fields", "fields": verr.Fields})
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrEmptySelection):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundMsg})
	case errors.Is(err, models.ErrPolicy), errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrStoreUnavailable):
		log.Printf("Store unavailable for %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
	default:
		log.Printf("Internal error for %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// parseIDParam reads a SixID path parameter, replying 400 when it is malformed.
func parseIDParam(c *gin.Context, name string) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.Param(name))
	if err != nil || id.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID format"})
		return utils.SixID{}, false
	}
	return id, true
}
