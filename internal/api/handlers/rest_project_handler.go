package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"realty/site/internal/config"
	"realty/site/internal/models"
	"realty/site/internal/services"
	"realty/site/internal/storage"
	"realty/site/internal/tasks"
)

// RestProjectHandler handles REST requests for showcased projects and their galleries.
type RestProjectHandler struct {
	cfg            *config.Config
	projectService services.IProjectService
	storage        storage.IS3Storage
	taskClient     IAsynqClient
}

// NewRestProjectHandler creates a new RestProjectHandler. Without storage or a task
// client the image endpoints answer 503.
func NewRestProjectHandler(cfg *config.Config, projectService services.IProjectService, s3 storage.IS3Storage, taskClient IAsynqClient) *RestProjectHandler {
	return &RestProjectHandler{cfg: cfg, projectService: projectService, storage: s3, taskClient: taskClient}
}

// projectResponse adds resolved gallery URLs to a project.
type projectResponse struct {
	*models.Project
	ImageURLs []string `json:"imageUrls"`
}

func (h *RestProjectHandler) toResponse(p *models.Project) projectResponse {
	urls := make([]string, 0, len(p.Images))
	for _, key := range p.Images {
		urls = append(urls, storage.PublicURL(h.cfg.ImageBaseS3URL, key))
	}
	return projectResponse{Project: p, ImageURLs: urls}
}

// ListProjects handles GET /v1/projects?featured=true
func (h *RestProjectHandler) ListProjects(c *gin.Context) {
	featuredOnly := c.Query("featured") == "true"
	projects, err := h.projectService.ListProjects(c.Request.Context(), featuredOnly)
	if err != nil {
		respondError(c, err, "Projects not found")
		return
	}
	out := make([]projectResponse, 0, len(projects))
	for i := range projects {
		out = append(out, h.toResponse(&projects[i]))
	}
	c.JSON(http.StatusOK, gin.H{"projects": out})
}

// GetProjectBySlug handles GET /v1/projects/:slug
func (h *RestProjectHandler) GetProjectBySlug(c *gin.Context) {
	p, err := h.projectService.GetProjectBySlug(c.Request.Context(), strings.ToLower(c.Param("slug")))
	if err != nil {
		respondError(c, err, "Project not found")
		return
	}
	c.JSON(http.StatusOK, h.toResponse(p))
}

// CreateProject handles POST /v1/admin/projects
func (h *RestProjectHandler) CreateProject(c *gin.Context) {
	var input models.ProjectInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	p, err := h.projectService.CreateProject(c.Request.Context(), input)
	if err != nil {
		respondError(c, err, "Project not found")
		return
	}
	c.JSON(http.StatusCreated, h.toResponse(p))
}

// UpdateProject handles PATCH /v1/admin/projects/:id
func (h *RestProjectHandler) UpdateProject(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var input models.ProjectInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	p, err := h.projectService.UpdateProject(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err, "Project not found")
		return
	}
	c.JSON(http.StatusOK, h.toResponse(p))
}

// DeleteProject handles DELETE /v1/admin/projects/:id. Gallery objects are removed best effort.
func (h *RestProjectHandler) DeleteProject(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	p, err := h.projectService.GetProject(ctx, id)
	if err != nil {
		respondError(c, err, "Project not found")
		return
	}
	if err := h.projectService.DeleteProject(ctx, id); err != nil {
		respondError(c, err, "Project not found")
		return
	}
	if h.storage != nil {
		for _, key := range p.Images {
			if err := h.storage.DeleteObject(ctx, key); err != nil {
				log.Printf("WARNING: Failed to delete image %s of project %s: %v", key, id, err)
			}
		}
	}
	c.Status(http.StatusNoContent)
}

type uploadURLRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"contentType" binding:"required"`
}

// GetUploadURL handles POST /v1/admin/projects/:id/images/upload-url. The client PUTs the
// file to the returned URL, then confirms it with ConfirmImageUpload.
func (h *RestProjectHandler) GetUploadURL(c *gin.Context) {
	if h.storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Image storage is not configured"})
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filename and contentType are required"})
		return
	}
	ctx := c.Request.Context()
	if _, err := h.projectService.GetProject(ctx, id); err != nil {
		respondError(c, err, "Project not found")
		return
	}

	url, key, err := h.storage.GeneratePresignedPutURL(ctx, id.String(), req.Filename, req.ContentType)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploadUrl": url, "objectKey": key})
}

type confirmUploadRequest struct {
	ObjectKey string `json:"objectKey" binding:"required"`
}

// ConfirmImageUpload handles POST /v1/admin/projects/:id/images. The image is attached
// by the image worker once it has been normalised.
func (h *RestProjectHandler) ConfirmImageUpload(c *gin.Context) {
	if h.storage == nil || h.taskClient == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Image processing is not available"})
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req confirmUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "objectKey is required"})
		return
	}
	// Keys are issued per project; anything else was not presigned for this one.
	if !strings.HasPrefix(req.ObjectKey, "projects/"+id.String()+"/") {
		respondError(c, &models.ValidationError{Fields: []string{"objectKey"}}, "")
		return
	}

	task, err := tasks.NewImageProcessTask(id, req.ObjectKey)
	if err != nil {
		respondError(c, err, "")
		return
	}
	info, err := h.taskClient.EnqueueContext(c.Request.Context(), task)
	if err != nil {
		log.Printf("ERROR: Failed to enqueue image task for %s: %v", req.ObjectKey, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to queue image processing"})
		return
	}
	log.Printf("Enqueued image task %s for project %s", info.ID, id)
	c.JSON(http.StatusAccepted, gin.H{"status": "processing", "objectKey": req.ObjectKey})
}

// DeleteImage handles DELETE /v1/admin/projects/:id/images?key=...
func (h *RestProjectHandler) DeleteImage(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	key := c.Query("key")
	if key == "" {
		respondError(c, &models.ValidationError{Fields: []string{"key"}}, "")
		return
	}
	ctx := c.Request.Context()
	if err := h.projectService.RemoveImage(ctx, id, key); err != nil {
		respondError(c, err, "Project not found")
		return
	}
	if h.storage != nil {
		if err := h.storage.DeleteObject(ctx, key); err != nil {
			log.Printf("WARNING: Failed to delete image object %s: %v", key, err)
		}
	}
	c.Status(http.StatusNoContent)
}
