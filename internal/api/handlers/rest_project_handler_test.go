package handlers_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"realty/site/internal/api/handlers"
	"realty/site/internal/config"
	"realty/site/internal/models"
	"realty/site/internal/storage"
	"realty/site/internal/tasks"
	"realty/site/internal/utils"
)

func projectRouter(svc *MockProjectService, s3 storage.IS3Storage, taskClient handlers.IAsynqClient) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{ImageBaseS3URL: "https://cdn.example.com"}
	h := handlers.NewRestProjectHandler(cfg, svc, s3, taskClient)
	r := gin.New()
	r.GET("/v1/projects", h.ListProjects)
	r.GET("/v1/projects/:slug", h.GetProjectBySlug)
	r.POST("/v1/admin/projects", h.CreateProject)
	r.PATCH("/v1/admin/projects/:id", h.UpdateProject)
	r.DELETE("/v1/admin/projects/:id", h.DeleteProject)
	r.POST("/v1/admin/projects/:id/images/upload-url", h.GetUploadURL)
	r.POST("/v1/admin/projects/:id/images", h.ConfirmImageUpload)
	r.DELETE("/v1/admin/projects/:id/images", h.DeleteImage)
	return r
}

func sampleProject() *models.Project {
	p := &models.Project{Name: "Laya Residences", Slug: "laya-residences", Images: []string{"projects/x/a.jpg"}}
	p.ID = utils.NewSixID()
	return p
}

func TestRestProjectHandler_ListProjects(t *testing.T) {
	svc := new(MockProjectService)
	p := sampleProject()
	svc.On("ListProjects", mock.Anything, true).Return([]models.Project{*p}, nil)
	r := projectRouter(svc, nil, nil)

	w := doJSON(r, "GET", "/v1/projects?featured=true", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	projects := body["projects"].([]interface{})
	require.Len(t, projects, 1)
	first := projects[0].(map[string]interface{})
	assert.Equal(t, "laya-residences", first["slug"])
	assert.Equal(t, []interface{}{"https://cdn.example.com/projects/x/a.jpg"}, first["imageUrls"])
	svc.AssertExpectations(t)
}

func TestRestProjectHandler_GetProjectBySlug_NotFound(t *testing.T) {
	svc := new(MockProjectService)
	svc.On("GetProjectBySlug", mock.Anything, "nowhere").Return(nil, fmt.Errorf("project: %w", models.ErrNotFound))
	r := projectRouter(svc, nil, nil)

	w := doJSON(r, "GET", "/v1/projects/NOWHERE", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Project not found", decodeBody(t, w)["error"])
}

func TestRestProjectHandler_CreateProject_Conflict(t *testing.T) {
	svc := new(MockProjectService)
	svc.On("CreateProject", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("slug %w", models.ErrConflict))
	r := projectRouter(svc, nil, nil)

	w := doJSON(r, "POST", "/v1/admin/projects", map[string]string{"name": "Laya"})

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRestProjectHandler_CreateProject_Validation(t *testing.T) {
	svc := new(MockProjectService)
	svc.On("CreateProject", mock.Anything, mock.Anything).Return(nil, &models.ValidationError{Fields: []string{"name"}})
	r := projectRouter(svc, nil, nil)

	w := doJSON(r, "POST", "/v1/admin/projects", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []interface{}{"name"}, decodeBody(t, w)["fields"])
}

func TestRestProjectHandler_DeleteProject_RemovesImages(t *testing.T) {
	svc := new(MockProjectService)
	s3 := new(MockS3Storage)
	p := sampleProject()
	svc.On("GetProject", mock.Anything, p.ID).Return(p, nil)
	svc.On("DeleteProject", mock.Anything, p.ID).Return(nil)
	s3.On("DeleteObject", mock.Anything, "projects/x/a.jpg").Return(nil)
	r := projectRouter(svc, s3, nil)

	w := doJSON(r, "DELETE", "/v1/admin/projects/"+p.ID.String(), nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	svc.AssertExpectations(t)
	s3.AssertExpectations(t)
}

func TestRestProjectHandler_GetUploadURL(t *testing.T) {
	svc := new(MockProjectService)
	s3 := new(MockS3Storage)
	p := sampleProject()
	key := "projects/" + p.ID.String() + "/uuid_photo.jpg"
	svc.On("GetProject", mock.Anything, p.ID).Return(p, nil)
	s3.On("GeneratePresignedPutURL", mock.Anything, p.ID.String(), "photo.jpg", "image/jpeg").Return("https://signed", key, nil)
	r := projectRouter(svc, s3, nil)

	w := doJSON(r, "POST", "/v1/admin/projects/"+p.ID.String()+"/images/upload-url",
		map[string]string{"filename": "photo.jpg", "contentType": "image/jpeg"})

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "https://signed", body["uploadUrl"])
	assert.Equal(t, key, body["objectKey"])
}

func TestRestProjectHandler_GetUploadURL_RejectsType(t *testing.T) {
	svc := new(MockProjectService)
	s3 := new(MockS3Storage)
	p := sampleProject()
	svc.On("GetProject", mock.Anything, p.ID).Return(p, nil)
	s3.On("GeneratePresignedPutURL", mock.Anything, p.ID.String(), "doc.pdf", "application/pdf").
		Return("", "", &models.ValidationError{Fields: []string{"contentType"}})
	r := projectRouter(svc, s3, nil)

	w := doJSON(r, "POST", "/v1/admin/projects/"+p.ID.String()+"/images/upload-url",
		map[string]string{"filename": "doc.pdf", "contentType": "application/pdf"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRestProjectHandler_GetUploadURL_NoStorage(t *testing.T) {
	r := projectRouter(new(MockProjectService), nil, nil)
	w := doJSON(r, "POST", "/v1/admin/projects/"+utils.NewSixID().String()+"/images/upload-url",
		map[string]string{"filename": "photo.jpg", "contentType": "image/jpeg"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRestProjectHandler_ConfirmImageUpload(t *testing.T) {
	svc := new(MockProjectService)
	s3 := new(MockS3Storage)
	taskClient := new(MockAsynqClient)
	id := utils.NewSixID()
	key := "projects/" + id.String() + "/uuid_photo.jpg"
	taskClient.On("EnqueueContext", mock.Anything, taskOfType(tasks.TypeImageProcess)).Return(&asynq.TaskInfo{ID: "img1"}, nil)
	r := projectRouter(svc, s3, taskClient)

	w := doJSON(r, "POST", "/v1/admin/projects/"+id.String()+"/images", map[string]string{"objectKey": key})
	assert.Equal(t, http.StatusAccepted, w.Code)
	taskClient.AssertExpectations(t)

	other := "projects/" + utils.NewSixID().String() + "/uuid_photo.jpg"
	w = doJSON(r, "POST", "/v1/admin/projects/"+id.String()+"/images", map[string]string{"objectKey": other})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	taskClient.AssertNumberOfCalls(t, "EnqueueContext", 1)
}

func TestRestProjectHandler_DeleteImage(t *testing.T) {
	svc := new(MockProjectService)
	s3 := new(MockS3Storage)
	id := utils.NewSixID()
	key := "projects/" + id.String() + "/uuid_photo.jpg"
	svc.On("RemoveImage", mock.Anything, id, key).Return(nil)
	s3.On("DeleteObject", mock.Anything, key).Return(fmt.Errorf("s3 flaked"))
	r := projectRouter(svc, s3, nil)

	w := doJSON(r, "DELETE", "/v1/admin/projects/"+id.String()+"/images?key="+key, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(r, "DELETE", "/v1/admin/projects/"+id.String()+"/images", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}
