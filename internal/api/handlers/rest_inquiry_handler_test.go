package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"realty/site/internal/api/handlers"
	"realty/site/internal/config"
	"realty/site/internal/metrics"
	"realty/site/internal/models"
	"realty/site/internal/services"
	"realty/site/internal/tasks"
	"realty/site/internal/utils"
)

func inquiryRouter(cfg *config.Config, store services.IInquiryService, taskClient handlers.IAsynqClient) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := handlers.NewRestInquiryHandler(cfg, store, taskClient)
	r := gin.New()
	r.POST("/v1/inquiry", h.CreateInquiry)
	r.GET("/v1/admin/inquiries", h.ListInquiries)
	r.GET("/v1/admin/inquiries/:id", h.GetInquiry)
	r.PATCH("/v1/admin/inquiries/:id", h.UpdateInquiry)
	r.DELETE("/v1/admin/inquiries/:id", h.DeleteInquiry)
	r.POST("/v1/admin/inquiries/batch", h.BatchUpdateInquiries)
	return r
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

var anaCruz = models.InquiryInput{
	FirstName: "Ana", LastName: "Cruz", Email: "ana@x.com", Phone: "123", Country: "PH", Property: "Laya",
}

func TestRestInquiryHandler_CreateInquiry_Success(t *testing.T) {
	cfg := &config.Config{InquiryEmailMaxRetry: 3}
	store := services.NewMemoryInquiryService()
	taskClient := new(MockAsynqClient)
	taskClient.On("EnqueueContext", mock.Anything, taskOfType(tasks.TypeInquiryNotify)).Return(&asynq.TaskInfo{ID: "t1"}, nil)
	r := inquiryRouter(cfg, store, taskClient)
	createdBefore := testutil.ToFloat64(metrics.InquiriesCreated)

	w := doJSON(r, "POST", "/v1/inquiry", anaCruz)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.InquiriesCreated)-createdBefore)
	body := decodeBody(t, w)
	id, err := utils.ParseSixID(body["id"].(string))
	require.NoError(t, err)
	stored, err := store.GetInquiry(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Ana", stored.FirstName)
	assert.False(t, stored.Read)
	taskClient.AssertExpectations(t)
}

func TestRestInquiryHandler_CreateInquiry_SendsAckWhenEnabled(t *testing.T) {
	cfg := &config.Config{InquiryEmailMaxRetry: 3, InquirySendAck: true}
	taskClient := new(MockAsynqClient)
	taskClient.On("EnqueueContext", mock.Anything, taskOfType(tasks.TypeInquiryNotify)).Return(&asynq.TaskInfo{ID: "t1"}, nil)
	taskClient.On("EnqueueContext", mock.Anything, taskOfType(tasks.TypeInquiryAck)).Return(&asynq.TaskInfo{ID: "t2"}, nil)
	r := inquiryRouter(cfg, services.NewMemoryInquiryService(), taskClient)

	w := doJSON(r, "POST", "/v1/inquiry", anaCruz)

	assert.Equal(t, http.StatusCreated, w.Code)
	taskClient.AssertExpectations(t)
}

func TestRestInquiryHandler_CreateInquiry_EnqueueFailureStillCreated(t *testing.T) {
	cfg := &config.Config{}
	store := services.NewMemoryInquiryService()
	taskClient := new(MockAsynqClient)
	taskClient.On("EnqueueContext", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("redis down"))
	r := inquiryRouter(cfg, store, taskClient)

	w := doJSON(r, "POST", "/v1/inquiry", anaCruz)

	assert.Equal(t, http.StatusCreated, w.Code)
	all, err := store.ListInquiries(context.Background(), models.InquiryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRestInquiryHandler_CreateInquiry_ValidationListsFields(t *testing.T) {
	store := services.NewMemoryInquiryService()
	taskClient := new(MockAsynqClient)
	r := inquiryRouter(&config.Config{}, store, taskClient)

	input := anaCruz
	input.Email = ""
	input.Phone = "  "
	w := doJSON(r, "POST", "/v1/inquiry", input)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.ElementsMatch(t, []interface{}{"email", "phone"}, body["fields"])
	taskClient.AssertNotCalled(t, "EnqueueContext", mock.Anything, mock.Anything)
	all, _ := store.ListInquiries(context.Background(), models.InquiryFilter{})
	assert.Empty(t, all)
}

func TestRestInquiryHandler_CreateInquiry_StoreUnavailable(t *testing.T) {
	store := new(MockInquiryService)
	store.On("CreateInquiry", mock.Anything, anaCruz).Return(nil, fmt.Errorf("insert: %w", models.ErrStoreUnavailable))
	r := inquiryRouter(&config.Config{}, store, nil)

	w := doJSON(r, "POST", "/v1/inquiry", anaCruz)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	store.AssertExpectations(t)
}

func TestRestInquiryHandler_ListInquiries_FiltersByArchived(t *testing.T) {
	store := services.NewMemoryInquiryService()
	ctx := context.Background()
	a, err := store.CreateInquiry(ctx, anaCruz)
	require.NoError(t, err)
	_, err = store.CreateInquiry(ctx, anaCruz)
	require.NoError(t, err)
	require.NoError(t, store.UpdateInquiry(ctx, a.ID, models.InquiryUpdate{Archived: models.BoolPtr(true)}))
	r := inquiryRouter(&config.Config{}, store, nil)

	w := doJSON(r, "GET", "/v1/admin/inquiries?archived=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Inquiries []models.Inquiry `json:"inquiries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Inquiries, 1)
	assert.Equal(t, a.ID, resp.Inquiries[0].ID)

	w = doJSON(r, "GET", "/v1/admin/inquiries", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Inquiries, 2)

	w = doJSON(r, "GET", "/v1/admin/inquiries?archived=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRestInquiryHandler_UpdateInquiry(t *testing.T) {
	store := services.NewMemoryInquiryService()
	inq, err := store.CreateInquiry(context.Background(), anaCruz)
	require.NoError(t, err)
	r := inquiryRouter(&config.Config{}, store, nil)

	w := doJSON(r, "PATCH", "/v1/admin/inquiries/"+inq.ID.String(), map[string]bool{"read": true})
	assert.Equal(t, http.StatusOK, w.Code)
	got, _ := store.GetInquiry(context.Background(), inq.ID)
	assert.True(t, got.Read)
	assert.False(t, got.Archived)

	w = doJSON(r, "PATCH", "/v1/admin/inquiries/"+inq.ID.String(), map[string]bool{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, "PATCH", "/v1/admin/inquiries/"+utils.NewSixID().String(), map[string]bool{"read": true})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, "PATCH", "/v1/admin/inquiries/bad!id", map[string]bool{"read": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRestInquiryHandler_DeleteRequiresArchived(t *testing.T) {
	store := services.NewMemoryInquiryService()
	ctx := context.Background()
	inq, err := store.CreateInquiry(ctx, anaCruz)
	require.NoError(t, err)
	r := inquiryRouter(&config.Config{}, store, nil)
	path := "/v1/admin/inquiries/" + inq.ID.String()

	w := doJSON(r, "DELETE", path, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	_, err = store.GetInquiry(ctx, inq.ID)
	require.NoError(t, err)

	require.NoError(t, store.UpdateInquiry(ctx, inq.ID, models.InquiryUpdate{Archived: models.BoolPtr(true)}))
	w = doJSON(r, "DELETE", path, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(r, "DELETE", path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRestInquiryHandler_BatchUpdate_ReportsEachID(t *testing.T) {
	store := services.NewMemoryInquiryService()
	ctx := context.Background()
	a, err := store.CreateInquiry(ctx, anaCruz)
	require.NoError(t, err)
	missing := utils.NewSixID()
	r := inquiryRouter(&config.Config{}, store, nil)

	w := doJSON(r, "POST", "/v1/admin/inquiries/batch", map[string]interface{}{
		"ids":      []string{a.ID.String(), missing.String()},
		"archived": true,
	})

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(1), body["succeeded"])
	results := body["results"].([]interface{})
	require.Len(t, results, 2)
	assert.Equal(t, true, results[0].(map[string]interface{})["ok"])
	assert.Equal(t, false, results[1].(map[string]interface{})["ok"])

	got, _ := store.GetInquiry(ctx, a.ID)
	assert.True(t, got.Archived)
}

func TestRestInquiryHandler_BatchUpdate_Rejects(t *testing.T) {
	r := inquiryRouter(&config.Config{}, services.NewMemoryInquiryService(), nil)

	w := doJSON(r, "POST", "/v1/admin/inquiries/batch", map[string]interface{}{"ids": []string{}, "archived": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, "POST", "/v1/admin/inquiries/batch", map[string]interface{}{"ids": []string{utils.NewSixID().String()}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, "POST", "/v1/admin/inquiries/batch", map[string]interface{}{"ids": []string{"???"}, "read": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
