package handlers_test

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"

	"realty/site/internal/models"
	"realty/site/internal/utils"
)

// --- Mocks ---

// MockInquiryService implements services.IInquiryService
type MockInquiryService struct {
	mock.Mock
}

func (m *MockInquiryService) ListInquiries(ctx context.Context, filter models.InquiryFilter) ([]models.Inquiry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Inquiry), args.Error(1)
}

func (m *MockInquiryService) GetInquiry(ctx context.Context, id utils.SixID) (*models.Inquiry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Inquiry), args.Error(1)
}

func (m *MockInquiryService) CreateInquiry(ctx context.Context, input models.InquiryInput) (*models.Inquiry, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Inquiry), args.Error(1)
}

func (m *MockInquiryService) UpdateInquiry(ctx context.Context, id utils.SixID, update models.InquiryUpdate) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}

func (m *MockInquiryService) DeleteInquiry(ctx context.Context, id utils.SixID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockInquiryService) BatchUpdateInquiries(ctx context.Context, ids []utils.SixID, update models.InquiryUpdate) []models.BatchResult {
	args := m.Called(ctx, ids, update)
	return args.Get(0).([]models.BatchResult)
}

// MockProjectService implements services.IProjectService
type MockProjectService struct {
	mock.Mock
}

func (m *MockProjectService) ListProjects(ctx context.Context, featuredOnly bool) ([]models.Project, error) {
	args := m.Called(ctx, featuredOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Project), args.Error(1)
}

func (m *MockProjectService) GetProject(ctx context.Context, id utils.SixID) (*models.Project, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *MockProjectService) GetProjectBySlug(ctx context.Context, slug string) (*models.Project, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *MockProjectService) CreateProject(ctx context.Context, input models.ProjectInput) (*models.Project, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *MockProjectService) UpdateProject(ctx context.Context, id utils.SixID, input models.ProjectInput) (*models.Project, error) {
	args := m.Called(ctx, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *MockProjectService) DeleteProject(ctx context.Context, id utils.SixID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockProjectService) AddImage(ctx context.Context, id utils.SixID, imageKey string) error {
	args := m.Called(ctx, id, imageKey)
	return args.Error(0)
}

func (m *MockProjectService) RemoveImage(ctx context.Context, id utils.SixID, imageKey string) error {
	args := m.Called(ctx, id, imageKey)
	return args.Error(0)
}

// MockContentService implements services.IContentService
type MockContentService struct {
	mock.Mock
}

func (m *MockContentService) Load(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockContentService) GetAllPublic(ctx context.Context) (map[string]interface{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func (m *MockContentService) Get(ctx context.Context, key string) (*models.ContentEntry, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ContentEntry), args.Error(1)
}

func (m *MockContentService) GetString(ctx context.Context, key string, defaultValue string) string {
	return m.Called(ctx, key, defaultValue).String(0)
}

func (m *MockContentService) Set(ctx context.Context, key string, value interface{}, isPublic bool) error {
	return m.Called(ctx, key, value, isPublic).Error(0)
}

func (m *MockContentService) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockContentService) SubscribeToChanges(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockS3Storage implements storage.IS3Storage
type MockS3Storage struct {
	mock.Mock
}

func (m *MockS3Storage) GeneratePresignedPutURL(ctx context.Context, projectID, filename, contentType string) (string, string, error) {
	args := m.Called(ctx, projectID, filename, contentType)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockS3Storage) GetObject(ctx context.Context, key string) ([]byte, string, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

func (m *MockS3Storage) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	return m.Called(ctx, key, data, contentType).Error(0)
}

func (m *MockS3Storage) DeleteObject(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockS3Storage) PublicURL(key string) string {
	return m.Called(key).String(0)
}

// MockAsynqClient implements handlers.IAsynqClient
type MockAsynqClient struct {
	mock.Mock
}

func (m *MockAsynqClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	mockArgs := []interface{}{ctx, task}
	for _, opt := range opts {
		mockArgs = append(mockArgs, opt)
	}
	args := m.Called(mockArgs...)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}

// taskOfType matches an enqueued task by its type name.
func taskOfType(typename string) interface{} {
	return mock.MatchedBy(func(task *asynq.Task) bool { return task.Type() == typename })
}
