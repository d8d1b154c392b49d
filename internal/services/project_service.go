package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"realty/site/internal/db"
	"realty/site/internal/models"
	"realty/site/internal/utils"
)

// IProjectService defines the interface for project showcase operations.
type IProjectService interface {
	ListProjects(ctx context.Context, featuredOnly bool) ([]models.Project, error)
	GetProject(ctx context.Context, id utils.SixID) (*models.Project, error)
	GetProjectBySlug(ctx context.Context, slug string) (*models.Project, error)
	CreateProject(ctx context.Context, input models.ProjectInput) (*models.Project, error)
	UpdateProject(ctx context.Context, id utils.SixID, input models.ProjectInput) (*models.Project, error)
	DeleteProject(ctx context.Context, id utils.SixID) error
	AddImage(ctx context.Context, id utils.SixID, imageKey string) error
	RemoveImage(ctx context.Context, id utils.SixID, imageKey string) error
}

const projectsCollection = "projects"

// projectService implements IProjectService on MongoDB.
type projectService struct {
	db  *mongo.Database
	now func() time.Time
}

// NewProjectService creates a new ProjectService.
func NewProjectService(database *mongo.Database) IProjectService {
	return &projectService{db: database, now: func() time.Time { return time.Now().UTC() }}
}

func (s *projectService) collection() *mongo.Collection {
	return s.db.Collection(projectsCollection)
}

// translateProjectError maps a unique slug violation to ErrConflict.
func translateProjectError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("slug %w", models.ErrConflict)
	}
	return db.TranslateError(err)
}

// ListProjects returns projects, featured first, then newest.
func (s *projectService) ListProjects(ctx context.Context, featuredOnly bool) ([]models.Project, error) {
	filter := bson.M{}
	if featuredOnly {
		filter["featured"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "featured", Value: -1}, {Key: "created_at", Value: -1}})
	cursor, err := s.collection().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", db.TranslateError(err))
	}
	defer cursor.Close(ctx)

	projects := []models.Project{}
	if err := cursor.All(ctx, &projects); err != nil {
		return nil, fmt.Errorf("failed to decode projects: %w", err)
	}
	return projects, nil
}

func (s *projectService) findOne(ctx context.Context, filter bson.M) (*models.Project, error) {
	var project models.Project
	if err := s.collection().FindOne(ctx, filter).Decode(&project); err != nil {
		return nil, db.TranslateError(err)
	}
	return &project, nil
}

// GetProject finds a project by id.
func (s *projectService) GetProject(ctx context.Context, id utils.SixID) (*models.Project, error) {
	p, err := s.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", id, err)
	}
	return p, nil
}

// GetProjectBySlug finds a project by its URL slug.
func (s *projectService) GetProjectBySlug(ctx context.Context, slug string) (*models.Project, error) {
	p, err := s.findOne(ctx, bson.M{"slug": slug})
	if err != nil {
		return nil, fmt.Errorf("project %q: %w", slug, err)
	}
	return p, nil
}

// CreateProject inserts a new project. The slug defaults to the slugified name.
func (s *projectService) CreateProject(ctx context.Context, input models.ProjectInput) (*models.Project, error) {
	if err := input.ValidateForCreate(); err != nil {
		return nil, err
	}
	now := s.now()
	var project *models.Project

	operation := func() error {
		project = &models.Project{Images: []string{}, CreatedAt: now, UpdatedAt: now}
		project.GenID()
		input.Apply(project)
		_, insertErr := s.collection().InsertOne(ctx, project)
		return insertErr
	}
	// A duplicate slug is not retried: only a colliding _id gets a fresh id.
	err := db.WithRetries(operation, db.DefaultMaxRetries, isDuplicateIDError)
	if err != nil {
		return nil, fmt.Errorf("failed to insert project %q: %w", project.Slug, translateProjectError(err))
	}
	log.Printf("Created project %s (%s)", project.ID, project.Slug)
	return project, nil
}

// isDuplicateIDError reports a duplicate key on _id rather than on the slug index.
func isDuplicateIDError(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return !strings.Contains(e.Message, "slug_1")
			}
		}
	}
	return false
}

// UpdateProject merges the set fields of input and returns the updated project.
func (s *projectService) UpdateProject(ctx context.Context, id utils.SixID, input models.ProjectInput) (*models.Project, error) {
	if err := input.ValidateForUpdate(); err != nil {
		return nil, err
	}
	set := bson.M(input.SetFields())
	set["updated_at"] = s.now()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Project
	err := s.collection().FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&updated)
	if err != nil {
		return nil, fmt.Errorf("failed to update project %s: %w", id, translateProjectError(err))
	}
	return &updated, nil
}

// DeleteProject removes a project. Its images are left in S3.
func (s *projectService) DeleteProject(ctx context.Context, id utils.SixID) error {
	res, err := s.collection().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", id, db.TranslateError(err))
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("project %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// AddImage appends a processed image key; adding the same key twice is a no-op.
func (s *projectService) AddImage(ctx context.Context, id utils.SixID, imageKey string) error {
	return s.updateImages(ctx, id, bson.M{"$addToSet": bson.M{"images": imageKey}})
}

// RemoveImage drops an image key from the gallery.
func (s *projectService) RemoveImage(ctx context.Context, id utils.SixID, imageKey string) error {
	return s.updateImages(ctx, id, bson.M{"$pull": bson.M{"images": imageKey}})
}

func (s *projectService) updateImages(ctx context.Context, id utils.SixID, update bson.M) error {
	update["$set"] = bson.M{"updated_at": s.now()}
	res, err := s.collection().UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update images of project %s: %w", id, db.TranslateError(err))
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("project %s: %w", id, models.ErrNotFound)
	}
	return nil
}
