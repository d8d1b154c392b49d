package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realty/site/internal/db"
	"realty/site/internal/models"
	"realty/site/internal/utils"
)

func strPtr(s string) *string { return &s }

func setupProjectService(t *testing.T) IProjectService {
	database := utils.SetupTestDB(t, "testdb_project_service", projectsCollection)
	require.NoError(t, db.EnsureIndexes(context.Background(), database))
	return NewProjectService(database)
}

func TestProjectService_CRUD(t *testing.T) {
	svc := setupProjectService(t)
	ctx := context.Background()

	created, err := svc.CreateProject(ctx, models.ProjectInput{Name: strPtr("  Laya by the Bay "), Location: strPtr("Cebu")})
	require.NoError(t, err)
	assert.False(t, created.ID.IsZero())
	assert.Equal(t, "laya-by-the-bay", created.Slug)
	assert.Equal(t, "Laya by the Bay", created.Name)
	assert.Empty(t, created.Images)

	bySlug, err := svc.GetProjectBySlug(ctx, "laya-by-the-bay")
	require.NoError(t, err)
	assert.Equal(t, created.ID, bySlug.ID)

	updated, err := svc.UpdateProject(ctx, created.ID, models.ProjectInput{Featured: models.BoolPtr(true), Description: strPtr("Seaside")})
	require.NoError(t, err)
	assert.True(t, updated.Featured)
	assert.Equal(t, "Seaside", updated.Description)
	assert.Equal(t, "Cebu", updated.Location)

	require.NoError(t, svc.AddImage(ctx, created.ID, "projects/a.jpg"))
	require.NoError(t, svc.AddImage(ctx, created.ID, "projects/a.jpg"))
	got, err := svc.GetProject(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"projects/a.jpg"}, got.Images)
	require.NoError(t, svc.RemoveImage(ctx, created.ID, "projects/a.jpg"))

	_, err = svc.CreateProject(ctx, models.ProjectInput{Name: strPtr("Solana")})
	require.NoError(t, err)
	list, err := svc.ListProjects(ctx, false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, created.ID, list[0].ID, "featured first")
	featured, err := svc.ListProjects(ctx, true)
	require.NoError(t, err)
	assert.Len(t, featured, 1)

	require.NoError(t, svc.DeleteProject(ctx, created.ID))
	assert.ErrorIs(t, svc.DeleteProject(ctx, created.ID), models.ErrNotFound)
	_, err = svc.GetProject(ctx, created.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, svc.AddImage(ctx, created.ID, "x.jpg"), models.ErrNotFound)
}

func TestProjectService_SlugConflictsAndValidation(t *testing.T) {
	svc := setupProjectService(t)
	ctx := context.Background()

	_, err := svc.CreateProject(ctx, models.ProjectInput{Name: strPtr("Solana")})
	require.NoError(t, err)
	_, err = svc.CreateProject(ctx, models.ProjectInput{Name: strPtr("Solana!")})
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = svc.CreateProject(ctx, models.ProjectInput{Name: strPtr("  ")})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = svc.CreateProject(ctx, models.ProjectInput{Name: strPtr("X"), Slug: strPtr("Not A Slug")})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.UpdateProject(ctx, utils.NewSixID(), models.ProjectInput{})
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = svc.UpdateProject(ctx, utils.NewSixID(), models.ProjectInput{Location: strPtr("Davao")})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "laya-by-the-bay", models.Slugify("Laya by the Bay"))
	assert.Equal(t, "the-residences-2", models.Slugify("  The Residences #2! "))
	assert.Equal(t, "", models.Slugify("!!!"))
}
