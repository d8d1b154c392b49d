package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realty/site/internal/models"
	"realty/site/internal/utils"
)

func validInput() models.InquiryInput {
	return models.InquiryInput{
		FirstName: "Ana",
		LastName:  "Cruz",
		Email:     "ana@x.com",
		Phone:     "123",
		Country:   "PH",
		Property:  "Laya",
	}
}

// storeFactories lets the same contract tests run against every driver available.
func storeFactories(t *testing.T) map[string]func(t *testing.T) IInquiryStore {
	return map[string]func(t *testing.T) IInquiryStore{
		"memory": func(t *testing.T) IInquiryStore {
			return NewMemoryInquiryService()
		},
		"mongo": func(t *testing.T) IInquiryStore {
			db := utils.SetupTestDB(t, "testdb_inquiry_service", inquiriesCollection)
			return NewInquiryService(db, NewLocalChangeBus(), 0)
		},
	}
}

func TestInquiryStore_CreateAndList(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			svc := factory(t)
			ctx := context.Background()

			before := time.Now().Add(-time.Second)
			created, err := svc.CreateInquiry(ctx, validInput())
			require.NoError(t, err)
			require.False(t, created.ID.IsZero())

			all, err := svc.ListInquiries(ctx, models.InquiryFilter{})
			require.NoError(t, err)
			count := 0
			for _, inq := range all {
				if inq.ID == created.ID {
					count++
					assert.False(t, inq.Archived)
					assert.False(t, inq.Read)
					assert.Equal(t, "", inq.Message)
					require.NotNil(t, inq.CreatedAt)
					// Mongo stores millisecond precision; allow a second of clock skew.
					assert.False(t, inq.CreatedAt.Before(before))
				}
			}
			assert.Equal(t, 1, count)
			assert.Equal(t, created.ID, all[0].ID, "newest inquiry is listed first")
		})
	}
}

func TestInquiryStore_CreateRejectsMissingFields(t *testing.T) {
	blanks := map[string]func(*models.InquiryInput){
		"firstName": func(in *models.InquiryInput) { in.FirstName = "" },
		"lastName":  func(in *models.InquiryInput) { in.LastName = "  " },
		"email":     func(in *models.InquiryInput) { in.Email = "" },
		"phone":     func(in *models.InquiryInput) { in.Phone = "" },
		"country":   func(in *models.InquiryInput) { in.Country = "\t" },
		"property":  func(in *models.InquiryInput) { in.Property = "" },
	}
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			svc := factory(t)
			ctx := context.Background()
			for field, blank := range blanks {
				input := validInput()
				blank(&input)
				_, err := svc.CreateInquiry(ctx, input)
				require.ErrorIs(t, err, models.ErrValidation, field)
				var verr *models.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, []string{field}, verr.Fields)
			}
			all, err := svc.ListInquiries(ctx, models.InquiryFilter{})
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestInquiryStore_UpdateDeleteAndFilters(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			svc := factory(t)
			ctx := context.Background()

			a, err := svc.CreateInquiry(ctx, validInput())
			require.NoError(t, err)
			b, err := svc.CreateInquiry(ctx, validInput())
			require.NoError(t, err)

			require.NoError(t, svc.UpdateInquiry(ctx, a.ID, models.InquiryUpdate{Archived: models.BoolPtr(true)}))
			// A second merge must not reset the first.
			require.NoError(t, svc.UpdateInquiry(ctx, a.ID, models.InquiryUpdate{Read: models.BoolPtr(true)}))

			got, err := svc.GetInquiry(ctx, a.ID)
			require.NoError(t, err)
			assert.True(t, got.Archived)
			assert.True(t, got.Read)
			assert.Equal(t, "Ana", got.FirstName)

			archived, err := svc.ListInquiries(ctx, models.InquiryFilter{Archived: models.BoolPtr(true)})
			require.NoError(t, err)
			require.Len(t, archived, 1)
			assert.Equal(t, a.ID, archived[0].ID)

			active, err := svc.ListInquiries(ctx, models.InquiryFilter{Archived: models.BoolPtr(false)})
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.Equal(t, b.ID, active[0].ID)

			err = svc.UpdateInquiry(ctx, utils.NewSixID(), models.InquiryUpdate{Read: models.BoolPtr(true)})
			assert.ErrorIs(t, err, models.ErrNotFound)

			err = svc.UpdateInquiry(ctx, a.ID, models.InquiryUpdate{})
			assert.ErrorIs(t, err, models.ErrValidation)

			require.NoError(t, svc.DeleteInquiry(ctx, a.ID))
			assert.ErrorIs(t, svc.DeleteInquiry(ctx, a.ID), models.ErrNotFound)
			_, err = svc.GetInquiry(ctx, a.ID)
			assert.ErrorIs(t, err, models.ErrNotFound)
		})
	}
}

func TestInquiryStore_BatchUpdateIsNotAtomic(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			svc := factory(t)
			ctx := context.Background()

			a, err := svc.CreateInquiry(ctx, validInput())
			require.NoError(t, err)
			b, err := svc.CreateInquiry(ctx, validInput())
			require.NoError(t, err)
			missing := utils.NewSixID()

			results := svc.BatchUpdateInquiries(ctx, []utils.SixID{a.ID, missing, b.ID}, models.InquiryUpdate{Archived: models.BoolPtr(true)})
			require.Len(t, results, 3)
			assert.True(t, results[0].OK())
			assert.ErrorIs(t, results[1].Err, models.ErrNotFound)
			assert.True(t, results[2].OK())

			archived, err := svc.ListInquiries(ctx, models.InquiryFilter{Archived: models.BoolPtr(true)})
			require.NoError(t, err)
			assert.Len(t, archived, 2)
		})
	}
}

func TestMemoryInquiryService_OrdersByCreatedAtThenInsertion(t *testing.T) {
	fixed := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)
	svc := NewMemoryInquiryServiceWithClock(func() time.Time { return fixed })
	ctx := context.Background()

	first, err := svc.CreateInquiry(ctx, validInput())
	require.NoError(t, err)
	second, err := svc.CreateInquiry(ctx, validInput())
	require.NoError(t, err)

	all, err := svc.ListInquiries(ctx, models.InquiryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)
}

func TestMemoryInquiryService_ClockNeverRunsBackwards(t *testing.T) {
	times := []time.Time{
		time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC),
	}
	var mu sync.Mutex
	svc := NewMemoryInquiryServiceWithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		next := times[0]
		times = times[1:]
		return next
	})
	ctx := context.Background()

	first, err := svc.CreateInquiry(ctx, validInput())
	require.NoError(t, err)
	second, err := svc.CreateInquiry(ctx, validInput())
	require.NoError(t, err)
	assert.Equal(t, *first.CreatedAt, *second.CreatedAt)
}

func TestInquiryStore_ScenarioAnaCruz(t *testing.T) {
	svc := NewMemoryInquiryService()
	ctx := context.Background()

	_, err := svc.CreateInquiry(ctx, models.InquiryInput{
		FirstName: "Older", LastName: "Lead", Email: "o@x.com", Phone: "1", Country: "PH", Property: "Solana",
	})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	created, err := svc.CreateInquiry(ctx, validInput())
	require.NoError(t, err)

	all, err := svc.ListInquiries(ctx, models.InquiryFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, created.ID, all[0].ID)
	assert.False(t, all[0].Read)
}

func TestSortInquiriesPlacesMissingTimestampsLast(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	a := models.Inquiry{ID: utils.NewSixID()}
	b := models.Inquiry{ID: utils.NewSixID(), CreatedAt: &t1}
	c := models.Inquiry{ID: utils.NewSixID()}
	d := models.Inquiry{ID: utils.NewSixID(), CreatedAt: &t2}

	list := []models.Inquiry{a, b, c, d}
	models.SortInquiries(list)
	assert.Equal(t, []utils.SixID{d.ID, b.ID, a.ID, c.ID}, []utils.SixID{list[0].ID, list[1].ID, list[2].ID, list[3].ID})
}
