package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realty/site/internal/models"
	"realty/site/internal/utils"
)

type snapshotRecorder struct {
	mu        sync.Mutex
	snapshots [][]models.Inquiry
}

func (r *snapshotRecorder) record(s []models.Inquiry) {
	r.mu.Lock()
	r.snapshots = append(r.snapshots, s)
	r.mu.Unlock()
}

func (r *snapshotRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func (r *snapshotRecorder) latest() []models.Inquiry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

func TestSnapshotFeed_DeliversInitialAndChanges(t *testing.T) {
	svc := NewMemoryInquiryService()
	ctx := context.Background()
	_, err := svc.CreateInquiry(ctx, validInput())
	require.NoError(t, err)

	rec := &snapshotRecorder{}
	unsubscribe, err := svc.Subscribe(ctx, models.InquiryFilter{}, rec.record)
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool { return len(rec.latest()) == 1 }, time.Second, 5*time.Millisecond)

	created, err := svc.CreateInquiry(ctx, validInput())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		latest := rec.latest()
		return len(latest) == 2 && latest[0].ID == created.ID
	}, time.Second, 5*time.Millisecond)
}

func TestSnapshotFeed_RespectsFilter(t *testing.T) {
	svc := NewMemoryInquiryService()
	ctx := context.Background()
	a, err := svc.CreateInquiry(ctx, validInput())
	require.NoError(t, err)

	rec := &snapshotRecorder{}
	unsubscribe, err := svc.Subscribe(ctx, models.InquiryFilter{Archived: models.BoolPtr(false)}, rec.record)
	require.NoError(t, err)
	defer unsubscribe()
	require.Eventually(t, func() bool { return len(rec.latest()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, svc.UpdateInquiry(ctx, a.ID, models.InquiryUpdate{Archived: models.BoolPtr(true)}))
	require.Eventually(t, func() bool {
		return rec.count() >= 2 && len(rec.latest()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestSnapshotFeed_NoDeliveryAfterUnsubscribe(t *testing.T) {
	svc := NewMemoryInquiryService()
	ctx := context.Background()

	rec := &snapshotRecorder{}
	unsubscribe, err := svc.Subscribe(ctx, models.InquiryFilter{}, rec.record)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()
	_, err = svc.CreateInquiry(ctx, validInput())
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestSnapshotFeed_ContextCancelEndsSubscription(t *testing.T) {
	svc := NewMemoryInquiryService()
	ctx, cancel := context.WithCancel(context.Background())

	rec := &snapshotRecorder{}
	_, err := svc.Subscribe(ctx, models.InquiryFilter{}, rec.record)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	_, err = svc.CreateInquiry(context.Background(), validInput())
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestSnapshotFeed_PollingWithoutBus(t *testing.T) {
	var calls atomic.Int32
	list := func(ctx context.Context, filter models.InquiryFilter) ([]models.Inquiry, error) {
		calls.Add(1)
		return []models.Inquiry{}, nil
	}
	feed := NewSnapshotFeed(list, nil, 10*time.Millisecond)

	rec := &snapshotRecorder{}
	unsubscribe, err := feed.Subscribe(context.Background(), models.InquiryFilter{}, rec.record)
	require.NoError(t, err)
	defer unsubscribe()

	assert.Eventually(t, func() bool { return rec.count() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestSnapshotFeed_InitialLoadErrorIsReturned(t *testing.T) {
	list := func(ctx context.Context, filter models.InquiryFilter) ([]models.Inquiry, error) {
		return nil, models.ErrStoreUnavailable
	}
	feed := NewSnapshotFeed(list, NewLocalChangeBus(), 0)

	_, err := feed.Subscribe(context.Background(), models.InquiryFilter{}, func([]models.Inquiry) {})
	assert.True(t, errors.Is(err, models.ErrStoreUnavailable))
}

func TestSnapshotFeed_RequiresBusOrPolling(t *testing.T) {
	feed := NewSnapshotFeed(func(context.Context, models.InquiryFilter) ([]models.Inquiry, error) {
		return nil, nil
	}, nil, 0)
	_, err := feed.Subscribe(context.Background(), models.InquiryFilter{}, func([]models.Inquiry) {})
	assert.Error(t, err)
}

func TestLocalChangeBus_CoalescesAndCloses(t *testing.T) {
	bus := NewLocalChangeBus()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Listen(ctx)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		bus.Publish(context.Background(), ChangeUpdated, utils.NewSixID())
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a change signal")
	}
	select {
	case <-ch:
		t.Fatal("burst should have been coalesced into one signal")
	default:
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
