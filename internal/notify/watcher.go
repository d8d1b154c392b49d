package notify

import (
	"context"
	"fmt"
	"sync"

	"realty/site/internal/metrics"
	"realty/site/internal/models"
	"realty/site/internal/services"
	"realty/site/internal/utils"
)

// Watcher turns inquiry feed snapshots into notifications using a detect-new-head rule:
// the first snapshot is the baseline, and afterwards a notification is raised only when
// the newest inquiry differs from the previously seen newest one and was absent from the
// previous snapshot. Edits and deletions never produce notifications, including deletion
// of the head itself.
type Watcher struct {
	center *Center

	mu       sync.Mutex
	baseline bool
	headID   utils.SixID
	seen     map[utils.SixID]struct{}
}

// NewWatcher creates a watcher feeding center.
func NewWatcher(center *Center) *Watcher {
	return &Watcher{center: center}
}

// Observe processes one snapshot (ordered newest first). It returns the notification
// raised, if any.
func (w *Watcher) Observe(snapshot []models.Inquiry) *models.Notification {
	var head utils.SixID
	var newest *models.Inquiry
	if len(snapshot) > 0 {
		newest = &snapshot[0]
		head = newest.ID
	}

	ids := make(map[utils.SixID]struct{}, len(snapshot))
	for i := range snapshot {
		ids[snapshot[i].ID] = struct{}{}
	}

	w.mu.Lock()
	prev := w.seen
	w.seen = ids
	if !w.baseline {
		w.baseline = true
		w.headID = head
		w.mu.Unlock()
		return nil
	}
	_, known := prev[head]
	if newest == nil || head == w.headID || known {
		// An emptied collection resets the head so the next arrival still counts as new.
		w.headID = head
		w.mu.Unlock()
		return nil
	}
	w.headID = head
	w.mu.Unlock()

	id := newest.ID
	n := w.center.AddNotification(NewNotification{
		Type:      models.NotificationInquiry,
		Title:     "New inquiry",
		Message:   Summary(newest),
		InquiryID: &id,
	})
	metrics.NotificationsEmitted.Inc()
	return &n
}

// Watch subscribes the watcher to feed. The returned disposer ends the subscription.
func (w *Watcher) Watch(ctx context.Context, feed services.IInquiryFeed) (services.Unsubscribe, error) {
	return feed.Subscribe(ctx, models.InquiryFilter{}, func(snapshot []models.Inquiry) {
		w.Observe(snapshot)
	})
}

// Summary renders the one-line description used in inquiry notifications.
func Summary(inq *models.Inquiry) string {
	return fmt.Sprintf("%s %s (%s) inquired about %s", inq.FirstName, inq.LastName, inq.Email, inq.Property)
}
