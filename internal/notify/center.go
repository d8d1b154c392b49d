// Package notify holds the per-session notification registry and the watcher that
// derives "new inquiry" notifications from the inquiry change feed.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"realty/site/internal/models"
	"realty/site/internal/utils"
)

// Listener receives the full notification list, newest first, after every change.
type Listener func(notifications []models.Notification)

// NewNotification carries the caller-supplied fields of AddNotification.
type NewNotification struct {
	Type      models.NotificationType
	Title     string
	Message   string
	InquiryID *utils.SixID
}

// Center is the notification registry of one admin session. It is not persisted and
// not shared between sessions; create one per session and drop it when the session ends.
type Center struct {
	mu            sync.Mutex
	notifications []models.Notification
	listeners     map[int]Listener
	nextListener  int
	now           func() time.Time
}

// NewCenter creates an empty Center.
func NewCenter() *Center {
	return &Center{
		listeners: make(map[int]Listener),
		now:       time.Now,
	}
}

// AddNotification prepends a new unread notification and returns it.
func (c *Center) AddNotification(n NewNotification) models.Notification {
	c.mu.Lock()
	created := models.Notification{
		ID:        uuid.NewString(),
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Timestamp: c.now(),
		InquiryID: n.InquiryID,
	}
	if created.Type == "" {
		created.Type = models.NotificationInfo
	}
	c.notifications = append([]models.Notification{created}, c.notifications...)
	snapshot, listeners := c.snapshotLocked()
	c.mu.Unlock()

	notifyAll(listeners, snapshot)
	return created
}

// MarkAllAsRead flags every held notification as read.
func (c *Center) MarkAllAsRead() {
	c.mu.Lock()
	for i := range c.notifications {
		c.notifications[i].Read = true
	}
	snapshot, listeners := c.snapshotLocked()
	c.mu.Unlock()

	notifyAll(listeners, snapshot)
}

// UpdateNotification merges patch into the notification with the given id.
func (c *Center) UpdateNotification(id string, patch models.NotificationPatch) error {
	c.mu.Lock()
	idx := -1
	for i := range c.notifications {
		if c.notifications[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
	}
	n := &c.notifications[idx]
	if patch.Read != nil {
		n.Read = *patch.Read
	}
	if patch.Title != nil {
		n.Title = *patch.Title
	}
	if patch.Message != nil {
		n.Message = *patch.Message
	}
	snapshot, listeners := c.snapshotLocked()
	c.mu.Unlock()

	notifyAll(listeners, snapshot)
	return nil
}

// Notifications returns a copy of the held notifications, newest first.
func (c *Center) Notifications() []models.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Notification(nil), c.notifications...)
}

// UnreadCount returns how many notifications are still unread.
func (c *Center) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, n := range c.notifications {
		if !n.Read {
			count++
		}
	}
	return count
}

// Subscribe registers a listener and returns its disposer. Listeners are called
// outside the Center's lock, so they may call back into the Center.
func (c *Center) Subscribe(l Listener) (dispose func()) {
	c.mu.Lock()
	key := c.nextListener
	c.nextListener++
	c.listeners[key] = l
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, key)
			c.mu.Unlock()
		})
	}
}

func (c *Center) snapshotLocked() ([]models.Notification, []Listener) {
	snapshot := append([]models.Notification(nil), c.notifications...)
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	return snapshot, listeners
}

func notifyAll(listeners []Listener, snapshot []models.Notification) {
	for _, l := range listeners {
		l(snapshot)
	}
}
