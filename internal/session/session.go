// Package session binds one connected admin dashboard to its inquiry workflow
// controller and notification center.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"realty/site/internal/metrics"
	"realty/site/internal/models"
	"realty/site/internal/notify"
	"realty/site/internal/services"
	"realty/site/internal/utils"
	"realty/site/internal/workflow"
)

// Event types pushed to the dashboard.
const (
	EventView          = "view"
	EventNotifications = "notifications"
	EventToast         = "toast"
	EventError         = "error"
	EventBatch         = "batch"
)

// Event is one outbound message.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Command is one inbound message from the dashboard.
type Command struct {
	Op    string          `json:"op"`
	ID    string          `json:"id,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// NotificationsPayload is the data of a notifications event.
type NotificationsPayload struct {
	Items       []models.Notification `json:"items"`
	UnreadCount int                   `json:"unreadCount"`
}

// BatchPayload reports per-id outcomes of a bulk action.
type BatchPayload struct {
	Op        string        `json:"op"`
	Succeeded []utils.SixID `json:"succeeded"`
	Failed    []BatchError  `json:"failed"`
}

// BatchError is one failed id of a bulk action.
type BatchError struct {
	ID    utils.SixID `json:"id"`
	Error string      `json:"error"`
}

// Session owns everything one admin connection needs. Close releases the feed
// subscriptions and waits for an in-flight send; nothing is sent after Close returns.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	ctrl    *workflow.Controller
	center  *notify.Center
	watcher *notify.Watcher

	unwatch       services.Unsubscribe
	disposeCenter func()

	// mu also guards send, so Close cannot return while an event is being delivered.
	mu     sync.Mutex
	closed bool
	send   func(Event)
}

// Open starts a session over store. send is called for every outbound event, one at a
// time; it must not block for long or call back into the session.
func Open(ctx context.Context, store services.IInquiryStore, send func(Event)) (*Session, error) {
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ctx:    sctx,
		cancel: cancel,
		center: notify.NewCenter(),
		send:   send,
	}
	metrics.AdminSessions.Inc()
	s.watcher = notify.NewWatcher(s.center)
	s.ctrl = workflow.NewController(store, workflow.Options{
		OnChange: func(v workflow.View) { s.emit(EventView, v) },
		OnToast:  func(t workflow.Toast) { s.emit(EventToast, t) },
	})
	s.disposeCenter = s.center.Subscribe(func(list []models.Notification) {
		s.emit(EventNotifications, NotificationsPayload{Items: list, UnreadCount: countUnread(list)})
	})

	unwatch, err := s.watcher.Watch(sctx, store)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to watch inquiries: %w", err)
	}
	s.mu.Lock()
	s.unwatch = unwatch
	s.mu.Unlock()

	if err := s.ctrl.Attach(sctx, store); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Controller exposes the session's workflow controller.
func (s *Session) Controller() *workflow.Controller {
	return s.ctrl
}

// Center exposes the session's notification center.
func (s *Session) Center() *notify.Center {
	return s.center
}

// Close tears the session down. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unwatch := s.unwatch
	s.mu.Unlock()

	s.ctrl.Close()
	if unwatch != nil {
		unwatch()
	}
	metrics.AdminSessions.Dec()
	s.disposeCenter()
	s.cancel()
}

func (s *Session) emit(eventType string, data interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.send(Event{Type: eventType, Data: data})
}

func countUnread(list []models.Notification) int {
	n := 0
	for _, item := range list {
		if !item.Read {
			n++
		}
	}
	return n
}

// Handle executes one dashboard command. It returns only command errors (unknown op,
// bad id or value); failed actions reach the dashboard as controller toasts.
func (s *Session) Handle(cmd Command) error {
	ctx := s.ctx
	switch cmd.Op {
	case "refresh":
		s.emit(EventView, s.ctrl.Filtered())
		list := s.center.Notifications()
		s.emit(EventNotifications, NotificationsPayload{Items: list, UnreadCount: countUnread(list)})
	case "setArchiveView":
		v, err := boolValue(cmd)
		if err != nil {
			return err
		}
		s.ctrl.SetArchiveView(v)
	case "setSearchTerm":
		var term string
		if err := decodeValue(cmd, &term); err != nil {
			return err
		}
		s.ctrl.SetSearchTerm(term)
	case "setSearchAcrossArchiveState":
		v, err := boolValue(cmd)
		if err != nil {
			return err
		}
		s.ctrl.SetSearchAcrossArchiveState(v)
	case "toggleEditMode":
		s.ctrl.ToggleEditMode()
	case "toggleSelectAll":
		s.ctrl.ToggleSelectAll()
	case "closeDetail":
		s.ctrl.CloseDetail()
	case "cancelDelete":
		s.ctrl.CancelDelete()
	case "massArchive":
		if results, err := s.ctrl.MassArchive(ctx); err == nil {
			s.emit(EventBatch, batchPayload("massArchive", results))
		}
	case "requestMassDelete":
		_ = s.ctrl.RequestMassDelete()
	case "confirmMassDelete":
		_, _ = s.ctrl.ConfirmMassDelete(ctx)
	case "markAllNotificationsRead":
		s.center.MarkAllAsRead()
	case "markNotificationRead":
		return s.center.UpdateNotification(cmd.ID, models.NotificationPatch{Read: models.BoolPtr(true)})
	default:
		return s.handleInquiryOp(ctx, cmd)
	}
	return nil
}

// handleInquiryOp runs the commands that address one inquiry by id.
func (s *Session) handleInquiryOp(ctx context.Context, cmd Command) error {
	if !inquiryOps[cmd.Op] {
		return fmt.Errorf("unknown command %q", cmd.Op)
	}
	id, err := utils.ParseSixID(cmd.ID)
	if err != nil || id.IsZero() {
		return &models.ValidationError{Fields: []string{"id"}}
	}
	switch cmd.Op {
	case "toggleSelection":
		s.ctrl.ToggleSelection(id)
	case "view":
		_ = s.ctrl.ViewAndMarkRead(ctx, id)
	case "archive":
		_ = s.ctrl.Archive(ctx, id)
	case "restore":
		_ = s.ctrl.Restore(ctx, id)
	case "requestDelete":
		_ = s.ctrl.RequestDelete(id)
	case "confirmDelete":
		_ = s.ctrl.ConfirmDelete(ctx, id)
	}
	return nil
}

var inquiryOps = map[string]bool{
	"toggleSelection": true,
	"view":            true,
	"archive":         true,
	"restore":         true,
	"requestDelete":   true,
	"confirmDelete":   true,
}

func decodeValue(cmd Command, dst interface{}) error {
	if len(cmd.Value) == 0 {
		return &models.ValidationError{Fields: []string{"value"}}
	}
	if err := json.Unmarshal(cmd.Value, dst); err != nil {
		return &models.ValidationError{Fields: []string{"value"}}
	}
	return nil
}

func boolValue(cmd Command) (bool, error) {
	var v bool
	err := decodeValue(cmd, &v)
	return v, err
}

func batchPayload(op string, results []models.BatchResult) BatchPayload {
	p := BatchPayload{Op: op, Succeeded: []utils.SixID{}, Failed: []BatchError{}}
	for _, r := range results {
		if r.OK() {
			p.Succeeded = append(p.Succeeded, r.ID)
		} else {
			p.Failed = append(p.Failed, BatchError{ID: r.ID, Error: r.Err.Error()})
		}
	}
	return p
}
