package models

import (
	"time"

	"realty/site/internal/utils"
)

// NotificationType tags a notification for display.
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
	NotificationInquiry NotificationType = "inquiry"
)

// Notification is an in-memory admin session notification. It is never persisted.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
	Read      bool             `json:"read"`
	InquiryID *utils.SixID     `json:"inquiryId,omitempty"`
}

// NotificationPatch merges into an existing notification.
type NotificationPatch struct {
	Read    *bool   `json:"read,omitempty"`
	Title   *string `json:"title,omitempty"`
	Message *string `json:"message,omitempty"`
}
