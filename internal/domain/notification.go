package domain

import (
	"strings"
	"time"
)

// Notification types emitted by the platform
const (
	NotificationGenerationCompleted = "generation.completed"
	NotificationGenerationFailed    = "generation.failed"
	NotificationUsageWarning        = "usage.warning"
	NotificationUsageExceeded       = "usage.exceeded"
	NotificationCrawlCompleted      = "crawl.completed"
)

// Notification is a message addressed to one user in one workspace.
type Notification struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	UserID      string         `json:"user_id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Data        map[string]any `json:"data"`
	ReadAt      *time.Time     `json:"read_at"`
	CreatedAt   time.Time      `json:"created_at"`
}

// IsRead returns true once the recipient has read the notification
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// ValidateNotification validates a Notification instance
func ValidateNotification(n *Notification) error {
	if n == nil {
		return ValidationError("notification cannot be nil")
	}
	if n.ID == "" || n.WorkspaceID == "" || n.UserID == "" {
		return ValidationError("notification ID, WorkspaceID and UserID are required")
	}
	if strings.TrimSpace(n.Type) == "" {
		return ValidationError("notification type is required")
	}
	if strings.TrimSpace(n.Title) == "" {
		return ValidationError("notification title is required")
	}
	return nil
}
