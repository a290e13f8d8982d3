package models

import "time"

// Notification types
const (
	NotifyComment      = "COMMENT"
	NotifyStatusChange = "STATUS_CHANGE"
	NotifyReminder     = "REMINDER"
	NotifyOverdue      = "OVERDUE"
)

// Notification is a cross-user alert created by lifecycle events and
// the overdue sweep. RequestID is nil for system-wide digest rows.
type Notification struct {
	ID        int64     `json:"id"`
	Recipient int64     `json:"recipient"`
	Sender    *int64    `json:"sender,omitempty"`
	RequestID *int64    `json:"request_id,omitempty"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
