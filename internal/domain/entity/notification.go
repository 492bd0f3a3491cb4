// Package entity contains the core business objects of the project.
package entity

import (
	"strings"
	"time"
)

// ProvisionalIDPrefix marks notification ids minted locally from a push
// event, before the authoritative fetch replaces them.
const ProvisionalIDPrefix = "ws_"

// NotificationType is the category of a notification.
type NotificationType string

const (
	NotificationOrderConfirmed  NotificationType = "order_confirmed"
	NotificationOrderDelivering NotificationType = "order_delivering"
	NotificationOrderCompleted  NotificationType = "order_completed"
	NotificationOrderCancelled  NotificationType = "order_cancelled"
	NotificationSystem          NotificationType = "system"
)

// Priority is the display urgency of a notification.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// OrderData is the optional order payload nested in an order notification.
type OrderData struct {
	ID            string  `json:"id"`
	OrderCode     string  `json:"order_code"`
	OrderStatus   string  `json:"order_status"`
	TotalPrice    float64 `json:"total_price"`
	ReceiverName  string  `json:"receiver_name"`
	ReceiverPhone string  `json:"receiver_phone"`
}

// Notification is one entry in the reconciled notification list.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	ReadAt    *time.Time       `json:"read_at,omitempty"`
	Priority  Priority         `json:"priority"`
	Timestamp time.Time        `json:"timestamp"`
	Order     *OrderData       `json:"order_data,omitempty"`

	// Provisional is true while the entry originates from a push event
	// and has not yet been confirmed by an authoritative fetch.
	Provisional bool `json:"provisional"`
}

// MarkRead flips the entry to read at the given time. Marking an already
// read entry keeps the original ReadAt.
func (n *Notification) MarkRead(at time.Time) {
	if n.Read {
		return
	}
	n.Read = true
	n.ReadAt = &at
}

// OrderKey returns the (orderCode, orderStatus) identity of an order
// notification, or "" when the entry carries no order payload.
func (n *Notification) OrderKey() string {
	if n.Order == nil || n.Order.OrderCode == "" {
		return ""
	}

	return n.Order.OrderCode + "|" + n.Order.OrderStatus
}

// ContentKey returns the (title, message) identity of a notification.
func (n *Notification) ContentKey() string {
	return strings.TrimSpace(n.Title) + "|" + strings.TrimSpace(n.Message)
}

// ParseNotificationType maps a raw category string onto a known type,
// defaulting to system for anything unrecognized.
func ParseNotificationType(raw string) NotificationType {
	switch NotificationType(strings.ToLower(strings.TrimSpace(raw))) {
	case NotificationOrderConfirmed, NotificationOrderDelivering,
		NotificationOrderCompleted, NotificationOrderCancelled:
		return NotificationType(strings.ToLower(strings.TrimSpace(raw)))
	default:
		return NotificationSystem
	}
}

// ParsePriority maps a raw priority string onto a known priority,
// defaulting to medium.
func ParsePriority(raw string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(raw))) {
	case PriorityHigh:
		return PriorityHigh
	case PriorityLow:
		return PriorityLow
	default:
		return PriorityMedium
	}
}
