package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func orderNotification(id, code, status string, ts time.Time) Notification {
	return Notification{
		ID:        id,
		Type:      NotificationOrderConfirmed,
		Title:     "Order " + code,
		Message:   "Order " + code + " is " + status,
		Timestamp: ts,
		Order:     &OrderData{OrderCode: code, OrderStatus: status},
	}
}

func TestIsDuplicate_SameID(t *testing.T) {
	now := time.Now()
	held := []Notification{{ID: "42", Title: "a", Message: "b", Timestamp: now.Add(-10 * time.Minute)}}

	assert.True(t, IsDuplicate(Notification{ID: "42", Title: "x", Message: "y", Timestamp: now}, held))
}

func TestIsDuplicate_OrderPairWithinWindow(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		gap  time.Duration
		want bool
	}{
		{name: "2s apart", gap: 2 * time.Second, want: true},
		{name: "59s apart", gap: 59 * time.Second, want: true},
		{name: "61s apart", gap: 61 * time.Second, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			held := []Notification{orderNotification("1", "A1", "CONFIRMED", now.Add(-tt.gap))}
			candidate := orderNotification("ws_abc", "A1", "CONFIRMED", now)
			// Keep the content distinct so only the order rule can match.
			candidate.Title = "different"
			candidate.Message = "different"

			assert.Equal(t, tt.want, IsDuplicate(candidate, held))
		})
	}
}

func TestIsDuplicate_OrderPairDifferentStatus(t *testing.T) {
	now := time.Now()
	held := []Notification{orderNotification("1", "A1", "CONFIRMED", now)}

	candidate := orderNotification("ws_abc", "A1", "DELIVERING", now.Add(time.Second))
	assert.False(t, IsDuplicate(candidate, held))
}

func TestIsDuplicate_ContentPairWithinWindow(t *testing.T) {
	now := time.Now()
	held := []Notification{{ID: "1", Title: "Promo", Message: "Free delivery today", Timestamp: now.Add(-20 * time.Second)}}

	assert.True(t, IsDuplicate(Notification{ID: "ws_x", Title: "Promo", Message: "Free delivery today", Timestamp: now}, held))
	assert.False(t, IsDuplicate(Notification{ID: "ws_y", Title: "Promo", Message: "Different body", Timestamp: now}, held))
}

func TestIsDuplicate_ContentPairOutsideWindow(t *testing.T) {
	now := time.Now()
	held := []Notification{{ID: "1", Title: "Promo", Message: "Free delivery today", Timestamp: now.Add(-45 * time.Second)}}

	assert.False(t, IsDuplicate(Notification{ID: "ws_x", Title: "Promo", Message: "Free delivery today", Timestamp: now}, held))
}

func TestIsDuplicate_AbsoluteGap(t *testing.T) {
	now := time.Now()
	// The held entry is newer than the candidate; the window still applies.
	held := []Notification{orderNotification("1", "A1", "CONFIRMED", now.Add(30*time.Second))}

	candidate := orderNotification("ws_abc", "A1", "CONFIRMED", now)
	candidate.Title = "different"
	candidate.Message = "different"

	assert.True(t, IsDuplicate(candidate, held))
}

func TestIsDuplicate_EmptyList(t *testing.T) {
	assert.False(t, IsDuplicate(orderNotification("ws_1", "A1", "CONFIRMED", time.Now()), nil))
}
