package entity

import "time"

const (
	// OrderDedupWindow is how long two notifications for the same
	// (orderCode, orderStatus) pair count as the same logical event.
	OrderDedupWindow = 60 * time.Second

	// ContentDedupWindow is how long two notifications with equal title
	// and message count as the same logical event.
	ContentDedupWindow = 30 * time.Second
)

// IsDuplicate reports whether candidate describes a notification already
// present in existing. The rule cascade:
//
//  1. equal id is always a duplicate;
//  2. equal (orderCode, orderStatus) within OrderDedupWindow;
//  3. equal (title, message) within ContentDedupWindow.
//
// The function is pure; callers pass the list they currently hold.
func IsDuplicate(candidate Notification, existing []Notification) bool {
	candOrder := candidate.OrderKey()
	candContent := candidate.ContentKey()

	for i := range existing {
		held := &existing[i]

		if held.ID == candidate.ID {
			return true
		}

		gap := candidate.Timestamp.Sub(held.Timestamp)
		if gap < 0 {
			gap = -gap
		}

		if candOrder != "" && held.OrderKey() == candOrder && gap <= OrderDedupWindow {
			return true
		}

		if held.ContentKey() == candContent && gap <= ContentDedupWindow {
			return true
		}
	}

	return false
}
