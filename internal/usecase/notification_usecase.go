// Package usecase defines the application use case interfaces.
package usecase

import (
	"context"

	"storefront/internal/domain/entity"
	"storefront/internal/domain/service"
)

// NotificationCounters are the aggregate counts derived from the
// reconciled list.
type NotificationCounters struct {
	Total        int `json:"total"`
	Unread       int `json:"unread"`
	HighPriority int `json:"high_priority"`
}

// NotificationUsecase is the reconciliation engine: it merges the REST
// snapshot with the push stream into a single deduplicated list.
type NotificationUsecase interface {
	// Start registers the push handlers and the retention sweep.
	Start()

	// LoadFromServer fetches the authoritative list and merges it with
	// held provisional entries. Fetch failures fall back to the local
	// cache and are not surfaced to the caller.
	LoadFromServer(ctx context.Context) error

	// ApplyPushEvent folds one push event into the list, suppressing
	// duplicates and scheduling the delayed authoritative re-fetch.
	ApplyPushEvent(evt service.Event)

	// Notifications returns a copy of the current list, newest first.
	Notifications() []entity.Notification

	Counters() NotificationCounters

	// MarkAsRead updates optimistically, then syncs best-effort. Unknown
	// ids are a no-op.
	MarkAsRead(ctx context.Context, id string)
	MarkAllAsRead(ctx context.Context)
	Remove(ctx context.Context, id string)
	ClearAll(ctx context.Context)

	Close()
}
