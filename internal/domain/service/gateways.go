// Package service defines the interfaces of the external collaborators
// the core consumes: the push channel, the REST backend and the alerter.
package service

import (
	"context"

	"storefront/internal/domain/entity"
)

// NotificationGateway is the REST surface for notifications. Every call
// is best-effort from the engine's point of view; failures fall back to
// cached or optimistic state.
type NotificationGateway interface {
	// List fetches the authoritative notification list.
	List(ctx context.Context) ([]entity.Notification, error)

	// UnreadCount fetches the server's unread counter.
	UnreadCount(ctx context.Context) (int, error)

	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}

// ChatGateway is the REST surface for chat history and read receipts.
type ChatGateway interface {
	// History fetches one page of a conversation, newest page first.
	History(ctx context.Context, conversationKey string, page, size int) (entity.HistoryPage, error)

	// UnreadCount fetches the authoritative unread counter for one
	// conversation.
	UnreadCount(ctx context.Context, conversationKey string) (int, error)

	MarkRead(ctx context.Context, messageID string) error

	// Conversations lists the staff-side threads.
	Conversations(ctx context.Context) ([]entity.ConversationSummary, error)
}
