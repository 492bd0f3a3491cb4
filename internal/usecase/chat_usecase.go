package usecase

import (
	"context"
	"errors"

	"storefront/internal/domain/entity"
	"storefront/internal/domain/service"
)

// ErrSendFailed is returned when the publish of an accepted message
// failed; the optimistic entry has been removed and the caller should
// restore the draft.
var ErrSendFailed = errors.New("message send failed")

// ChatUsecase is the chat session manager: paginated REST history merged
// with push-delivered live messages, optimistic send and read receipts.
type ChatUsecase interface {
	// Start registers the push handlers.
	Start()

	// LoadHistory fetches one page into the conversation. Page 0
	// replaces the tail; older pages prepend without reordering or
	// duplicating held messages. Failures surface as an error and leave
	// the conversation untouched.
	LoadHistory(ctx context.Context, conversationKey string, page, size int) (entity.HistoryPage, error)

	// SendMessage validates, appends an optimistic entry and publishes.
	// accepted is false (and err nil) for empty text, a disconnected
	// channel or an in-flight send on the conversation. err is
	// ErrSendFailed when the publish itself failed.
	SendMessage(ctx context.Context, conversationKey, text string, replyTo *entity.ReplyRef) (accepted bool, err error)

	// ReceivePushMessage folds one push-delivered chat event in:
	// echoes of own sends reconcile onto the optimistic entry, anything
	// else appends and bumps the unread counter.
	ReceivePushMessage(evt service.Event)

	// Conversation returns a copy of one thread.
	Conversation(conversationKey string) (entity.Conversation, bool)

	// Conversations lists held threads, most recent activity first.
	Conversations() []entity.ConversationSummary

	// LoadConversations refreshes the thread listing from the server,
	// adopting per-thread unread counts, and returns the merged listing.
	// On fetch failure the held listing comes back with the error so the
	// caller keeps last known good state.
	LoadConversations(ctx context.Context) ([]entity.ConversationSummary, error)

	// MarkRead marks one message read (optimistic) and issues a
	// best-effort receipt. Unknown ids and own messages are no-ops.
	MarkRead(ctx context.Context, conversationKey, messageID string)

	// MarkAllRead marks everything in the conversation read, issues the
	// per-message receipts concurrently and resyncs the authoritative
	// unread count. It returns the number of confirmed receipts.
	MarkAllRead(ctx context.Context, conversationKey string) int

	Close()
}
