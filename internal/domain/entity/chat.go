package entity

import (
	"sort"
	"strings"
	"time"
)

// LocalIDPrefix marks chat message ids minted locally for optimistic
// sends, before the broker echo assigns the server id.
const LocalIDPrefix = "local_"

// ReplyPlaceholder is rendered when a reply references a message that is
// no longer held.
const ReplyPlaceholder = "Message unavailable"

// SenderRole identifies who authored a chat message.
type SenderRole string

const (
	SenderUser   SenderRole = "user"
	SenderStaff  SenderRole = "staff"
	SenderSystem SenderRole = "system"
)

// MessageStatus is the delivery state of a chat message.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// ReplyRef is a value copy of the message being replied to. It is a
// reference, never ownership: deleting the original leaves the copy.
type ReplyRef struct {
	ID     string     `json:"id"`
	Text   string     `json:"text"`
	Sender SenderRole `json:"sender"`
}

// ChatMessage is one message within a conversation.
type ChatMessage struct {
	ID              string        `json:"id"`
	ConversationKey string        `json:"conversation_key"`
	Text            string        `json:"text"`
	Sender          SenderRole    `json:"sender"`
	Timestamp       time.Time     `json:"timestamp"`
	Read            bool          `json:"read"`
	Status          MessageStatus `json:"status"`
	ReplyTo         *ReplyRef     `json:"reply_to,omitempty"`

	// Local is true for optimistic entries that have not been confirmed
	// by the broker echo yet.
	Local bool `json:"local"`
}

// SameOutbound reports whether m and other are the optimistic and
// confirmed copies of the same outbound message.
func (m *ChatMessage) SameOutbound(other *ChatMessage) bool {
	return m.ConversationKey == other.ConversationKey &&
		strings.TrimSpace(m.Text) == strings.TrimSpace(other.Text)
}

// SameOutboundWithin is SameOutbound restricted to copies whose
// timestamps lie within window of each other.
func (m *ChatMessage) SameOutboundWithin(other *ChatMessage, window time.Duration) bool {
	if !m.SameOutbound(other) {
		return false
	}
	gap := m.Timestamp.Sub(other.Timestamp)
	if gap < 0 {
		gap = -gap
	}

	return gap <= window
}

// Conversation is one chat thread keyed by counterpart identity.
type Conversation struct {
	Key           string        `json:"key"`
	Messages      []ChatMessage `json:"messages"`
	Unread        int           `json:"unread"`
	LastMessage   string        `json:"last_message"`
	LastMessageAt time.Time     `json:"last_message_at"`
	NextPage      int           `json:"next_page"`
	HasMore       bool          `json:"has_more"`
}

// ConversationSummary is the staff-side listing entry for one thread.
type ConversationSummary struct {
	Key           string    `json:"key"`
	Unread        int       `json:"unread"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// HistoryPage is one page of REST-fetched conversation history.
type HistoryPage struct {
	Messages []ChatMessage `json:"messages"`
	HasMore  bool          `json:"has_more"`
}

// SortMessagesAscending orders messages by timestamp ascending in place.
// The sort is stable so equal timestamps keep arrival order.
func SortMessagesAscending(messages []ChatMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
}

// MergeMessages combines held and incoming messages, dropping incoming
// entries whose id is already held, and returns the ascending result.
func MergeMessages(held, incoming []ChatMessage) []ChatMessage {
	seen := make(map[string]struct{}, len(held))
	for i := range held {
		seen[held[i].ID] = struct{}{}
	}

	merged := make([]ChatMessage, 0, len(held)+len(incoming))
	merged = append(merged, held...)
	for i := range incoming {
		if _, dup := seen[incoming[i].ID]; dup {
			continue
		}
		seen[incoming[i].ID] = struct{}{}
		merged = append(merged, incoming[i])
	}

	SortMessagesAscending(merged)

	return merged
}
