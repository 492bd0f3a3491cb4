package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"storefront/internal/domain/entity"
	"storefront/internal/domain/service"
	"storefront/internal/errors"
)

type chatMessageDTO struct {
	ID             flexibleID   `json:"id"`
	ConversationID flexibleID   `json:"conversationId"`
	Text           string       `json:"text"`
	SenderRole     string       `json:"senderRole"`
	Timestamp      flexibleTime `json:"timestamp"`
	IsRead         bool         `json:"isRead"`
	ReplyTo        *replyDTO    `json:"replyTo"`
}

type replyDTO struct {
	ID         flexibleID `json:"id"`
	Text       string     `json:"text"`
	SenderRole string     `json:"senderRole"`
}

func (d *chatMessageDTO) toEntity() entity.ChatMessage {
	msg := entity.ChatMessage{
		ID:              string(d.ID),
		ConversationKey: string(d.ConversationID),
		Text:            d.Text,
		Sender:          parseSenderRole(d.SenderRole),
		Timestamp:       d.Timestamp.Time,
		Read:            d.IsRead,
		Status:          entity.StatusDelivered,
	}
	if d.IsRead {
		msg.Status = entity.StatusRead
	}
	if d.ReplyTo != nil {
		msg.ReplyTo = &entity.ReplyRef{
			ID:     string(d.ReplyTo.ID),
			Text:   d.ReplyTo.Text,
			Sender: parseSenderRole(d.ReplyTo.SenderRole),
		}
		if msg.ReplyTo.Text == "" {
			msg.ReplyTo.Text = entity.ReplyPlaceholder
		}
	}

	return msg
}

func parseSenderRole(raw string) entity.SenderRole {
	switch normalizeKey(raw) {
	case "staff", "admin", "agent":
		return entity.SenderStaff
	case "system":
		return entity.SenderSystem
	default:
		return entity.SenderUser
	}
}

type historyEnvelope struct {
	HasMore *bool `json:"hasMore"`
	Last    *bool `json:"last"`
}

type chatGateway struct {
	client *Client
}

// NewChatGateway builds the chat REST gateway.
func NewChatGateway(client *Client) service.ChatGateway {
	return &chatGateway{client: client}
}

func (g *chatGateway) History(ctx context.Context, conversationKey string, page, size int) (entity.HistoryPage, error) {
	query := url.Values{}
	query.Set("conversationId", conversationKey)
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(size))
	path := "/chat/history?" + query.Encode()

	var raw json.RawMessage
	if err := g.client.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return entity.HistoryPage{}, errors.Wrap(err, "chat history")
	}

	inner, err := unwrapList(raw)
	if err != nil {
		return entity.HistoryPage{}, errors.Wrap(err, "chat history")
	}

	var dtos []chatMessageDTO
	if err := json.Unmarshal(inner, &dtos); err != nil {
		return entity.HistoryPage{}, errors.Wrap(err, "decode chat history")
	}

	messages := make([]entity.ChatMessage, 0, len(dtos))
	for i := range dtos {
		msg := dtos[i].toEntity()
		if msg.ConversationKey == "" {
			msg.ConversationKey = conversationKey
		}
		messages = append(messages, msg)
	}

	return entity.HistoryPage{
		Messages: messages,
		HasMore:  historyHasMore(raw, len(messages), size),
	}, nil
}

// historyHasMore reads the pagination flag when the envelope carries
// one, falling back to the full-page heuristic for bare arrays.
func historyHasMore(raw json.RawMessage, got, size int) bool {
	var envelope historyEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.HasMore != nil {
			return *envelope.HasMore
		}
		if envelope.Last != nil {
			return !*envelope.Last
		}
	}

	return size > 0 && got == size
}

func (g *chatGateway) UnreadCount(ctx context.Context, conversationKey string) (int, error) {
	path := "/chat/unread-count?conversationId=" + url.QueryEscape(conversationKey)

	var raw json.RawMessage
	if err := g.client.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return 0, errors.Wrap(err, "chat unread count")
	}

	return decodeCount(raw)
}

func (g *chatGateway) MarkRead(ctx context.Context, messageID string) error {
	path := "/chat/messages/" + url.PathEscape(messageID) + "/read"

	return g.client.do(ctx, http.MethodPut, path, nil, nil)
}

func (g *chatGateway) Conversations(ctx context.Context) ([]entity.ConversationSummary, error) {
	var raw json.RawMessage
	if err := g.client.do(ctx, http.MethodGet, "/chat/conversations", nil, &raw); err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}

	inner, err := unwrapList(raw)
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}

	var dtos []struct {
		ConversationID flexibleID   `json:"conversationId"`
		Unread         int          `json:"unread"`
		LastMessage    string       `json:"lastMessage"`
		LastMessageAt  flexibleTime `json:"lastMessageAt"`
	}
	if err := json.Unmarshal(inner, &dtos); err != nil {
		return nil, errors.Wrap(err, "decode conversations")
	}

	summaries := make([]entity.ConversationSummary, 0, len(dtos))
	for _, dto := range dtos {
		summaries = append(summaries, entity.ConversationSummary{
			Key:           string(dto.ConversationID),
			Unread:        dto.Unread,
			LastMessage:   dto.LastMessage,
			LastMessageAt: dto.LastMessageAt.Time,
		})
	}

	return summaries, nil
}
