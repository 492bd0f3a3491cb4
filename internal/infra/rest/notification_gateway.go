package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"storefront/internal/domain/entity"
	"storefront/internal/domain/service"
	"storefront/internal/errors"
)

type notificationDTO struct {
	ID        flexibleID   `json:"id"`
	Type      string       `json:"type"`
	Title     string       `json:"title"`
	Message   string       `json:"message"`
	Read      bool         `json:"read"`
	ReadAt    flexibleTime `json:"readAt"`
	Priority  string       `json:"priority"`
	Timestamp flexibleTime `json:"timestamp"`
	OrderData *orderDTO    `json:"orderData"`
}

type orderDTO struct {
	ID            flexibleID `json:"id"`
	OrderCode     string     `json:"orderCode"`
	OrderStatus   string     `json:"orderStatus"`
	TotalPrice    float64    `json:"totalPrice"`
	ReceiverName  string     `json:"receiverName"`
	ReceiverPhone string     `json:"receiverPhone"`
}

func (d *notificationDTO) toEntity() entity.Notification {
	n := entity.Notification{
		ID:        string(d.ID),
		Type:      entity.ParseNotificationType(d.Type),
		Title:     d.Title,
		Message:   d.Message,
		Read:      d.Read,
		Priority:  entity.ParsePriority(d.Priority),
		Timestamp: d.Timestamp.Time,
	}
	if !d.ReadAt.IsZero() {
		readAt := d.ReadAt.Time
		n.ReadAt = &readAt
	}
	if d.OrderData != nil {
		n.Order = &entity.OrderData{
			ID:            string(d.OrderData.ID),
			OrderCode:     d.OrderData.OrderCode,
			OrderStatus:   d.OrderData.OrderStatus,
			TotalPrice:    d.OrderData.TotalPrice,
			ReceiverName:  d.OrderData.ReceiverName,
			ReceiverPhone: d.OrderData.ReceiverPhone,
		}
	}

	return n
}

type notificationGateway struct {
	client *Client
}

// NewNotificationGateway builds the notification REST gateway.
func NewNotificationGateway(client *Client) service.NotificationGateway {
	return &notificationGateway{client: client}
}

func (g *notificationGateway) List(ctx context.Context) ([]entity.Notification, error) {
	var raw json.RawMessage
	if err := g.client.do(ctx, http.MethodGet, "/notifications", nil, &raw); err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}

	inner, err := unwrapList(raw)
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}

	var dtos []notificationDTO
	if err := json.Unmarshal(inner, &dtos); err != nil {
		return nil, errors.Wrap(err, "decode notifications")
	}

	list := make([]entity.Notification, 0, len(dtos))
	for i := range dtos {
		list = append(list, dtos[i].toEntity())
	}

	return list, nil
}

func (g *notificationGateway) UnreadCount(ctx context.Context) (int, error) {
	var raw json.RawMessage
	if err := g.client.do(ctx, http.MethodGet, "/notifications/unread-count", nil, &raw); err != nil {
		return 0, errors.Wrap(err, "unread count")
	}

	return decodeCount(raw)
}

func (g *notificationGateway) MarkRead(ctx context.Context, id string) error {
	path := "/notifications/" + url.PathEscape(id) + "/read"

	return g.client.do(ctx, http.MethodPut, path, nil, nil)
}

func (g *notificationGateway) MarkAllRead(ctx context.Context) error {
	return g.client.do(ctx, http.MethodPut, "/notifications/read-all", nil, nil)
}

func (g *notificationGateway) Delete(ctx context.Context, id string) error {
	return g.client.do(ctx, http.MethodDelete, "/notifications/"+url.PathEscape(id), nil, nil)
}

func (g *notificationGateway) DeleteAll(ctx context.Context) error {
	return g.client.do(ctx, http.MethodDelete, "/notifications", nil, nil)
}

// decodeCount accepts both a bare number and an object wrapping it under
// count or data.
func decodeCount(raw json.RawMessage) (int, error) {
	var bare int
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, nil
	}

	var wrapped struct {
		Count *int `json:"count"`
		Data  *int `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return 0, errors.Wrap(err, "decode count response")
	}

	switch {
	case wrapped.Count != nil:
		return *wrapped.Count, nil
	case wrapped.Data != nil:
		return *wrapped.Data, nil
	default:
		return 0, errors.New("count response in unknown shape")
	}
}
