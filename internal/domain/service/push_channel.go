package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"storefront/internal/domain/entity"
)

// Errors surfaced by the push channel before any network call.
var (
	// ErrMissingPrincipal is returned when Connect is called without a
	// principal id.
	ErrMissingPrincipal = errors.New("missing principal id")

	// ErrTokenExpired is returned when the auth token is already expired.
	ErrTokenExpired = errors.New("auth token expired")

	// ErrConnectTimeout is returned when the transport did not
	// acknowledge the connection within the configured bound.
	ErrConnectTimeout = errors.New("push channel connect timed out")
)

// Logical event types dispatched over the push channel. Payloads carry
// their type in a "type" field; frames without one fall back to a type
// derived from the destination.
const (
	EventTypeNotification = "notification"
	EventTypeOrder        = "order_update"
	EventTypeChat         = "chat_message"
	EventTypePing         = "ping"

	// EventTypeRaw tags events whose body could not be parsed as JSON;
	// the original text is preserved in Raw.
	EventTypeRaw = "raw"
)

// Event is one message delivered over the push channel, already decoded
// from the broker frame.
type Event struct {
	// Type is the logical event type handlers key on, taken from the
	// payload's type field or EventTypeRaw for malformed bodies.
	Type string

	// Destination is the broker destination the frame arrived on.
	Destination string

	// Payload is the decoded JSON body; nil for raw events.
	Payload map[string]json.RawMessage

	// Raw is the undecoded body text, kept for raw events.
	Raw string

	ReceivedAt time.Time
}

// String extracts a string field from the payload, returning "" when the
// field is absent or not a string.
func (e Event) String(field string) string {
	rawField, ok := e.Payload[field]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(rawField, &s); err != nil {
		return ""
	}

	return s
}

// Float extracts a numeric field from the payload.
func (e Event) Float(field string) float64 {
	rawField, ok := e.Payload[field]
	if !ok {
		return 0
	}

	var f float64
	if err := json.Unmarshal(rawField, &f); err != nil {
		return 0
	}

	return f
}

// Object extracts a nested object field from the payload.
func (e Event) Object(field string) map[string]json.RawMessage {
	rawField, ok := e.Payload[field]
	if !ok {
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(rawField, &obj); err != nil {
		return nil
	}

	return obj
}

// MessageHandler consumes one dispatched event. Handlers must not panic;
// the dispatcher recovers and logs anything that escapes.
type MessageHandler func(Event)

// PushChannel is the single logical connection per principal to the
// backend broker.
type PushChannel interface {
	// Connect establishes the channel, registers the principal and
	// subscribes the configured destinations. Calling while connected is
	// a no-op success.
	Connect(ctx context.Context, principalID, authToken string) error

	// Disconnect tears the channel down cleanly and clears the handler
	// registry. Safe to call when already disconnected.
	Disconnect()

	// AddMessageHandler registers a handler for a logical event type and
	// returns a disposer removing exactly this registration.
	AddMessageHandler(eventType string, handler MessageHandler) (remove func())

	// Publish sends a fire-and-forget frame. It reports false, never an
	// error, when the channel is not connected or the send fails.
	Publish(destination string, body any) bool

	// State returns a snapshot of the connection state machine.
	State() entity.ConnectionInfo
}
