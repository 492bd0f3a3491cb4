// Package push implements the STOMP-over-WebSocket push channel client:
// one physical broker connection per principal, with typed dispatch and
// reconnect-with-backoff.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"storefront/config"
	"storefront/internal/domain/entity"
	"storefront/internal/domain/service"
	"storefront/internal/errors"
	"storefront/internal/infra/metrics"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/fx"
)

// Params holds dependencies for the push channel client.
type Params struct {
	fx.In

	Lc      fx.Lifecycle
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Client implements service.PushChannel. All mutable state is guarded by
// one mutex; timer and pump callbacks are generation-checked so results
// arriving after a teardown are ignored.
type Client struct {
	cfg     *config.PushConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	dial    dialFunc

	mu             sync.Mutex
	state          entity.ConnectionState
	attempts       int
	lastErr        error
	session        brokerSession
	subs           []brokerSubscription
	generation     int
	handlers       map[string]map[int]service.MessageHandler
	nextHandlerID  int
	reconnectTimer *time.Timer
	principalID    string
	authToken      string
	manualClose    bool
}

// NewClient constructs the process-wide push channel client.
func NewClient(params Params) service.PushChannel {
	client := newClient(params.Config.Push, params.Logger, params.Metrics)

	params.Lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			client.Disconnect()

			return nil
		},
	})

	return client
}

func newClient(cfg *config.PushConfig, logger *slog.Logger, m *metrics.Metrics) *Client {
	return &Client{
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		dial:     dialSTOMP,
		state:    entity.ConnDisconnected,
		handlers: make(map[string]map[int]service.MessageHandler),
	}
}

// Connect establishes the channel. Calling while connected (or while a
// connect is in flight) is a no-op success.
func (c *Client) Connect(ctx context.Context, principalID, authToken string) error {
	if strings.TrimSpace(principalID) == "" {
		return service.ErrMissingPrincipal
	}
	if err := checkTokenExpiry(authToken); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != entity.ConnDisconnected {
		c.mu.Unlock()

		return nil
	}
	c.state = entity.ConnConnecting
	c.manualClose = false
	c.principalID = principalID
	c.authToken = authToken
	generation := c.generation
	c.mu.Unlock()

	if err := c.establish(ctx, generation); err != nil {
		c.mu.Lock()
		if c.generation == generation {
			c.state = entity.ConnDisconnected
			c.lastErr = err
		}
		c.mu.Unlock()

		return err
	}

	return nil
}

// establish dials, registers the principal and subscribes the configured
// destinations. It flips the state to connected on success.
func (c *Client) establish(ctx context.Context, generation int) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	session, err := c.dial(dialCtx, c.cfg, c.authToken)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = service.ErrConnectTimeout
		}

		return errors.Wrap(err, "push channel connect")
	}

	// Control-plane publish: the server learns which principal owns this
	// connection.
	if c.cfg.RegisterDestination != "" {
		body, _ := json.Marshal(map[string]string{"principalId": c.principalID})
		if err := session.Send(c.cfg.RegisterDestination, "application/json", body); err != nil {
			_ = session.Disconnect()

			return errors.Wrap(err, "register principal")
		}
	}

	subs := make([]brokerSubscription, 0, len(c.cfg.PrivateDestinations)+len(c.cfg.TopicDestinations))
	for _, dest := range c.destinations() {
		sub, err := session.Subscribe(dest)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			_ = session.Disconnect()

			return err
		}
		subs = append(subs, sub)
	}

	c.mu.Lock()
	if c.generation != generation || c.manualClose {
		// Torn down while we were connecting; discard the session.
		c.mu.Unlock()
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		_ = session.Disconnect()

		return errors.New("connection superseded")
	}
	c.session = session
	c.subs = subs
	c.state = entity.ConnConnected
	c.attempts = 0
	c.lastErr = nil
	c.mu.Unlock()

	for _, sub := range subs {
		go c.pump(sub, generation)
	}

	c.logger.Info("push channel connected",
		slog.String("url", c.cfg.URL),
		slog.Int("subscriptions", len(subs)),
	)

	return nil
}

func (c *Client) destinations() []string {
	dests := make([]string, 0, len(c.cfg.PrivateDestinations)+len(c.cfg.TopicDestinations))
	for _, dest := range c.cfg.PrivateDestinations {
		if strings.Contains(dest, "%s") {
			dest = fmt.Sprintf(dest, c.principalID)
		}
		dests = append(dests, dest)
	}
	dests = append(dests, c.cfg.TopicDestinations...)

	return dests
}

// Disconnect tears down cleanly and never triggers the reconnect path.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manualClose = true
	c.generation++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	session := c.session
	subs := c.subs
	c.session = nil
	c.subs = nil
	c.state = entity.ConnDisconnected
	c.attempts = 0
	c.handlers = make(map[string]map[int]service.MessageHandler)
	c.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	if session != nil {
		_ = session.Disconnect()
	}
}

// AddMessageHandler registers a handler keyed by logical event type and
// returns a disposer removing exactly this registration.
func (c *Client) AddMessageHandler(eventType string, handler service.MessageHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextHandlerID
	c.nextHandlerID++

	if c.handlers[eventType] == nil {
		c.handlers[eventType] = make(map[int]service.MessageHandler)
	}
	c.handlers[eventType][id] = handler

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if registered, ok := c.handlers[eventType]; ok {
			delete(registered, id)
			if len(registered) == 0 {
				delete(c.handlers, eventType)
			}
		}
	}
}

// Publish is fire-and-forget: false when not connected or the send
// failed, never an error across the boundary.
func (c *Client) Publish(destination string, body any) bool {
	c.mu.Lock()
	session := c.session
	connected := c.state == entity.ConnConnected
	c.mu.Unlock()

	if !connected || session == nil {
		c.metrics.PublishFailures.Inc()

		return false
	}

	data, err := json.Marshal(body)
	if err != nil {
		c.logger.Warn("push publish payload not serializable", slog.Any("error", err))
		c.metrics.PublishFailures.Inc()

		return false
	}

	if err := session.Send(destination, "application/json", data); err != nil {
		c.logger.Warn("push publish failed",
			slog.String("destination", destination),
			slog.Any("error", err),
		)
		c.metrics.PublishFailures.Inc()

		return false
	}

	return true
}

// State returns a snapshot of the connection state machine.
func (c *Client) State() entity.ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := entity.ConnectionInfo{State: c.state, Attempts: c.attempts}
	if c.lastErr != nil {
		info.LastError = c.lastErr.Error()
	}

	return info
}

// pump drains one subscription, dispatching until it ends. An abnormal
// end enters the reconnect path exactly once per generation.
func (c *Client) pump(sub brokerSubscription, generation int) {
	for msg := range sub.Messages() {
		if msg.Err != nil {
			c.connectionLost(generation, msg.Err)

			return
		}
		c.dispatch(decodeEvent(msg))
	}

	c.connectionLost(generation, errors.New("subscription closed by broker"))
}

// connectionLost handles an abnormal close: it invalidates the current
// session and schedules a backoff reconnect unless the close was
// client-initiated or the attempt cap is reached.
func (c *Client) connectionLost(generation int, cause error) {
	c.mu.Lock()
	if c.generation != generation || c.manualClose {
		c.mu.Unlock()

		return
	}
	c.generation++
	session := c.session
	c.session = nil
	c.subs = nil
	c.state = entity.ConnDisconnected
	c.lastErr = cause

	c.logger.Warn("push channel lost", slog.Any("error", cause))

	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.logger.Error("push channel reconnect attempts exhausted",
			slog.Int("attempts", c.attempts),
		)
		c.mu.Unlock()
		if session != nil {
			_ = session.Disconnect()
		}

		return
	}

	delay := backoffDelay(c.cfg.ReconnectBase, c.attempts)
	c.attempts++
	c.metrics.ReconnectAttempts.Inc()
	c.reconnectTimer = time.AfterFunc(delay, c.tryReconnect)

	c.logger.Info("push channel reconnect scheduled",
		slog.Duration("delay", delay),
		slog.Int("attempt", c.attempts),
	)
	c.mu.Unlock()

	if session != nil {
		_ = session.Disconnect()
	}
}

func (c *Client) tryReconnect() {
	c.mu.Lock()
	if c.manualClose || c.state != entity.ConnDisconnected {
		c.mu.Unlock()

		return
	}
	c.state = entity.ConnConnecting
	generation := c.generation
	c.mu.Unlock()

	err := c.establish(context.Background(), generation)
	if err == nil {
		return
	}

	c.mu.Lock()
	if c.generation != generation || c.manualClose {
		c.mu.Unlock()

		return
	}
	c.state = entity.ConnDisconnected
	c.lastErr = err

	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.logger.Error("push channel reconnect attempts exhausted",
			slog.Int("attempts", c.attempts),
		)
		c.mu.Unlock()

		return
	}

	delay := backoffDelay(c.cfg.ReconnectBase, c.attempts)
	c.attempts++
	c.metrics.ReconnectAttempts.Inc()
	c.reconnectTimer = time.AfterFunc(delay, c.tryReconnect)
	c.mu.Unlock()
}

// dispatch fans one event out to every handler registered for its type.
// Handler panics are recovered so one consumer cannot kill the pump.
func (c *Client) dispatch(evt service.Event) {
	c.mu.Lock()
	registered := c.handlers[evt.Type]
	targets := make([]service.MessageHandler, 0, len(registered))
	for _, handler := range registered {
		targets = append(targets, handler)
	}
	c.mu.Unlock()

	c.metrics.EventsDispatched.WithLabelValues(evt.Type).Inc()

	for _, handler := range targets {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("push handler panicked",
						slog.String("type", evt.Type),
						slog.Any("panic", r),
					)
				}
			}()
			handler(evt)
		}()
	}
}

// maxBackoffDelay caps the reconnect schedule regardless of how many
// attempts the config allows.
const maxBackoffDelay = time.Minute

// backoffDelay is the reconnect schedule: base << attempt, capped at
// maxBackoffDelay. The non-positive check also catches shift overflow.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base << attempt
	if delay <= 0 || delay > maxBackoffDelay {
		return maxBackoffDelay
	}

	return delay
}

// decodeEvent turns one broker frame into a typed event. Malformed JSON
// degrades to a raw-text event instead of being dropped.
func decodeEvent(msg brokerMessage) service.Event {
	evt := service.Event{
		Destination: msg.Destination,
		ReceivedAt:  time.Now(),
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil || payload == nil {
		evt.Type = service.EventTypeRaw
		evt.Raw = string(msg.Body)

		return evt
	}

	evt.Payload = payload
	evt.Type = eventTypeOf(payload, msg.Destination)

	return evt
}

// eventTypeOf resolves the logical event type from the payload's type
// field, falling back to the destination's last path segment.
func eventTypeOf(payload map[string]json.RawMessage, destination string) string {
	if rawType, ok := payload["type"]; ok {
		var typeField string
		if err := json.Unmarshal(rawType, &typeField); err == nil && typeField != "" {
			return normalizeEventType(typeField)
		}
	}

	return normalizeEventType(path.Base(destination))
}

func normalizeEventType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "notification", "notifications":
		return service.EventTypeNotification
	case "order", "orders", "order_update", "order_status":
		return service.EventTypeOrder
	case "chat", "chat_message", "message":
		return service.EventTypeChat
	case "ping", "pong":
		return service.EventTypePing
	default:
		return strings.ToLower(strings.TrimSpace(raw))
	}
}

// checkTokenExpiry rejects an already expired JWT before any network
// call. Opaque tokens pass through; the server remains the authority.
func checkTokenExpiry(authToken string) error {
	if strings.TrimSpace(authToken) == "" {
		return service.ErrTokenExpired
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(authToken, claims); err != nil {
		return nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if exp.Before(time.Now()) {
		return service.ErrTokenExpired
	}

	return nil
}
