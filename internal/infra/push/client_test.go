package push

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"storefront/config"
	"storefront/internal/domain/entity"
	"storefront/internal/domain/service"
	"storefront/internal/errors"
	"storefront/internal/infra/metrics"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscription struct {
	destination string
	messages    chan brokerMessage

	mu           sync.Mutex
	unsubscribed bool
}

func (s *fakeSubscription) Messages() <-chan brokerMessage { return s.messages }

func (s *fakeSubscription) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.unsubscribed {
		s.unsubscribed = true
		close(s.messages)
	}

	return nil
}

type sentFrame struct {
	destination string
	body        string
}

type fakeSession struct {
	mu           sync.Mutex
	sent         []sentFrame
	subs         []*fakeSubscription
	disconnected bool
	sendErr      error
}

func (s *fakeSession) Send(destination, contentType string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, sentFrame{destination: destination, body: string(body)})

	return nil
}

func (s *fakeSession) Subscribe(destination string) (brokerSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &fakeSubscription{destination: destination, messages: make(chan brokerMessage, 8)}
	s.subs = append(s.subs, sub)

	return sub, nil
}

func (s *fakeSession) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected = true

	return nil
}

func (s *fakeSession) subscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.subs)
}

func (s *fakeSession) sentFrames() []sentFrame {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]sentFrame(nil), s.sent...)
}

type fakeDialer struct {
	mu       sync.Mutex
	sessions []*fakeSession
	err      error
}

func (d *fakeDialer) dial(_ context.Context, _ *config.PushConfig, _ string) (brokerSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	session := &fakeSession{}
	d.sessions = append(d.sessions, session)

	return session, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.sessions)
}

func (d *fakeDialer) lastSession() *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sessions) == 0 {
		return nil
	}

	return d.sessions[len(d.sessions)-1]
}

func testPushConfig() *config.PushConfig {
	return &config.PushConfig{
		URL:                  "ws://broker.test/ws",
		ConnectTimeout:       time.Second,
		HeartBeat:            time.Second,
		ReconnectBase:        5 * time.Millisecond,
		MaxReconnectAttempts: 3,
		RegisterDestination:  "/app/register",
		PrivateDestinations:  []string{"/user/%s/queue/orders", "/user/%s/queue/notifications"},
		TopicDestinations:    []string{"/topic/chat"},
		ChatSendDestination:  "/app/chat.send",
	}
}

func newTestClient(t *testing.T) (*Client, *fakeDialer) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := newClient(testPushConfig(), logger, metrics.New())
	dialer := &fakeDialer{}
	client.dial = dialer.dial

	return client, dialer
}

func freshToken(t *testing.T, expiry time.Time) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-7",
		"exp": expiry.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	return token
}

func TestClient_ConnectSubscribesAndRegisters(t *testing.T) {
	client, dialer := newTestClient(t)

	err := client.Connect(context.Background(), "user-7", freshToken(t, time.Now().Add(time.Hour)))
	require.NoError(t, err)

	session := dialer.lastSession()
	require.NotNil(t, session)
	assert.Equal(t, 3, session.subscriptionCount())
	assert.Equal(t, entity.ConnConnected, client.State().State)

	frames := session.sentFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, "/app/register", frames[0].destination)
	assert.Contains(t, frames[0].body, "user-7")

	// Private destinations are expanded with the principal id.
	assert.Equal(t, "/user/user-7/queue/orders", session.subs[0].destination)
}

func TestClient_ConnectTwiceIsIdempotent(t *testing.T) {
	client, dialer := newTestClient(t)
	token := freshToken(t, time.Now().Add(time.Hour))

	require.NoError(t, client.Connect(context.Background(), "user-7", token))
	require.NoError(t, client.Connect(context.Background(), "user-7", token))

	assert.Equal(t, 1, dialer.dialCount())
	assert.Equal(t, 3, dialer.lastSession().subscriptionCount())
}

func TestClient_ConnectRejectsMissingPrincipal(t *testing.T) {
	client, dialer := newTestClient(t)

	err := client.Connect(context.Background(), "  ", freshToken(t, time.Now().Add(time.Hour)))

	assert.ErrorIs(t, err, service.ErrMissingPrincipal)
	assert.Zero(t, dialer.dialCount())
}

func TestClient_ConnectRejectsExpiredToken(t *testing.T) {
	client, dialer := newTestClient(t)

	err := client.Connect(context.Background(), "user-7", freshToken(t, time.Now().Add(-time.Hour)))

	assert.ErrorIs(t, err, service.ErrTokenExpired)
	assert.Zero(t, dialer.dialCount())
}

func TestClient_ConnectFailureSurfacesError(t *testing.T) {
	client, dialer := newTestClient(t)
	dialer.err = errors.New("broker unreachable")

	err := client.Connect(context.Background(), "user-7", freshToken(t, time.Now().Add(time.Hour)))

	require.Error(t, err)
	info := client.State()
	assert.Equal(t, entity.ConnDisconnected, info.State)
	assert.Contains(t, info.LastError, "broker unreachable")
}

func TestClient_CleanDisconnectDoesNotReconnect(t *testing.T) {
	client, dialer := newTestClient(t)

	require.NoError(t, client.Connect(context.Background(), "user-7", freshToken(t, time.Now().Add(time.Hour))))
	client.Disconnect()

	// Give any stray reconnect timer a chance to fire.
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, dialer.dialCount())
	assert.Equal(t, entity.ConnDisconnected, client.State().State)
	assert.True(t, dialer.lastSession().disconnected)
}

func TestClient_AbnormalCloseSchedulesReconnect(t *testing.T) {
	client, dialer := newTestClient(t)

	require.NoError(t, client.Connect(context.Background(), "user-7", freshToken(t, time.Now().Add(time.Hour))))
	first := dialer.lastSession()

	first.subs[0].messages <- brokerMessage{Err: errors.New("connection reset")}

	assert.Eventually(t, func() bool {
		return dialer.dialCount() == 2 && client.State().State == entity.ConnConnected
	}, time.Second, 5*time.Millisecond)
}

func TestClient_ReconnectStopsAtAttemptCap(t *testing.T) {
	client, dialer := newTestClient(t)

	require.NoError(t, client.Connect(context.Background(), "user-7", freshToken(t, time.Now().Add(time.Hour))))

	// Every redial fails from now on.
	dialer.mu.Lock()
	session := dialer.sessions[0]
	dialer.err = errors.New("broker gone")
	dialer.mu.Unlock()

	session.subs[0].messages <- brokerMessage{Err: errors.New("connection reset")}

	assert.Eventually(t, func() bool {
		info := client.State()

		return info.State == entity.ConnDisconnected && info.Attempts == 3
	}, time.Second, 5*time.Millisecond)

	// No further attempts after the cap.
	count := dialer.dialCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, count, dialer.dialCount())
}

func TestBackoffDelay_StrictlyGrows(t *testing.T) {
	base := 100 * time.Millisecond

	previous := time.Duration(0)
	for attempt := 0; attempt < 5; attempt++ {
		delay := backoffDelay(base, attempt)
		assert.Greater(t, delay, previous)
		previous = delay
	}

	assert.Equal(t, 100*time.Millisecond, backoffDelay(base, 0))
	assert.Equal(t, 400*time.Millisecond, backoffDelay(base, 2))
}

func TestBackoffDelay_Capped(t *testing.T) {
	assert.Equal(t, maxBackoffDelay, backoffDelay(time.Second, 10))
	assert.Equal(t, maxBackoffDelay, backoffDelay(time.Second, 40))

	// Shift overflow lands on the cap, not on a zero or negative delay.
	assert.Equal(t, maxBackoffDelay, backoffDelay(time.Second, 63))
}

func TestClient_HandlerRegistryFanOutAndDisposal(t *testing.T) {
	client, _ := newTestClient(t)

	var mu sync.Mutex
	var got []string

	removeA := client.AddMessageHandler(service.EventTypeChat, func(evt service.Event) {
		mu.Lock()
		got = append(got, "a:"+evt.String("text"))
		mu.Unlock()
	})
	client.AddMessageHandler(service.EventTypeChat, func(evt service.Event) {
		mu.Lock()
		got = append(got, "b:"+evt.String("text"))
		mu.Unlock()
	})

	client.dispatch(decodeEvent(brokerMessage{
		Destination: "/topic/chat",
		Body:        []byte(`{"type":"chat_message","text":"hi"}`),
	}))

	mu.Lock()
	assert.ElementsMatch(t, []string{"a:hi", "b:hi"}, got)
	got = nil
	mu.Unlock()

	removeA()
	client.dispatch(decodeEvent(brokerMessage{
		Destination: "/topic/chat",
		Body:        []byte(`{"type":"chat_message","text":"again"}`),
	}))

	mu.Lock()
	assert.Equal(t, []string{"b:again"}, got)
	mu.Unlock()
}

func TestClient_DispatchRecoversHandlerPanic(t *testing.T) {
	client, _ := newTestClient(t)

	client.AddMessageHandler(service.EventTypePing, func(service.Event) {
		panic("boom")
	})

	assert.NotPanics(t, func() {
		client.dispatch(service.Event{Type: service.EventTypePing})
	})
}

func TestClient_PublishRequiresConnection(t *testing.T) {
	client, dialer := newTestClient(t)

	assert.False(t, client.Publish("/app/chat.send", map[string]string{"text": "hi"}))

	require.NoError(t, client.Connect(context.Background(), "user-7", freshToken(t, time.Now().Add(time.Hour))))
	assert.True(t, client.Publish("/app/chat.send", map[string]string{"text": "hi"}))

	frames := dialer.lastSession().sentFrames()
	assert.Equal(t, "/app/chat.send", frames[len(frames)-1].destination)
	assert.Contains(t, frames[len(frames)-1].body, "hi")
}

func TestDecodeEvent_MalformedBodyFallsBackToRaw(t *testing.T) {
	evt := decodeEvent(brokerMessage{Destination: "/topic/chat", Body: []byte("not-json")})

	assert.Equal(t, service.EventTypeRaw, evt.Type)
	assert.Equal(t, "not-json", evt.Raw)
	assert.Nil(t, evt.Payload)
}

func TestDecodeEvent_TypeFromDestination(t *testing.T) {
	evt := decodeEvent(brokerMessage{
		Destination: "/user/user-7/queue/notifications",
		Body:        []byte(`{"title":"Order ready"}`),
	})

	assert.Equal(t, service.EventTypeNotification, evt.Type)
	assert.Equal(t, "Order ready", evt.String("title"))
}
