package impl

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"storefront/config"
	"storefront/internal/domain/entity"
	"storefront/internal/domain/repository"
	"storefront/internal/domain/service"
)

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConfig() *config.Config {
	cfg := &config.Config{
		Push: &config.PushConfig{
			URL:                 "wss://example.test/ws",
			ChatSendDestination: "/app/chat/send",
		},
		Notifications: &config.NotificationConfig{
			MaxRetained:   50,
			RefetchDelay:  10 * time.Millisecond,
			Retention:     7 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Chat: &config.ChatConfig{
			PageSize:          20,
			DeliveredFallback: 15 * time.Millisecond,
		},
	}
	cfg.Principal.ID = "user-1"

	return cfg
}

// rawPayload builds an event payload from plain values.
func rawPayload(fields map[string]any) map[string]json.RawMessage {
	payload := make(map[string]json.RawMessage, len(fields))
	for key, value := range fields {
		data, err := json.Marshal(value)
		if err != nil {
			panic(err)
		}
		payload[key] = data
	}

	return payload
}

type fakeNotificationGateway struct {
	mu sync.Mutex

	listResult   []entity.Notification
	listErr      error
	listCalls    int
	markReadIDs  []string
	markAllCalls int
	deleteIDs    []string
	deleteAll    int

	markReadErr error
}

func (f *fakeNotificationGateway) List(context.Context) ([]entity.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]entity.Notification, len(f.listResult))
	copy(out, f.listResult)

	return out, nil
}

func (f *fakeNotificationGateway) UnreadCount(context.Context) (int, error) { return 0, nil }

func (f *fakeNotificationGateway) MarkRead(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadIDs = append(f.markReadIDs, id)

	return f.markReadErr
}

func (f *fakeNotificationGateway) MarkAllRead(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markAllCalls++

	return nil
}

func (f *fakeNotificationGateway) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteIDs = append(f.deleteIDs, id)

	return nil
}

func (f *fakeNotificationGateway) DeleteAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteAll++

	return nil
}

func (f *fakeNotificationGateway) calls() (list, markAll, deleteAll int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.listCalls, f.markAllCalls, f.deleteAll
}

type fakeChatGateway struct {
	mu sync.Mutex

	historyPages     map[int]entity.HistoryPage
	historyErr       error
	unread           int
	unreadErr        error
	markReadIDs      []string
	markReadErr      error
	conversations    []entity.ConversationSummary
	conversationsErr error
}

func (f *fakeChatGateway) History(_ context.Context, _ string, page, _ int) (entity.HistoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.historyErr != nil {
		return entity.HistoryPage{}, f.historyErr
	}

	return f.historyPages[page], nil
}

func (f *fakeChatGateway) UnreadCount(context.Context, string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.unread, f.unreadErr
}

func (f *fakeChatGateway) MarkRead(_ context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadIDs = append(f.markReadIDs, messageID)

	return f.markReadErr
}

func (f *fakeChatGateway) Conversations(context.Context) ([]entity.ConversationSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conversationsErr != nil {
		return nil, f.conversationsErr
	}
	out := make([]entity.ConversationSummary, len(f.conversations))
	copy(out, f.conversations)

	return out, nil
}

func (f *fakeChatGateway) receipts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.markReadIDs))
	copy(out, f.markReadIDs)

	return out
}

type fakeCache struct {
	mu sync.Mutex

	notifications map[string][]entity.Notification
	audio         map[string]bool
	saves         int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		notifications: make(map[string][]entity.Notification),
		audio:         make(map[string]bool),
	}
}

func (f *fakeCache) SaveNotifications(principalID string, list []entity.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored := make([]entity.Notification, len(list))
	copy(stored, list)
	f.notifications[principalID] = stored
	f.saves++

	return nil
}

func (f *fakeCache) LoadNotifications(principalID string) ([]entity.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	list, ok := f.notifications[principalID]
	if !ok {
		return nil, repository.ErrCacheMiss
	}
	out := make([]entity.Notification, len(list))
	copy(out, list)

	return out, nil
}

func (f *fakeCache) SaveAudioEnabled(principalID string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio[principalID] = enabled

	return nil
}

func (f *fakeCache) LoadAudioEnabled(principalID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	enabled, ok := f.audio[principalID]
	if !ok {
		return false, repository.ErrCacheMiss
	}

	return enabled, nil
}

func (f *fakeCache) ClearPrincipal(principalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.notifications, principalID)
	delete(f.audio, principalID)

	return nil
}

func (f *fakeCache) Close() error { return nil }

type fakeAlerter struct {
	mu       sync.Mutex
	notified []entity.Notification
}

func (f *fakeAlerter) Notify(n entity.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, n)
}

func (f *fakeAlerter) State() service.AlertState { return service.AlertState{} }

func (f *fakeAlerter) Close() {}

func (f *fakeAlerter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.notified)
}

type publishedFrame struct {
	destination string
	body        any
}

type fakePushChannel struct {
	mu sync.Mutex

	state     entity.ConnectionInfo
	publishOK bool
	published []publishedFrame
	handlers  map[string][]service.MessageHandler
	disposed  int
}

func newFakePush(connected bool) *fakePushChannel {
	state := entity.ConnectionInfo{State: entity.ConnDisconnected}
	if connected {
		state.State = entity.ConnConnected
	}

	return &fakePushChannel{
		state:     state,
		publishOK: true,
		handlers:  make(map[string][]service.MessageHandler),
	}
}

func (f *fakePushChannel) Connect(context.Context, string, string) error { return nil }

func (f *fakePushChannel) Disconnect() {}

func (f *fakePushChannel) AddMessageHandler(eventType string, handler service.MessageHandler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[eventType] = append(f.handlers[eventType], handler)

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.disposed++
	}
}

func (f *fakePushChannel) Publish(destination string, body any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.publishOK {
		return false
	}
	f.published = append(f.published, publishedFrame{destination: destination, body: body})

	return true
}

func (f *fakePushChannel) State() entity.ConnectionInfo {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.state
}

func (f *fakePushChannel) frames() []publishedFrame {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]publishedFrame, len(f.published))
	copy(out, f.published)

	return out
}
