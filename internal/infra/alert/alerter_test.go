package alert

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/config"
	"storefront/internal/domain/entity"
	"storefront/internal/domain/repository"
	"storefront/internal/domain/service"
)

type fakeCache struct {
	repository.CacheRepository

	audio    bool
	audioErr error
}

func (f *fakeCache) LoadAudioEnabled(string) (bool, error) {
	return f.audio, f.audioErr
}

func newTestAlerter(t *testing.T, cache *fakeCache, shake time.Duration) *Alerter {
	t.Helper()

	cfg := &config.Config{Notifications: &config.NotificationConfig{ShakeDuration: shake}}
	cfg.Principal.ID = "user-1"

	a := New(cfg, cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(a.Close)

	return a
}

func orderNotification(code string) entity.Notification {
	return entity.Notification{
		ID:    "n1",
		Type:  entity.NotificationOrderConfirmed,
		Order: &entity.OrderData{OrderCode: code, OrderStatus: "CONFIRMED"},
	}
}

func TestAlerter_NotifyRaisesShakeAndAutoClears(t *testing.T) {
	a := newTestAlerter(t, &fakeCache{audio: true}, 20*time.Millisecond)

	a.Notify(orderNotification("OD-1"))

	state := a.State()
	assert.True(t, state.Shaking)
	assert.Equal(t, SoundOrder, state.Sound)
	assert.Equal(t, "order-OD-1", state.Tag)

	require.Eventually(t, func() bool {
		return !a.State().Shaking
	}, time.Second, 5*time.Millisecond)

	// Sound and tag survive the shake window so the UI can still render them.
	assert.Equal(t, "order-OD-1", a.State().Tag)
}

func TestAlerter_ReadNotificationDoesNotAlert(t *testing.T) {
	a := newTestAlerter(t, &fakeCache{audio: true}, time.Minute)

	n := orderNotification("OD-1")
	n.Read = true
	a.Notify(n)

	assert.Equal(t, "", a.State().Tag)
	assert.False(t, a.State().Shaking)
}

func TestAlerter_SoundVariants(t *testing.T) {
	tests := []struct {
		name  string
		cache *fakeCache
		n     entity.Notification
		want  string
	}{
		{
			name:  "order sound",
			cache: &fakeCache{audio: true},
			n:     orderNotification("OD-1"),
			want:  SoundOrder,
		},
		{
			name:  "system sound",
			cache: &fakeCache{audio: true},
			n:     entity.Notification{ID: "n2", Type: entity.NotificationSystem},
			want:  SoundSystem,
		},
		{
			name:  "audio disabled",
			cache: &fakeCache{audio: false},
			n:     orderNotification("OD-1"),
			want:  "",
		},
		{
			name:  "unknown preference defaults audible",
			cache: &fakeCache{audioErr: repository.ErrCacheMiss},
			n:     orderNotification("OD-1"),
			want:  SoundOrder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAlerter(t, tt.cache, time.Minute)
			a.Notify(tt.n)
			assert.Equal(t, tt.want, a.State().Sound)
		})
	}
}

func TestAlerter_SystemTagCollapses(t *testing.T) {
	a := newTestAlerter(t, &fakeCache{audio: true}, time.Minute)

	a.Notify(entity.Notification{ID: "s1", Type: entity.NotificationSystem})
	first := a.State().Tag
	a.Notify(entity.Notification{ID: "s2", Type: entity.NotificationSystem})

	assert.Equal(t, first, a.State().Tag)
	assert.Equal(t, "system", a.State().Tag)
}

func TestAlerter_CloseStopsAlerting(t *testing.T) {
	a := newTestAlerter(t, &fakeCache{audio: true}, time.Minute)

	a.Close()
	a.Notify(orderNotification("OD-1"))

	assert.Equal(t, service.AlertState{}, a.State())
}
