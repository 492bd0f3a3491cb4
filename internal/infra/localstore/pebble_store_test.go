package localstore

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/config"
	"storefront/internal/domain/entity"
	"storefront/internal/domain/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	cfg := &config.Config{Cache: &config.CacheConfig{Path: t.TempDir() + "/cache"}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestStore_NotificationsRoundTrip(t *testing.T) {
	store := newTestStore(t)

	list := []entity.Notification{
		{
			ID:        "n1",
			Type:      entity.NotificationOrderConfirmed,
			Title:     "Order confirmed",
			Timestamp: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
			Order:     &entity.OrderData{OrderCode: "OD-1", OrderStatus: "CONFIRMED"},
		},
		{ID: "n2", Type: entity.NotificationSystem, Read: true},
	}

	require.NoError(t, store.SaveNotifications("user-1", list))

	got, err := store.LoadNotifications("user-1")
	require.NoError(t, err)
	assert.Equal(t, list, got)
}

func TestStore_LoadMissReturnsErrCacheMiss(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadNotifications("nobody")
	assert.ErrorIs(t, err, repository.ErrCacheMiss)

	_, err = store.LoadAudioEnabled("nobody")
	assert.ErrorIs(t, err, repository.ErrCacheMiss)
}

func TestStore_CorruptBlobDiscardedAsMiss(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.db.Set(notificationsKey("user-1"), []byte("{not json"), pebble.Sync))

	_, err := store.LoadNotifications("user-1")
	assert.ErrorIs(t, err, repository.ErrCacheMiss)

	// The corrupt entry is gone, not retried forever.
	_, _, err = store.db.Get(notificationsKey("user-1"))
	assert.ErrorIs(t, err, pebble.ErrNotFound)
}

func TestStore_AudioPreference(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveAudioEnabled("user-1", true))
	enabled, err := store.LoadAudioEnabled("user-1")
	require.NoError(t, err)
	assert.True(t, enabled)

	require.NoError(t, store.SaveAudioEnabled("user-1", false))
	enabled, err = store.LoadAudioEnabled("user-1")
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestStore_ReopenForNewPrincipalClearsOldNamespace(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := t.TempDir() + "/cache"

	cfg := &config.Config{Cache: &config.CacheConfig{Path: path}}
	cfg.Principal.ID = "user-1"

	store, err := New(cfg, logger)
	require.NoError(t, err)
	require.NoError(t, store.SaveNotifications("user-1", []entity.Notification{{ID: "n1"}}))
	require.NoError(t, store.Close())

	cfg.Principal.ID = "user-2"
	store, err = New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.LoadNotifications("user-1")
	assert.ErrorIs(t, err, repository.ErrCacheMiss)
}

func TestStore_ClearPrincipalIsNamespaced(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveNotifications("user-1", []entity.Notification{{ID: "n1"}}))
	require.NoError(t, store.SaveAudioEnabled("user-1", true))
	require.NoError(t, store.SaveNotifications("user-2", []entity.Notification{{ID: "other"}}))

	require.NoError(t, store.ClearPrincipal("user-1"))

	_, err := store.LoadNotifications("user-1")
	assert.ErrorIs(t, err, repository.ErrCacheMiss)
	_, err = store.LoadAudioEnabled("user-1")
	assert.ErrorIs(t, err, repository.ErrCacheMiss)

	kept, err := store.LoadNotifications("user-2")
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.Equal(t, "other", kept[0].ID)
}
