// Package localstore persists per-principal state in an embedded pebble
// database so the UI has something to show before the first fetch.
package localstore

import (
	"encoding/json"
	"log/slog"

	"github.com/cockroachdb/pebble"

	"storefront/config"
	"storefront/internal/domain/entity"
	"storefront/internal/domain/repository"
	"storefront/internal/errors"
	"storefront/internal/util"
)

const (
	notificationsSuffix = "/notifications"
	audioSuffix         = "/audio"
)

// ownerKey records which principal the cache currently belongs to.
var ownerKey = []byte("meta.owner")

// Store implements repository.CacheRepository on pebble.
type Store struct {
	db     *pebble.DB
	logger *slog.Logger
}

// New opens the cache database at the configured path.
func New(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	path := "storefront-cache"
	if cfg.Cache != nil && cfg.Cache.Path != "" {
		path = cfg.Cache.Path
	}

	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "open cache db")
	}

	logger.Info("cache db opened",
		slog.String("path", path),
		slog.String("size", util.FormatBytes(int64(db.Metrics().DiskSpaceUsage()))),
	)

	store := &Store{db: db, logger: logger}
	if err := store.adoptPrincipal(cfg.Principal.ID); err != nil {
		_ = db.Close()

		return nil, err
	}

	return store, nil
}

func (s *Store) SaveNotifications(principalID string, list []entity.Notification) error {
	data, err := json.Marshal(list)
	if err != nil {
		return errors.Wrap(err, "encode notifications")
	}

	return errors.Wrap(s.db.Set(notificationsKey(principalID), data, pebble.Sync), "save notifications")
}

func (s *Store) LoadNotifications(principalID string) ([]entity.Notification, error) {
	data, err := s.get(notificationsKey(principalID))
	if err != nil {
		return nil, err
	}

	var list []entity.Notification
	if err := json.Unmarshal(data, &list); err != nil {
		// A corrupt blob is worth less than an empty cache. Drop it and
		// report a miss so the caller falls back to the server.
		s.logger.Warn("discarding corrupt notification cache", slog.String("principal", principalID))
		_ = s.db.Delete(notificationsKey(principalID), pebble.Sync)

		return nil, repository.ErrCacheMiss
	}

	return list, nil
}

func (s *Store) SaveAudioEnabled(principalID string, enabled bool) error {
	value := []byte("0")
	if enabled {
		value = []byte("1")
	}

	return errors.Wrap(s.db.Set(audioKey(principalID), value, pebble.Sync), "save audio preference")
}

func (s *Store) LoadAudioEnabled(principalID string) (bool, error) {
	data, err := s.get(audioKey(principalID))
	if err != nil {
		return false, err
	}

	switch string(data) {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		_ = s.db.Delete(audioKey(principalID), pebble.Sync)

		return false, repository.ErrCacheMiss
	}
}

// adoptPrincipal clears the previous principal's namespace when the cache
// is reopened for a different principal, so one user never sees another's
// cached notifications.
func (s *Store) adoptPrincipal(principalID string) error {
	previous, err := s.get(ownerKey)
	if err != nil && !errors.Is(err, repository.ErrCacheMiss) {
		return err
	}
	if err == nil && string(previous) != principalID {
		s.logger.Info("cache principal changed, clearing previous namespace")
		if err := s.ClearPrincipal(string(previous)); err != nil {
			return err
		}
	}

	return errors.Wrap(s.db.Set(ownerKey, []byte(principalID), pebble.Sync), "record cache owner")
}

func (s *Store) ClearPrincipal(principalID string) error {
	start := []byte(principalID + "/")
	end := []byte(principalID + "0") // '0' follows '/' in byte order

	return errors.Wrap(s.db.DeleteRange(start, end, pebble.Sync), "clear principal namespace")
}

func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "close cache db")
}

func (s *Store) get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, repository.ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, "read cache entry")
	}
	defer func() { _ = closer.Close() }()

	data := make([]byte, len(value))
	copy(data, value)

	return data, nil
}

func notificationsKey(principalID string) []byte {
	return []byte(principalID + notificationsSuffix)
}

func audioKey(principalID string) []byte {
	return []byte(principalID + audioSuffix)
}
