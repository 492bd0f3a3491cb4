// Package repository defines the interfaces for the persistence layer.
package repository

import (
	"errors"

	"storefront/internal/domain/entity"
)

// ErrCacheMiss is returned when no usable entry exists for a key. Corrupt
// blobs are discarded and reported the same way, never as a fatal error.
var ErrCacheMiss = errors.New("cache entry not found")

// CacheRepository is the key-scoped local persistence adapter. All keys
// are namespaced by principal so one user's cached state never leaks to
// the next after a principal switch.
type CacheRepository interface {
	// SaveNotifications persists the authoritative notification subset.
	SaveNotifications(principalID string, list []entity.Notification) error

	// LoadNotifications returns the cached list, or ErrCacheMiss.
	LoadNotifications(principalID string) ([]entity.Notification, error)

	// SaveAudioEnabled persists the sound preference flag.
	SaveAudioEnabled(principalID string, enabled bool) error

	// LoadAudioEnabled returns the sound preference, or ErrCacheMiss.
	LoadAudioEnabled(principalID string) (bool, error)

	// ClearPrincipal removes every key in the principal's namespace.
	ClearPrincipal(principalID string) error

	Close() error
}
