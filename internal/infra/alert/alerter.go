// Package alert derives the UI side effects of incoming notifications:
// the bounded shake flag, the sound variant and the platform tag.
package alert

import (
	"log/slog"
	"sync"
	"time"

	"storefront/config"
	"storefront/internal/domain/entity"
	"storefront/internal/domain/repository"
	"storefront/internal/domain/service"
	"storefront/internal/errors"
)

const defaultShakeDuration = 1200 * time.Millisecond

// Sound variants the UI maps onto actual assets.
const (
	SoundOrder  = "order"
	SoundSystem = "system"
)

// Alerter implements service.Alerter.
type Alerter struct {
	mu         sync.Mutex
	state      service.AlertState
	shakeTimer *time.Timer
	closed     bool

	shakeDuration time.Duration
	principalID   string
	cache         repository.CacheRepository
	logger        *slog.Logger
}

// New builds the alerter. The audio preference is read from the cache on
// every notification so a toggle takes effect without a restart.
func New(cfg *config.Config, cache repository.CacheRepository, logger *slog.Logger) *Alerter {
	duration := defaultShakeDuration
	if cfg.Notifications != nil && cfg.Notifications.ShakeDuration > 0 {
		duration = cfg.Notifications.ShakeDuration
	}

	return &Alerter{
		shakeDuration: duration,
		principalID:   cfg.Principal.ID,
		cache:         cache,
		logger:        logger,
	}
}

// Notify raises the shake flag, picks the sound variant and computes the
// collapse tag for one incoming notification. Read entries never alert.
func (a *Alerter) Notify(n entity.Notification) {
	if n.Read {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	a.state.Shaking = true
	a.state.Sound = a.soundFor(n)
	a.state.Tag = tagFor(n)

	if a.shakeTimer != nil {
		a.shakeTimer.Stop()
	}
	a.shakeTimer = time.AfterFunc(a.shakeDuration, a.clearShake)
}

// State returns a copy of the current side-effect state.
func (a *Alerter) State() service.AlertState {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.state
}

// Close stops the pending shake timer and freezes the state.
func (a *Alerter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	if a.shakeTimer != nil {
		a.shakeTimer.Stop()
		a.shakeTimer = nil
	}
	a.state = service.AlertState{}
}

func (a *Alerter) clearShake() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.state.Shaking = false
}

func (a *Alerter) soundFor(n entity.Notification) string {
	enabled, err := a.cache.LoadAudioEnabled(a.principalID)
	if err != nil {
		if !errors.Is(err, repository.ErrCacheMiss) {
			a.logger.Warn("read audio preference", slog.Any("error", err))
		}
		// Unknown preference defaults to audible.
		enabled = true
	}
	if !enabled {
		return ""
	}

	if n.Type == entity.NotificationSystem {
		return SoundSystem
	}

	return SoundOrder
}

// tagFor collapses repeated alerts for the same order into a single
// platform notification.
func tagFor(n entity.Notification) string {
	if n.Order != nil && n.Order.OrderCode != "" {
		return "order-" + n.Order.OrderCode
	}

	return "system"
}
