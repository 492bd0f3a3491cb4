package impl

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/config"
	"storefront/internal/domain/entity"
	"storefront/internal/domain/lifecycle"
	"storefront/internal/domain/repository"
	"storefront/internal/domain/service"
	"storefront/internal/errors"
	"storefront/internal/infra/metrics"
	"storefront/internal/usecase"
	"storefront/internal/util"
)

const (
	defaultMaxRetained  = 50
	defaultRefetchDelay = 3 * time.Second
	defaultRetention    = 7 * 24 * time.Hour
	defaultSweep        = time.Hour
)

type notificationService struct {
	mu           sync.Mutex
	list         []entity.Notification
	refetchTimer *time.Timer
	disposers    []func()
	sweepStop    chan struct{}
	closed       bool

	principalID  string
	maxRetained  int
	refetchDelay time.Duration
	retention    time.Duration
	sweepEvery   time.Duration

	gateway service.NotificationGateway
	cache   repository.CacheRepository
	push    service.PushChannel
	alerter service.Alerter
	metrics *metrics.Metrics
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewNotificationService creates the engine reconciling the REST snapshot
// with the push stream into one deduplicated notification list.
func NewNotificationService(
	cfg *config.Config,
	gateway service.NotificationGateway,
	cache repository.CacheRepository,
	push service.PushChannel,
	alerter service.Alerter,
	m *metrics.Metrics,
	logger *slog.Logger,
) usecase.NotificationUsecase {
	s := &notificationService{
		principalID:  cfg.Principal.ID,
		maxRetained:  defaultMaxRetained,
		refetchDelay: defaultRefetchDelay,
		retention:    defaultRetention,
		sweepEvery:   defaultSweep,
		sweepStop:    make(chan struct{}),
		gateway:      gateway,
		cache:        cache,
		push:         push,
		alerter:      alerter,
		metrics:      m,
		logger:       logger,
		nowFunc:      time.Now,
	}

	if nc := cfg.Notifications; nc != nil {
		if nc.MaxRetained > 0 {
			s.maxRetained = nc.MaxRetained
		}
		if nc.RefetchDelay > 0 {
			s.refetchDelay = nc.RefetchDelay
		}
		if nc.Retention > 0 {
			s.retention = nc.Retention
		}
		if nc.SweepInterval > 0 {
			s.sweepEvery = nc.SweepInterval
		}
	}

	return s
}

func (s *notificationService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	for _, eventType := range []string{service.EventTypeNotification, service.EventTypeOrder} {
		s.disposers = append(s.disposers, s.push.AddMessageHandler(eventType, s.ApplyPushEvent))
	}

	go s.sweepLoop()
}

func (s *notificationService) LoadFromServer(ctx context.Context) error {
	fetched, err := s.gateway.List(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "load notifications")
		}

		s.logger.Warn("notification fetch failed, falling back to cache", slog.Any("error", err))
		s.loadFromCache()

		return nil
	}

	s.mu.Lock()
	// Authoritative entries win; held provisional entries survive only
	// when the fetch does not already describe them.
	merged := make([]entity.Notification, 0, len(fetched))
	merged = append(merged, fetched...)
	for i := range s.list {
		held := s.list[i]
		if held.Provisional && !entity.IsDuplicate(held, fetched) {
			merged = append(merged, held)
		}
	}
	s.list = s.capSorted(merged)
	s.persistLocked()
	s.updateUnreadGaugeLocked()
	s.mu.Unlock()

	return nil
}

func (s *notificationService) ApplyPushEvent(evt service.Event) {
	n, ok := s.notificationFromEvent(evt)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return
	}

	if entity.IsDuplicate(n, s.list) {
		s.metrics.DuplicatesSuppressed.Inc()
		s.mu.Unlock()

		return
	}

	s.list = s.capSorted(append(s.list, n))
	s.persistLocked()
	s.updateUnreadGaugeLocked()
	s.scheduleRefetchLocked()
	s.mu.Unlock()

	s.alerter.Notify(n)
}

func (s *notificationService) Notifications() []entity.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]entity.Notification, len(s.list))
	copy(out, s.list)

	return out
}

func (s *notificationService) Counters() usecase.NotificationCounters {
	s.mu.Lock()
	defer s.mu.Unlock()

	counters := usecase.NotificationCounters{Total: len(s.list)}
	for i := range s.list {
		if !s.list[i].Read {
			counters.Unread++
		}
		if s.list[i].Priority == entity.PriorityHigh {
			counters.HighPriority++
		}
	}

	return counters
}

func (s *notificationService) MarkAsRead(ctx context.Context, id string) {
	s.mu.Lock()
	var target *entity.Notification
	for i := range s.list {
		if s.list[i].ID == id {
			target = &s.list[i]

			break
		}
	}
	if target == nil || target.Read {
		s.mu.Unlock()

		return
	}

	target.MarkRead(s.nowFunc())
	provisional := target.Provisional
	s.persistLocked()
	s.updateUnreadGaugeLocked()
	s.mu.Unlock()

	// Provisional ids are minted locally; the server has never heard of
	// them, so there is nothing to sync until the re-fetch replaces them.
	if provisional {
		return
	}

	if err := s.gateway.MarkRead(ctx, id); err != nil {
		s.logger.Warn("mark read sync failed", slog.String("id", id), slog.Any("error", err))
	}
}

func (s *notificationService) MarkAllAsRead(ctx context.Context) {
	s.mu.Lock()
	now := s.nowFunc()
	changed := false
	for i := range s.list {
		if !s.list[i].Read {
			s.list[i].MarkRead(now)
			changed = true
		}
	}
	if changed {
		s.persistLocked()
		s.updateUnreadGaugeLocked()
	}
	s.mu.Unlock()

	if !changed {
		return
	}

	if err := s.gateway.MarkAllRead(ctx); err != nil {
		s.logger.Warn("mark all read sync failed", slog.Any("error", err))
	}
}

func (s *notificationService) Remove(ctx context.Context, id string) {
	s.mu.Lock()
	found := false
	provisional := false
	kept := s.list[:0]
	for i := range s.list {
		if s.list[i].ID == id {
			found = true
			provisional = s.list[i].Provisional

			continue
		}
		kept = append(kept, s.list[i])
	}
	if !found {
		s.mu.Unlock()

		return
	}
	s.list = kept
	s.persistLocked()
	s.updateUnreadGaugeLocked()
	s.mu.Unlock()

	if provisional {
		return
	}

	if err := s.gateway.Delete(ctx, id); err != nil {
		s.logger.Warn("delete sync failed", slog.String("id", id), slog.Any("error", err))
	}
}

func (s *notificationService) ClearAll(ctx context.Context) {
	s.mu.Lock()
	s.list = nil
	s.persistLocked()
	s.updateUnreadGaugeLocked()
	s.mu.Unlock()

	if err := s.gateway.DeleteAll(ctx); err != nil {
		s.logger.Warn("clear all sync failed", slog.Any("error", err))
	}
}

func (s *notificationService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	if s.refetchTimer != nil {
		s.refetchTimer.Stop()
		s.refetchTimer = nil
	}
	for _, dispose := range s.disposers {
		dispose()
	}
	s.disposers = nil
	close(s.sweepStop)
}

func (s *notificationService) loadFromCache() {
	cached, err := s.cache.LoadNotifications(s.principalID)
	if err != nil {
		if !errors.Is(err, repository.ErrCacheMiss) {
			s.logger.Warn("notification cache read failed", slog.Any("error", err))
		}

		return
	}

	s.mu.Lock()
	s.list = s.capSorted(cached)
	s.updateUnreadGaugeLocked()
	s.mu.Unlock()
}

// notificationFromEvent builds a provisional entry from a push payload.
// The provisional id is replaced once the authoritative re-fetch lands.
func (s *notificationService) notificationFromEvent(evt service.Event) (entity.Notification, bool) {
	if evt.Type == service.EventTypeRaw || evt.Payload == nil {
		return entity.Notification{}, false
	}

	n := entity.Notification{
		ID:          entity.ProvisionalIDPrefix + uuid.NewString(),
		Type:        entity.ParseNotificationType(evt.String("type")),
		Title:       evt.String("title"),
		Message:     evt.String("message"),
		Priority:    entity.ParsePriority(evt.String("priority")),
		Timestamp:   s.nowFunc(),
		Provisional: true,
	}

	if order := evt.Object("orderData"); order != nil {
		n.Order = orderFromPayload(order)
	} else if code := evt.String("orderCode"); code != "" {
		n.Order = &entity.OrderData{
			OrderCode:   code,
			OrderStatus: evt.String("orderStatus"),
		}
	}

	if n.Title == "" && n.Message == "" && n.Order == nil {
		return entity.Notification{}, false
	}

	return n, true
}

func orderFromPayload(order map[string]json.RawMessage) *entity.OrderData {
	pick := func(field string) string {
		evt := service.Event{Payload: order}

		return evt.String(field)
	}

	return &entity.OrderData{
		ID:            pick("id"),
		OrderCode:     pick("orderCode"),
		OrderStatus:   pick("orderStatus"),
		TotalPrice:    service.Event{Payload: order}.Float("totalPrice"),
		ReceiverName:  pick("receiverName"),
		ReceiverPhone: pick("receiverPhone"),
	}
}

// scheduleRefetchLocked arms the delayed authoritative re-fetch. A burst
// of push events coalesces into a single fetch.
func (s *notificationService) scheduleRefetchLocked() {
	if s.refetchTimer != nil || s.closed {
		return
	}

	s.refetchTimer = time.AfterFunc(s.refetchDelay, func() {
		s.mu.Lock()
		s.refetchTimer = nil
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), lifecycle.DefaultTimeout)
		defer cancel()
		_ = s.LoadFromServer(ctx)
	})
}

func (s *notificationService) sweepLoop() {
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-s.sweepStop:
			return
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}

// sweepExpired drops read entries whose read time fell out of the
// retention window. Unread entries are never swept.
func (s *notificationService) sweepExpired() {
	cutoff := s.nowFunc().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.list[:0]
	for i := range s.list {
		n := s.list[i]
		readAt := n.Timestamp
		if n.ReadAt != nil {
			readAt = *n.ReadAt
		}
		if n.Read && readAt.Before(cutoff) {
			continue
		}
		kept = append(kept, n)
	}
	if swept := len(s.list) - len(kept); swept > 0 {
		s.list = kept
		s.persistLocked()
		s.logger.Info("expired notifications swept",
			slog.Int("count", swept),
			slog.String("retention", util.FormatDuration(s.retention)),
		)
	}
}

func (s *notificationService) capSorted(list []entity.Notification) []entity.Notification {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Timestamp.After(list[j].Timestamp)
	})
	if len(list) > s.maxRetained {
		list = list[:s.maxRetained]
	}

	return list
}

func (s *notificationService) persistLocked() {
	if err := s.cache.SaveNotifications(s.principalID, s.list); err != nil {
		s.logger.Warn("notification cache write failed", slog.Any("error", err))
	}
}

func (s *notificationService) updateUnreadGaugeLocked() {
	unread := 0
	for i := range s.list {
		if !s.list[i].Read {
			unread++
		}
	}
	s.metrics.UnreadNotifications.Set(float64(unread))
}
