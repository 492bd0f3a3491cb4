package impl

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/config"
	"storefront/internal/domain/entity"
	"storefront/internal/domain/service"
	"storefront/internal/infra/metrics"
	"storefront/internal/usecase"
)

const (
	defaultPageSize          = 20
	defaultDeliveredFallback = 3 * time.Second

	// echoReconcileWindow bounds how far apart in time the optimistic
	// and confirmed copies of one outbound message may sit and still
	// collapse to a single entry.
	echoReconcileWindow = 30 * time.Second
)

// pendingSend tracks the one in-flight optimistic message a conversation
// may have at a time.
type pendingSend struct {
	localID       string
	fallbackTimer *time.Timer
}

type chatService struct {
	mu            sync.Mutex
	conversations map[string]*entity.Conversation
	inFlight      map[string]*pendingSend
	disposers     []func()
	closed        bool

	principalID       string
	senderRole        entity.SenderRole
	sendDestination   string
	pageSize          int
	deliveredFallback time.Duration

	gateway service.ChatGateway
	push    service.PushChannel
	metrics *metrics.Metrics
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewChatService creates the session manager merging paginated REST
// history with push-delivered live messages.
func NewChatService(
	cfg *config.Config,
	gateway service.ChatGateway,
	push service.PushChannel,
	m *metrics.Metrics,
	logger *slog.Logger,
) usecase.ChatUsecase {
	s := &chatService{
		conversations:     make(map[string]*entity.Conversation),
		inFlight:          make(map[string]*pendingSend),
		principalID:       cfg.Principal.ID,
		senderRole:        parseSender(cfg.Principal.Role),
		pageSize:          defaultPageSize,
		deliveredFallback: defaultDeliveredFallback,
		gateway:           gateway,
		push:              push,
		metrics:           m,
		logger:            logger,
		nowFunc:           time.Now,
	}

	if cfg.Push != nil {
		s.sendDestination = cfg.Push.ChatSendDestination
	}
	if cc := cfg.Chat; cc != nil {
		if cc.PageSize > 0 {
			s.pageSize = cc.PageSize
		}
		if cc.DeliveredFallback > 0 {
			s.deliveredFallback = cc.DeliveredFallback
		}
	}

	return s
}

func (s *chatService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.disposers = append(s.disposers,
		s.push.AddMessageHandler(service.EventTypeChat, s.ReceivePushMessage))
}

func (s *chatService) LoadHistory(ctx context.Context, conversationKey string, page, size int) (entity.HistoryPage, error) {
	if size <= 0 {
		size = s.pageSize
	}

	fetched, err := s.gateway.History(ctx, conversationKey, page, size)
	if err != nil {
		return entity.HistoryPage{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.conversationLocked(conversationKey)

	if page == 0 {
		// Page zero is the authoritative tail. Unconfirmed local sends
		// survive the replace unless the fetch already carries their
		// confirmed copy, which must not end up held twice.
		var local []entity.ChatMessage
		for i := range conv.Messages {
			held := conv.Messages[i]
			if !held.Local {
				continue
			}
			if s.confirmedIn(fetched.Messages, &held) {
				s.dropPendingLocked(conversationKey, held.ID)
				continue
			}
			local = append(local, held)
		}
		conv.Messages = entity.MergeMessages(fetched.Messages, local)
	} else {
		conv.Messages = entity.MergeMessages(conv.Messages, fetched.Messages)
	}

	conv.HasMore = fetched.HasMore
	conv.NextPage = page + 1
	s.touchLocked(conv)

	return fetched, nil
}

func (s *chatService) SendMessage(ctx context.Context, conversationKey, text string, replyTo *entity.ReplyRef) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}

	if s.push.State().State != entity.ConnConnected {
		return false, nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return false, nil
	}
	if _, busy := s.inFlight[conversationKey]; busy {
		s.mu.Unlock()

		return false, nil
	}

	msg := entity.ChatMessage{
		ID:              entity.LocalIDPrefix + uuid.NewString(),
		ConversationKey: conversationKey,
		Text:            text,
		Sender:          s.senderRole,
		Timestamp:       s.nowFunc(),
		Status:          entity.StatusSending,
		ReplyTo:         replyTo,
		Local:           true,
	}

	conv := s.conversationLocked(conversationKey)
	conv.Messages = append(conv.Messages, msg)
	s.touchLocked(conv)

	pending := &pendingSend{localID: msg.ID}
	s.inFlight[conversationKey] = pending
	s.mu.Unlock()

	body := map[string]any{
		"conversationId": conversationKey,
		"text":           text,
	}
	if replyTo != nil {
		body["replyTo"] = map[string]any{
			"id":         replyTo.ID,
			"text":       replyTo.Text,
			"senderRole": string(replyTo.Sender),
		}
	}

	if !s.push.Publish(s.sendDestination, body) {
		// The optimistic entry comes back out so the caller can restore
		// the draft instead of showing a stuck message.
		s.mu.Lock()
		s.removeMessageLocked(conversationKey, msg.ID)
		delete(s.inFlight, conversationKey)
		s.mu.Unlock()

		return false, usecase.ErrSendFailed
	}

	s.metrics.ChatMessagesSent.Inc()

	s.mu.Lock()
	if s.inFlight[conversationKey] == pending {
		pending.fallbackTimer = time.AfterFunc(s.deliveredFallback, func() {
			s.deliveredFallbackFired(conversationKey, msg.ID)
		})
	}
	s.mu.Unlock()

	return true, nil
}

func (s *chatService) ReceivePushMessage(evt service.Event) {
	if evt.Payload == nil {
		return
	}

	key := evt.String("conversationId")
	if key == "" {
		key = evt.String("conversationKey")
	}
	text := evt.String("text")
	if key == "" || text == "" {
		return
	}

	incoming := entity.ChatMessage{
		ID:              evt.String("id"),
		ConversationKey: key,
		Text:            text,
		Sender:          parseSender(evt.String("senderRole")),
		Timestamp:       evt.ReceivedAt,
		Status:          entity.StatusDelivered,
	}
	if incoming.ID == "" {
		incoming.ID = entity.LocalIDPrefix + uuid.NewString()
	}
	if reply := evt.Object("replyTo"); reply != nil {
		ref := &entity.ReplyRef{
			ID:     service.Event{Payload: reply}.String("id"),
			Text:   service.Event{Payload: reply}.String("text"),
			Sender: parseSender(service.Event{Payload: reply}.String("senderRole")),
		}
		if ref.Text == "" {
			ref.Text = entity.ReplyPlaceholder
		}
		incoming.ReplyTo = ref
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	conv := s.conversationLocked(key)

	// Duplicate delivery of a message already held.
	for i := range conv.Messages {
		if conv.Messages[i].ID == incoming.ID {
			return
		}
	}

	// An echo of our own send reconciles onto the optimistic entry
	// instead of appending a second copy. The entry stays reconcilable
	// after the delivered fallback gave up on the pending record, so a
	// late echo matches on the Local flag, not on in-flight state.
	if incoming.Sender == s.senderRole {
		for i := range conv.Messages {
			held := &conv.Messages[i]
			if held.Local && held.SameOutboundWithin(&incoming, echoReconcileWindow) {
				s.dropPendingLocked(key, held.ID)
				held.ID = incoming.ID
				held.Timestamp = incoming.Timestamp
				held.Status = entity.StatusDelivered
				held.Local = false
				entity.SortMessagesAscending(conv.Messages)
				s.touchLocked(conv)

				return
			}
		}
	}

	conv.Messages = append(conv.Messages, incoming)
	entity.SortMessagesAscending(conv.Messages)
	if incoming.Sender != s.senderRole {
		conv.Unread++
	}
	s.touchLocked(conv)
	s.metrics.ChatMessagesReceived.Inc()
}

func (s *chatService) Conversation(conversationKey string) (entity.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationKey]
	if !ok {
		return entity.Conversation{}, false
	}

	out := *conv
	out.Messages = make([]entity.ChatMessage, len(conv.Messages))
	copy(out.Messages, conv.Messages)

	return out, true
}

func (s *chatService) Conversations() []entity.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := make([]entity.ConversationSummary, 0, len(s.conversations))
	for _, conv := range s.conversations {
		summaries = append(summaries, entity.ConversationSummary{
			Key:           conv.Key,
			Unread:        conv.Unread,
			LastMessage:   conv.LastMessage,
			LastMessageAt: conv.LastMessageAt,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastMessageAt.After(summaries[j].LastMessageAt)
	})

	return summaries
}

// LoadConversations refreshes the thread listing from the server. Fetched
// threads are seeded into local state with the server's unread counts; on
// fetch failure the held listing comes back alongside the error so the
// caller keeps last known good state.
func (s *chatService) LoadConversations(ctx context.Context) ([]entity.ConversationSummary, error) {
	fetched, err := s.gateway.Conversations(ctx)
	if err != nil {
		s.logger.Warn("conversation listing fetch failed", slog.Any("error", err))

		return s.Conversations(), err
	}

	s.mu.Lock()
	for i := range fetched {
		summary := fetched[i]
		conv := s.conversationLocked(summary.Key)
		conv.Unread = summary.Unread
		if summary.LastMessageAt.After(conv.LastMessageAt) {
			conv.LastMessageAt = summary.LastMessageAt
		}
		if len(conv.Messages) == 0 && summary.LastMessage != "" {
			conv.LastMessage = summary.LastMessage
		}
	}
	s.mu.Unlock()

	return s.Conversations(), nil
}

func (s *chatService) MarkRead(ctx context.Context, conversationKey, messageID string) {
	s.mu.Lock()
	conv, ok := s.conversations[conversationKey]
	if !ok {
		s.mu.Unlock()

		return
	}

	receipt := false
	for i := range conv.Messages {
		msg := &conv.Messages[i]
		if msg.ID != messageID {
			continue
		}
		if msg.Sender == s.senderRole || msg.Read {
			break
		}
		msg.Read = true
		msg.Status = entity.StatusRead
		if conv.Unread > 0 {
			conv.Unread--
		}
		receipt = !strings.HasPrefix(msg.ID, entity.LocalIDPrefix)

		break
	}
	s.mu.Unlock()

	if !receipt {
		return
	}
	if err := s.gateway.MarkRead(ctx, messageID); err != nil {
		s.logger.Warn("read receipt failed",
			slog.String("message", messageID), slog.Any("error", err))
	}
}

func (s *chatService) MarkAllRead(ctx context.Context, conversationKey string) int {
	s.mu.Lock()
	conv, ok := s.conversations[conversationKey]
	if !ok {
		s.mu.Unlock()

		return 0
	}

	var receiptIDs []string
	for i := range conv.Messages {
		msg := &conv.Messages[i]
		if msg.Sender == s.senderRole || msg.Read {
			continue
		}
		msg.Read = true
		msg.Status = entity.StatusRead
		if !strings.HasPrefix(msg.ID, entity.LocalIDPrefix) {
			receiptIDs = append(receiptIDs, msg.ID)
		}
	}
	conv.Unread = 0
	s.mu.Unlock()

	// Receipts go out concurrently; a failed one stays unconfirmed on the
	// server and is picked up by the resync below.
	var (
		wg        sync.WaitGroup
		confirmed int
		countMu   sync.Mutex
	)
	for _, id := range receiptIDs {
		wg.Add(1)
		go func(messageID string) {
			defer wg.Done()
			if err := s.gateway.MarkRead(ctx, messageID); err != nil {
				s.logger.Warn("read receipt failed",
					slog.String("message", messageID), slog.Any("error", err))

				return
			}
			countMu.Lock()
			confirmed++
			countMu.Unlock()
		}(id)
	}
	wg.Wait()

	if unread, err := s.gateway.UnreadCount(ctx, conversationKey); err == nil {
		s.mu.Lock()
		if conv, ok := s.conversations[conversationKey]; ok {
			conv.Unread = unread
		}
		s.mu.Unlock()
	}

	return confirmed
}

func (s *chatService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for _, dispose := range s.disposers {
		dispose()
	}
	s.disposers = nil

	for key := range s.inFlight {
		s.clearInFlightLocked(key)
	}
}

// deliveredFallbackFired upgrades a still-sending message when no broker
// echo arrived in time, so the UI never shows a spinner forever.
func (s *chatService) deliveredFallbackFired(conversationKey, localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, ok := s.inFlight[conversationKey]
	if !ok || pending.localID != localID {
		return
	}
	delete(s.inFlight, conversationKey)

	conv, ok := s.conversations[conversationKey]
	if !ok {
		return
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == localID && conv.Messages[i].Status == entity.StatusSending {
			conv.Messages[i].Status = entity.StatusDelivered

			return
		}
	}
}

func (s *chatService) conversationLocked(key string) *entity.Conversation {
	conv, ok := s.conversations[key]
	if !ok {
		conv = &entity.Conversation{Key: key}
		s.conversations[key] = conv
	}

	return conv
}

func (s *chatService) touchLocked(conv *entity.Conversation) {
	if n := len(conv.Messages); n > 0 {
		conv.LastMessage = conv.Messages[n-1].Text
		conv.LastMessageAt = conv.Messages[n-1].Timestamp
	}
}

// confirmedIn reports whether fetched already carries the broker-confirmed
// copy of the still-local outbound message.
func (s *chatService) confirmedIn(fetched []entity.ChatMessage, local *entity.ChatMessage) bool {
	for i := range fetched {
		msg := &fetched[i]
		if msg.Sender == s.senderRole && local.SameOutboundWithin(msg, echoReconcileWindow) {
			return true
		}
	}

	return false
}

// dropPendingLocked clears the in-flight record when it still points at
// the given local id.
func (s *chatService) dropPendingLocked(conversationKey, localID string) {
	if pending, ok := s.inFlight[conversationKey]; ok && pending.localID == localID {
		s.clearInFlightLocked(conversationKey)
	}
}

func (s *chatService) removeMessageLocked(conversationKey, messageID string) {
	conv, ok := s.conversations[conversationKey]
	if !ok {
		return
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == messageID {
			conv.Messages = append(conv.Messages[:i], conv.Messages[i+1:]...)

			return
		}
	}
}

func (s *chatService) clearInFlightLocked(key string) {
	if pending, ok := s.inFlight[key]; ok {
		if pending.fallbackTimer != nil {
			pending.fallbackTimer.Stop()
		}
		delete(s.inFlight, key)
	}
}

func parseSender(raw string) entity.SenderRole {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "staff", "admin", "agent":
		return entity.SenderStaff
	case "system":
		return entity.SenderSystem
	default:
		return entity.SenderUser
	}
}
