package usecase

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"dmsync/internal/domain/entity"
	"dmsync/internal/domain/repository"
	"dmsync/internal/infrastructure/cache"
	"dmsync/internal/infrastructure/ratelimit"
	"dmsync/internal/infrastructure/realtime"
	"dmsync/pkg/errors"
)

// broadcastEvent is the wire shape on the per-conversation ephemeral topic.
type broadcastEvent struct {
	Type           string `json:"type"` // "typing", "presence"
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing,omitempty"`
	Online         bool   `json:"online,omitempty"`
}

func typingTopic(conversationID string) string {
	return "typing:" + conversationID
}

type SendMessageInput struct {
	Content   string
	ImageURL  string
	ReplyToID string
}

// MessagesSnapshot is the read model handed to the UI.
type MessagesSnapshot struct {
	ConversationID   string            `json:"conversation_id"`
	Messages         []*entity.Message `json:"messages"`
	Loading          bool              `json:"loading"`
	OtherPartyTyping bool              `json:"other_party_typing"`
	OtherPartyOnline bool              `json:"other_party_online"`
}

// MessageSynchronizer owns the message list for one open conversation. It
// merges three sources into one ordered, deduplicated sequence: the local
// cache (instant paint), the authoritative fetch, and the change feed. All
// state transitions are serialized behind one mutex; a generation counter
// discards async results that resolve after Close.
type MessageSynchronizer struct {
	conversationID string
	userID         string

	messageRepo      repository.MessageRepository
	conversationRepo repository.ConversationRepository
	broadcaster      repository.Broadcaster
	cacheStore       *cache.Store
	opTimeout        time.Duration

	mu             sync.Mutex
	messages       []*entity.Message
	loading        bool
	otherTyping    bool
	otherOnline    bool
	lastSentTyping bool
	gen            uint64

	typingBucket *ratelimit.Bucket

	feedSup   *realtime.Supervisor
	typingSup *realtime.Supervisor

	onChange func()
}

func NewMessageSynchronizer(
	conversationID, userID string,
	messageRepo repository.MessageRepository,
	conversationRepo repository.ConversationRepository,
	broadcaster repository.Broadcaster,
	cacheStore *cache.Store,
	opTimeout time.Duration,
) *MessageSynchronizer {
	if opTimeout <= 0 {
		opTimeout = 10 * time.Second
	}
	return &MessageSynchronizer{
		conversationID:   conversationID,
		userID:           userID,
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		broadcaster:      broadcaster,
		cacheStore:       cacheStore,
		opTimeout:        opTimeout,
		loading:          true,
		typingBucket:     ratelimit.NewBucket(4, 1, time.Second),
	}
}

// SetOnChange registers the re-render hook. Must be called before Initialize.
func (s *MessageSynchronizer) SetOnChange(fn func()) {
	s.onChange = fn
}

// Initialize paints from cache, kicks off the authoritative fetch in the
// background, and opens the change-feed and typing channels.
func (s *MessageSynchronizer) Initialize(ctx context.Context) {
	s.restoreFromCache(ctx)

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	go s.refresh(ctx, gen)

	s.feedSup = realtime.NewSupervisor("messages:"+s.conversationID, func(dialCtx context.Context, onDrop func(error)) (repository.Subscription, error) {
		return s.messageRepo.Subscribe(dialCtx, s.conversationID, s.handleFeedEvent, func(st repository.ChannelStatus, err error) {
			if st != repository.ChannelSubscribed {
				onDrop(err)
			}
		})
	}, nil)
	s.feedSup.Start(ctx)

	if s.broadcaster != nil {
		s.typingSup = realtime.NewSupervisor("typing:"+s.conversationID, func(dialCtx context.Context, onDrop func(error)) (repository.Subscription, error) {
			return s.broadcaster.Subscribe(dialCtx, typingTopic(s.conversationID), s.handleBroadcast, func(st repository.ChannelStatus, err error) {
				if st != repository.ChannelSubscribed {
					onDrop(err)
				}
			})
		}, nil)
		s.typingSup.Start(ctx)
	}
}

func (s *MessageSynchronizer) restoreFromCache(ctx context.Context) {
	var cached []*entity.Message
	if !s.cacheStore.Get(ctx, cache.KindMessages, s.conversationID, &cached) || len(cached) == 0 {
		return
	}

	s.mu.Lock()
	s.messages = cached
	s.sortLocked()
	s.loading = false
	s.mu.Unlock()
	s.notify()
}

// refresh replaces the list wholesale with fetch results. The fetch is
// authoritative for the historical window; feed events merged in the meantime
// are re-delivered by their own path and deduplicated there.
func (s *MessageSynchronizer) refresh(ctx context.Context, gen uint64) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	fetched, err := s.messageRepo.ListByConversation(opCtx, s.conversationID)

	s.mu.Lock()
	if s.gen != gen {
		// A newer conversation open superseded this fetch; drop it.
		s.mu.Unlock()
		return
	}
	s.loading = false
	if err != nil {
		// Keep whatever the cache provided; the UI shows an empty/error
		// state instead of spinning forever.
		log.Printf("MessageSynchronizer refresh Error: conversation %s: %v", s.conversationID, err)
		s.mu.Unlock()
		s.notify()
		return
	}
	s.messages = fetched
	s.sortLocked()
	snapshot := s.copyMessagesLocked()
	s.mu.Unlock()

	s.cacheStore.Put(ctx, cache.KindMessages, s.conversationID, snapshot)
	s.notify()
}

func (s *MessageSynchronizer) handleFeedEvent(event repository.MessageEvent) {
	switch event.Kind {
	case repository.EventInsert:
		s.OnRemoteInsert(event.Message)
	case repository.EventUpdate, repository.EventDelete:
		// Deletes arrive as updates carrying the soft-delete marker; a hard
		// remove is treated the same so the placeholder can render.
		s.OnRemoteUpdate(event.Message)
	}
}

// OnRemoteInsert merges a feed insert. Re-applying the same message is a
// no-op; out-of-order arrival is absorbed by re-sorting on server time.
func (s *MessageSynchronizer) OnRemoteInsert(message *entity.Message) {
	s.mu.Lock()
	for _, existing := range s.messages {
		if existing.ID == message.ID {
			s.mu.Unlock()
			return
		}
	}
	s.messages = append(s.messages, message)
	s.sortLocked()
	snapshot := s.copyMessagesLocked()
	s.mu.Unlock()

	s.cacheStore.Put(context.Background(), cache.KindMessages, s.conversationID, snapshot)
	s.notify()
}

// OnRemoteUpdate replaces a message by id. Unknown ids are ignored: the
// authoritative fetch will pick them up.
func (s *MessageSynchronizer) OnRemoteUpdate(message *entity.Message) {
	s.mu.Lock()
	replaced := false
	for i, existing := range s.messages {
		if existing.ID == message.ID {
			s.messages[i] = message
			replaced = true
			break
		}
	}
	if !replaced {
		s.mu.Unlock()
		return
	}
	s.sortLocked()
	snapshot := s.copyMessagesLocked()
	s.mu.Unlock()

	s.cacheStore.Put(context.Background(), cache.KindMessages, s.conversationID, snapshot)
	s.notify()
}

// Send performs the remote insert and the parent conversation's preview/unread
// read-modify-write as one logical operation. The message is not rendered
// before the remote confirms; the post-insert merge plus feed-echo dedup keep
// the list consistent.
func (s *MessageSynchronizer) Send(ctx context.Context, input SendMessageInput) (*entity.Message, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	messageType := entity.MessageTypeText
	if input.ImageURL != "" {
		messageType = entity.MessageTypeImage
	}

	message := &entity.Message{
		ConversationID: s.conversationID,
		SenderID:       s.userID,
		Type:           messageType,
		Content:        input.Content,
		ImageURL:       input.ImageURL,
		Status:         entity.MessageStatusSent,
		CreatedAt:      time.Now(),
	}

	if input.ReplyToID != "" {
		s.mu.Lock()
		for _, existing := range s.messages {
			if existing.ID == input.ReplyToID && !existing.Deleted() {
				message.ReplyToID = existing.ID
				message.ReplyToContent = existing.Preview()
				message.ReplyToSender = existing.SenderID
				break
			}
		}
		s.mu.Unlock()
	}

	if err := s.messageRepo.Create(opCtx, message); err != nil {
		log.Printf("Send Error: Failed to create message for conversation %s: %v", s.conversationID, err)
		return nil, errors.MessageSendFailed(err)
	}

	conversation, err := s.conversationRepo.GetByID(opCtx, s.conversationID)
	if err != nil {
		log.Printf("Send Error: Conversation %s not found after message create: %v", s.conversationID, err)
		return nil, errors.MessageSendFailed(err)
	}

	conversation.RecordMessage(message)
	if err := s.conversationRepo.Update(opCtx, conversation); err != nil {
		log.Printf("Send Error: Failed to update conversation %s preview: %v", s.conversationID, err)
		return nil, errors.MessageSendFailed(err)
	}

	// Local merge; the feed's echo of this insert is deduplicated by id.
	s.OnRemoteInsert(message)

	return message, nil
}

// SetTyping broadcasts a typing indicator. Best-effort: no persistence, no
// retry, failures only logged. State transitions always go out; repeats of the
// same state are throttled by the token bucket so a keystroke storm cannot
// flood the topic.
func (s *MessageSynchronizer) SetTyping(ctx context.Context, isTyping bool) {
	if s.broadcaster == nil {
		return
	}

	s.mu.Lock()
	transition := isTyping != s.lastSentTyping
	s.lastSentTyping = isTyping
	s.mu.Unlock()
	if !transition && !s.typingBucket.Allow() {
		return
	}

	payload, _ := json.Marshal(broadcastEvent{
		Type:           "typing",
		ConversationID: s.conversationID,
		UserID:         s.userID,
		IsTyping:       isTyping,
	})
	if err := s.broadcaster.Publish(ctx, typingTopic(s.conversationID), payload); err != nil {
		log.Printf("SetTyping: broadcast failed for conversation %s: %v", s.conversationID, err)
	}
}

func (s *MessageSynchronizer) handleBroadcast(payload []byte) {
	var event broadcastEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return
	}
	if event.UserID == s.userID {
		return
	}

	s.mu.Lock()
	switch event.Type {
	case "typing":
		s.otherTyping = event.IsTyping
	case "presence":
		s.otherOnline = event.Online
	default:
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.notify()
}

// MarkSeen bulk-updates every message from the other side to seen and zeroes
// the caller's unread counter on the parent conversation.
func (s *MessageSynchronizer) MarkSeen(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if _, err := s.messageRepo.MarkSeen(opCtx, s.conversationID, s.userID); err != nil {
		log.Printf("MarkSeen Error: conversation %s: %v", s.conversationID, err)
		return errors.Network("Failed to mark messages seen", err)
	}

	s.mu.Lock()
	for _, message := range s.messages {
		if message.SenderID != s.userID && message.Status != entity.MessageStatusSeen {
			message.Status = entity.MessageStatusSeen
		}
	}
	snapshot := s.copyMessagesLocked()
	s.mu.Unlock()
	s.cacheStore.Put(ctx, cache.KindMessages, s.conversationID, snapshot)
	s.notify()

	conversation, err := s.conversationRepo.GetByID(opCtx, s.conversationID)
	if err != nil {
		return err
	}
	conversation.SetUnreadFor(s.userID, 0)
	if err := s.conversationRepo.Update(opCtx, conversation); err != nil {
		log.Printf("MarkSeen Error: Failed to zero unread for conversation %s: %v", s.conversationID, err)
		return errors.Network("Failed to update unread count", err)
	}

	return nil
}

// DeleteMessage soft-deletes: the row keeps its place so the UI renders a
// placeholder, and the parent preview is recomputed from the latest surviving
// message.
func (s *MessageSynchronizer) DeleteMessage(ctx context.Context, messageID string) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	now := time.Now()
	err := s.messageRepo.UpdateFields(opCtx, s.conversationID, messageID, map[string]interface{}{
		"deletedAt": now,
		"deletedBy": s.userID,
	})
	if err != nil {
		log.Printf("DeleteMessage Error: message %s in conversation %s: %v", messageID, s.conversationID, err)
		return errors.Network("Failed to delete message", err)
	}

	s.mu.Lock()
	var latest *entity.Message
	for _, message := range s.messages {
		if message.ID == messageID {
			message.DeletedAt = &now
			message.DeletedBy = s.userID
		}
		if !message.Deleted() {
			latest = message
		}
	}
	snapshot := s.copyMessagesLocked()
	s.mu.Unlock()

	s.cacheStore.Put(ctx, cache.KindMessages, s.conversationID, snapshot)
	s.notify()

	fields := map[string]interface{}{
		"lastMessage":         "",
		"lastMessageSenderId": "",
	}
	if latest != nil {
		fields["lastMessage"] = latest.Preview()
		fields["lastMessageAt"] = latest.CreatedAt
		fields["lastMessageSenderId"] = latest.SenderID
	}
	if err := s.conversationRepo.UpdateFields(opCtx, s.conversationID, fields); err != nil {
		log.Printf("DeleteMessage Warning: Failed to recompute preview for conversation %s: %v", s.conversationID, err)
	}

	return nil
}

// Snapshot returns a copy of the current state for rendering.
func (s *MessageSynchronizer) Snapshot() MessagesSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return MessagesSnapshot{
		ConversationID:   s.conversationID,
		Messages:         s.copyMessagesLocked(),
		Loading:          s.loading,
		OtherPartyTyping: s.otherTyping,
		OtherPartyOnline: s.otherOnline,
	}
}

// Close unsubscribes the channels and invalidates any in-flight fetch.
func (s *MessageSynchronizer) Close() {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()

	if s.feedSup != nil {
		s.feedSup.Stop()
	}
	if s.typingSup != nil {
		s.typingSup.Stop()
	}
}

func (s *MessageSynchronizer) sortLocked() {
	sort.SliceStable(s.messages, func(i, j int) bool {
		if s.messages[i].CreatedAt.Equal(s.messages[j].CreatedAt) {
			return s.messages[i].ID < s.messages[j].ID
		}
		return s.messages[i].CreatedAt.Before(s.messages[j].CreatedAt)
	})
}

func (s *MessageSynchronizer) copyMessagesLocked() []*entity.Message {
	copied := make([]*entity.Message, len(s.messages))
	copy(copied, s.messages)
	return copied
}

func (s *MessageSynchronizer) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}
