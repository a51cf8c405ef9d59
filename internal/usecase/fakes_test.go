package usecase

import (
	"context"
	"sync"
	"sync/atomic"

	"dmsync/internal/domain/entity"
	"dmsync/internal/domain/repository"
	"dmsync/pkg/errors"
)

type nopSubscription struct{}

func (nopSubscription) Unsubscribe() {}

type countingSubscription struct {
	active *int32
}

func (s countingSubscription) Unsubscribe() {
	atomic.AddInt32(s.active, -1)
}

type fakeConversationRepo struct {
	mu            sync.Mutex
	conversations map[string]*entity.Conversation
	deleted       []string

	failCreate error
	failUpdate error
	failList   error
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{conversations: make(map[string]*entity.Conversation)}
}

func (f *fakeConversationRepo) Create(ctx context.Context, c *entity.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return f.failCreate
	}
	if c.ID == "" {
		c.ID = "conv-" + c.CounterpartID
	}
	c.Participants = []string{c.CustomerID, c.CounterpartID}
	stored := *c
	f.conversations[c.ID] = &stored
	return nil
}

func (f *fakeConversationRepo) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return nil, errors.ConversationNotFound(id)
	}
	copied := *c
	return &copied, nil
}

func (f *fakeConversationRepo) ListByUserID(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList != nil {
		return nil, f.failList
	}
	var out []*entity.Conversation
	for _, c := range f.conversations {
		if c.HasParticipant(userID) {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeConversationRepo) FindDirect(ctx context.Context, userID, counterpartID string) (*entity.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if c.HasParticipant(userID) && c.HasParticipant(counterpartID) {
			copied := *c
			return &copied, nil
		}
	}
	return nil, errors.NotFound("Conversation", nil)
}

func (f *fakeConversationRepo) Update(ctx context.Context, c *entity.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate != nil {
		return f.failUpdate
	}
	stored := *c
	f.conversations[c.ID] = &stored
	return nil
}

func (f *fakeConversationRepo) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate != nil {
		return f.failUpdate
	}
	c, ok := f.conversations[id]
	if !ok {
		return errors.ConversationNotFound(id)
	}
	if pinned, ok := fields["isPinned"].(bool); ok {
		c.IsPinned = pinned
	}
	if preview, ok := fields["lastMessage"].(string); ok {
		c.LastMessage = preview
	}
	return nil
}

func (f *fakeConversationRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.conversations, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeConversationRepo) Subscribe(ctx context.Context, userID string, onEvent func(repository.ConversationEvent), onStatus repository.StatusHandler) (repository.Subscription, error) {
	return nopSubscription{}, nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[string][]*entity.Message // by conversation id

	activeSubs int32

	failCreate error
	failList   error
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[string][]*entity.Message)}
}

func (f *fakeMessageRepo) Create(ctx context.Context, m *entity.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return f.failCreate
	}
	if m.ID == "" {
		m.ID = "msg-" + m.Content
	}
	stored := *m
	f.messages[m.ConversationID] = append(f.messages[m.ConversationID], &stored)
	return nil
}

func (f *fakeMessageRepo) GetByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages[conversationID] {
		if m.ID == messageID {
			copied := *m
			return &copied, nil
		}
	}
	return nil, errors.NotFound("Message", nil)
}

func (f *fakeMessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList != nil {
		return nil, f.failList
	}
	out := make([]*entity.Message, 0, len(f.messages[conversationID]))
	for _, m := range f.messages[conversationID] {
		copied := *m
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeMessageRepo) UpdateFields(ctx context.Context, conversationID, messageID string, fields map[string]interface{}) error {
	return nil
}

func (f *fakeMessageRepo) MarkSeen(ctx context.Context, conversationID, viewerID string) ([]*entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var updated []*entity.Message
	for _, m := range f.messages[conversationID] {
		if m.SenderID != viewerID && m.Status != entity.MessageStatusSeen {
			m.Status = entity.MessageStatusSeen
			copied := *m
			updated = append(updated, &copied)
		}
	}
	return updated, nil
}

func (f *fakeMessageRepo) Subscribe(ctx context.Context, conversationID string, onEvent func(repository.MessageEvent), onStatus repository.StatusHandler) (repository.Subscription, error) {
	atomic.AddInt32(&f.activeSubs, 1)
	return countingSubscription{active: &f.activeSubs}, nil
}

type fakeProfileRepo struct {
	profiles map[string]*entity.UserProfile
}

func newFakeProfileRepo(profiles ...*entity.UserProfile) *fakeProfileRepo {
	m := make(map[string]*entity.UserProfile)
	for _, p := range profiles {
		m[p.ID] = p
	}
	return &fakeProfileRepo{profiles: m}
}

func (f *fakeProfileRepo) GetByID(ctx context.Context, id string) (*entity.UserProfile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, errors.UserNotFound(id, nil)
	}
	return p, nil
}

func (f *fakeProfileRepo) BatchGet(ctx context.Context, ids []string) (map[string]*entity.UserProfile, error) {
	out := make(map[string]*entity.UserProfile)
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeBroadcaster struct {
	mu        sync.Mutex
	published map[string][][]byte
	handlers  map[string][]func([]byte)
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{
		published: make(map[string][][]byte),
		handlers:  make(map[string][]func([]byte)),
	}
}

func (f *fakeBroadcaster) Publish(ctx context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	f.published[topic] = append(f.published[topic], payload)
	handlers := append([]func([]byte){}, f.handlers[topic]...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (f *fakeBroadcaster) Subscribe(ctx context.Context, topic string, onEvent func([]byte), onStatus repository.StatusHandler) (repository.Subscription, error) {
	f.mu.Lock()
	f.handlers[topic] = append(f.handlers[topic], onEvent)
	f.mu.Unlock()
	if onStatus != nil {
		onStatus(repository.ChannelSubscribed, nil)
	}
	return nopSubscription{}, nil
}
