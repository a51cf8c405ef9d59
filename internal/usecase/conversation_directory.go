package usecase

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"dmsync/internal/domain/entity"
	"dmsync/internal/domain/repository"
	"dmsync/internal/infrastructure/cache"
	"dmsync/internal/infrastructure/realtime"
	"dmsync/pkg/errors"
)

// ConversationView pairs a conversation row with its resolved counterpart
// profile. The profile survives field splices from the change feed.
type ConversationView struct {
	*entity.Conversation
	Counterpart *entity.UserProfile `json:"counterpart,omitempty"`
}

// DirectorySnapshot is the read model handed to the UI.
type DirectorySnapshot struct {
	Conversations          []*ConversationView         `json:"conversations"`
	SelectedConversationID string                      `json:"selected_conversation_id,omitempty"`
	Pending                *entity.PendingConversation `json:"pending,omitempty"`
	ConnectionStatus       realtime.Status             `json:"connection_status"`
}

// ConversationDirectory owns the conversation list for one user: it merges
// cache, fetch results and change-feed events, arbitrates selection, and holds
// the pending-conversation state machine. It also owns the lifecycle of the
// currently open MessageSynchronizer so that switching conversations always
// unsubscribes the previous one.
type ConversationDirectory struct {
	userID string

	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	liveProfiles     repository.ProfileRepository
	fallbackProfiles repository.ProfileRepository
	broadcaster      repository.Broadcaster
	cacheStore       *cache.Store

	opTimeout  time.Duration
	lockWindow time.Duration
	now        func() time.Time

	mu            sync.Mutex
	conversations []*ConversationView
	selectedID    string
	lockedUntil   time.Time
	pending       *entity.PendingConversation
	connStatus    realtime.Status
	gen           uint64 // invalidates in-flight list refreshes, bumped on Close
	selectSeq     uint64 // invalidates in-flight synchronizer opens
	current       *MessageSynchronizer

	runCtx  context.Context
	feedSup *realtime.Supervisor

	onChange func()
}

func NewConversationDirectory(
	userID string,
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	liveProfiles repository.ProfileRepository,
	fallbackProfiles repository.ProfileRepository,
	broadcaster repository.Broadcaster,
	cacheStore *cache.Store,
	opTimeout time.Duration,
	lockWindow time.Duration,
) *ConversationDirectory {
	if opTimeout <= 0 {
		opTimeout = 10 * time.Second
	}
	if lockWindow <= 0 {
		lockWindow = time.Second
	}
	return &ConversationDirectory{
		userID:           userID,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		liveProfiles:     liveProfiles,
		fallbackProfiles: fallbackProfiles,
		broadcaster:      broadcaster,
		cacheStore:       cacheStore,
		opTimeout:        opTimeout,
		lockWindow:       lockWindow,
		now:              time.Now,
		connStatus:       realtime.StatusConnecting,
	}
}

// SetOnChange registers the re-render hook. Must be called before Initialize.
func (d *ConversationDirectory) SetOnChange(fn func()) {
	d.onChange = fn
}

// Initialize paints from cache, fetches the authoritative list in the
// background, and opens the supervised conversation change feed.
func (d *ConversationDirectory) Initialize(ctx context.Context) {
	d.runCtx = ctx
	d.restoreFromCache(ctx)

	d.mu.Lock()
	gen := d.gen
	d.mu.Unlock()
	go d.refresh(ctx, gen)

	d.feedSup = realtime.NewSupervisor("conversations:"+d.userID, func(dialCtx context.Context, onDrop func(error)) (repository.Subscription, error) {
		return d.conversationRepo.Subscribe(dialCtx, d.userID, d.OnRemoteConversationEvent, func(st repository.ChannelStatus, err error) {
			if st != repository.ChannelSubscribed {
				onDrop(err)
			}
		})
	}, d.setConnectionStatus)
	d.feedSup.Start(ctx)
}

func (d *ConversationDirectory) setConnectionStatus(status realtime.Status) {
	d.mu.Lock()
	d.connStatus = status
	d.mu.Unlock()
	d.notify()
}

// ConnectionStatus reports the list channel's supervised state.
func (d *ConversationDirectory) ConnectionStatus() realtime.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connStatus
}

// RetryConnection restarts the list channel after the supervisor gave up.
func (d *ConversationDirectory) RetryConnection() {
	if d.feedSup != nil && d.runCtx != nil {
		d.feedSup.Retry(d.runCtx)
	}
}

func (d *ConversationDirectory) restoreFromCache(ctx context.Context) {
	var cached []*ConversationView
	if !d.cacheStore.Get(ctx, cache.KindConversations, d.userID, &cached) || len(cached) == 0 {
		return
	}

	d.mu.Lock()
	d.conversations = cached
	d.sortLocked()
	d.mu.Unlock()
	d.notify()
}

func (d *ConversationDirectory) refresh(ctx context.Context, gen uint64) {
	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	fetched, err := d.conversationRepo.ListByUserID(opCtx, d.userID)
	if err != nil {
		log.Printf("ConversationDirectory refresh Error: user %s: %v", d.userID, err)
		return
	}

	views := d.enrichProfiles(opCtx, fetched)

	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		return
	}
	d.conversations = views
	d.sortLocked()
	// Selection survives a refetch while the row still exists or the lock
	// window is open; it is never handed to a different conversation.
	if d.selectedID != "" && d.findLocked(d.selectedID) == nil && d.now().After(d.lockedUntil) {
		d.selectedID = ""
	}
	snapshot := d.copyConversationsLocked()
	d.mu.Unlock()

	d.cacheStore.Put(ctx, cache.KindConversations, d.userID, snapshot)
	d.notify()
}

// enrichProfiles resolves counterpart identities, preferring the live identity
// table and falling back to the profile cache and then the secondary profile
// table. A conversation is never dropped for missing profile data; a
// placeholder is synthesized as the last resort.
func (d *ConversationDirectory) enrichProfiles(ctx context.Context, conversations []*entity.Conversation) []*ConversationView {
	ids := make([]string, 0, len(conversations))
	seen := make(map[string]bool, len(conversations))
	for _, conversation := range conversations {
		id := conversation.CounterpartOf(d.userID)
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	live, err := d.liveProfiles.BatchGet(ctx, ids)
	if err != nil {
		log.Printf("enrichProfiles Warning: live identity lookup failed for user %s: %v", d.userID, err)
		live = map[string]*entity.UserProfile{}
	}

	// Live hits refresh the profile cache; misses read through it before the
	// fallback table is consulted.
	cached := map[string]*entity.UserProfile{}
	var missing []string
	for _, id := range ids {
		if live[id] != nil {
			d.cacheStore.Put(ctx, cache.KindProfile, id, live[id])
			continue
		}
		var profile entity.UserProfile
		if d.cacheStore.Get(ctx, cache.KindProfile, id, &profile) {
			cached[id] = &profile
			continue
		}
		missing = append(missing, id)
	}
	fallback := map[string]*entity.UserProfile{}
	if len(missing) > 0 {
		fallback, err = d.fallbackProfiles.BatchGet(ctx, missing)
		if err != nil {
			log.Printf("enrichProfiles Warning: fallback profile lookup failed for user %s: %v", d.userID, err)
			fallback = map[string]*entity.UserProfile{}
		}
	}

	views := make([]*ConversationView, 0, len(conversations))
	for _, conversation := range conversations {
		// A row that has messages can never stay ephemeral, whatever the
		// remote claims.
		if conversation.HasMessages {
			conversation.IsEphemeral = false
		}
		id := conversation.CounterpartOf(d.userID)
		secondary := cached[id]
		if secondary == nil {
			secondary = fallback[id]
		}
		views = append(views, &ConversationView{
			Conversation: conversation,
			Counterpart:  ResolveProfile(id, live[id], secondary),
		})
	}
	return views
}

// Select marks a conversation as open and instantiates its synchronizer,
// closing the previous one. With lock=true the selection is guarded for the
// lock window so background refreshes cannot steal focus from it.
func (d *ConversationDirectory) Select(ctx context.Context, id string, lock bool) error {
	d.mu.Lock()
	if d.findLocked(id) == nil {
		d.mu.Unlock()
		return errors.ConversationNotFound(id)
	}
	d.selectedID = id
	if lock {
		d.lockedUntil = d.now().Add(d.lockWindow)
	}
	previous := d.current
	d.current = nil
	d.selectSeq++
	seq := d.selectSeq
	d.mu.Unlock()

	if previous != nil {
		previous.Close()
	}

	synchronizer := NewMessageSynchronizer(id, d.userID, d.messageRepo, d.conversationRepo, d.broadcaster, d.cacheStore, d.opTimeout)
	synchronizer.SetOnChange(d.onChange)
	synchronizer.Initialize(ctx)

	d.mu.Lock()
	if d.selectSeq != seq {
		// Superseded by a concurrent Select or Close while initializing; the
		// winner already installed its own synchronizer.
		d.mu.Unlock()
		synchronizer.Close()
		return nil
	}
	d.current = synchronizer
	d.mu.Unlock()
	d.notify()
	return nil
}

// Messages returns the synchronizer for the open conversation, or nil when
// nothing is selected.
func (d *ConversationDirectory) Messages() *MessageSynchronizer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// StartWith targets a recipient: an existing conversation is selected, a
// missing one becomes a pending in-memory shell with no persisted row.
func (d *ConversationDirectory) StartWith(ctx context.Context, recipientID string) error {
	if recipientID == d.userID {
		return errors.BadRequest("You cannot start a conversation with yourself", nil)
	}

	d.mu.Lock()
	for _, view := range d.conversations {
		if view.CounterpartOf(d.userID) == recipientID {
			id := view.ID
			d.pending = nil
			d.mu.Unlock()
			return d.Select(ctx, id, false)
		}
	}
	d.mu.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	existing, err := d.conversationRepo.FindDirect(opCtx, d.userID, recipientID)
	if err == nil && existing != nil {
		views := d.enrichProfiles(opCtx, []*entity.Conversation{existing})
		d.mu.Lock()
		d.pending = nil
		if d.findLocked(existing.ID) == nil {
			d.conversations = append(d.conversations, views[0])
			d.sortLocked()
		}
		d.mu.Unlock()
		return d.Select(ctx, existing.ID, false)
	}
	if err != nil && !errors.Is(err, "NOT_FOUND") {
		log.Printf("StartWith Error: Failed to search for existing conversation: %v", err)
		return err
	}

	recipient := d.resolveRecipient(opCtx, recipientID)

	d.mu.Lock()
	d.pending = &entity.PendingConversation{RecipientID: recipientID, Recipient: recipient}
	d.selectedID = ""
	previous := d.current
	d.current = nil
	d.selectSeq++
	d.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	d.notify()
	return nil
}

func (d *ConversationDirectory) resolveRecipient(ctx context.Context, recipientID string) *entity.UserProfile {
	live, err := d.liveProfiles.GetByID(ctx, recipientID)
	if err != nil {
		live = nil
	}
	var secondary *entity.UserProfile
	if live != nil {
		d.cacheStore.Put(ctx, cache.KindProfile, recipientID, live)
	} else {
		var cachedProfile entity.UserProfile
		if d.cacheStore.Get(ctx, cache.KindProfile, recipientID, &cachedProfile) {
			secondary = &cachedProfile
		}
	}
	if live == nil && secondary == nil {
		secondary, err = d.fallbackProfiles.GetByID(ctx, recipientID)
		if err != nil {
			secondary = nil
		}
	}
	return ResolveProfile(recipientID, live, secondary)
}

// CancelPending drops the in-memory shell without any remote effect.
func (d *ConversationDirectory) CancelPending() {
	d.mu.Lock()
	d.pending = nil
	d.mu.Unlock()
	d.notify()
}

// SendFirstMessage persists a pending conversation: create the conversation
// row, then the message row. On failure at either step the pending shell is
// preserved and no partial conversation leaks into the list; a conversation
// row orphaned by a failed message create is deleted best-effort.
func (d *ConversationDirectory) SendFirstMessage(ctx context.Context, input SendMessageInput) (*ConversationView, error) {
	d.mu.Lock()
	pending := d.pending
	d.mu.Unlock()
	if pending == nil {
		return nil, errors.BadRequest("No pending conversation to send to", nil)
	}

	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	now := time.Now()
	messageType := entity.MessageTypeText
	if input.ImageURL != "" {
		messageType = entity.MessageTypeImage
	}

	message := &entity.Message{
		SenderID:  d.userID,
		Type:      messageType,
		Content:   input.Content,
		ImageURL:  input.ImageURL,
		Status:    entity.MessageStatusSent,
		CreatedAt: now,
	}

	conversation := &entity.Conversation{
		CustomerID:    d.userID,
		CounterpartID: pending.RecipientID,
		IsEphemeral:   false,
		HasMessages:   true,
		LastMessageAt: now,
	}
	conversation.LastMessage = message.Preview()
	conversation.LastMessageSenderID = d.userID
	conversation.IncrementUnreadOther(d.userID)

	if err := d.conversationRepo.Create(opCtx, conversation); err != nil {
		log.Printf("SendFirstMessage Error: Failed to create conversation for user %s: %v", d.userID, err)
		return nil, errors.ConversationCreateFailed(err)
	}

	message.ConversationID = conversation.ID
	if err := d.messageRepo.Create(opCtx, message); err != nil {
		log.Printf("SendFirstMessage Error: Failed to create first message for conversation %s: %v", conversation.ID, err)
		// Compensating cleanup: the orphaned row must not surface on the
		// next fetch.
		if delErr := d.conversationRepo.Delete(opCtx, conversation.ID); delErr != nil {
			log.Printf("SendFirstMessage Error: Failed to clean up conversation %s: %v", conversation.ID, delErr)
		}
		return nil, errors.ConversationCreateFailed(err)
	}

	view := &ConversationView{
		Conversation: conversation,
		Counterpart:  pending.Recipient,
	}

	d.mu.Lock()
	d.pending = nil
	d.conversations = append([]*ConversationView{view}, d.conversations...)
	d.sortLocked()
	snapshot := d.copyConversationsLocked()
	d.mu.Unlock()

	d.cacheStore.Put(ctx, cache.KindConversations, d.userID, snapshot)
	d.notify()

	if err := d.Select(ctx, conversation.ID, true); err != nil {
		log.Printf("SendFirstMessage Warning: Failed to select conversation %s: %v", conversation.ID, err)
	}
	return view, nil
}

// OnRemoteConversationEvent folds a change-feed event into the list. UPDATE
// splices fields into the existing entry, preserving the resolved counterpart
// profile; selection is never mutated by this path. Anything else triggers a
// full refetch.
func (d *ConversationDirectory) OnRemoteConversationEvent(event repository.ConversationEvent) {
	if event.Kind == repository.EventUpdate && event.Conversation != nil {
		d.mu.Lock()
		if view := d.findLocked(event.Conversation.ID); view != nil {
			updated := event.Conversation
			if updated.HasMessages {
				updated.IsEphemeral = false
			}
			view.Conversation = updated
			d.sortLocked()
			snapshot := d.copyConversationsLocked()
			d.mu.Unlock()

			d.cacheStore.Put(context.Background(), cache.KindConversations, d.userID, snapshot)
			d.notify()
			return
		}
		d.mu.Unlock()
		// Unknown row; fall through to a refetch.
	}

	ctx := d.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.Lock()
	gen := d.gen
	d.mu.Unlock()
	go d.refresh(ctx, gen)
}

// UpdateUnreadCount is the optimistic local patch applied right after a
// user-initiated read, ahead of the remote write's confirmation.
func (d *ConversationDirectory) UpdateUnreadCount(id string, count int) {
	d.mu.Lock()
	view := d.findLocked(id)
	if view == nil {
		d.mu.Unlock()
		return
	}
	view.SetUnreadFor(d.userID, count)
	snapshot := d.copyConversationsLocked()
	d.mu.Unlock()

	d.cacheStore.Put(context.Background(), cache.KindConversations, d.userID, snapshot)
	d.notify()
}

// Pin toggles the pinned flag optimistically and rolls back if the remote
// write fails.
func (d *ConversationDirectory) Pin(ctx context.Context, id string, pinned bool) error {
	d.mu.Lock()
	view := d.findLocked(id)
	if view == nil {
		d.mu.Unlock()
		return errors.ConversationNotFound(id)
	}
	previous := view.IsPinned
	view.IsPinned = pinned
	d.sortLocked()
	d.mu.Unlock()
	d.notify()

	opCtx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	err := d.conversationRepo.UpdateFields(opCtx, id, map[string]interface{}{"isPinned": pinned})
	if err != nil {
		log.Printf("Pin Error: Failed to update conversation %s: %v", id, err)
		d.mu.Lock()
		if view := d.findLocked(id); view != nil {
			view.IsPinned = previous
			d.sortLocked()
		}
		d.mu.Unlock()
		d.notify()
		return errors.Network("Failed to update pin", err)
	}
	return nil
}

// Snapshot returns a copy of the current state for rendering.
func (d *ConversationDirectory) Snapshot() DirectorySnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DirectorySnapshot{
		Conversations:          d.copyConversationsLocked(),
		SelectedConversationID: d.selectedID,
		Pending:                d.pending,
		ConnectionStatus:       d.connStatus,
	}
}

// Close tears down the open synchronizer and the list channel.
func (d *ConversationDirectory) Close() {
	d.mu.Lock()
	current := d.current
	d.current = nil
	d.gen++
	d.selectSeq++
	d.mu.Unlock()

	if current != nil {
		current.Close()
	}
	if d.feedSup != nil {
		d.feedSup.Stop()
	}
}

func (d *ConversationDirectory) findLocked(id string) *ConversationView {
	for _, view := range d.conversations {
		if view.ID == id {
			return view
		}
	}
	return nil
}

// sortLocked applies the ordering rule: pinned first, then last activity
// descending.
func (d *ConversationDirectory) sortLocked() {
	sort.SliceStable(d.conversations, func(i, j int) bool {
		a, b := d.conversations[i], d.conversations[j]
		if a.IsPinned != b.IsPinned {
			return a.IsPinned
		}
		return a.LastMessageAt.After(b.LastMessageAt)
	})
}

func (d *ConversationDirectory) copyConversationsLocked() []*ConversationView {
	copied := make([]*ConversationView, len(d.conversations))
	copy(copied, d.conversations)
	return copied
}

func (d *ConversationDirectory) notify() {
	if d.onChange != nil {
		d.onChange()
	}
}
