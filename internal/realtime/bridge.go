package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/pairchat/internal/logger"
)

// Receipts is the slice of the chat service the bridge drives: the
// idempotent delivery/read transitions and the server-side unread recount.
type Receipts interface {
	MarkDelivered(ctx context.Context, messageID string) (bool, error)
	MarkConversationRead(ctx context.Context, conversationID, userID string) ([]string, error)
	UnreadCount(ctx context.Context, conversationID, userID string) (int, error)
}

const defaultPollInterval = 30 * time.Second

// Bridge owns one user session's three subscriptions:
//
//  1. conversation-scoped — only while a conversation is open; replaced
//     (never leaked) when the open conversation changes;
//  2. global inbound — for the whole session, marks delivered even when the
//     thread is closed;
//  3. conversations-list — invalidates the list cache on any change.
//
// Both 1 and 2 may mark the same message delivered; the set-once store
// transition is the dedup mechanism, by intent.
type Bridge struct {
	userID   string
	broker   *Broker
	cache    Cache
	receipts Receipts

	pollInterval time.Duration

	mu         sync.Mutex
	openConv   string
	convSub    *Subscription
	inboundSub *Subscription
	listSub    *Subscription

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewBridge(userID string, broker *Broker, cache Cache, receipts Receipts) *Bridge {
	return &Bridge{
		userID:       userID,
		broker:       broker,
		cache:        cache,
		receipts:     receipts,
		pollInterval: defaultPollInterval,
		stop:         make(chan struct{}),
	}
}

// Start establishes the session-wide subscriptions and the poll fallback.
// Subscription failure is non-fatal: the periodic poll keeps the
// conversation list fresh on its own.
func (b *Bridge) Start() {
	b.mu.Lock()
	b.inboundSub = b.broker.Subscribe("inbound:"+b.userID, InboundTo(b.userID), b.handleInbound)
	b.listSub = b.broker.Subscribe("list:"+b.userID, ForParticipant(b.userID), b.handleListChange)
	b.mu.Unlock()

	if b.inboundSub == nil || b.listSub == nil {
		logger.Errorf("realtime subscriptions unavailable for user=%s, relying on polling", b.userID)
	}

	b.wg.Add(1)
	go b.pollLoop()
}

// Stop tears everything down. Safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
	b.wg.Wait()

	b.mu.Lock()
	convSub, inboundSub, listSub := b.convSub, b.inboundSub, b.listSub
	b.convSub, b.inboundSub, b.listSub = nil, nil, nil
	b.openConv = ""
	b.mu.Unlock()

	convSub.Cancel()
	inboundSub.Cancel()
	listSub.Cancel()
}

// SetOpenConversation replaces the conversation-scoped subscription. The
// prior one is always canceled first, so switching threads cannot leak a
// subscription. Pass "" when the user closes the thread.
func (b *Bridge) SetOpenConversation(conversationID string) {
	b.mu.Lock()
	old := b.convSub
	b.convSub = nil
	b.openConv = conversationID
	b.mu.Unlock()

	old.Cancel()

	if conversationID == "" {
		return
	}
	sub := b.broker.Subscribe("conv:"+conversationID+":"+b.userID, ForConversation(conversationID), b.handleOpenConversation)

	b.mu.Lock()
	// The open conversation may have changed again while subscribing.
	if b.openConv != conversationID {
		b.mu.Unlock()
		sub.Cancel()
		return
	}
	b.convSub = sub
	b.mu.Unlock()
}

// OpenConversation returns the currently open conversation id ("" if none).
func (b *Bridge) OpenConversation() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openConv
}

// handleOpenConversation reacts to events in the thread the user is looking
// at: an incoming message is immediately delivered and read, and both the
// message and list caches are invalidated so ticks and badges refresh.
func (b *Bridge) handleOpenConversation(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if e.Message != nil && e.Message.ReceiverID == b.userID && e.Kind == KindMessageCreated {
		if _, err := b.receipts.MarkDelivered(ctx, e.Message.ID); err != nil {
			logger.Errorf("bridge mark delivered msg=%s: %v", e.Message.ID, err)
		}
		if _, err := b.receipts.MarkConversationRead(ctx, e.ConversationID, b.userID); err != nil {
			logger.Errorf("bridge mark read conv=%s: %v", e.ConversationID, err)
		}
	}

	b.cache.InvalidateMessages(ctx, e.ConversationID)
	b.cache.InvalidateConversations(ctx, b.userID)
}

// handleInbound guarantees delivery receipts session-wide: any message
// addressed to this user is marked delivered whether or not its thread is
// open. If it happens to be the open thread, it is also read, and the
// server-side unread count is recounted to correct any badge drift.
func (b *Bridge) handleInbound(e Event) {
	if e.Message == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := b.receipts.MarkDelivered(ctx, e.Message.ID); err != nil {
		logger.Errorf("bridge inbound mark delivered msg=%s: %v", e.Message.ID, err)
	}

	if b.OpenConversation() == e.ConversationID {
		if _, err := b.receipts.MarkConversationRead(ctx, e.ConversationID, b.userID); err != nil {
			logger.Errorf("bridge inbound mark read conv=%s: %v", e.ConversationID, err)
		}
		if _, err := b.receipts.UnreadCount(ctx, e.ConversationID, b.userID); err != nil {
			logger.Errorf("bridge inbound unread recount conv=%s: %v", e.ConversationID, err)
		}
	}

	b.cache.InvalidateMessages(ctx, e.ConversationID)
	b.cache.InvalidateConversations(ctx, b.userID)
}

func (b *Bridge) handleListChange(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b.cache.InvalidateConversations(ctx, b.userID)
}

// pollLoop is the degraded-mode safety net: the conversation-list cache is
// invalidated on an interval so readers refetch even if every realtime
// event was missed.
func (b *Bridge) pollLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			b.cache.InvalidateConversations(ctx, b.userID)
			cancel()
		}
	}
}
