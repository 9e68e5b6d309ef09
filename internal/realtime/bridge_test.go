package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairchat/internal/model"
)

type fakeReceipts struct {
	mu        sync.Mutex
	delivered []string
	read      []string // conversation ids
	recounts  []string
}

func (f *fakeReceipts) MarkDelivered(ctx context.Context, messageID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.delivered {
		if id == messageID {
			return false, nil
		}
	}
	f.delivered = append(f.delivered, messageID)
	return true, nil
}

func (f *fakeReceipts) MarkConversationRead(ctx context.Context, conversationID, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, conversationID)
	return []string{"some-id"}, nil
}

func (f *fakeReceipts) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recounts = append(f.recounts, conversationID)
	return 0, nil
}

func (f *fakeReceipts) deliveredIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.delivered...)
}

func (f *fakeReceipts) readConvs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.read...)
}

type countingCache struct {
	NopCache
	mu            sync.Mutex
	convInvalids  int
	msgInvalids   int
	msgConvIDs    []string
}

func (c *countingCache) InvalidateConversations(ctx context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.convInvalids++
}

func (c *countingCache) InvalidateMessages(ctx context.Context, conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgInvalids++
	c.msgConvIDs = append(c.msgConvIDs, conversationID)
}

func (c *countingCache) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.convInvalids, c.msgInvalids
}

func newTestBridge(t *testing.T, userID string) (*Bridge, *Broker, *fakeReceipts, *countingCache) {
	t.Helper()
	broker := NewBroker()
	t.Cleanup(broker.Close)
	receipts := &fakeReceipts{}
	cache := &countingCache{}
	b := NewBridge(userID, broker, cache, receipts)
	b.pollInterval = time.Hour // keep the fallback out of the way
	b.Start()
	t.Cleanup(b.Stop)
	return b, broker, receipts, cache
}

func inboundMessage(convID, msgID, sender, receiver string) Event {
	return Event{
		Op:             OpInsert,
		Kind:           KindMessageCreated,
		ConversationID: convID,
		Participants:   []string{sender, receiver},
		Message:        &model.Message{ID: msgID, ConversationID: convID, SenderID: sender, ReceiverID: receiver},
	}
}

func TestInboundMarksDeliveredWithThreadClosed(t *testing.T) {
	_, broker, receipts, cache := newTestBridge(t, "bob")

	broker.Publish(inboundMessage("c1", "m1", "alice", "bob"))

	assert.Equal(t, []string{"m1"}, receipts.deliveredIDs())
	assert.Empty(t, receipts.readConvs(), "nothing is read while the thread is closed")
	convInv, msgInv := cache.counts()
	assert.Positive(t, convInv)
	assert.Positive(t, msgInv)
}

func TestInboundToOpenThreadIsReadImmediately(t *testing.T) {
	b, broker, receipts, _ := newTestBridge(t, "bob")
	b.SetOpenConversation("c1")

	broker.Publish(inboundMessage("c1", "m1", "alice", "bob"))

	assert.Contains(t, receipts.deliveredIDs(), "m1")
	assert.Contains(t, receipts.readConvs(), "c1")
}

func TestOutboundMessageTriggersNoReceipts(t *testing.T) {
	_, broker, receipts, _ := newTestBridge(t, "bob")

	// bob sent this one; alice is the receiver.
	broker.Publish(inboundMessage("c1", "m1", "bob", "alice"))

	assert.Empty(t, receipts.deliveredIDs())
	assert.Empty(t, receipts.readConvs())
}

func TestBothSubscriptionsDedupViaSetOnceReceipt(t *testing.T) {
	b, broker, receipts, _ := newTestBridge(t, "bob")
	b.SetOpenConversation("c1")

	// The conversation-scoped and global-inbound handlers both see this
	// event; the store-level set-once transition keeps the receipt single.
	broker.Publish(inboundMessage("c1", "m1", "alice", "bob"))

	assert.Equal(t, []string{"m1"}, receipts.deliveredIDs())
}

func TestSwitchingThreadsReplacesSubscription(t *testing.T) {
	b, broker, receipts, _ := newTestBridge(t, "bob")

	base := broker.SubscriberCount() // inbound + list

	b.SetOpenConversation("c1")
	assert.Equal(t, base+1, broker.SubscriberCount())

	b.SetOpenConversation("c2")
	assert.Equal(t, base+1, broker.SubscriberCount(), "the old subscription must be torn down, not leaked")
	assert.Equal(t, "c2", b.OpenConversation())

	// Events for the previously open thread no longer mark anything read.
	broker.Publish(inboundMessage("c1", "m1", "alice", "bob"))
	assert.NotContains(t, receipts.readConvs(), "c1")

	b.SetOpenConversation("")
	assert.Equal(t, base, broker.SubscriberCount())
}

func TestRepeatedOpenCloseNeverAccumulates(t *testing.T) {
	b, broker, _, _ := newTestBridge(t, "bob")
	base := broker.SubscriberCount()

	for i := 0; i < 50; i++ {
		b.SetOpenConversation("c1")
		b.SetOpenConversation("")
	}
	assert.Equal(t, base, broker.SubscriberCount())
}

func TestStopTearsDownEverythingAndIsIdempotent(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()
	b := NewBridge("bob", broker, &countingCache{}, &fakeReceipts{})
	b.pollInterval = time.Hour
	b.Start()
	b.SetOpenConversation("c1")
	require.Equal(t, 3, broker.SubscriberCount())

	b.Stop()
	b.Stop()
	assert.Equal(t, 0, broker.SubscriberCount())
}

func TestListChangeInvalidatesConversationCache(t *testing.T) {
	_, broker, _, cache := newTestBridge(t, "bob")

	broker.Publish(Event{
		Op:             OpUpdate,
		Kind:           KindConversationUpdated,
		ConversationID: "c1",
		Participants:   []string{"alice", "bob"},
	})

	convInv, _ := cache.counts()
	assert.Positive(t, convInv)
}

func TestPollFallbackInvalidatesOnInterval(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()
	cache := &countingCache{}
	b := NewBridge("bob", broker, cache, &fakeReceipts{})
	b.pollInterval = 10 * time.Millisecond
	b.Start()
	defer b.Stop()

	assert.Eventually(t, func() bool {
		convInv, _ := cache.counts()
		return convInv >= 2
	}, time.Second, 5*time.Millisecond)
}
