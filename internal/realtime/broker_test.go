package realtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairchat/internal/model"
)

func collect(events *[]Event, mu *sync.Mutex) Handler {
	return func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		*events = append(*events, e)
	}
}

func TestPublishRoutesByFilter(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	var mu sync.Mutex
	var convEvents, inboundEvents []Event
	sub1 := b.Subscribe("conv", ForConversation("c1"), collect(&convEvents, &mu))
	defer sub1.Cancel()
	sub2 := b.Subscribe("inbound", InboundTo("bob"), collect(&inboundEvents, &mu))
	defer sub2.Cancel()

	b.Publish(Event{
		Op:             OpInsert,
		Kind:           KindMessageCreated,
		ConversationID: "c1",
		Participants:   []string{"alice", "bob"},
		Message:        &model.Message{ID: "m1", ReceiverID: "bob"},
	})
	b.Publish(Event{
		Op:             OpInsert,
		Kind:           KindMessageCreated,
		ConversationID: "c2",
		Participants:   []string{"alice", "carol"},
		Message:        &model.Message{ID: "m2", ReceiverID: "carol"},
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, convEvents, 1)
	assert.Equal(t, "m1", convEvents[0].Message.ID)
	require.Len(t, inboundEvents, 1)
	assert.Equal(t, "m1", inboundEvents[0].Message.ID)
}

func TestInboundFilterIgnoresUpdatesAndOutbound(t *testing.T) {
	f := InboundTo("bob")

	assert.True(t, f(Event{Op: OpInsert, Message: &model.Message{ReceiverID: "bob"}}))
	assert.False(t, f(Event{Op: OpUpdate, Message: &model.Message{ReceiverID: "bob"}}), "receipt updates are not new inbound messages")
	assert.False(t, f(Event{Op: OpInsert, Message: &model.Message{ReceiverID: "alice"}}))
	assert.False(t, f(Event{Op: OpInsert}))
}

func TestForParticipantMatchesEitherSide(t *testing.T) {
	f := ForParticipant("bob")
	assert.True(t, f(Event{Participants: []string{"alice", "bob"}}))
	assert.False(t, f(Event{Participants: []string{"alice", "carol"}}))
}

func TestCancelIsIdempotentAndNilSafe(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	sub := b.Subscribe("x", func(Event) bool { return true }, func(Event) {})
	require.Equal(t, 1, b.SubscriberCount())

	sub.Cancel()
	sub.Cancel()
	assert.Equal(t, 0, b.SubscriberCount())

	var nilSub *Subscription
	nilSub.Cancel() // failed subscribes hand back nil; canceling it is fine
}

func TestCanceledSubscriptionReceivesNothing(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	var mu sync.Mutex
	var events []Event
	sub := b.Subscribe("x", func(Event) bool { return true }, collect(&events, &mu))
	sub.Cancel()

	b.Publish(Event{Kind: KindMessageCreated, ConversationID: "c1"})

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, events)
}

func TestPanickingHandlerDoesNotStopDispatch(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	var mu sync.Mutex
	var events []Event
	s1 := b.Subscribe("boom", func(Event) bool { return true }, func(Event) { panic("handler bug") })
	defer s1.Cancel()
	s2 := b.Subscribe("ok", func(Event) bool { return true }, collect(&events, &mu))
	defer s2.Cancel()

	assert.NotPanics(t, func() {
		b.Publish(Event{Kind: KindMessageCreated, ConversationID: "c1"})
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, events, 1)
}

func TestSubscribeAfterCloseReturnsNil(t *testing.T) {
	b := NewBroker()
	b.Close()

	sub := b.Subscribe("late", func(Event) bool { return true }, func(Event) {})
	assert.Nil(t, sub)
	sub.Cancel()
}
