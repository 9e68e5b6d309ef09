package realtime

import (
	"sync"
	"time"

	"github.com/pairchat/internal/logger"
)

// Handler receives matching events. A panicking handler is recovered and
// logged; it never tears down its subscription.
type Handler func(Event)

// Subscription is a cancelable handle. Cancel is idempotent and safe on a
// nil handle (a subscription that failed to establish).
type Subscription struct {
	broker *Broker
	id     uint64
	name   string
	once   sync.Once
}

// Cancel removes the subscription. Calling it twice, or on a nil handle,
// does nothing.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.broker.remove(s.id)
	})
}

type subEntry struct {
	name    string
	filter  Filter
	handler Handler
}

// Broker is the in-process change-notification feed. Publish fans each event
// out synchronously to every matching subscription; subscriptions on
// independent publishes carry no cross-stream ordering guarantee.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]subEntry
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[uint64]subEntry)}
}

// Subscribe registers a named subscription. The name is only for
// diagnostics. Returns nil after Close; callers must treat a nil handle as
// "no realtime" and fall back to polling.
func (b *Broker) Subscribe(name string, f Filter, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = subEntry{name: name, filter: f, handler: h}
	return &Subscription{broker: b, id: id, name: name}
}

func (b *Broker) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Publish delivers the event to every matching subscription.
func (b *Broker) Publish(e Event) {
	defer logger.DeferLogDuration("broker.Publish", time.Now())()
	b.mu.RLock()
	targets := make([]subEntry, 0, 4)
	for _, s := range b.subs {
		if s.filter(e) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		dispatch(s, e)
	}
}

func dispatch(s subEntry, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("realtime handler %s panicked: %v", s.name, r)
		}
	}()
	s.handler(e)
}

// Close drops all subscriptions; later Subscribe calls return nil.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	b.subs = make(map[uint64]subEntry)
	b.mu.Unlock()
}

// SubscriberCount reports the number of live subscriptions (for tests and
// leak diagnostics).
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
