// Package realtime turns store change notifications into local cache
// invalidation and receipt side effects. It carries three kinds of
// subscriptions per session: one scoped to the currently open conversation,
// one global "anything addressed to me" feed, and one conversations-list
// feed. The broker is an in-process change feed, not a message broker: it
// gives no durability or ordering guarantee beyond per-publish fan-out, and
// the set-once receipt semantics downstream are what make that safe.
package realtime

import "github.com/pairchat/internal/model"

type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
)

// EventKind is a routing hint describing which transition produced the
// event. Filters only ever inspect the operation and the row; the kind is
// for consumers that fan events out as typed frames.
type EventKind string

const (
	KindMessageCreated      EventKind = "message_created"
	KindMessageDelivered    EventKind = "message_delivered"
	KindMessageRead         EventKind = "message_read"
	KindMessageEdited       EventKind = "message_edited"
	KindMessageDeleted      EventKind = "message_deleted"
	KindMessagePinned       EventKind = "message_pinned"
	KindMessageUnpinned     EventKind = "message_unpinned"
	KindReactionChanged     EventKind = "reaction_changed"
	KindConversationCreated EventKind = "conversation_created"
	KindConversationUpdated EventKind = "conversation_updated"
)

// Event is one change notification: {operation, row} plus routing fields.
type Event struct {
	Op             Operation
	Kind           EventKind
	ConversationID string
	// Participants are the two conversation members, used for list-level
	// routing.
	Participants []string
	// Message is set for message-row events, nil for conversation-level
	// changes.
	Message *model.Message
}

// Filter decides whether a subscription receives an event.
type Filter func(Event) bool

// ForConversation matches every event in one conversation. Used by the
// conversation-scoped subscription while a thread is open.
func ForConversation(conversationID string) Filter {
	return func(e Event) bool {
		return e.ConversationID == conversationID
	}
}

// InboundTo matches message inserts addressed to userID, regardless of which
// conversation is open. This is what guarantees the sender sees "delivered"
// even when the receiver is not viewing that thread.
func InboundTo(userID string) Filter {
	return func(e Event) bool {
		return e.Op == OpInsert && e.Message != nil && e.Message.ReceiverID == userID
	}
}

// ForParticipant matches any event on any conversation the user belongs to;
// it backs the conversations-list subscription.
func ForParticipant(userID string) Filter {
	return func(e Event) bool {
		for _, p := range e.Participants {
			if p == userID {
				return true
			}
		}
		return false
	}
}
