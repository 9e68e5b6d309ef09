package ws

import (
	"time"

	"github.com/pairchat/internal/model"
)

type EventType string

const (
	EventNewMessage          EventType = "new_message"
	EventMessageDelivered    EventType = "message_delivered"
	EventMessageRead         EventType = "message_read"
	EventMessageEdited       EventType = "message_edited"
	EventMessageDeleted      EventType = "message_deleted"
	EventTyping              EventType = "typing"
	EventUserOnline          EventType = "user_online"
	EventUserOffline         EventType = "user_offline"
	EventConversationCreated EventType = "conversation_created"
	EventConversationUpdated EventType = "conversation_updated"
	EventReactionChanged     EventType = "reaction_changed"
	EventReactionAdded       EventType = "reaction_added"
	EventReactionRemoved     EventType = "reaction_removed"
	EventMessagePinned       EventType = "message_pinned"
	EventMessageUnpinned     EventType = "message_unpinned"
	EventOpenConversation    EventType = "open_conversation"
	EventCloseConversation   EventType = "close_conversation"
	EventError               EventType = "error"
)

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Content        string    `json:"content,omitempty"`

	// For file messages sent over the socket (the binary itself goes
	// through the upload endpoint first).
	ContentType model.ContentType `json:"content_type,omitempty"`
	FileURL     string            `json:"file_url,omitempty"`
	FileName    string            `json:"file_name,omitempty"`
	FileSize    int64             `json:"file_size,omitempty"`

	// For location messages
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// For edit/delete/pin/reactions
	MessageID string `json:"message_id,omitempty"`
	Emoji     string `json:"emoji,omitempty"`

	// For pin with expiry
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// --- Typed payloads for hot-path (avoid map[string]any allocations) ---

// DeliveredPayload is sent to the sender when their message reaches the
// other device.
type DeliveredPayload struct {
	MessageID      string     `json:"message_id"`
	ConversationID string     `json:"conversation_id"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
}

// ReadPayload is sent when the unread messages of a conversation are read
// in one batch.
type ReadPayload struct {
	ConversationID string `json:"conversation_id"`
}

type MessageEditedPayload struct {
	MessageID      string     `json:"message_id"`
	ConversationID string     `json:"conversation_id"`
	Content        string     `json:"content"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
}

type MessageDeletedPayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

// ReactionPayload carries the affected message; clients refetch its
// reaction set.
type ReactionPayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

type PinPayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type ConversationPayload struct {
	ConversationID string `json:"conversation_id"`
}

type UserStatusPayload struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}
