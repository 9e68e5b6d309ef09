package model

import "time"

type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeFile     ContentType = "file"
	ContentTypeImage    ContentType = "image"
	ContentTypeAudio    ContentType = "audio"
	ContentTypeVideo    ContentType = "video"
	ContentTypeLocation ContentType = "location"
)

// DeliveryState is the message lifecycle derived from the receipt
// timestamps at the boundary: sent -> delivered -> read.
type DeliveryState string

const (
	DeliveryStateSent      DeliveryState = "sent"
	DeliveryStateDelivered DeliveryState = "delivered"
	DeliveryStateRead      DeliveryState = "read"
)

// Message belongs to exactly one conversation and carries set-once receipt
// timestamps. SentAt is always set at creation; DeliveredAt is set the first
// time the receiver's session observes the message; ReadAt is set when the
// receiver views the conversation. DeliveredAt and ReadAt never regress.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	ReceiverID     string      `json:"receiver_id"`
	Content        string      `json:"content"`
	ContentType    ContentType `json:"content_type"`

	// File reference (blob storage URL, never raw bytes).
	FileURL  string `json:"file_url,omitempty"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`

	// Location payload.
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	SentAt      time.Time  `json:"sent_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`

	EditedAt  *time.Time `json:"edited_at,omitempty"`
	IsDeleted bool       `json:"is_deleted"`
	CreatedAt time.Time  `json:"created_at"`

	Sender    *UserPublic `json:"sender,omitempty"`
	Reactions []Reaction  `json:"reactions,omitempty"`
}

// State derives the tagged delivery state from the receipt timestamps.
func (m *Message) State() DeliveryState {
	switch {
	case m.ReadAt != nil:
		return DeliveryStateRead
	case m.DeliveredAt != nil:
		return DeliveryStateDelivered
	default:
		return DeliveryStateSent
	}
}

// Tombstone returns a copy with the content hidden, used to render
// soft-deleted messages that still occupy their position in the thread.
func (m Message) Tombstone() Message {
	m.Content = ""
	m.FileURL = ""
	m.FileName = ""
	m.FileSize = 0
	m.Latitude = nil
	m.Longitude = nil
	m.Reactions = nil
	return m
}

type Reaction struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// Pin attaches a message to its conversation with an optional expiry.
// Expired pins are filtered at read time.
type Pin struct {
	ConversationID string     `json:"conversation_id"`
	MessageID      string     `json:"message_id"`
	PinnedBy       string     `json:"pinned_by"`
	PinnedAt       time.Time  `json:"pinned_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Message        *Message   `json:"message,omitempty"`
}

// Expired reports whether the pin has auto-expired as of now.
func (p *Pin) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}
