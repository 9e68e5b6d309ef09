package model

import "time"

// Conversation is a durable 1:1 channel between two users. The participant
// pair is stored normalized (UserA < UserB) so the unordered pair is unique.
type Conversation struct {
	ID        string    `json:"id"`
	UserA     string    `json:"user_a"`
	UserB     string    `json:"user_b"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.UserA == userID || c.UserB == userID
}

// ConversationSettings holds one user's view of a conversation. Pinned,
// muted and archived are independent toggles and are not symmetric between
// the two participants. DeletedAt hides the conversation for this user only
// and is terminal.
type ConversationSettings struct {
	ConversationID string     `json:"conversation_id"`
	UserID         string     `json:"user_id"`
	IsPinned       bool       `json:"is_pinned"`
	IsMuted        bool       `json:"is_muted"`
	IsArchived     bool       `json:"is_archived"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
	DeletedAt      *time.Time `json:"-"`
}

// SettingsPatch carries a partial settings update; nil fields are left as-is.
type SettingsPatch struct {
	IsPinned   *bool `json:"is_pinned,omitempty"`
	IsMuted    *bool `json:"is_muted,omitempty"`
	IsArchived *bool `json:"is_archived,omitempty"`
}

// ConversationView is a conversation denormalized for list rendering:
// last-message preview, the viewer's settings and unread count, and the
// other participant's public profile. Returned by a single list query so
// badges render without N+1 lookups.
type ConversationView struct {
	Conversation Conversation         `json:"conversation"`
	Partner      UserPublic           `json:"partner"`
	LastMessage  *Message             `json:"last_message,omitempty"`
	Settings     ConversationSettings `json:"settings"`
	UnreadCount  int                  `json:"unread_count"`
}
