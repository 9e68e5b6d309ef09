package realtime

import "context"

// Cache is the keyed read-through projection the bridge invalidates. The
// local view of conversations and messages is never merged optimistically:
// a mutation invalidates exactly the keys it can affect and readers refetch.
type Cache interface {
	// GetConversations returns the cached conversation-list JSON for the
	// user, or ok=false on a miss.
	GetConversations(ctx context.Context, userID string) (data []byte, ok bool)
	SetConversations(ctx context.Context, userID string, data []byte)
	InvalidateConversations(ctx context.Context, userID string)

	GetMessages(ctx context.Context, conversationID string) (data []byte, ok bool)
	SetMessages(ctx context.Context, conversationID string, data []byte)
	InvalidateMessages(ctx context.Context, conversationID string)
}

// NopCache satisfies Cache and caches nothing; used when Redis is absent
// and the in-memory store is not wired either.
type NopCache struct{}

func (NopCache) GetConversations(context.Context, string) ([]byte, bool) { return nil, false }
func (NopCache) SetConversations(context.Context, string, []byte)       {}
func (NopCache) InvalidateConversations(context.Context, string)        {}
func (NopCache) GetMessages(context.Context, string) ([]byte, bool)     { return nil, false }
func (NopCache) SetMessages(context.Context, string, []byte)            {}
func (NopCache) InvalidateMessages(context.Context, string)             {}
