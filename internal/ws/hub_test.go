package ws

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairchat/internal/model"
	"github.com/pairchat/internal/realtime"
	"github.com/pairchat/internal/repository"
	"github.com/pairchat/internal/service"
)

// stubConvStore serves canned conversation views; everything else is inert.
type stubConvStore struct {
	views map[string][]model.ConversationView
}

func (s *stubConvStore) GetOrCreate(ctx context.Context, me, other string) (*model.Conversation, error) {
	return nil, repository.ErrNotFound
}

func (s *stubConvStore) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	return nil, repository.ErrNotFound
}

func (s *stubConvStore) ListForUser(ctx context.Context, userID string) ([]model.ConversationView, error) {
	return s.views[userID], nil
}

func (s *stubConvStore) UpdateSettings(ctx context.Context, conversationID, userID string, patch model.SettingsPatch) error {
	return nil
}

func (s *stubConvStore) UpdateLastRead(ctx context.Context, conversationID, userID string, t time.Time) error {
	return nil
}

func (s *stubConvStore) HideForUser(ctx context.Context, conversationID, userID string) error {
	return nil
}

func (s *stubConvStore) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	return 0, nil
}

type stubPresence struct{}

func (stubPresence) SetOnline(ctx context.Context, userID string, online bool) error { return nil }

// attach registers a pump-less client directly so the test can read its send
// channel without a socket.
func attach(h *Hub, userID string) *Client {
	c := &Client{
		send:   make(chan OutgoingMessage, 8),
		userID: userID,
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	if _, ok := h.clients[userID]; !ok {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][c] = struct{}{}
	h.total++
	h.mu.Unlock()
	return c
}

func TestBroadcastUserStatusReachesEachPartnerOnce(t *testing.T) {
	broker := realtime.NewBroker()
	t.Cleanup(broker.Close)

	store := &stubConvStore{views: map[string][]model.ConversationView{
		"alice": {
			{Conversation: model.Conversation{ID: "c1", UserA: "alice", UserB: "bob"}},
			{Conversation: model.Conversation{ID: "c2", UserA: "alice", UserB: "carol"}},
		},
	}}
	svc := service.NewChatService(store, nil, nil, nil, nil, broker)
	h := NewHub(svc, stubPresence{}, broker, realtime.NopCache{}, 0)

	bob := attach(h, "bob")

	h.broadcastUserStatus("alice", true)

	require.Len(t, bob.send, 1, "one status frame per partner")
	out := <-bob.send
	assert.Equal(t, EventUserOnline, out.Type)
	payload, ok := out.Payload.(UserStatusPayload)
	require.True(t, ok)
	assert.Equal(t, "alice", payload.UserID)
	assert.True(t, payload.Online)

	// carol has no live connection; the broadcast must not block on her.
	h.broadcastUserStatus("alice", false)
	out = <-bob.send
	assert.Equal(t, EventUserOffline, out.Type)
}
