package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pairchat/internal/logger"
	"github.com/pairchat/internal/realtime"
	"github.com/pairchat/internal/repository"
	"github.com/pairchat/internal/service"
)

// PresenceStore persists the online flag and last-seen stamp.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID string, online bool) error
}

type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	total    int
	maxConns int

	svc        *service.ChatService
	users      PresenceStore
	broker     *realtime.Broker
	cache      realtime.Cache
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(svc *service.ChatService, users PresenceStore, broker *realtime.Broker, cache realtime.Cache, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		svc:        svc,
		users:      users,
		broker:     broker,
		cache:      cache,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.teardown()
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.total++
	h.mu.Unlock()

	// Each connection carries its own bridge (receipts, cache
	// invalidation) and its own store-change subscription feeding frames.
	c.bridge = realtime.NewBridge(c.userID, h.broker, h.cache, h.svc)
	c.bridge.Start()
	c.eventSub = h.broker.Subscribe("frames:"+c.userID, realtime.ForParticipant(c.userID), func(e realtime.Event) {
		if out, ok := frameFor(e); ok {
			h.sendToClient(c, out)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.users.SetOnline(ctx, c.userID, true); err != nil {
		logger.Errorf("ws set online user=%s: %v", c.userID, err)
	}
	h.broadcastUserStatus(c.userID, true)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	lastClient := len(clients) == 0
	if lastClient {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.teardown()
	c.Close()

	if lastClient {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.users.SetOnline(ctx, c.userID, false); err != nil {
			logger.Errorf("ws set offline user=%s: %v", c.userID, err)
		}
		h.broadcastUserStatus(c.userID, false)
	}
}

// IsOnline reports whether the user has at least one live connection. Used
// to suppress pushes to users who will see the message on screen anyway.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// frameFor converts a store change into the frame clients render from.
func frameFor(e realtime.Event) (OutgoingMessage, bool) {
	switch e.Kind {
	case realtime.KindMessageCreated:
		return OutgoingMessage{Type: EventNewMessage, Payload: e.Message}, true
	case realtime.KindMessageDelivered:
		p := DeliveredPayload{ConversationID: e.ConversationID}
		if e.Message != nil {
			p.MessageID = e.Message.ID
			p.DeliveredAt = e.Message.DeliveredAt
		}
		return OutgoingMessage{Type: EventMessageDelivered, Payload: p}, true
	case realtime.KindMessageRead:
		return OutgoingMessage{Type: EventMessageRead, Payload: ReadPayload{ConversationID: e.ConversationID}}, true
	case realtime.KindMessageEdited:
		p := MessageEditedPayload{ConversationID: e.ConversationID}
		if e.Message != nil {
			p.MessageID = e.Message.ID
			p.Content = e.Message.Content
			p.EditedAt = e.Message.EditedAt
		}
		return OutgoingMessage{Type: EventMessageEdited, Payload: p}, true
	case realtime.KindMessageDeleted:
		p := MessageDeletedPayload{ConversationID: e.ConversationID}
		if e.Message != nil {
			p.MessageID = e.Message.ID
		}
		return OutgoingMessage{Type: EventMessageDeleted, Payload: p}, true
	case realtime.KindMessagePinned:
		p := PinPayload{ConversationID: e.ConversationID}
		if e.Message != nil {
			p.MessageID = e.Message.ID
		}
		return OutgoingMessage{Type: EventMessagePinned, Payload: p}, true
	case realtime.KindMessageUnpinned:
		return OutgoingMessage{Type: EventMessageUnpinned, Payload: PinPayload{ConversationID: e.ConversationID}}, true
	case realtime.KindReactionChanged:
		p := ReactionPayload{ConversationID: e.ConversationID}
		if e.Message != nil {
			p.MessageID = e.Message.ID
		}
		return OutgoingMessage{Type: EventReactionChanged, Payload: p}, true
	case realtime.KindConversationCreated:
		return OutgoingMessage{Type: EventConversationCreated, Payload: ConversationPayload{ConversationID: e.ConversationID}}, true
	case realtime.KindConversationUpdated:
		return OutgoingMessage{Type: EventConversationUpdated, Payload: ConversationPayload{ConversationID: e.ConversationID}}, true
	default:
		return OutgoingMessage{}, false
	}
}

// HandleMessage dispatches incoming WebSocket messages.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventNewMessage:
		h.handleNewMessage(ctx, c, msg)
	case EventOpenConversation:
		h.handleOpenConversation(ctx, c, msg)
	case EventCloseConversation:
		h.handleCloseConversation(c)
	case EventTyping:
		h.handleTyping(ctx, c, msg)
	case EventMessageRead:
		h.handleMessageRead(ctx, c, msg)
	case EventMessageEdited:
		h.handleEditMessage(ctx, c, msg)
	case EventMessageDeleted:
		h.handleDeleteMessage(ctx, c, msg)
	case EventReactionAdded:
		h.handleReaction(ctx, c, msg, true)
	case EventReactionRemoved:
		h.handleReaction(ctx, c, msg, false)
	case EventMessagePinned:
		h.handlePinMessage(ctx, c, msg)
	case EventMessageUnpinned:
		h.handleUnpinMessage(ctx, c, msg)
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "unknown event type"})
	}
}

func (h *Hub) sendError(c *Client, err error) {
	switch {
	case errors.Is(err, service.ErrNotParticipant):
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "not a participant"})
	case errors.Is(err, service.ErrNotSender):
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "can only modify own messages"})
	case errors.Is(err, service.ErrEmptyContent):
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "content required"})
	case errors.Is(err, repository.ErrNotFound):
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "not found"})
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "internal error"})
	}
}

func (h *Hub) handleNewMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleNewMessage", time.Now())()
	if msg.ConversationID == "" {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "conversation_id required"})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var err error
	switch {
	case msg.FileURL != "":
		_, err = h.svc.SendAttachment(ctx, msg.ConversationID, c.userID, msg.FileURL, msg.FileName, msg.FileSize, msg.ContentType)
	case msg.Latitude != nil && msg.Longitude != nil:
		_, err = h.svc.SendLocation(ctx, msg.ConversationID, c.userID, *msg.Latitude, *msg.Longitude)
	default:
		_, err = h.svc.SendText(ctx, msg.ConversationID, c.userID, msg.Content)
	}
	if err != nil {
		logger.Errorf("ws send message conv=%s user=%s: %v", msg.ConversationID, c.userID, err)
		h.sendError(c, err)
	}
}

// handleOpenConversation: the client navigated into a thread. The bridge
// starts reacting to that thread's events and everything unread is marked
// read in one batch.
func (h *Hub) handleOpenConversation(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleOpenConversation", time.Now())()
	if msg.ConversationID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := h.svc.GetConversation(ctx, msg.ConversationID, c.userID); err != nil {
		h.sendError(c, err)
		return
	}

	token := c.ctrl.Select(msg.ConversationID)
	c.bridge.SetOpenConversation(msg.ConversationID)

	if _, err := h.svc.MarkConversationRead(ctx, msg.ConversationID, c.userID); err != nil {
		logger.Errorf("ws open mark read conv=%s user=%s: %v", msg.ConversationID, c.userID, err)
	}
	unread, err := h.svc.UnreadCount(ctx, msg.ConversationID, c.userID)
	if err != nil {
		unread = 0
	}
	c.ctrl.Resolve(token, unread)
}

func (h *Hub) handleCloseConversation(c *Client) {
	c.ctrl.Close()
	c.bridge.SetOpenConversation("")
}

func (h *Hub) handleEditMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleEditMessage", time.Now())()
	if msg.MessageID == "" || msg.Content == "" {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "message_id and content required"})
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := h.svc.EditMessage(ctx, msg.MessageID, c.userID, msg.Content); err != nil {
		h.sendError(c, err)
	}
}

func (h *Hub) handleDeleteMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleDeleteMessage", time.Now())()
	if msg.MessageID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.svc.DeleteMessage(ctx, msg.MessageID, c.userID); err != nil {
		h.sendError(c, err)
	}
}

func (h *Hub) handleReaction(ctx context.Context, c *Client, msg IncomingMessage, add bool) {
	if msg.MessageID == "" || msg.Emoji == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var err error
	if add {
		err = h.svc.React(ctx, msg.MessageID, c.userID, msg.Emoji)
	} else {
		err = h.svc.Unreact(ctx, msg.MessageID, c.userID, msg.Emoji)
	}
	if err != nil {
		logger.Errorf("ws reaction msg=%s user=%s: %v", msg.MessageID, c.userID, err)
		h.sendError(c, err)
	}
}

func (h *Hub) handlePinMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	if msg.MessageID == "" || msg.ConversationID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.svc.PinMessage(ctx, msg.ConversationID, msg.MessageID, c.userID, msg.ExpiresAt); err != nil {
		logger.Errorf("ws pin message %s: %v", msg.MessageID, err)
		h.sendError(c, err)
	}
}

func (h *Hub) handleUnpinMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	if msg.MessageID == "" || msg.ConversationID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.svc.UnpinMessage(ctx, msg.ConversationID, msg.MessageID, c.userID); err != nil {
		logger.Errorf("ws unpin message %s: %v", msg.MessageID, err)
		h.sendError(c, err)
	}
}

// handleTyping relays the indicator to the other participant. Transient:
// nothing is stored and nothing goes through the change broker.
func (h *Hub) handleTyping(ctx context.Context, c *Client, msg IncomingMessage) {
	if msg.ConversationID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	conv, err := h.svc.GetConversation(ctx, msg.ConversationID, c.userID)
	if err != nil {
		return
	}
	h.sendToUser(conv.OtherParticipant(c.userID), OutgoingMessage{
		Type: EventTyping,
		Payload: TypingPayload{
			ConversationID: msg.ConversationID,
			UserID:         c.userID,
		},
	})
}

func (h *Hub) handleMessageRead(ctx context.Context, c *Client, msg IncomingMessage) {
	if msg.ConversationID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := h.svc.MarkConversationRead(ctx, msg.ConversationID, c.userID); err != nil {
		logger.Errorf("ws mark read conv=%s user=%s: %v", msg.ConversationID, c.userID, err)
	}
}

// broadcastUserStatus tells each conversation partner the user went on or
// offline.
func (h *Hub) broadcastUserStatus(userID string, online bool) {
	evType := EventUserOffline
	if online {
		evType = EventUserOnline
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	views, err := h.svc.ListConversations(ctx, userID)
	if err != nil {
		logger.Errorf("ws get conversations for status broadcast user=%s: %v", userID, err)
		return
	}

	out := OutgoingMessage{
		Type: evType,
		Payload: UserStatusPayload{
			UserID: userID,
			Online: online,
		},
	}

	notified := make(map[string]struct{}, 16)
	for _, v := range views {
		other := v.Conversation.OtherParticipant(userID)
		if _, ok := notified[other]; ok {
			continue
		}
		notified[other] = struct{}{}
		h.sendToUser(other, out)
	}
}

func (h *Hub) sendToUser(userID string, msg OutgoingMessage) {
	h.mu.RLock()
	clients, ok := h.clients[userID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.sendToClient(c, msg)
	}
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.userID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
