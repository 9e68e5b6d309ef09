// Package call is the WebRTC signaling relay for 1:1 calls. Offers,
// answers and ICE candidates pass through; media never touches the server.
package call

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pairchat/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 65536
)

// State of a single call.
type State struct {
	ID        string
	FromUser  string
	ToUser    string
	Status    string // ringing, active, ended
	CreatedAt time.Time
}

// ValidateFunc authenticates the signed query credentials of the call
// socket and returns the user id.
type ValidateFunc func(ctx context.Context, sessionID, timestamp, signature, path string) (string, error)

type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*conn // user_id -> one active connection
	calls    map[string]*State
	validate ValidateFunc
}

type conn struct {
	userID string
	ws     *websocket.Conn
	send   chan []byte
	hub    *Hub
	done   chan struct{}
}

func NewHub(validate ValidateFunc) *Hub {
	return &Hub{
		clients:  make(map[string]*conn),
		calls:    make(map[string]*State),
		validate: validate,
	}
}

// ServeWS handles WebSocket /call/ws. Query: session_id, timestamp,
// signature.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	timestamp := r.URL.Query().Get("timestamp")
	signature := r.URL.Query().Get("signature")
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/call/ws"
	}
	if sessionID == "" || timestamp == "" || signature == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	userID, err := h.validate(r.Context(), sessionID, timestamp, signature, path)
	if err != nil {
		logger.Errorf("call ws validate failed: %v", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("call ws upgrade: %v", err)
		return
	}

	c := &conn{
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, 64),
		hub:    h,
		done:   make(chan struct{}),
	}
	h.register(c)
	logger.Infof("call ws connected user_id=%s", userID)
	go c.writePump()
	c.readPump()
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	if old, ok := h.clients[c.userID]; ok {
		old.close()
	}
	h.clients[c.userID] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	if h.clients[c.userID] == c {
		delete(h.clients, c.userID)
		logger.Infof("call ws disconnected user_id=%s", c.userID)
	}
	// End every live call of the user; the peer gets a hangup.
	for id, call := range h.calls {
		if call.Status != "ended" && (call.FromUser == c.userID || call.ToUser == c.userID) {
			call.Status = "ended"
			other := call.ToUser
			if other == c.userID {
				other = call.FromUser
			}
			if oc := h.clients[other]; oc != nil {
				oc.sendMsg("hangup", map[string]string{"call_id": id})
			}
		}
	}
	h.mu.Unlock()
	c.close()
}

// busyLocked reports whether the user already has a ringing or active call.
// Caller holds h.mu.
func (h *Hub) busyLocked(userID string) bool {
	for _, call := range h.calls {
		if call.Status == "ended" {
			continue
		}
		if call.FromUser == userID || call.ToUser == userID {
			return true
		}
	}
	return false
}

func (c *conn) close() {
	select {
	case <-c.done:
		return
	default:
		close(c.done)
		c.ws.Close()
	}
}

func (c *conn) sendMsg(typ string, payload any) {
	select {
	case <-c.done:
		return
	default:
		b, _ := json.Marshal(map[string]any{"type": typ, "payload": payload})
		select {
		case c.send <- b:
		default:
		}
	}
}

func (c *conn) readPump() {
	defer func() {
		c.hub.unregister(c)
	}()
	c.ws.SetReadLimit(maxMsgSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			break
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendMsg("error", map[string]string{"error": "invalid json"})
			logger.Errorf("call invalid json user_id=%s", c.userID)
			continue
		}
		c.hub.handleMessage(c, msg.Type, msg.Payload)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case b, ok := <-c.send:
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleMessage(c *conn, typ string, payload json.RawMessage) {
	switch typ {
	case "start_call":
		var body struct {
			PeerID string `json:"peer_id"`
		}
		if json.Unmarshal(payload, &body) != nil || body.PeerID == "" {
			c.sendMsg("error", map[string]string{"error": "peer_id required"})
			return
		}
		if body.PeerID == c.userID {
			c.sendMsg("error", map[string]string{"error": "cannot call yourself"})
			return
		}
		h.mu.Lock()
		peer, ok := h.clients[body.PeerID]
		if !ok {
			h.mu.Unlock()
			c.sendMsg("error", map[string]string{"error": "user offline"})
			return
		}
		// One call at a time on either side.
		if h.busyLocked(c.userID) || h.busyLocked(body.PeerID) {
			h.mu.Unlock()
			c.sendMsg("busy", map[string]string{"peer_id": body.PeerID})
			return
		}
		callID := uuid.New().String()
		h.calls[callID] = &State{ID: callID, FromUser: c.userID, ToUser: body.PeerID, Status: "ringing", CreatedAt: time.Now()}
		h.mu.Unlock()
		peer.sendMsg("incoming_call", map[string]any{
			"call_id":      callID,
			"from_user_id": c.userID,
		})
		c.sendMsg("call_started", map[string]any{"call_id": callID})
		logger.Infof("call started call_id=%s from=%s to=%s", callID, c.userID, body.PeerID)

	case "accept_call":
		var body struct {
			CallID string `json:"call_id"`
		}
		if json.Unmarshal(payload, &body) != nil || body.CallID == "" {
			c.sendMsg("error", map[string]string{"error": "call_id required"})
			return
		}
		h.mu.Lock()
		call, ok := h.calls[body.CallID]
		if !ok || call.Status != "ringing" || call.ToUser != c.userID {
			h.mu.Unlock()
			c.sendMsg("error", map[string]string{"error": "invalid call"})
			return
		}
		call.Status = "active"
		caller := h.clients[call.FromUser]
		h.mu.Unlock()
		if caller != nil {
			caller.sendMsg("call_accepted", map[string]string{"call_id": body.CallID})
		}
		c.sendMsg("call_accepted", map[string]string{"call_id": body.CallID})
		logger.Infof("call accepted call_id=%s by=%s", body.CallID, c.userID)

	case "reject_call":
		var body struct {
			CallID string `json:"call_id"`
		}
		json.Unmarshal(payload, &body)
		h.mu.Lock()
		call, ok := h.calls[body.CallID]
		if ok && call.Status == "ringing" {
			call.Status = "ended"
			caller := h.clients[call.FromUser]
			h.mu.Unlock()
			if caller != nil {
				caller.sendMsg("call_rejected", map[string]string{"call_id": body.CallID})
			}
			logger.Infof("call rejected call_id=%s by=%s", body.CallID, c.userID)
		} else {
			h.mu.Unlock()
		}

	case "hangup":
		var body struct {
			CallID string `json:"call_id"`
		}
		json.Unmarshal(payload, &body)
		h.mu.Lock()
		call, ok := h.calls[body.CallID]
		if ok && call.Status != "ended" {
			call.Status = "ended"
			other := call.ToUser
			if other == c.userID {
				other = call.FromUser
			}
			peer := h.clients[other]
			h.mu.Unlock()
			if peer != nil {
				peer.sendMsg("hangup", map[string]string{"call_id": body.CallID})
			}
			logger.Infof("call hangup call_id=%s by=%s", body.CallID, c.userID)
		} else {
			h.mu.Unlock()
		}

	case "offer", "answer", "ice":
		var body struct {
			CallID    string `json:"call_id"`
			SDP       string `json:"sdp,omitempty"`
			Candidate string `json:"candidate,omitempty"`
		}
		if json.Unmarshal(payload, &body) != nil {
			c.sendMsg("error", map[string]string{"error": "invalid payload"})
			return
		}
		h.mu.Lock()
		call, ok := h.calls[body.CallID]
		if !ok || call.Status == "ended" {
			h.mu.Unlock()
			return
		}
		other := call.ToUser
		if other == c.userID {
			other = call.FromUser
		}
		peer := h.clients[other]
		h.mu.Unlock()
		if peer == nil {
			return
		}
		payloadMap := map[string]any{"call_id": body.CallID}
		if body.SDP != "" {
			payloadMap["sdp"] = body.SDP
		}
		if body.Candidate != "" {
			payloadMap["candidate"] = body.Candidate
		}
		peer.sendMsg(typ, payloadMap)
	default:
		logger.Errorf("call unknown message type=%s user_id=%s", typ, c.userID)
		c.sendMsg("error", map[string]string{"error": "unknown type: " + typ})
	}
}
