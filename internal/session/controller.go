// Package session tracks the per-client view state: which thread is open,
// per-conversation unread badges, and the call overlay. It is pure state —
// no I/O — so the ws layer can drive it from socket frames and async store
// results without ordering guarantees.
package session

import (
	"errors"
	"sync"
)

var (
	// ErrNoThreadOpen rejects thread operations while no conversation is
	// selected or open.
	ErrNoThreadOpen = errors.New("no thread open")
	// ErrCallBusy rejects starting or receiving a call while one is
	// already ringing or connected.
	ErrCallBusy = errors.New("call already in progress")
	// ErrNoCall rejects accept/hangup with no call in flight.
	ErrNoCall = errors.New("no call in progress")
)

// ThreadState is the chat page's main view.
type ThreadState int

const (
	// ThreadClosed: the conversation list is shown, no thread selected.
	ThreadClosed ThreadState = iota
	// ThreadSelecting: a conversation was chosen and its messages are
	// loading; input is not yet accepted.
	ThreadSelecting
	// ThreadOpen: the thread is on screen and interactive.
	ThreadOpen
)

func (s ThreadState) String() string {
	switch s {
	case ThreadSelecting:
		return "selecting"
	case ThreadOpen:
		return "open"
	default:
		return "closed"
	}
}

// CallState is the call overlay, layered over whatever the thread shows.
type CallState int

const (
	CallIdle CallState = iota
	CallRinging
	CallConnected
)

func (s CallState) String() string {
	switch s {
	case CallRinging:
		return "ringing"
	case CallConnected:
		return "connected"
	default:
		return "idle"
	}
}

// CallDirection records which side rang: StartCall is outgoing, RingIn is
// incoming. Meaningful only while a call is ringing or connected.
type CallDirection int

const (
	CallOutgoing CallDirection = iota
	CallIncoming
)

func (d CallDirection) String() string {
	if d == CallIncoming {
		return "incoming"
	}
	return "outgoing"
}

// OpenToken ties an async load to the selection that started it. A token
// from a superseded selection no longer matches and its result must not
// touch the open view.
type OpenToken struct {
	epoch          uint64
	conversationID string
}

// ConversationID reports which conversation's load the token belongs to.
func (t OpenToken) ConversationID() string { return t.conversationID }

// Controller is safe for concurrent use; socket reads and async store
// callbacks land on it from different goroutines.
type Controller struct {
	mu sync.Mutex

	thread   ThreadState
	openConv string
	epoch    uint64

	call        CallState
	callPeer    string
	callDir     CallDirection
	callMuted   bool
	callVideo   bool
	callSpeaker bool

	badges map[string]int
}

func NewController() *Controller {
	return &Controller{badges: make(map[string]int)}
}

// Thread returns the current view state and the selected conversation ("" when
// closed).
func (c *Controller) Thread() (ThreadState, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.thread, c.openConv
}

// Select moves to the loading state for a conversation and hands back the
// token the eventual load result must present. Selecting while a thread is
// open or loading supersedes it: the previous token goes stale.
func (c *Controller) Select(conversationID string) OpenToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.thread = ThreadSelecting
	c.openConv = conversationID
	return OpenToken{epoch: c.epoch, conversationID: conversationID}
}

// Resolve completes a load started by Select. The badge for the token's
// conversation is applied regardless of staleness; the view only opens if
// the token still belongs to the current selection. Returns whether the
// view transitioned.
func (c *Controller) Resolve(t OpenToken, unread int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setBadge(t.conversationID, unread)
	if t.epoch != c.epoch || c.thread != ThreadSelecting {
		return false
	}
	c.thread = ThreadOpen
	// Opening clears the badge: the thread is on screen.
	c.badges[t.conversationID] = 0
	return true
}

// Close returns to the conversation list. Any in-flight load token for the
// closed selection goes stale.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.thread = ThreadClosed
	c.openConv = ""
}

// OpenConversationID returns the open thread's conversation, or "" when the
// view is closed or still loading.
func (c *Controller) OpenConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.thread != ThreadOpen {
		return ""
	}
	return c.openConv
}

func (c *Controller) setBadge(conversationID string, unread int) {
	if unread < 0 {
		unread = 0
	}
	c.badges[conversationID] = unread
}

// SetBadge records the unread count for a conversation, keyed so stale
// results for one conversation never clobber another's badge.
func (c *Controller) SetBadge(conversationID string, unread int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.thread == ThreadOpen && c.openConv == conversationID {
		// The open thread shows messages, not a badge.
		c.badges[conversationID] = 0
		return
	}
	c.setBadge(conversationID, unread)
}

// IncrementBadge bumps the unread count on an inbound message for a
// conversation that is not on screen.
func (c *Controller) IncrementBadge(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.thread == ThreadOpen && c.openConv == conversationID {
		return
	}
	c.badges[conversationID]++
}

// Badge returns the recorded unread count for a conversation.
func (c *Controller) Badge(conversationID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.badges[conversationID]
}

// TotalUnread sums badges across conversations for the app icon.
func (c *Controller) TotalUnread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.badges {
		total += n
	}
	return total
}

// Call returns the overlay state and the peer ("" when idle).
func (c *Controller) Call() (CallState, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.call, c.callPeer
}

// CallDir returns which side rang the current call.
func (c *Controller) CallDir() CallDirection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callDir
}

// StartCall rings a peer. Only one call at a time.
func (c *Controller) StartCall(peerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call != CallIdle {
		return ErrCallBusy
	}
	c.call = CallRinging
	c.callPeer = peerID
	c.callDir = CallOutgoing
	return nil
}

// RingIn surfaces an incoming call. Rejected while busy; the caller side
// should signal busy back.
func (c *Controller) RingIn(peerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call != CallIdle {
		return ErrCallBusy
	}
	c.call = CallRinging
	c.callPeer = peerID
	c.callDir = CallIncoming
	return nil
}

// Connect moves a ringing call to connected.
func (c *Controller) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call != CallRinging {
		return ErrNoCall
	}
	c.call = CallConnected
	return nil
}

// HangUp ends the call from ringing or connected. Idempotent: hanging up
// with no call is a no-op, both sides may race to end it. The in-call
// toggles reset so the next call starts from defaults.
func (c *Controller) HangUp() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.call = CallIdle
	c.callPeer = ""
	c.callDir = CallOutgoing
	c.callMuted = false
	c.callVideo = false
	c.callSpeaker = false
}

// CallControls returns the in-call toggle positions.
func (c *Controller) CallControls() (muted, video, speaker bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callMuted, c.callVideo, c.callSpeaker
}

// ToggleMute flips the microphone while connected and returns the new
// position. The controls only exist on the connected overlay.
func (c *Controller) ToggleMute() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call != CallConnected {
		return false, ErrNoCall
	}
	c.callMuted = !c.callMuted
	return c.callMuted, nil
}

// ToggleVideo flips the camera while connected and returns the new position.
func (c *Controller) ToggleVideo() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call != CallConnected {
		return false, ErrNoCall
	}
	c.callVideo = !c.callVideo
	return c.callVideo, nil
}

// ToggleSpeaker flips speaker output while connected and returns the new
// position.
func (c *Controller) ToggleSpeaker() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call != CallConnected {
		return false, ErrNoCall
	}
	c.callSpeaker = !c.callSpeaker
	return c.callSpeaker, nil
}
