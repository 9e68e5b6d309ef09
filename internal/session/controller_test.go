package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadOpenHappyPath(t *testing.T) {
	c := NewController()
	state, conv := c.Thread()
	assert.Equal(t, ThreadClosed, state)
	assert.Empty(t, conv)

	tok := c.Select("conv-1")
	state, conv = c.Thread()
	assert.Equal(t, ThreadSelecting, state)
	assert.Equal(t, "conv-1", conv)
	assert.Empty(t, c.OpenConversationID(), "loading thread is not open yet")

	require.True(t, c.Resolve(tok, 3))
	state, _ = c.Thread()
	assert.Equal(t, ThreadOpen, state)
	assert.Equal(t, "conv-1", c.OpenConversationID())
	assert.Zero(t, c.Badge("conv-1"), "opening clears the badge")
}

func TestStaleResolveDoesNotTouchCurrentView(t *testing.T) {
	c := NewController()
	stale := c.Select("conv-1")
	fresh := c.Select("conv-2")

	// conv-2's load lands first and opens the view.
	require.True(t, c.Resolve(fresh, 0))

	// conv-1's slow load arrives afterwards. The view must stay on conv-2,
	// but conv-1's badge still applies because badges are keyed.
	assert.False(t, c.Resolve(stale, 5))
	assert.Equal(t, "conv-2", c.OpenConversationID())
	assert.Equal(t, 5, c.Badge("conv-1"))
	assert.Zero(t, c.Badge("conv-2"))
}

func TestCloseInvalidatesPendingLoad(t *testing.T) {
	c := NewController()
	tok := c.Select("conv-1")
	c.Close()

	assert.False(t, c.Resolve(tok, 2))
	state, conv := c.Thread()
	assert.Equal(t, ThreadClosed, state)
	assert.Empty(t, conv)
	assert.Equal(t, 2, c.Badge("conv-1"), "the badge update survives the close")
}

func TestBadgesAreKeyedPerConversation(t *testing.T) {
	c := NewController()
	c.SetBadge("conv-1", 2)
	c.SetBadge("conv-2", 7)
	c.IncrementBadge("conv-1")

	assert.Equal(t, 3, c.Badge("conv-1"))
	assert.Equal(t, 7, c.Badge("conv-2"))
	assert.Equal(t, 10, c.TotalUnread())
}

func TestOpenThreadSuppressesItsBadge(t *testing.T) {
	c := NewController()
	tok := c.Select("conv-1")
	require.True(t, c.Resolve(tok, 4))

	c.IncrementBadge("conv-1")
	c.SetBadge("conv-1", 9)
	assert.Zero(t, c.Badge("conv-1"), "messages land on screen, not on the badge")

	c.IncrementBadge("conv-2")
	assert.Equal(t, 1, c.Badge("conv-2"))
}

func TestNegativeBadgeClampsToZero(t *testing.T) {
	c := NewController()
	c.SetBadge("conv-1", -3)
	assert.Zero(t, c.Badge("conv-1"))
}

func TestCallOverlayTransitions(t *testing.T) {
	c := NewController()
	state, peer := c.Call()
	assert.Equal(t, CallIdle, state)
	assert.Empty(t, peer)

	require.ErrorIs(t, c.Connect(), ErrNoCall)

	require.NoError(t, c.StartCall("bob"))
	state, peer = c.Call()
	assert.Equal(t, CallRinging, state)
	assert.Equal(t, "bob", peer)

	require.ErrorIs(t, c.StartCall("carol"), ErrCallBusy)
	require.ErrorIs(t, c.RingIn("carol"), ErrCallBusy)

	require.NoError(t, c.Connect())
	state, _ = c.Call()
	assert.Equal(t, CallConnected, state)
	require.ErrorIs(t, c.Connect(), ErrNoCall)

	c.HangUp()
	c.HangUp() // both sides may race to end the call
	state, peer = c.Call()
	assert.Equal(t, CallIdle, state)
	assert.Empty(t, peer)
}

func TestCallDirectionTracksWhoRang(t *testing.T) {
	c := NewController()
	require.NoError(t, c.StartCall("bob"))
	assert.Equal(t, CallOutgoing, c.CallDir())
	c.HangUp()

	require.NoError(t, c.RingIn("bob"))
	assert.Equal(t, CallIncoming, c.CallDir())
}

func TestCallControlsToggleIndependentlyWhileConnected(t *testing.T) {
	c := NewController()

	// The controls only exist on the connected overlay.
	_, err := c.ToggleMute()
	require.ErrorIs(t, err, ErrNoCall)

	require.NoError(t, c.StartCall("bob"))
	_, err = c.ToggleVideo()
	require.ErrorIs(t, err, ErrNoCall, "still ringing")

	require.NoError(t, c.Connect())
	muted, err := c.ToggleMute()
	require.NoError(t, err)
	assert.True(t, muted)

	video, err := c.ToggleVideo()
	require.NoError(t, err)
	assert.True(t, video)

	// Each toggle flips on its own; the others hold their position.
	muted, err = c.ToggleMute()
	require.NoError(t, err)
	assert.False(t, muted)
	gotMuted, gotVideo, gotSpeaker := c.CallControls()
	assert.False(t, gotMuted)
	assert.True(t, gotVideo)
	assert.False(t, gotSpeaker)

	speaker, err := c.ToggleSpeaker()
	require.NoError(t, err)
	assert.True(t, speaker)
}

func TestHangUpResetsCallControls(t *testing.T) {
	c := NewController()
	require.NoError(t, c.StartCall("bob"))
	require.NoError(t, c.Connect())
	_, err := c.ToggleMute()
	require.NoError(t, err)
	_, err = c.ToggleSpeaker()
	require.NoError(t, err)

	c.HangUp()
	muted, video, speaker := c.CallControls()
	assert.False(t, muted)
	assert.False(t, video)
	assert.False(t, speaker)

	_, err = c.ToggleSpeaker()
	require.ErrorIs(t, err, ErrNoCall)
}

func TestCallOverlayIndependentOfThread(t *testing.T) {
	c := NewController()
	require.NoError(t, c.RingIn("alice"))
	require.NoError(t, c.Connect())

	tok := c.Select("conv-1")
	require.True(t, c.Resolve(tok, 0))
	c.Close()

	state, peer := c.Call()
	assert.Equal(t, CallConnected, state, "thread navigation leaves the call overlay alone")
	assert.Equal(t, "alice", peer)
}
