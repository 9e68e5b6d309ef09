package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionSecretRoundtrip(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.SetSessionSecret(ctx, "s1", "secret"))
	got, err := c.GetSessionSecret(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "secret", got)

	require.NoError(t, c.DeleteSessionSecret(ctx, "s1"))
	got, err = c.GetSessionSecret(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got, "deleted secret must be gone")
}

func TestGetSessionSecretUnknownID(t *testing.T) {
	c := New()
	got, err := c.GetSessionSecret(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoginRateLimit(t *testing.T) {
	c := New()
	ctx := context.Background()

	for i := 0; i < loginRateLimitMax; i++ {
		ok, err := c.CheckLoginRateLimit(ctx, "a@b.c")
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d should be allowed", i+1)
	}
	ok, err := c.CheckLoginRateLimit(ctx, "a@b.c")
	require.NoError(t, err)
	assert.False(t, ok, "attempt over the limit must be rejected")

	// Another email has its own counter.
	ok, err = c.CheckLoginRateLimit(ctx, "x@y.z")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPushSubscriptionsCapped(t *testing.T) {
	c := New()
	ctx := context.Background()

	for i := 0; i < maxSubsPerUser+3; i++ {
		raw := []byte(`{"endpoint":"https://push.example/` + string(rune('a'+i)) + `"}`)
		require.NoError(t, c.SavePushSubscription(ctx, "u1", raw))
	}
	subs, err := c.ListPushSubscriptions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, subs, maxSubsPerUser, "oldest subscriptions are dropped")
}

func TestRemovePushSubscriptionByEndpoint(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.SavePushSubscription(ctx, "u1", []byte(`{"endpoint":"https://push.example/one"}`)))
	require.NoError(t, c.SavePushSubscription(ctx, "u1", []byte(`{"endpoint":"https://push.example/two"}`)))

	require.NoError(t, c.RemovePushSubscription(ctx, "u1", "https://push.example/one"))
	subs, err := c.ListPushSubscriptions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Contains(t, string(subs[0]), "two")
}

func TestCacheInvalidation(t *testing.T) {
	c := New()
	ctx := context.Background()

	c.SetConversations(ctx, "u1", []byte(`[]`))
	data, ok := c.GetConversations(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, []byte(`[]`), data)

	c.InvalidateConversations(ctx, "u1")
	_, ok = c.GetConversations(ctx, "u1")
	assert.False(t, ok)

	c.SetMessages(ctx, "c1", []byte(`[{"id":"m1"}]`))
	_, ok = c.GetMessages(ctx, "c1")
	require.True(t, ok)
	c.InvalidateMessages(ctx, "c1")
	_, ok = c.GetMessages(ctx, "c1")
	assert.False(t, ok)
}
