package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const (
	sessionSecretTTL     = 30 * 24 * time.Hour
	loginRateLimitWindow = 600 * time.Second
	loginRateLimitMax    = 10
	maxSubsPerUser       = 10

	convCacheTTL = 60 * time.Second
	msgCacheTTL  = 30 * time.Second
)

type item struct {
	val []byte
	exp time.Time
}

// Client is the in-process stand-in for Redis in -dev mode.
type Client struct {
	mu      sync.RWMutex
	secrets map[string]item
	limit   map[string][]time.Time
	subs    map[string][][]byte
	convs   map[string]item
	msgs    map[string]item
}

func New() *Client {
	return &Client{
		secrets: make(map[string]item),
		limit:   make(map[string][]time.Time),
		subs:    make(map[string][][]byte),
		convs:   make(map[string]item),
		msgs:    make(map[string]item),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) SetSessionSecret(ctx context.Context, sessionID, secret string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secrets[sessionID] = item{val: []byte(secret), exp: time.Now().Add(sessionSecretTTL)}
	return nil
}

func (c *Client) GetSessionSecret(ctx context.Context, sessionID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.secrets[sessionID]
	if !ok || time.Now().After(v.exp) {
		return "", nil
	}
	return string(v.val), nil
}

func (c *Client) DeleteSessionSecret(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.secrets, sessionID)
	return nil
}

func (c *Client) CheckLoginRateLimit(ctx context.Context, email string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	cut := now.Add(-loginRateLimitWindow)
	var kept []time.Time
	for _, t := range c.limit[email] {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= loginRateLimitMax {
		c.limit[email] = kept
		return false, nil
	}
	c.limit[email] = append(kept, now)
	return true, nil
}

func (c *Client) SavePushSubscription(ctx context.Context, userID string, raw []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := append(c.subs[userID], raw)
	if len(subs) > maxSubsPerUser {
		subs = subs[len(subs)-maxSubsPerUser:]
	}
	c.subs[userID] = subs
	return nil
}

func (c *Client) ListPushSubscriptions(ctx context.Context, userID string) ([][]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([][]byte, len(c.subs[userID]))
	copy(out, c.subs[userID])
	return out, nil
}

func (c *Client) RemovePushSubscription(ctx context.Context, userID, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var kept [][]byte
	for _, raw := range c.subs[userID] {
		var sub struct {
			Endpoint string `json:"endpoint"`
		}
		if json.Unmarshal(raw, &sub) == nil && sub.Endpoint != endpoint {
			kept = append(kept, raw)
		}
	}
	if len(kept) == 0 {
		delete(c.subs, userID)
	} else {
		c.subs[userID] = kept
	}
	return nil
}

func (c *Client) GetConversations(ctx context.Context, userID string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.convs[userID]
	if !ok || time.Now().After(v.exp) {
		return nil, false
	}
	return v.val, true
}

func (c *Client) SetConversations(ctx context.Context, userID string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.convs[userID] = item{val: data, exp: time.Now().Add(convCacheTTL)}
}

func (c *Client) InvalidateConversations(ctx context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.convs, userID)
}

func (c *Client) GetMessages(ctx context.Context, conversationID string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.msgs[conversationID]
	if !ok || time.Now().After(v.exp) {
		return nil, false
	}
	return v.val, true
}

func (c *Client) SetMessages(ctx context.Context, conversationID string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs[conversationID] = item{val: data, exp: time.Now().Add(msgCacheTTL)}
}

func (c *Client) InvalidateMessages(ctx context.Context, conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.msgs, conversationID)
}
