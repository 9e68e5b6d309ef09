package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	SessionSecretTTL     = 30 * 24 * 3600
	LoginRateLimitWindow = 600 // 10 minutes
	LoginRateLimitMax    = 10  // attempts per window

	maxSubsPerUser  = 10
	subscriptionTTL = 30 * 24 * time.Hour

	convCacheTTL = 60 * time.Second
	msgCacheTTL  = 30 * time.Second
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) SetSessionSecret(ctx context.Context, sessionID, secret string) error {
	return c.cli.Set(ctx, "session_secret:"+sessionID, secret, SessionSecretTTL*time.Second).Err()
}

func (c *Client) GetSessionSecret(ctx context.Context, sessionID string) (string, error) {
	val, err := c.cli.Get(ctx, "session_secret:"+sessionID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *Client) DeleteSessionSecret(ctx context.Context, sessionID string) error {
	return c.cli.Del(ctx, "session_secret:"+sessionID).Err()
}

// CheckLoginRateLimit counts attempts on login_limit:{email}: at most
// LoginRateLimitMax per window. Exceeding it surfaces as HTTP 429.
func (c *Client) CheckLoginRateLimit(ctx context.Context, email string) (allowed bool, err error) {
	key := "login_limit:" + email
	n, err := c.cli.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		c.cli.Expire(ctx, key, LoginRateLimitWindow*time.Second)
	}
	return n <= int64(LoginRateLimitMax), nil
}

// SavePushSubscription appends the raw browser subscription to
// push:subs:{user}, capped at maxSubsPerUser most recent devices.
func (c *Client) SavePushSubscription(ctx context.Context, userID string, raw []byte) error {
	key := "push:subs:" + userID
	pipe := c.cli.Pipeline()
	pipe.RPush(ctx, key, string(raw))
	pipe.LTrim(ctx, key, -maxSubsPerUser, -1)
	pipe.Expire(ctx, key, subscriptionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Client) ListPushSubscriptions(ctx context.Context, userID string) ([][]byte, error) {
	list, err := c.cli.LRange(ctx, "push:subs:"+userID, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(list))
	for _, item := range list {
		out = append(out, []byte(item))
	}
	return out, nil
}

func (c *Client) RemovePushSubscription(ctx context.Context, userID, endpoint string) error {
	key := "push:subs:" + userID
	list, err := c.cli.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return err
	}
	var kept []string
	for _, item := range list {
		var sub struct {
			Endpoint string `json:"endpoint"`
		}
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint != endpoint {
			kept = append(kept, item)
		}
	}
	pipe := c.cli.Pipeline()
	pipe.Del(ctx, key)
	if len(kept) > 0 {
		for _, v := range kept {
			pipe.RPush(ctx, key, v)
		}
		pipe.Expire(ctx, key, subscriptionTTL)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// --- read cache with keyed invalidation ---

func (c *Client) GetConversations(ctx context.Context, userID string) ([]byte, bool) {
	val, err := c.cli.Get(ctx, "cache:convs:"+userID).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *Client) SetConversations(ctx context.Context, userID string, data []byte) {
	c.cli.Set(ctx, "cache:convs:"+userID, data, convCacheTTL)
}

func (c *Client) InvalidateConversations(ctx context.Context, userID string) {
	c.cli.Del(ctx, "cache:convs:"+userID)
}

func (c *Client) GetMessages(ctx context.Context, conversationID string) ([]byte, bool) {
	val, err := c.cli.Get(ctx, "cache:msgs:"+conversationID).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *Client) SetMessages(ctx context.Context, conversationID string, data []byte) {
	c.cli.Set(ctx, "cache:msgs:"+conversationID, data, msgCacheTTL)
}

func (c *Client) InvalidateMessages(ctx context.Context, conversationID string) {
	c.cli.Del(ctx, "cache:msgs:"+conversationID)
}

// FlushDB clears the current Redis DB (resets secrets, rate limits and
// caches on test/dev restarts).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
