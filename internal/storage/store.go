package storage

import (
	"context"

	"github.com/pairchat/internal/realtime"
)

// Store is the key-value side of the system: session secrets for request
// signing, login rate limiting, web-push subscriptions, and the read cache
// with keyed invalidation.
// Implementations: redis.Client, memory.Client (for -dev without Redis).
type Store interface {
	SetSessionSecret(ctx context.Context, sessionID, secret string) error
	GetSessionSecret(ctx context.Context, sessionID string) (string, error)
	DeleteSessionSecret(ctx context.Context, sessionID string) error

	// CheckLoginRateLimit counts login attempts per email within a window.
	CheckLoginRateLimit(ctx context.Context, email string) (allowed bool, err error)

	SavePushSubscription(ctx context.Context, userID string, raw []byte) error
	ListPushSubscriptions(ctx context.Context, userID string) ([][]byte, error)
	RemovePushSubscription(ctx context.Context, userID, endpoint string) error

	realtime.Cache

	Close() error
}
