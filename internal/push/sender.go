// Package push delivers Web Push notifications straight from the API
// process: subscriptions live in the key-value store, sending goes through
// VAPID.
package push

import (
	"context"
	"encoding/json"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/pairchat/internal/logger"
)

// SubscriptionStore persists raw browser subscriptions per user.
type SubscriptionStore interface {
	SavePushSubscription(ctx context.Context, userID string, raw []byte) error
	ListPushSubscriptions(ctx context.Context, userID string) ([][]byte, error)
	RemovePushSubscription(ctx context.Context, userID, endpoint string) error
}

// Subscription is what PushManager.getSubscription() produces.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

type notifyPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Sender sends notifications to every registered device of a user. A Sender
// without VAPID keys accepts subscriptions but never sends.
type Sender struct {
	store SubscriptionStore
	vapid *webpush.Options
}

func NewSender(store SubscriptionStore, publicKey, privateKey string) *Sender {
	s := &Sender{store: store}
	if publicKey != "" && privateKey != "" {
		s.vapid = &webpush.Options{
			Subscriber:      "pairchat-push",
			VAPIDPublicKey:  publicKey,
			VAPIDPrivateKey: privateKey,
			TTL:             30,
		}
	}
	return s
}

// Enabled reports whether sending is configured.
func (s *Sender) Enabled() bool { return s.vapid != nil }

// PublicKey returns the VAPID public key for the frontend ("" when push is
// disabled).
func (s *Sender) PublicKey() string {
	if s.vapid == nil {
		return ""
	}
	return s.vapid.VAPIDPublicKey
}

func (s *Sender) Subscribe(ctx context.Context, userID string, sub Subscription) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return s.store.SavePushSubscription(ctx, userID, raw)
}

func (s *Sender) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	return s.store.RemovePushSubscription(ctx, userID, endpoint)
}

// Notify pushes to every device of the user. Gone endpoints (404/410) are
// pruned from the store. Errors are logged, never returned: notification
// delivery is best-effort.
func (s *Sender) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	if s.vapid == nil {
		return
	}
	subs, err := s.store.ListPushSubscriptions(ctx, userID)
	if err != nil {
		logger.Errorf("push list subscriptions user=%s: %v", userID, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(notifyPayload{Title: title, Body: body, Data: data})
	if err != nil {
		logger.Errorf("push payload: %v", err)
		return
	}

	for _, raw := range subs {
		var sub webpush.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		resp, err := webpush.SendNotificationWithContext(sendCtx, payload, &sub, s.vapid)
		cancel()
		if err != nil {
			logger.Errorf("push send user=%s: %v", userID, err)
			continue
		}
		if resp.StatusCode == 404 || resp.StatusCode == 410 {
			// Browser dropped the subscription.
			if err := s.store.RemovePushSubscription(ctx, userID, sub.Endpoint); err != nil {
				logger.Errorf("push prune user=%s: %v", userID, err)
			}
		}
		resp.Body.Close()
	}
}
