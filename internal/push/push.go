// Package push delivers web push notifications to browser subscriptions
// of users who are not connected over a websocket.
package push

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/models"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// Store is the subscription registry the service reads and prunes.
type Store interface {
	ListPushSubscriptions(userID string) ([]models.PushSubscription, error)
	DeletePushSubscription(userID, endpoint string) error
}

type Service struct {
	store           Store
	vapidPublicKey  string
	vapidPrivateKey string
	subscriber      string
	log             *slog.Logger
}

func NewService(store Store, vapidPublicKey, vapidPrivateKey, subscriber string, log *slog.Logger) *Service {
	return &Service{
		store:           store,
		vapidPublicKey:  vapidPublicKey,
		vapidPrivateKey: vapidPrivateKey,
		subscriber:      subscriber,
		log:             log,
	}
}

// Enabled reports whether a VAPID key pair was configured. Without one
// the service is a no-op and offline users simply miss real-time events.
func (s *Service) Enabled() bool {
	return s.vapidPublicKey != "" && s.vapidPrivateKey != ""
}

// PublicKey returns the VAPID public key clients need to subscribe.
func (s *Service) PublicKey() string {
	return s.vapidPublicKey
}

// SendToUser pushes a notification to every registered subscription of a
// user. Subscriptions the push service reports as gone are pruned.
func (s *Service) SendToUser(userID string, n models.Notification) {
	if !s.Enabled() {
		return
	}

	subs, err := s.store.ListPushSubscriptions(userID)
	if err != nil {
		s.log.Error("failed to list push subscriptions", "user_id", userID, "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(n)
	if err != nil {
		s.log.Error("failed to marshal notification", "user_id", userID, "error", err)
		return
	}

	for _, sub := range subs {
		resp, err := webpush.SendNotification(payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				Auth:   sub.Auth,
				P256dh: sub.P256dh,
			},
		}, &webpush.Options{
			Subscriber:      s.subscriber,
			VAPIDPublicKey:  s.vapidPublicKey,
			VAPIDPrivateKey: s.vapidPrivateKey,
			TTL:             60,
		})
		if err != nil {
			s.log.Warn("push delivery failed", "user_id", userID, "error", err)
			continue
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			if err := s.store.DeletePushSubscription(userID, sub.Endpoint); err != nil {
				s.log.Error("failed to prune subscription", "user_id", userID, "error", err)
			}
		}
		_ = resp.Body.Close()
	}
}
