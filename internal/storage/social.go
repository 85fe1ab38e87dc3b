package storage

import (
	"fmt"
	"strings"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/models"

	"go.etcd.io/bbolt"
)

// UpsertFriendship stores the friendship record for its user pair.
func (s *BboltStorage) UpsertFriendship(f models.Friendship) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		dbFriendship := DBFriendship{
			RequesterID: f.RequesterID,
			AddresseeID: f.AddresseeID,
			Status:      string(f.Status),
			CreatedAt:   f.CreatedAt,
			AcceptedAt:  f.AcceptedAt,
		}
		data, err := dbFriendship.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketFriends).Put(dbFriendship.Key(), data)
	})
}

// GetFriendship returns the friendship record between two users, in either
// direction. models.ErrNotFound when none exists.
func (s *BboltStorage) GetFriendship(userA, userB string) (models.Friendship, error) {
	var f models.Friendship
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketFriends).Get(pairKey(userA, userB))
		if data == nil {
			return models.ErrNotFound
		}
		var dbFriendship DBFriendship
		if err := dbFriendship.UnmarshalBinary(data); err != nil {
			return err
		}
		f = friendshipFromDB(dbFriendship)
		return nil
	})
	return f, err
}

// DeleteFriendship removes the record for a user pair.
func (s *BboltStorage) DeleteFriendship(userA, userB string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFriends).Delete(pairKey(userA, userB))
	})
}

// ListFriendships returns every friendship the user is part of, regardless
// of status.
func (s *BboltStorage) ListFriendships(userID string) ([]models.Friendship, error) {
	var friendships []models.Friendship
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFriends).ForEach(func(k, v []byte) error {
			id, rest, found := strings.Cut(string(k), "\x00")
			if !found || (id != userID && rest != userID) {
				return nil
			}
			var dbFriendship DBFriendship
			if err := dbFriendship.UnmarshalBinary(v); err != nil {
				return err
			}
			friendships = append(friendships, friendshipFromDB(dbFriendship))
			return nil
		})
	})
	return friendships, err
}

func friendshipFromDB(f DBFriendship) models.Friendship {
	return models.Friendship{
		RequesterID: f.RequesterID,
		AddresseeID: f.AddresseeID,
		Status:      models.FriendshipStatus(f.Status),
		CreatedAt:   f.CreatedAt,
		AcceptedAt:  f.AcceptedAt,
	}
}

// InsertNotification stores a notification for its recipient.
func (s *BboltStorage) InsertNotification(n models.Notification) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		userBucket, err := tx.Bucket(bucketNotifications).CreateBucketIfNotExists([]byte(n.UserID))
		if err != nil {
			return fmt.Errorf("failed to create notification bucket: %w", err)
		}
		dbNotification := DBNotification{
			ID:             n.ID,
			UserID:         n.UserID,
			Type:           string(n.Type),
			Title:          n.Title,
			Content:        n.Content,
			SenderID:       n.SenderID,
			MessageID:      n.MessageID,
			ConversationID: n.ConversationID,
			IsRead:         n.IsRead,
			CreatedAt:      n.CreatedAt,
		}
		data, err := dbNotification.MarshalBinary()
		if err != nil {
			return err
		}
		return userBucket.Put(dbNotification.Key(), data)
	})
}

// ListNotifications returns up to limit notifications for a user, newest
// first.
func (s *BboltStorage) ListNotifications(userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var notifications []models.Notification
	err := s.db.View(func(tx *bbolt.Tx) error {
		userBucket := tx.Bucket(bucketNotifications).Bucket([]byte(userID))
		if userBucket == nil {
			return nil
		}
		c := userBucket.Cursor()
		for k, v := c.Last(); k != nil && len(notifications) < limit; k, v = c.Prev() {
			var dbNotification DBNotification
			if err := dbNotification.UnmarshalBinary(v); err != nil {
				return err
			}
			notifications = append(notifications, notificationFromDB(dbNotification))
		}
		return nil
	})
	return notifications, err
}

// MarkNotificationRead flags a single notification as read. The owner
// check guards against marking someone else's notification.
func (s *BboltStorage) MarkNotificationRead(userID, notificationID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		userBucket := tx.Bucket(bucketNotifications).Bucket([]byte(userID))
		if userBucket == nil {
			return models.ErrNotFound
		}
		c := userBucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var dbNotification DBNotification
			if err := dbNotification.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbNotification.ID != notificationID {
				continue
			}
			if dbNotification.IsRead {
				return nil
			}
			dbNotification.IsRead = true
			data, err := dbNotification.MarshalBinary()
			if err != nil {
				return err
			}
			return userBucket.Put(k, data)
		}
		return models.ErrNotFound
	})
}

// MarkAllNotificationsRead flags every notification of a user as read.
func (s *BboltStorage) MarkAllNotificationsRead(userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		userBucket := tx.Bucket(bucketNotifications).Bucket([]byte(userID))
		if userBucket == nil {
			return nil
		}
		c := userBucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var dbNotification DBNotification
			if err := dbNotification.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbNotification.IsRead {
				continue
			}
			dbNotification.IsRead = true
			data, err := dbNotification.MarshalBinary()
			if err != nil {
				return err
			}
			if err := userBucket.Put(k, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func notificationFromDB(n DBNotification) models.Notification {
	return models.Notification{
		ID:             n.ID,
		UserID:         n.UserID,
		Type:           models.NotificationType(n.Type),
		Title:          n.Title,
		Content:        n.Content,
		SenderID:       n.SenderID,
		MessageID:      n.MessageID,
		ConversationID: n.ConversationID,
		IsRead:         n.IsRead,
		CreatedAt:      n.CreatedAt,
	}
}

// UpsertPushSubscription stores a browser push subscription for a user.
func (s *BboltStorage) UpsertPushSubscription(sub models.PushSubscription) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		userBucket, err := tx.Bucket(bucketPushSubs).CreateBucketIfNotExists([]byte(sub.UserID))
		if err != nil {
			return fmt.Errorf("failed to create push subscription bucket: %w", err)
		}
		dbSub := DBPushSubscription{
			UserID:    sub.UserID,
			Endpoint:  sub.Endpoint,
			P256dh:    sub.P256dh,
			Auth:      sub.Auth,
			CreatedAt: sub.CreatedAt,
		}
		data, err := dbSub.MarshalBinary()
		if err != nil {
			return err
		}
		return userBucket.Put(dbSub.Key(), data)
	})
}

// DeletePushSubscription removes a subscription by its endpoint.
func (s *BboltStorage) DeletePushSubscription(userID, endpoint string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		userBucket := tx.Bucket(bucketPushSubs).Bucket([]byte(userID))
		if userBucket == nil {
			return nil
		}
		return userBucket.Delete([]byte(endpoint))
	})
}

// ListPushSubscriptions returns all subscriptions registered by a user.
func (s *BboltStorage) ListPushSubscriptions(userID string) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := s.db.View(func(tx *bbolt.Tx) error {
		userBucket := tx.Bucket(bucketPushSubs).Bucket([]byte(userID))
		if userBucket == nil {
			return nil
		}
		return userBucket.ForEach(func(k, v []byte) error {
			var dbSub DBPushSubscription
			if err := dbSub.UnmarshalBinary(v); err != nil {
				return err
			}
			subs = append(subs, models.PushSubscription{
				UserID:    dbSub.UserID,
				Endpoint:  dbSub.Endpoint,
				P256dh:    dbSub.P256dh,
				Auth:      dbSub.Auth,
				CreatedAt: dbSub.CreatedAt,
			})
			return nil
		})
	})
	return subs, err
}
