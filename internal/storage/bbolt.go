package storage

import (
	"fmt"
	"time"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/auth"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketUsers              = []byte("users")
	bucketTokens             = []byte("tokens")
	bucketRegistrationTokens = []byte("registration_tokens")
	bucketConversations      = []byte("conversations")
	bucketParticipants       = []byte("participants")
	bucketUserConversations  = []byte("user_conversations")
	bucketDirectIndex        = []byte("direct_index")
	bucketMessages           = []byte("messages")
	bucketMessageRefs        = []byte("message_refs")
	bucketReactions          = []byte("reactions")
	bucketNotifications      = []byte("notifications")
	bucketFriends            = []byte("friends")
	bucketFiles              = []byte("files")
	bucketPushSubs           = []byte("push_subscriptions")
)

var allBuckets = [][]byte{
	bucketUsers,
	bucketTokens,
	bucketRegistrationTokens,
	bucketConversations,
	bucketParticipants,
	bucketUserConversations,
	bucketDirectIndex,
	bucketMessages,
	bucketMessageRefs,
	bucketReactions,
	bucketNotifications,
	bucketFriends,
	bucketFiles,
	bucketPushSubs,
}

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// UpsertCredentials stores new or updated user credentials.
func (s *BboltStorage) UpsertCredentials(credentials auth.UserCredentials) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		dbUser := &DBUser{
			ID:           credentials.ID,
			UserName:     credentials.UserName,
			DisplayName:  credentials.DisplayName,
			AvatarURL:    credentials.AvatarURL,
			Status:       string(credentials.Presence.Status),
			LastSeen:     credentials.Presence.LastSeen,
			ShareStatus:  credentials.ShareStatus,
			Account:      string(credentials.Account),
			PasswordHash: credentials.PasswordHash,
		}

		data, err := dbUser.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbUser.Key(), data)
	})
}

// ListAllCredentials returns all user credentials stored in the database,
// including created and deleted accounts.
func (s *BboltStorage) ListAllCredentials() ([]auth.UserCredentials, error) {
	var credentials []auth.UserCredentials
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		return b.ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			credentials = append(credentials, auth.UserCredentials{
				User:         userFromDB(dbUser),
				PasswordHash: dbUser.PasswordHash,
			})
			return nil
		})
	})
	return credentials, err
}

// ListCredentials returns only active user credentials.
func (s *BboltStorage) ListCredentials() ([]auth.UserCredentials, error) {
	all, err := s.ListAllCredentials()
	if err != nil {
		return nil, err
	}
	var active []auth.UserCredentials
	for _, c := range all {
		if c.Account == models.AccountActive {
			active = append(active, c)
		}
	}
	return active, nil
}

// GetUser returns one user record without credentials material.
func (s *BboltStorage) GetUser(id string) (models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(id))
		if data == nil {
			return models.ErrNotFound
		}
		var dbUser DBUser
		if err := dbUser.UnmarshalBinary(data); err != nil {
			return err
		}
		user = userFromDB(dbUser)
		return nil
	})
	return user, err
}

// UpdateUserPresence writes a user's availability status and last-seen
// timestamp. Used as the write-through target of the in-memory presence
// store.
func (s *BboltStorage) UpdateUserPresence(id string, status models.UserStatus, lastSeen int64) error {
	return s.updateUser(id, func(u *DBUser) {
		u.Status = string(status)
		u.LastSeen = lastSeen
	})
}

// SetShareStatus flips a user's presence-sharing opt-out.
func (s *BboltStorage) SetShareStatus(id string, share bool) error {
	return s.updateUser(id, func(u *DBUser) {
		u.ShareStatus = share
	})
}

func (s *BboltStorage) updateUser(id string, mutate func(*DBUser)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		data := b.Get([]byte(id))
		if data == nil {
			return models.ErrNotFound
		}
		var dbUser DBUser
		if err := dbUser.UnmarshalBinary(data); err != nil {
			return err
		}
		mutate(&dbUser)
		out, err := dbUser.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbUser.Key(), out)
	})
}

func userFromDB(u DBUser) models.User {
	return models.User{
		ID:          u.ID,
		UserName:    u.UserName,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Presence: models.Presence{
			Status:   models.UserStatus(u.Status),
			LastSeen: u.LastSeen,
		},
		ShareStatus: u.ShareStatus,
		Account:     models.AccountStatus(u.Account),
	}
}

// UpsertToken stores a live session token hash.
func (s *BboltStorage) UpsertToken(userID string, tokenHash string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTokens)
		dbToken := &DBToken{
			UserID: userID,
			Token:  tokenHash,
		}
		data, err := dbToken.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbToken.Key(), data)
	})
}

func (s *BboltStorage) DeleteToken(tokenHash string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTokens).Delete([]byte(tokenHash))
	})
}

// ListTokens returns tokenHash -> userID for all persisted session tokens.
func (s *BboltStorage) ListTokens() (map[string]string, error) {
	tokens := make(map[string]string)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTokens)
		return b.ForEach(func(k, v []byte) error {
			var dbToken DBToken
			if err := dbToken.UnmarshalBinary(v); err != nil {
				return err
			}
			tokens[dbToken.Token] = dbToken.UserID
			return nil
		})
	})
	return tokens, err
}

// UpsertRegistrationToken stores the bcrypt hash of a one-time registration
// token, keyed by user id.
func (s *BboltStorage) UpsertRegistrationToken(userID string, tokenHash string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRegistrationTokens)
		dbToken := &DBToken{
			UserID: userID,
			Token:  tokenHash,
		}
		data, err := dbToken.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put([]byte(userID), data)
	})
}

func (s *BboltStorage) DeleteRegistrationToken(userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRegistrationTokens).Delete([]byte(userID))
	})
}

// ListRegistrationTokens returns userID -> token hash.
func (s *BboltStorage) ListRegistrationTokens() (map[string]string, error) {
	tokens := make(map[string]string)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRegistrationTokens)
		return b.ForEach(func(k, v []byte) error {
			var dbToken DBToken
			if err := dbToken.UnmarshalBinary(v); err != nil {
				return err
			}
			tokens[dbToken.UserID] = dbToken.Token
			return nil
		})
	})
	return tokens, err
}
