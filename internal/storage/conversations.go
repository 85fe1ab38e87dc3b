package storage

import (
	"bytes"
	"fmt"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/models"

	"go.etcd.io/bbolt"
)

// UpsertConversation saves a conversation record.
func (s *BboltStorage) UpsertConversation(conv models.Conversation) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putConversation(tx, conv)
	})
}

func putConversation(tx *bbolt.Tx, conv models.Conversation) error {
	dbConv := DBConversation{
		ID:            conv.ID,
		Name:          conv.Name,
		IsGroup:       conv.IsGroup,
		IsArchived:    conv.IsArchived,
		IsPinned:      conv.IsPinned,
		CreatedAt:     conv.CreatedAt,
		LastMessageAt: conv.LastMessageAt,
	}
	data, err := dbConv.MarshalBinary()
	if err != nil {
		return err
	}
	return tx.Bucket(bucketConversations).Put(dbConv.Key(), data)
}

func (s *BboltStorage) GetConversation(id string) (models.Conversation, error) {
	var conv models.Conversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketConversations).Get([]byte(id))
		if data == nil {
			return models.ErrNotFound
		}
		var dbConv DBConversation
		if err := dbConv.UnmarshalBinary(data); err != nil {
			return err
		}
		conv = conversationFromDB(dbConv)
		return nil
	})
	return conv, err
}

// CreateDirectConversation creates (or returns) the single direct
// conversation between two users. The pair index keeps direct
// conversations deduplicated.
func (s *BboltStorage) CreateDirectConversation(conv models.Conversation, userA, userB string) (models.Conversation, error) {
	var result models.Conversation
	err := s.db.Update(func(tx *bbolt.Tx) error {
		idx := tx.Bucket(bucketDirectIndex)
		key := pairKey(userA, userB)

		if existing := idx.Get(key); existing != nil {
			data := tx.Bucket(bucketConversations).Get(existing)
			if data == nil {
				return fmt.Errorf("direct index points at missing conversation %s", existing)
			}
			var dbConv DBConversation
			if err := dbConv.UnmarshalBinary(data); err != nil {
				return err
			}
			result = conversationFromDB(dbConv)
			return nil
		}

		if err := putConversation(tx, conv); err != nil {
			return err
		}
		if err := idx.Put(key, []byte(conv.ID)); err != nil {
			return err
		}
		for _, userID := range []string{userA, userB} {
			p := models.Participant{
				ConversationID: conv.ID,
				UserID:         userID,
				JoinedAt:       conv.CreatedAt,
			}
			if err := putParticipant(tx, p); err != nil {
				return err
			}
		}
		result = conv
		return nil
	})
	return result, err
}

// touchConversation bumps lastMessageAt if at is newer.
func touchConversation(tx *bbolt.Tx, id string, at int64) error {
	b := tx.Bucket(bucketConversations)
	data := b.Get([]byte(id))
	if data == nil {
		return models.ErrNotFound
	}
	var dbConv DBConversation
	if err := dbConv.UnmarshalBinary(data); err != nil {
		return err
	}
	if at > dbConv.LastMessageAt {
		dbConv.LastMessageAt = at
		out, err := dbConv.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbConv.Key(), out)
	}
	return nil
}

func conversationFromDB(c DBConversation) models.Conversation {
	return models.Conversation{
		ID:            c.ID,
		Name:          c.Name,
		IsGroup:       c.IsGroup,
		IsArchived:    c.IsArchived,
		IsPinned:      c.IsPinned,
		CreatedAt:     c.CreatedAt,
		LastMessageAt: c.LastMessageAt,
	}
}

// UpsertParticipant saves a participant record and maintains the per-user
// conversation index. Re-adding a previously left participant reuses the
// record (leftAt cleared by the caller).
func (s *BboltStorage) UpsertParticipant(p models.Participant) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putParticipant(tx, p)
	})
}

func putParticipant(tx *bbolt.Tx, p models.Participant) error {
	convBucket, err := tx.Bucket(bucketParticipants).CreateBucketIfNotExists([]byte(p.ConversationID))
	if err != nil {
		return fmt.Errorf("failed to create participant bucket: %w", err)
	}

	dbPart := DBParticipant{
		ConversationID: p.ConversationID,
		UserID:         p.UserID,
		IsAdmin:        p.IsAdmin,
		JoinedAt:       p.JoinedAt,
		LeftAt:         p.LeftAt,
	}
	data, err := dbPart.MarshalBinary()
	if err != nil {
		return err
	}
	if err := convBucket.Put(dbPart.Key(), data); err != nil {
		return err
	}

	userBucket, err := tx.Bucket(bucketUserConversations).CreateBucketIfNotExists([]byte(p.UserID))
	if err != nil {
		return fmt.Errorf("failed to create user conversation bucket: %w", err)
	}
	if p.LeftAt != 0 {
		return userBucket.Delete([]byte(p.ConversationID))
	}
	return userBucket.Put([]byte(p.ConversationID), []byte{1})
}

// GetParticipant returns the participant record for (conversation, user),
// including left ones. models.ErrNotFound when no record exists.
func (s *BboltStorage) GetParticipant(conversationID, userID string) (models.Participant, error) {
	var p models.Participant
	err := s.db.View(func(tx *bbolt.Tx) error {
		convBucket := tx.Bucket(bucketParticipants).Bucket([]byte(conversationID))
		if convBucket == nil {
			return models.ErrNotFound
		}
		data := convBucket.Get([]byte(userID))
		if data == nil {
			return models.ErrNotFound
		}
		var dbPart DBParticipant
		if err := dbPart.UnmarshalBinary(data); err != nil {
			return err
		}
		p = participantFromDB(dbPart)
		return nil
	})
	return p, err
}

// ListParticipants returns all participant records of a conversation,
// including left ones; callers filter with Active().
func (s *BboltStorage) ListParticipants(conversationID string) ([]models.Participant, error) {
	var participants []models.Participant
	err := s.db.View(func(tx *bbolt.Tx) error {
		convBucket := tx.Bucket(bucketParticipants).Bucket([]byte(conversationID))
		if convBucket == nil {
			return nil
		}
		return convBucket.ForEach(func(k, v []byte) error {
			var dbPart DBParticipant
			if err := dbPart.UnmarshalBinary(v); err != nil {
				return err
			}
			participants = append(participants, participantFromDB(dbPart))
			return nil
		})
	})
	return participants, err
}

// ConversationIDsForUser returns the ids of conversations the user is an
// active participant of. Used to enroll new connections into rooms.
func (s *BboltStorage) ConversationIDsForUser(userID string) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		userBucket := tx.Bucket(bucketUserConversations).Bucket([]byte(userID))
		if userBucket == nil {
			return nil
		}
		return userBucket.ForEach(func(k, v []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

// ListConversationsForUser returns the conversations the user actively
// participates in.
func (s *BboltStorage) ListConversationsForUser(userID string) ([]models.Conversation, error) {
	ids, err := s.ConversationIDsForUser(userID)
	if err != nil {
		return nil, err
	}
	var conversations []models.Conversation
	err = s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		for _, id := range ids {
			data := b.Get([]byte(id))
			if data == nil {
				continue
			}
			var dbConv DBConversation
			if err := dbConv.UnmarshalBinary(data); err != nil {
				return err
			}
			conversations = append(conversations, conversationFromDB(dbConv))
		}
		return nil
	})
	return conversations, err
}

func participantFromDB(p DBParticipant) models.Participant {
	return models.Participant{
		ConversationID: p.ConversationID,
		UserID:         p.UserID,
		IsAdmin:        p.IsAdmin,
		JoinedAt:       p.JoinedAt,
		LeftAt:         p.LeftAt,
	}
}

// UpsertMessage saves a message, its id ref, and bumps the conversation's
// lastMessageAt in one transaction.
func (s *BboltStorage) UpsertMessage(message models.Message) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if message.ConversationID == "" {
			return fmt.Errorf("message %s missing conversation id", message.ID)
		}

		convBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(message.ConversationID))
		if err != nil {
			return fmt.Errorf("failed to create message bucket: %w", err)
		}

		dbMessage := DBMessage{
			ID:             message.ID,
			ConversationID: message.ConversationID,
			SenderID:       message.SenderID,
			Kind:           string(message.Kind),
			Content:        message.Content,
			ParentID:       message.ParentID,
			FileID:         message.FileID,
			CreatedAt:      message.CreatedAt,
			EditedAt:       message.EditedAt,
			IsPinned:       message.IsPinned,
			IsDeleted:      message.IsDeleted,
		}
		data, err := dbMessage.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := convBucket.Put(dbMessage.Key(), data); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}

		ref := DBMessageRef{
			MessageID:      message.ID,
			ConversationID: message.ConversationID,
			CreatedAt:      message.CreatedAt,
		}
		refData, err := ref.MarshalBinary()
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketMessageRefs).Put(ref.Key(), refData); err != nil {
			return err
		}

		return touchConversation(tx, message.ConversationID, message.CreatedAt)
	})
}

// GetMessage locates a message by id via the ref index.
func (s *BboltStorage) GetMessage(messageID string) (models.Message, error) {
	var message models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		dbMsg, err := getMessage(tx, messageID)
		if err != nil {
			return err
		}
		message = messageFromDB(dbMsg)
		return nil
	})
	return message, err
}

func getMessage(tx *bbolt.Tx, messageID string) (DBMessage, error) {
	var dbMsg DBMessage
	refData := tx.Bucket(bucketMessageRefs).Get([]byte(messageID))
	if refData == nil {
		return dbMsg, models.ErrNotFound
	}
	var ref DBMessageRef
	if err := ref.UnmarshalBinary(refData); err != nil {
		return dbMsg, err
	}
	convBucket := tx.Bucket(bucketMessages).Bucket([]byte(ref.ConversationID))
	if convBucket == nil {
		return dbMsg, models.ErrNotFound
	}
	key := (&DBMessage{ID: ref.MessageID, CreatedAt: ref.CreatedAt}).Key()
	data := convBucket.Get(key)
	if data == nil {
		return dbMsg, models.ErrNotFound
	}
	if err := dbMsg.UnmarshalBinary(data); err != nil {
		return dbMsg, err
	}
	return dbMsg, nil
}

// ListMessages returns up to limit non-deleted messages of a conversation,
// newest first. A non-zero before cursor (createdAt, unix nanoseconds)
// restricts the scan to strictly older messages.
func (s *BboltStorage) ListMessages(conversationID string, before int64, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var messages []models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		convBucket := tx.Bucket(bucketMessages).Bucket([]byte(conversationID))
		if convBucket == nil {
			return nil
		}

		c := convBucket.Cursor()
		var k, v []byte
		if before > 0 {
			seek := (&DBMessage{CreatedAt: before}).Key()
			k, v = c.Seek(seek)
			if k == nil {
				k, v = c.Last()
			} else {
				k, v = c.Prev()
			}
			// Skip entries at exactly the cursor timestamp.
			for k != nil && bytes.Compare(k[:8], seek[:8]) >= 0 {
				k, v = c.Prev()
			}
		} else {
			k, v = c.Last()
		}

		for ; k != nil && len(messages) < limit; k, v = c.Prev() {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbMsg.IsDeleted {
				continue
			}
			messages = append(messages, messageFromDB(dbMsg))
		}
		return nil
	})
	return messages, err
}

// UpdateMessage applies a sender-side edit (content, pinned, deleted).
func (s *BboltStorage) UpdateMessage(message models.Message) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := getMessage(tx, message.ID); err != nil {
			return err
		}
		convBucket := tx.Bucket(bucketMessages).Bucket([]byte(message.ConversationID))
		if convBucket == nil {
			return models.ErrNotFound
		}
		dbMessage := DBMessage{
			ID:             message.ID,
			ConversationID: message.ConversationID,
			SenderID:       message.SenderID,
			Kind:           string(message.Kind),
			Content:        message.Content,
			ParentID:       message.ParentID,
			FileID:         message.FileID,
			CreatedAt:      message.CreatedAt,
			EditedAt:       message.EditedAt,
			IsPinned:       message.IsPinned,
			IsDeleted:      message.IsDeleted,
		}
		data, err := dbMessage.MarshalBinary()
		if err != nil {
			return err
		}
		return convBucket.Put(dbMessage.Key(), data)
	})
}

func messageFromDB(m DBMessage) models.Message {
	return models.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Kind:           models.MessageKind(m.Kind),
		Content:        m.Content,
		ParentID:       m.ParentID,
		FileID:         m.FileID,
		CreatedAt:      m.CreatedAt,
		EditedAt:       m.EditedAt,
		IsPinned:       m.IsPinned,
		IsDeleted:      m.IsDeleted,
	}
}

// ToggleReaction adds the (message, user, emoji) reaction if absent and
// removes it if present. Returns true when the reaction was added.
func (s *BboltStorage) ToggleReaction(reaction models.Reaction) (bool, error) {
	var added bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		msgBucket, err := tx.Bucket(bucketReactions).CreateBucketIfNotExists([]byte(reaction.MessageID))
		if err != nil {
			return fmt.Errorf("failed to create reaction bucket: %w", err)
		}

		dbReaction := DBReaction{
			MessageID: reaction.MessageID,
			UserID:    reaction.UserID,
			Emoji:     reaction.Emoji,
			CreatedAt: reaction.CreatedAt,
		}
		key := dbReaction.Key()
		if msgBucket.Get(key) != nil {
			added = false
			return msgBucket.Delete(key)
		}

		data, err := dbReaction.MarshalBinary()
		if err != nil {
			return err
		}
		added = true
		return msgBucket.Put(key, data)
	})
	return added, err
}

// ListReactions returns all reactions on a message.
func (s *BboltStorage) ListReactions(messageID string) ([]models.Reaction, error) {
	var reactions []models.Reaction
	err := s.db.View(func(tx *bbolt.Tx) error {
		msgBucket := tx.Bucket(bucketReactions).Bucket([]byte(messageID))
		if msgBucket == nil {
			return nil
		}
		return msgBucket.ForEach(func(k, v []byte) error {
			var dbReaction DBReaction
			if err := dbReaction.UnmarshalBinary(v); err != nil {
				return err
			}
			reactions = append(reactions, models.Reaction{
				MessageID: dbReaction.MessageID,
				UserID:    dbReaction.UserID,
				Emoji:     dbReaction.Emoji,
				CreatedAt: dbReaction.CreatedAt,
			})
			return nil
		})
	})
	return reactions, err
}
