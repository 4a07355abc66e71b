package storage

import (
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"palaver/internal/models"
)

var (
	bucketUsers    = []byte("users")
	bucketChats    = []byte("chats")
	bucketMessages = []byte("messages")
	bucketFiles    = []byte("files")
)

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketUsers); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketChats); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketMessages); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketFiles); err != nil {
			return err
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

// UpsertUser stores a new or updated user record.
func (s *BboltStorage) UpsertUser(rec UserRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		dbUser := userToDB(rec)
		data, err := dbUser.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbUser.Key(), data)
	})
}

func (s *BboltStorage) GetUser(id string) (UserRecord, error) {
	var rec UserRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
		}
		var dbUser DBUser
		if err := dbUser.UnmarshalBinary(data); err != nil {
			return err
		}
		rec = dbUser.toRecord()
		return nil
	})
	return rec, err
}

func (s *BboltStorage) FindUserByEmail(email string) (UserRecord, error) {
	var rec UserRecord
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbUser.Email == email {
				rec = dbUser.toRecord()
				found = true
			}
			return nil
		})
	})
	if err != nil {
		return UserRecord{}, err
	}
	if !found {
		return UserRecord{}, fmt.Errorf("user with email %s: %w", email, models.ErrNotFound)
	}
	return rec, nil
}

// ListUsers returns all user records stored in the database.
func (s *BboltStorage) ListUsers() ([]UserRecord, error) {
	var users []UserRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			users = append(users, dbUser.toRecord())
			return nil
		})
	})
	return users, err
}

// SetPresence writes the online/last-seen projection onto a user record.
// lastSeenAt is nil while the user is online.
func (s *BboltStorage) SetPresence(userID string, online bool, lastSeenAt *int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		data := b.Get([]byte(userID))
		if data == nil {
			return fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
		}
		var dbUser DBUser
		if err := dbUser.UnmarshalBinary(data); err != nil {
			return err
		}
		dbUser.IsOnline = online
		dbUser.LastSeenAt = 0
		if lastSeenAt != nil {
			dbUser.LastSeenAt = *lastSeenAt
		}
		newData, err := dbUser.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbUser.Key(), newData)
	})
}

// UpsertChat saves chat struct to the database.
func (s *BboltStorage) UpsertChat(chat models.Chat) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChats)
		dbChat := DBChat{
			ID:               chat.ID,
			Name:             chat.Name,
			IsGroup:          chat.IsGroup,
			MemberIDs:        chat.MemberIDs,
			AdminID:          chat.AdminID,
			LatestMessageSeq: chat.LatestMessageSeq,
			UpdatedAt:        chat.UpdatedAt,
		}
		data, err := dbChat.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbChat.Key(), data)
	})
}

func (s *BboltStorage) GetChat(id string) (models.Chat, error) {
	var chat models.Chat
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketChats).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("chat %s: %w", id, models.ErrNotFound)
		}
		var dbChat DBChat
		if err := dbChat.UnmarshalBinary(data); err != nil {
			return err
		}
		chat = dbChat.toModel()
		return nil
	})
	return chat, err
}

// DeleteChat removes the chat record. Messages are left in place;
// the chat id is never reused so they become unreachable.
func (s *BboltStorage) DeleteChat(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChats).Delete([]byte(id))
	})
}

// ListChatsByMember returns all chats the user is a member of.
func (s *BboltStorage) ListChatsByMember(userID string) ([]models.Chat, error) {
	var chats []models.Chat
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChats).ForEach(func(k, v []byte) error {
			var dbChat DBChat
			if err := dbChat.UnmarshalBinary(v); err != nil {
				return err
			}
			chat := dbChat.toModel()
			if chat.IsMember(userID) {
				chats = append(chats, chat)
			}
			return nil
		})
	})
	return chats, err
}

// FindDirectChat returns the direct chat containing exactly the given pair.
// Direct chats always have two members, so containment implies exactness.
func (s *BboltStorage) FindDirectChat(userA, userB string) (models.Chat, error) {
	var chat models.Chat
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChats).ForEach(func(k, v []byte) error {
			if found {
				return nil
			}
			var dbChat DBChat
			if err := dbChat.UnmarshalBinary(v); err != nil {
				return err
			}
			c := dbChat.toModel()
			if !c.IsGroup && c.IsMember(userA) && c.IsMember(userB) {
				chat = c
				found = true
			}
			return nil
		})
	})
	if err != nil {
		return models.Chat{}, err
	}
	if !found {
		return models.Chat{}, fmt.Errorf("direct chat: %w", models.ErrNotFound)
	}
	return chat, nil
}

// AppendMessage persists a message under the next sequence number for its
// chat and fills in msg.Seq. Keys are big-endian so cursor order is
// creation order.
func (s *BboltStorage) AppendMessage(msg *models.Message) error {
	if msg.ChatID == "" {
		return errors.New("message missing chatID")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		chatBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(msg.ChatID))
		if err != nil {
			return fmt.Errorf("failed to create chat bucket: %w", err)
		}

		seq, err := chatBucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}
		msg.Seq = int64(seq)

		dbMessage := DBMessage{
			ID:        msg.ID,
			Seq:       msg.Seq,
			Timestamp: msg.CreatedAt,
			ChatID:    msg.ChatID,
			SenderID:  msg.SenderID,
			Content:   msg.Content,
		}
		if len(msg.Attachments) > 0 {
			dbMessage.Attachments = make([]DBAttachment, len(msg.Attachments))
			for i, a := range msg.Attachments {
				dbMessage.Attachments[i] = DBAttachment{
					URL:          a.URL,
					OriginalName: a.OriginalName,
					MimeType:     a.MimeType,
					Size:         a.Size,
				}
			}
		}

		data, err := dbMessage.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		return chatBucket.Put(dbMessage.Key(), data)
	})
}

// ListMessages returns all chat messages in ascending creation order.
func (s *BboltStorage) ListMessages(chatID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(chatID))
		if chatBucket == nil {
			return nil // No messages for this chat
		}

		c := chatBucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, dbMsg.toModel())
		}
		return nil
	})
	return messages, err
}

// GetMessageBySeq resolves a chat's latest-message pointer.
func (s *BboltStorage) GetMessageBySeq(chatID string, seq int64) (models.Message, error) {
	var msg models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(chatID))
		if chatBucket == nil {
			return fmt.Errorf("message %d in chat %s: %w", seq, chatID, models.ErrNotFound)
		}
		probe := DBMessage{Seq: seq}
		data := chatBucket.Get(probe.Key())
		if data == nil {
			return fmt.Errorf("message %d in chat %s: %w", seq, chatID, models.ErrNotFound)
		}
		var dbMsg DBMessage
		if err := dbMsg.UnmarshalBinary(data); err != nil {
			return err
		}
		msg = dbMsg.toModel()
		return nil
	})
	return msg, err
}
