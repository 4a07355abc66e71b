package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"

	"palaver/internal/models"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// UserRecord is a user together with its credential hash.
// The hash never leaves the storage/auth boundary.
type UserRecord struct {
	models.User
	PasswordHash string
}

type DBUser struct {
	ID           string `msgpack:"id"`
	Name         string `msgpack:"name"`
	Email        string `msgpack:"email"`
	PasswordHash string `msgpack:"passwordHash"`
	IsOnline     bool   `msgpack:"isOnline"`
	LastSeenAt   int64  `msgpack:"lastSeenAt"` // 0 means never seen / currently online
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

func (u *DBUser) toRecord() UserRecord {
	rec := UserRecord{
		User: models.User{
			ID:       u.ID,
			Name:     u.Name,
			Email:    u.Email,
			IsOnline: u.IsOnline,
		},
		PasswordHash: u.PasswordHash,
	}
	if u.LastSeenAt != 0 {
		lastSeen := u.LastSeenAt
		rec.LastSeenAt = &lastSeen
	}
	return rec
}

func userToDB(rec UserRecord) *DBUser {
	dbUser := &DBUser{
		ID:           rec.ID,
		Name:         rec.Name,
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		IsOnline:     rec.IsOnline,
	}
	if rec.LastSeenAt != nil {
		dbUser.LastSeenAt = *rec.LastSeenAt
	}
	return dbUser
}

type DBChat struct {
	ID               string   `msgpack:"id"`
	Name             string   `msgpack:"name"`
	IsGroup          bool     `msgpack:"isGroup"`
	MemberIDs        []string `msgpack:"memberIds"`
	AdminID          string   `msgpack:"adminId"`
	LatestMessageSeq int64    `msgpack:"latestMessageSeq"`
	UpdatedAt        int64    `msgpack:"updatedAt"`
}

func (c *DBChat) Key() []byte {
	return []byte(c.ID)
}

func (c *DBChat) MarshalBinary() (data []byte, err error) {
	type alias DBChat
	return msgpack.Marshal((*alias)(c))
}

func (c *DBChat) UnmarshalBinary(data []byte) error {
	type alias DBChat
	return msgpack.Unmarshal(data, (*alias)(c))
}

func (c *DBChat) toModel() models.Chat {
	return models.Chat{
		ID:               c.ID,
		Name:             c.Name,
		IsGroup:          c.IsGroup,
		MemberIDs:        c.MemberIDs,
		AdminID:          c.AdminID,
		LatestMessageSeq: c.LatestMessageSeq,
		UpdatedAt:        c.UpdatedAt,
	}
}

type DBMessage struct {
	ID          string         `msgpack:"id"`
	Seq         int64          `msgpack:"seq"`
	Timestamp   int64          `msgpack:"timestamp"`
	ChatID      string         `msgpack:"chatId"`
	SenderID    string         `msgpack:"senderId"`
	Content     string         `msgpack:"content"`
	Attachments []DBAttachment `msgpack:"attachments"`
}

type DBAttachment struct {
	URL          string `msgpack:"url"`
	OriginalName string `msgpack:"originalName"`
	MimeType     string `msgpack:"mimeType"`
	Size         int64  `msgpack:"size"`
}

func (m *DBMessage) Key() []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(m.Seq))
	return key
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

func (m *DBMessage) toModel() models.Message {
	msg := models.Message{
		ID:        m.ID,
		Seq:       m.Seq,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.Timestamp,
	}
	if len(m.Attachments) > 0 {
		msg.Attachments = make([]models.Attachment, len(m.Attachments))
		for i, a := range m.Attachments {
			msg.Attachments[i] = models.Attachment{
				URL:          a.URL,
				OriginalName: a.OriginalName,
				MimeType:     a.MimeType,
				Size:         a.Size,
			}
		}
	}
	return msg
}
