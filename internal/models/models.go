package models

import (
	"encoding/json"
	"errors"
)

var (
	// ErrValidation marks malformed or missing input that the caller can correct.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a referenced user or chat that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks an authenticated caller acting outside their chats or role.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized marks a missing or invalid credential.
	ErrUnauthorized = errors.New("not authorized")
)

// User represents a registered identity.
// IsOnline and LastSeenAt are a projection of the live session set,
// persisted for cross-request visibility. LastSeenAt is nil while online.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	IsOnline   bool   `json:"isOnline"`
	LastSeenAt *int64 `json:"lastSeenAt"` // Unix timestamp (seconds)
}

// Chat is a direct or group conversation.
// MemberIDs preserves insertion order; admin reassignment on removal
// picks the first remaining member in this order.
type Chat struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"` // empty for direct chats
	IsGroup          bool     `json:"isGroup"`
	MemberIDs        []string `json:"memberIds"`
	AdminID          string   `json:"adminId,omitempty"` // groups only
	LatestMessageSeq int64    `json:"latestMessageSeq"`  // 0 means no messages yet
	UpdatedAt        int64    `json:"updatedAt"`         // Unix timestamp (seconds)
}

// IsMember reports whether the user belongs to the chat.
func (c *Chat) IsMember(userID string) bool {
	for _, id := range c.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Attachment describes an uploaded file referenced by a message.
type Attachment struct {
	URL          string `json:"url"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
}

// Message is immutable once created.
type Message struct {
	ID          string       `json:"id"`
	Seq         int64        `json:"seq"`
	ChatID      string       `json:"chatId"`
	SenderID    string       `json:"senderId"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   int64        `json:"createdAt"` // Unix timestamp (seconds)
}

// MessageView is a message with the sender resolved to display fields,
// as delivered over the API and the realtime channel.
type MessageView struct {
	ID          string       `json:"id"`
	ChatID      string       `json:"chatId"`
	Sender      User         `json:"sender"`
	Content     string       `json:"content"`
	ContentHTML string       `json:"contentHtml,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   int64        `json:"createdAt"`
}

// ChatView is a chat with members, admin and latest message resolved.
type ChatView struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	IsGroup       bool         `json:"isGroup"`
	Members       []User       `json:"members"`
	Admin         *User        `json:"admin,omitempty"`
	LatestMessage *MessageView `json:"latestMessage,omitempty"`
	UpdatedAt     int64        `json:"updatedAt"`
}

// Realtime event names. Client and server sides share the envelope format;
// unknown client events are ignored.
const (
	EventChatJoin    = "chat:join"
	EventChatLeave   = "chat:leave"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"

	EventMessageNew     = "message:new"
	EventTypingUpdate   = "typing:update"
	EventPresenceUpdate = "presence:update"
)

// ClientEvent is the envelope for events sent from the client.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerEvent is the envelope for events delivered to the client.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// RoomPayload carries a chat reference for join/leave and typing events.
type RoomPayload struct {
	ChatID string `json:"chatId"`
}

// TypingPayload is relayed to every room member except the typist.
type TypingPayload struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// PresencePayload is broadcast to all connected sessions.
type PresencePayload struct {
	UserID     string `json:"userId"`
	IsOnline   bool   `json:"isOnline"`
	LastSeenAt *int64 `json:"lastSeenAt"`
}

// MessagePayload wraps a resolved message for the message:new event.
type MessagePayload struct {
	Message MessageView `json:"message"`
}
