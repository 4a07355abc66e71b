package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"palaver/internal/content"
	"palaver/internal/models"
	"palaver/internal/storage"
)

// Publisher is the gateway's room publish primitive.
type Publisher interface {
	PublishToRoom(chatID, event string, data any)
}

// Store is the slice of the record store the relay needs.
type Store interface {
	GetUser(id string) (storage.UserRecord, error)
	GetChat(id string) (models.Chat, error)
	UpsertChat(chat models.Chat) error
	AppendMessage(msg *models.Message) error
	ListMessages(chatID string) ([]models.Message, error)
}

// Relay validates message writes against chat membership, persists them,
// maintains the chat's latest-message pointer, and fans the resolved
// message out to the chat's room.
type Relay struct {
	store Store
	pub   Publisher
	now   func() time.Time
}

func New(store Store, pub Publisher) *Relay {
	return &Relay{
		store: store,
		pub:   pub,
		now:   time.Now,
	}
}

// Send persists a message and publishes message:new to the chat's room.
// Content may be empty when attachments are present; the "neither" case is
// rejected at the API boundary before this is reached.
func (r *Relay) Send(requesterID, chatID, msgContent string, attachments []models.Attachment) (models.MessageView, error) {
	chat, err := r.memberChat(requesterID, chatID)
	if err != nil {
		return models.MessageView{}, err
	}

	now := r.now().Unix()
	msg := models.Message{
		ID:          uuid.NewString(),
		ChatID:      chat.ID,
		SenderID:    requesterID,
		Content:     content.Sanitize(msgContent),
		Attachments: attachments,
		CreatedAt:   now,
	}
	if err := r.store.AppendMessage(&msg); err != nil {
		return models.MessageView{}, err
	}

	chat.LatestMessageSeq = msg.Seq
	chat.UpdatedAt = now
	if err := r.store.UpsertChat(chat); err != nil {
		return models.MessageView{}, err
	}

	view := r.resolveMessage(msg)
	r.pub.PublishToRoom(chat.ID, models.EventMessageNew, models.MessagePayload{Message: view})

	return view, nil
}

// History returns all of the chat's messages in ascending creation order,
// senders resolved. No pagination.
func (r *Relay) History(requesterID, chatID string) ([]models.MessageView, error) {
	if _, err := r.memberChat(requesterID, chatID); err != nil {
		return nil, err
	}

	messages, err := r.store.ListMessages(chatID)
	if err != nil {
		return nil, err
	}

	views := make([]models.MessageView, len(messages))
	for i, msg := range messages {
		views[i] = r.resolveMessage(msg)
	}
	return views, nil
}

func (r *Relay) memberChat(requesterID, chatID string) (models.Chat, error) {
	chat, err := r.store.GetChat(chatID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Chat{}, fmt.Errorf("chat not found: %w", models.ErrNotFound)
		}
		return models.Chat{}, err
	}
	if !chat.IsMember(requesterID) {
		return models.Chat{}, fmt.Errorf("not a member of this chat: %w", models.ErrForbidden)
	}
	return chat, nil
}

func (r *Relay) resolveMessage(msg models.Message) models.MessageView {
	sender := models.User{ID: msg.SenderID}
	if rec, err := r.store.GetUser(msg.SenderID); err == nil {
		sender = rec.User
	}
	return models.MessageView{
		ID:          msg.ID,
		ChatID:      msg.ChatID,
		Sender:      sender,
		Content:     msg.Content,
		ContentHTML: content.RenderMarkdown(msg.Content),
		Attachments: msg.Attachments,
		CreatedAt:   msg.CreatedAt,
	}
}
