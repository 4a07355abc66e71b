package ws

import (
	"palaver/internal/models"
)

// TypingCoordinator relays ephemeral typing events through the hub's room
// primitive. It carries no state: no dedup, no rate limiting, no timeout.
// A client that disconnects mid-typing leaves the indicator stale for other
// clients until they learn of the disconnect through presence.
type TypingCoordinator struct {
	hub *Hub
}

func NewTypingCoordinator(hub *Hub) *TypingCoordinator {
	return &TypingCoordinator{hub: hub}
}

func (t *TypingCoordinator) Start(s *Session, chatID string) {
	t.relay(s, chatID, true)
}

func (t *TypingCoordinator) Stop(s *Session, chatID string) {
	t.relay(s, chatID, false)
}

func (t *TypingCoordinator) relay(s *Session, chatID string, isTyping bool) {
	t.hub.PublishToRoomExcept(chatID, models.EventTypingUpdate, models.TypingPayload{
		ChatID:   chatID,
		UserID:   s.UserID(),
		IsTyping: isTyping,
	}, s)
}
