package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"palaver/internal/models"
)

const sessionBufferSize = 64

// PresenceStore persists the online/last-seen projection. Writes are
// best-effort: a failure never blocks the connection lifecycle.
type PresenceStore interface {
	SetPresence(userID string, online bool, lastSeenAt *int64) error
}

// Session is one live connection bound to an identity. An identity may
// have many concurrent sessions.
type Session struct {
	id     string
	userID string
	send   chan models.ServerEvent
}

// UserID returns the identity the session is bound to.
func (s *Session) UserID() string {
	return s.userID
}

// Events is the stream of server events queued for this session.
func (s *Session) Events() <-chan models.ServerEvent {
	return s.send
}

// Hub is the connection gateway: it owns the presence tracker and the
// room-scoped broadcast groups. All state is process-wide and in-memory;
// a multi-instance deployment needs an external fan-out backplane.
type Hub struct {
	store    PresenceStore
	presence *PresenceTracker

	// Map of sessionID -> Session
	sessions map[string]*Session

	// Map of chatID -> set of joined sessions
	rooms map[string]map[string]*Session

	mu  sync.RWMutex
	now func() time.Time
}

func NewHub(store PresenceStore) *Hub {
	return &Hub{
		store:    store,
		presence: NewPresenceTracker(),
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[string]*Session),
		now:      time.Now,
	}
}

// Connect registers a new session for an already-verified identity and
// broadcasts presence:update. The online broadcast is deliberately not
// transition-gated: a second simultaneous session re-announces the
// identity as online. Only the offline broadcast fires on a transition.
func (h *Hub) Connect(userID string) *Session {
	s := &Session{
		id:     uuid.NewString(),
		userID: userID,
		send:   make(chan models.ServerEvent, sessionBufferSize),
	}

	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()

	h.presence.OpenSession(userID, s.id)

	if err := h.store.SetPresence(userID, true, nil); err != nil {
		slog.Warn("presence update failed", "user_id", userID, "error", err)
	}

	h.Broadcast(models.EventPresenceUpdate, models.PresencePayload{
		UserID:   userID,
		IsOnline: true,
	})

	return s
}

// Disconnect removes the session from every room it joined, closes its
// session handle, and, if it was the identity's last session, persists and
// broadcasts the offline transition.
func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.id)
	for chatID, room := range h.rooms {
		delete(room, s.id)
		if len(room) == 0 {
			delete(h.rooms, chatID)
		}
	}
	// Close under the write lock so no publisher can race the close.
	close(s.send)
	h.mu.Unlock()

	if !h.presence.CloseSession(s.userID, s.id) {
		return
	}

	lastSeen := h.now().Unix()
	if err := h.store.SetPresence(s.userID, false, &lastSeen); err != nil {
		slog.Warn("presence update failed", "user_id", s.userID, "error", err)
	}

	h.Broadcast(models.EventPresenceUpdate, models.PresencePayload{
		UserID:     s.userID,
		IsOnline:   false,
		LastSeenAt: &lastSeen,
	})
}

// JoinRoom adds the session to a chat's broadcast group. Membership is not
// validated here: only authorized writers can trigger sends to the room, so
// an unauthorized joiner never receives traffic it isn't entitled to.
func (h *Hub) JoinRoom(s *Session, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[chatID]
	if !ok {
		room = make(map[string]*Session)
		h.rooms[chatID] = room
	}
	room[s.id] = s
}

func (h *Hub) LeaveRoom(s *Session, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[chatID]
	if !ok {
		return
	}
	delete(room, s.id)
	if len(room) == 0 {
		delete(h.rooms, chatID)
	}
}

// PublishToRoom delivers the event to every session currently joined to
// the chat's room, in publish order per room.
func (h *Hub) PublishToRoom(chatID, event string, data any) {
	h.publishToRoom(chatID, event, data, nil)
}

// PublishToRoomExcept is PublishToRoom minus the originating session.
func (h *Hub) PublishToRoomExcept(chatID, event string, data any, except *Session) {
	h.publishToRoom(chatID, event, data, except)
}

func (h *Hub) publishToRoom(chatID, event string, data any, except *Session) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.rooms[chatID] {
		if except != nil && s.id == except.id {
			continue
		}
		h.deliver(s, models.ServerEvent{Event: event, Data: data})
	}
}

// Broadcast delivers the event to every connected session regardless of rooms.
func (h *Hub) Broadcast(event string, data any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.sessions {
		h.deliver(s, models.ServerEvent{Event: event, Data: data})
	}
}

func (h *Hub) deliver(s *Session, event models.ServerEvent) {
	select {
	case s.send <- event:
	default:
		// Slow consumer: drop rather than block the publisher. Delivery
		// is best-effort while connected; clients recover via history.
		slog.Warn("dropping event for slow session", "session_id", s.id, "event", event.Event)
	}
}
