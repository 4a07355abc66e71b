package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"palaver/internal/models"
)

// TokenVerifier is the external auth collaborator at the handshake.
type TokenVerifier interface {
	Verify(token string) (models.User, error)
}

type Server struct {
	verifier TokenVerifier
	hub      *Hub
	table    *DispatchTable
	upgrader *websocket.Upgrader
}

func NewServer(verifier TokenVerifier, hub *Hub) *Server {
	typing := NewTypingCoordinator(hub)

	table := NewDispatchTable()
	table.Register(models.EventChatJoin, roomHandler(hub.JoinRoom))
	table.Register(models.EventChatLeave, roomHandler(hub.LeaveRoom))
	table.Register(models.EventTypingStart, roomHandler(typing.Start))
	table.Register(models.EventTypingStop, roomHandler(typing.Stop))

	return &Server{
		verifier: verifier,
		hub:      hub,
		table:    table,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}
}

func roomHandler(fn func(s *Session, chatID string)) EventHandler {
	return func(s *Session, data json.RawMessage) {
		var payload models.RoomPayload
		if err := json.Unmarshal(data, &payload); err != nil || payload.ChatID == "" {
			return
		}
		fn(s, payload.ChatID)
	}
}

// HandleConnections authenticates the handshake and hands the socket to a
// Connection. A bad credential is rejected before any session state exists.
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	user, err := s.verifier.Verify(bearerToken(r))
	if err != nil {
		http.Error(w, "Not authorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("error upgrading to websocket: %v", err)
		return
	}

	conn := NewConnection(s.hub, s.table, ws, user.ID)
	if err := conn.Handle(r.Context()); err != nil {
		log.Printf("connection closed with error: %v", err)
	}
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
