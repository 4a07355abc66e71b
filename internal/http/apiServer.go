package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"palaver/internal/api"
	"palaver/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(handlers *api.Handlers, wsServer *ws.Server, addr string) *APIServer {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handlers.HealthHandler)

	// Auth
	mux.HandleFunc("POST /api/auth/register", handlers.RegisterHandler)
	mux.HandleFunc("POST /api/auth/login", handlers.LoginHandler)
	mux.HandleFunc("GET /api/auth/me", handlers.RequireAuth(handlers.MeHandler))

	// Users
	mux.HandleFunc("GET /api/users", handlers.RequireAuth(handlers.UsersHandler))

	// Chats
	mux.HandleFunc("POST /api/chats", handlers.RequireAuth(handlers.AccessChatHandler))
	mux.HandleFunc("GET /api/chats", handlers.RequireAuth(handlers.ListChatsHandler))
	mux.HandleFunc("POST /api/chats/group", handlers.RequireAuth(handlers.CreateGroupHandler))
	mux.HandleFunc("PUT /api/chats/group/rename", handlers.RequireAuth(handlers.RenameGroupHandler))
	mux.HandleFunc("PUT /api/chats/group/add", handlers.RequireAuth(handlers.AddMemberHandler))
	mux.HandleFunc("PUT /api/chats/group/remove", handlers.RequireAuth(handlers.RemoveMemberHandler))

	// Messages
	mux.HandleFunc("GET /api/messages/{chatId}", handlers.RequireAuth(handlers.MessagesHandler))
	mux.HandleFunc("POST /api/messages", handlers.RequireAuth(handlers.SendMessageHandler))

	// Uploads
	mux.HandleFunc("POST /api/uploads", handlers.RequireAuth(handlers.UploadHandler))
	mux.HandleFunc("GET /uploads/{id}", handlers.ServeUploadHandler)

	// WebSocket endpoint
	mux.HandleFunc("/api/ws", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
