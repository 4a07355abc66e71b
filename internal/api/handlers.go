package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/samber/lo"

	"palaver/internal/auth"
	"palaver/internal/chat"
	"palaver/internal/content"
	"palaver/internal/filestore"
	"palaver/internal/models"
	"palaver/internal/relay"
	"palaver/internal/storage"
)

const maxUploadSize = 25 << 20 // 25 MiB

type Handlers struct {
	auth  *auth.Service
	chats *chat.Service
	relay *relay.Relay
	files filestore.FileStore
	store *storage.BboltStorage
}

func New(authService *auth.Service, chats *chat.Service, messageRelay *relay.Relay, files filestore.FileStore, store *storage.BboltStorage) *Handlers {
	return &Handlers{
		auth:  authService,
		chats: chats,
		relay: messageRelay,
		files: files,
		store: store,
	}
}

func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	name := strings.TrimSpace(content.Sanitize(req.Name))
	if name == "" {
		writeError(w, fmt.Errorf("name is required: %w", models.ErrValidation))
		return
	}

	user, token, err := h.auth.Register(name, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"user": user, "token": token})
}

func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, token, err := h.auth.Login(req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": user, "token": token})
}

func (h *Handlers) MeHandler(w http.ResponseWriter, r *http.Request, user models.User) {
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// UsersHandler lists every registered user except the requester, sorted by
// display name.
func (h *Handlers) UsersHandler(w http.ResponseWriter, r *http.Request, user models.User) {
	records, err := h.store.ListUsers()
	if err != nil {
		writeError(w, err)
		return
	}

	users := lo.FilterMap(records, func(rec storage.UserRecord, _ int) (models.User, bool) {
		return rec.User, rec.User.ID != user.ID
	})
	sort.Slice(users, func(i, j int) bool {
		return users[i].Name < users[j].Name
	})

	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handlers) AccessChatHandler(w http.ResponseWriter, r *http.Request, user models.User) {
	var req AccessChatRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	view, err := h.chats.AccessOrCreateDirect(user.ID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"chat": view})
}

func (h *Handlers) ListChatsHandler(w http.ResponseWriter, r *http.Request, user models.User) {
	views, err := h.chats.ListChats(user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"chats": views})
}

func (h *Handlers) CreateGroupHandler(w http.ResponseWriter, r *http.Request, user models.User) {
	var req CreateGroupRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	view, err := h.chats.CreateGroup(user.ID, req.Name, req.Users)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"chat": view})
}

func (h *Handlers) RenameGroupHandler(w http.ResponseWriter, r *http.Request, user models.User) {
	var req RenameGroupRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	view, err := h.chats.RenameGroup(user.ID, req.ChatID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"chat": view})
}

func (h *Handlers) AddMemberHandler(w http.ResponseWriter, r *http.Request, user models.User) {
	var req MemberRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	view, err := h.chats.AddMember(user.ID, req.ChatID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"chat": view})
}

func (h *Handlers) RemoveMemberHandler(w http.ResponseWriter, r *http.Request, user models.User) {
	var req MemberRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	view, deleted, err := h.chats.RemoveMember(user.ID, req.ChatID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	if deleted {
		// Terminal: callers must discard any cached copy of the chat.
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"chat": view})
}

func (h *Handlers) MessagesHandler(w http.ResponseWriter, r *http.Request, user models.User) {
	views, err := h.relay.History(user.ID, r.PathValue("chatId"))
	if err != nil {
		writeError(w, err)
		return
	}

	if views == nil {
		views = []models.MessageView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": views})
}

func (h *Handlers) SendMessageHandler(w http.ResponseWriter, r *http.Request, user models.User) {
	var req SendMessageRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	// A message with neither content nor attachments is meaningless.
	if strings.TrimSpace(req.Content) == "" && len(req.Attachments) == 0 {
		writeError(w, fmt.Errorf("message requires content or attachments: %w", models.ErrValidation))
		return
	}

	view, err := h.relay.Send(user.ID, req.ChatID, req.Content, req.Attachments)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"message": view})
}

func (h *Handlers) UploadHandler(w http.ResponseWriter, r *http.Request, user models.User) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, fmt.Errorf("no file uploaded: %w", models.ErrValidation))
		return
	}
	defer func() { _ = file.Close() }()

	// Sniff the real content type from the first bytes; fall back to the
	// client-declared type for formats filetype does not know.
	head := make([]byte, 261)
	n, _ := io.ReadFull(file, head)
	head = head[:n]

	mimeType := header.Header.Get("Content-Type")
	if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
		mimeType = kind.MIME.Value
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	id := uuid.NewString()
	if err := h.files.Save(io.MultiReader(bytes.NewReader(head), file), id); err != nil {
		writeError(w, err)
		return
	}

	meta := storage.FileMetadata{
		ID:           id,
		OriginalName: header.Filename,
		MimeType:     mimeType,
		Size:         header.Size,
		CreatedAt:    time.Now().Unix(),
		UserID:       user.ID,
	}
	if err := h.store.UpsertFileMetadata(meta); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"file": models.Attachment{
			URL:          "/uploads/" + id,
			OriginalName: meta.OriginalName,
			MimeType:     meta.MimeType,
			Size:         meta.Size,
		},
	})
}

func (h *Handlers) ServeUploadHandler(w http.ResponseWriter, r *http.Request) {
	meta, err := h.store.GetFileMetadata(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	f, err := h.files.Get(meta.ID)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", meta.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	if _, err := io.Copy(w, f); err != nil {
		slog.Warn("failed to stream file", "file_id", meta.ID, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	switch {
	case errors.Is(err, models.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, auth.ErrUserExists):
		status = http.StatusConflict
	default:
		slog.Error("request failed", "error", err)
		message = "Server error"
	}

	writeJSON(w, status, map[string]string{"message": message})
}
