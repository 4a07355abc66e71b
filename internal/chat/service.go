package chat

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"palaver/internal/content"
	"palaver/internal/models"
	"palaver/internal/storage"
)

// Store is the slice of the record store the domain service needs.
type Store interface {
	GetUser(id string) (storage.UserRecord, error)
	GetChat(id string) (models.Chat, error)
	UpsertChat(chat models.Chat) error
	DeleteChat(id string) error
	ListChatsByMember(userID string) ([]models.Chat, error)
	FindDirectChat(userA, userB string) (models.Chat, error)
	GetMessageBySeq(chatID string, seq int64) (models.Message, error)
}

// Service owns chat entities and is the only mutator of chat membership.
// Read-modify-write on chats is not transactional: two concurrent admin
// mutations on the same chat race and the last writer wins.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

// AccessOrCreateDirect returns the direct chat for the unordered pair
// {requester, other}, creating it on first access. Repeated calls with the
// same pair return the same chat.
func (s *Service) AccessOrCreateDirect(requesterID, otherID string) (models.ChatView, error) {
	if otherID == requesterID {
		return models.ChatView{}, fmt.Errorf("cannot open a direct chat with yourself: %w", models.ErrValidation)
	}

	if _, err := s.store.GetUser(otherID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ChatView{}, fmt.Errorf("user not found: %w", models.ErrNotFound)
		}
		return models.ChatView{}, err
	}

	existing, err := s.store.FindDirectChat(requesterID, otherID)
	if err == nil {
		return s.resolveChat(existing)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return models.ChatView{}, err
	}

	chat := models.Chat{
		ID:        uuid.NewString(),
		IsGroup:   false,
		MemberIDs: []string{requesterID, otherID},
		UpdatedAt: s.now().Unix(),
	}
	if err := s.store.UpsertChat(chat); err != nil {
		return models.ChatView{}, err
	}

	return s.resolveChat(chat)
}

// ListChats returns all chats the requester belongs to, most recently
// active first.
func (s *Service) ListChats(requesterID string) ([]models.ChatView, error) {
	chats, err := s.store.ListChatsByMember(requesterID)
	if err != nil {
		return nil, err
	}

	sort.Slice(chats, func(i, j int) bool {
		return chats[i].UpdatedAt > chats[j].UpdatedAt
	})

	views := make([]models.ChatView, 0, len(chats))
	for _, c := range chats {
		view, err := s.resolveChat(c)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// CreateGroup creates a named group chat. The final member set is the
// deduplicated union of memberIDs and the requester; the requester becomes
// admin. At least 2 distinct members besides the requester are required.
func (s *Service) CreateGroup(requesterID, name string, memberIDs []string) (models.ChatView, error) {
	name = strings.TrimSpace(content.Sanitize(name))
	if name == "" {
		return models.ChatView{}, fmt.Errorf("group name is required: %w", models.ErrValidation)
	}

	others := lo.Uniq(lo.Without(memberIDs, requesterID))
	if len(others) < 2 {
		return models.ChatView{}, fmt.Errorf("group requires at least 2 other members: %w", models.ErrValidation)
	}

	chat := models.Chat{
		ID:        uuid.NewString(),
		Name:      name,
		IsGroup:   true,
		MemberIDs: append(others, requesterID),
		AdminID:   requesterID,
		UpdatedAt: s.now().Unix(),
	}
	if err := s.store.UpsertChat(chat); err != nil {
		return models.ChatView{}, err
	}

	return s.resolveChat(chat)
}

// RenameGroup updates the display name. Admin only.
func (s *Service) RenameGroup(requesterID, chatID, name string) (models.ChatView, error) {
	name = strings.TrimSpace(content.Sanitize(name))
	if name == "" {
		return models.ChatView{}, fmt.Errorf("group name is required: %w", models.ErrValidation)
	}

	chat, err := s.getGroupAsMember(requesterID, chatID)
	if err != nil {
		return models.ChatView{}, err
	}
	if chat.AdminID != requesterID {
		return models.ChatView{}, fmt.Errorf("only admin can rename group: %w", models.ErrForbidden)
	}

	chat.Name = name
	chat.UpdatedAt = s.now().Unix()
	if err := s.store.UpsertChat(chat); err != nil {
		return models.ChatView{}, err
	}

	return s.resolveChat(chat)
}

// AddMember appends a user to the group. Admin only. Adding an existing
// member is a no-op, not an error.
func (s *Service) AddMember(requesterID, chatID, userID string) (models.ChatView, error) {
	chat, err := s.getGroupAsMember(requesterID, chatID)
	if err != nil {
		return models.ChatView{}, err
	}
	if chat.AdminID != requesterID {
		return models.ChatView{}, fmt.Errorf("only admin can add members: %w", models.ErrForbidden)
	}

	if !chat.IsMember(userID) {
		chat.MemberIDs = append(chat.MemberIDs, userID)
		chat.UpdatedAt = s.now().Unix()
		if err := s.store.UpsertChat(chat); err != nil {
			return models.ChatView{}, err
		}
	}

	return s.resolveChat(chat)
}

// RemoveMember removes a user from the group. The requester must be the
// admin, or be removing themselves. If fewer than 2 members remain the chat
// is deleted outright and deleted=true is returned; the returned view is
// zero in that case. If the removed member was the admin, the first
// remaining member in persisted order becomes admin.
func (s *Service) RemoveMember(requesterID, chatID, userID string) (models.ChatView, bool, error) {
	chat, err := s.getGroupAsMember(requesterID, chatID)
	if err != nil {
		return models.ChatView{}, false, err
	}

	isAdmin := chat.AdminID == requesterID
	isSelf := userID == requesterID
	if !isAdmin && !isSelf {
		return models.ChatView{}, false, fmt.Errorf("only admin can remove other members: %w", models.ErrForbidden)
	}

	chat.MemberIDs = lo.Without(chat.MemberIDs, userID)

	// A chat never persists with fewer than 2 members.
	if len(chat.MemberIDs) < 2 {
		if err := s.store.DeleteChat(chat.ID); err != nil {
			return models.ChatView{}, false, err
		}
		return models.ChatView{}, true, nil
	}

	if chat.AdminID == userID {
		chat.AdminID = chat.MemberIDs[0]
	}

	chat.UpdatedAt = s.now().Unix()
	if err := s.store.UpsertChat(chat); err != nil {
		return models.ChatView{}, false, err
	}

	view, err := s.resolveChat(chat)
	return view, false, err
}

// getGroupAsMember loads a group chat and performs the checks shared by all
// group mutations, in order: existence, kind, requester membership.
func (s *Service) getGroupAsMember(requesterID, chatID string) (models.Chat, error) {
	chat, err := s.store.GetChat(chatID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Chat{}, fmt.Errorf("chat not found: %w", models.ErrNotFound)
		}
		return models.Chat{}, err
	}
	if !chat.IsGroup {
		return models.Chat{}, fmt.Errorf("not a group chat: %w", models.ErrValidation)
	}
	if !chat.IsMember(requesterID) {
		return models.Chat{}, fmt.Errorf("not a member of this chat: %w", models.ErrForbidden)
	}
	return chat, nil
}

func (s *Service) resolveChat(chat models.Chat) (models.ChatView, error) {
	view := models.ChatView{
		ID:        chat.ID,
		Name:      chat.Name,
		IsGroup:   chat.IsGroup,
		Members:   make([]models.User, 0, len(chat.MemberIDs)),
		UpdatedAt: chat.UpdatedAt,
	}

	for _, id := range chat.MemberIDs {
		rec, err := s.store.GetUser(id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue // member id that never resolved; omit from the view
			}
			return models.ChatView{}, err
		}
		if chat.IsGroup && id == chat.AdminID {
			admin := rec.User
			view.Admin = &admin
		}
		view.Members = append(view.Members, rec.User)
	}

	if chat.LatestMessageSeq > 0 {
		msg, err := s.store.GetMessageBySeq(chat.ID, chat.LatestMessageSeq)
		if err == nil {
			msgView := s.resolveMessage(msg)
			view.LatestMessage = &msgView
		} else if !errors.Is(err, models.ErrNotFound) {
			return models.ChatView{}, err
		}
	}

	return view, nil
}

func (s *Service) resolveMessage(msg models.Message) models.MessageView {
	sender := models.User{ID: msg.SenderID}
	if rec, err := s.store.GetUser(msg.SenderID); err == nil {
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
