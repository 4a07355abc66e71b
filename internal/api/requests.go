package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"palaver/internal/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Request schemas are validated once at the boundary; services re-check
// domain rules but never see malformed input.

type RegisterRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AccessChatRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type CreateGroupRequest struct {
	Name  string   `json:"name" validate:"required"`
	Users []string `json:"users" validate:"required,min=2"`
}

type RenameGroupRequest struct {
	ChatID string `json:"chatId" validate:"required"`
	Name   string `json:"name" validate:"required"`
}

type MemberRequest struct {
	ChatID string `json:"chatId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

type SendMessageRequest struct {
	ChatID      string              `json:"chatId" validate:"required"`
	Content     string              `json:"content"`
	Attachments []models.Attachment `json:"attachments" validate:"omitempty,dive"`
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", models.ErrValidation)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("missing or invalid fields: %w", models.ErrValidation)
	}
	return nil
}
