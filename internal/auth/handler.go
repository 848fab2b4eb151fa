package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/textgate/textgate/internal/api"
	"github.com/textgate/textgate/internal/users"
)

// Accounts is the part of the user service the auth endpoints need.
type Accounts interface {
	Create(ctx context.Context, email, name, language, passwordHash string) (*users.User, error)
	GetByEmail(ctx context.Context, email string) (*users.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

type Handler struct {
	accounts Accounts
	codec    *TokenCodec
	hasher   *PasswordHasher
	validate *validator.Validate
}

func NewHandler(accounts Accounts, codec *TokenCodec, hasher *PasswordHasher) *Handler {
	return &Handler{
		accounts: accounts,
		codec:    codec,
		hasher:   hasher,
		validate: validator.New(),
	}
}

type RegisterRequest struct {
	Name               string `json:"name" validate:"required,min=2,max=100"`
	Email              string `json:"email" validate:"required,email"`
	Password           string `json:"password" validate:"required,min=6,max=72"`
	LanguagePreference string `json:"language_preference" validate:"omitempty,oneof=ar en fr es de"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *users.User `json:"user"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	req.Email = normalizeEmail(req.Email)

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	exists, err := h.accounts.ExistsByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("checking email existence", "error", err)
		api.HandleError(w, api.ErrInternalServer.Wrap(err))
		return
	}
	if exists {
		api.HandleError(w, api.ErrEmailAlreadyExists)
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		slog.Error("hashing password", "error", err)
		api.HandleError(w, api.ErrInternalServer.Wrap(err))
		return
	}

	user, err := h.accounts.Create(r.Context(), req.Email, strings.TrimSpace(req.Name), req.LanguagePreference, hash)
	if err != nil {
		// Lost a race with a concurrent registration for the same address.
		if errors.Is(err, users.ErrEmailTaken) {
			api.HandleError(w, api.ErrEmailAlreadyExists)
			return
		}
		slog.Error("creating user", "error", err)
		api.HandleError(w, api.ErrInternalServer.Wrap(err))
		return
	}

	h.respondWithToken(w, http.StatusCreated, "account created", user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	req.Email = normalizeEmail(req.Email)

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	user, err := h.accounts.GetByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("getting user by email", "error", err)
		api.HandleError(w, api.ErrInternalServer.Wrap(err))
		return
	}
	if user == nil {
		api.HandleError(w, api.ErrInvalidCredentials)
		return
	}

	if err := h.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		if !errors.Is(err, ErrPasswordMismatch) {
			slog.Error("comparing password hash", "user_id", user.ID, "error", err)
		}
		api.HandleError(w, api.ErrInvalidCredentials)
		return
	}

	h.respondWithToken(w, http.StatusOK, "logged in", user)
}

func (h *Handler) respondWithToken(w http.ResponseWriter, status int, message string, user *users.User) {
	token, err := h.codec.Issue(user.ID.String())
	if err != nil {
		slog.Error("issuing token", "user_id", user.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer.Wrap(err))
		return
	}

	api.JSONDataMessage(w, status, message, AuthResponse{
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt.UTC(),
		User:      user,
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
