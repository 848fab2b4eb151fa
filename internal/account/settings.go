package account

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/textgate/textgate/internal/api"
	"github.com/textgate/textgate/internal/auth"
	"github.com/textgate/textgate/internal/governance/quota"
	"github.com/textgate/textgate/internal/middleware"
	inats "github.com/textgate/textgate/internal/nats"
	"github.com/textgate/textgate/internal/users"
)

type UpdateProfileRequest struct {
	Name               string `json:"name" validate:"omitempty,min=2,max=100"`
	Email              string `json:"email" validate:"omitempty,email"`
	LanguagePreference string `json:"language_preference" validate:"omitempty,oneof=ar en fr es de"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=72"`
}

type DeleteAccountRequest struct {
	Password string `json:"password" validate:"required"`
}

type AccountAge struct {
	Days   int `json:"days"`
	Months int `json:"months"`
}

type SubscriptionInfo struct {
	Type      users.Tier `json:"type"`
	IsPremium bool       `json:"is_premium"`
}

type StatsResponse struct {
	AccountAge       AccountAge           `json:"account_age"`
	CurrentMonth     map[quota.Action]int `json:"current_month"`
	SubscriptionInfo SubscriptionInfo     `json:"subscription_info"`
	LastActivity     time.Time            `json:"last_activity"`
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req UpdateProfileRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Name == "" && req.Email == "" && req.LanguagePreference == "" {
		api.HandleError(w, api.NewValidationError("nothing to update"))
		return
	}

	updated, err := h.accounts.UpdateProfile(r.Context(), user, users.ProfileChanges{
		Name:               strings.TrimSpace(req.Name),
		Email:              strings.ToLower(strings.TrimSpace(req.Email)),
		LanguagePreference: req.LanguagePreference,
	})
	switch {
	case errors.Is(err, users.ErrEmailTaken):
		api.HandleError(w, api.ErrEmailAlreadyExists)
		return
	case errors.Is(err, users.ErrNotFound):
		api.HandleError(w, api.ErrUnauthorized.WithMessage("user not found"))
		return
	case err != nil:
		slog.Error("updating profile", "user_id", user.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer.Wrap(err))
		return
	}

	api.JSONDataMessage(w, http.StatusOK, "profile updated", map[string]any{"user": updated})
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.checkPassword(w, user, req.CurrentPassword, "current password is incorrect") {
		return
	}

	hash, err := h.passwords.Hash(req.NewPassword)
	if err != nil {
		slog.Error("hashing password", "user_id", user.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer.Wrap(err))
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), user, hash); err != nil {
		h.writeError(w, "changing password", user, err)
		return
	}

	h.events.Emit(r.Context(), inats.AuditEvent{
		OwnerUserID:  &user.ID,
		EventType:    inats.EventPasswordChanged,
		Severity:     inats.SeverityInfo,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
		IPAddress:    middleware.ClientIP(r),
	})

	api.JSONMessage(w, http.StatusOK, "password changed")
}

// DeleteAccount removes the caller's account after confirming the password.
// Tokens issued before stop resolving to a user.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req DeleteAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.checkPassword(w, user, req.Password, "password is incorrect") {
		return
	}

	if err := h.accounts.Delete(r.Context(), user); err != nil {
		h.writeError(w, "deleting account", user, err)
		return
	}

	// The owner row is gone, so the event references the account only by id.
	h.events.Emit(r.Context(), inats.AuditEvent{
		EventType:    inats.EventAccountDeleted,
		Severity:     inats.SeverityWarn,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
		Details:      map[string]any{"subscription_type": user.Tier},
		IPAddress:    middleware.ClientIP(r),
	})

	api.JSONMessage(w, http.StatusOK, "account deleted")
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	summary, err := h.usage.Summary(r.Context(), user)
	if err != nil {
		slog.Error("building usage summary", "user_id", user.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer.Wrap(err))
		return
	}

	days := int(math.Ceil(h.clock.Now().Sub(user.CreatedAt).Hours() / 24))
	api.JSON(w, http.StatusOK, StatsResponse{
		AccountAge:   AccountAge{Days: days, Months: days / 30},
		CurrentMonth: summary.CurrentUsage,
		SubscriptionInfo: SubscriptionInfo{
			Type:      user.Tier,
			IsPremium: user.Tier == users.TierPremium,
		},
		LastActivity: user.UpdatedAt,
	})
}

// checkPassword writes 401 with message on a wrong password.
func (h *Handler) checkPassword(w http.ResponseWriter, user *users.User, password, message string) bool {
	err := h.passwords.Compare(user.PasswordHash, password)
	switch {
	case err == nil:
		return true
	case errors.Is(err, auth.ErrPasswordMismatch):
		api.HandleError(w, api.ErrUnauthorized.WithMessage(message))
	default:
		slog.Error("comparing password", "user_id", user.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer.Wrap(err))
	}
	return false
}

func (h *Handler) writeError(w http.ResponseWriter, op string, user *users.User, err error) {
	if errors.Is(err, users.ErrNotFound) {
		api.HandleError(w, api.ErrUnauthorized.WithMessage("user not found"))
		return
	}
	slog.Error(op, "user_id", user.ID, "error", err)
	api.HandleError(w, api.ErrInternalServer.Wrap(err))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return false
	}
	return true
}
