// Package account serves the signed-in user's own profile, credentials,
// usage and subscription endpoints.
package account

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/textgate/textgate/internal/api"
	"github.com/textgate/textgate/internal/auth"
	"github.com/textgate/textgate/internal/clock"
	"github.com/textgate/textgate/internal/governance/audit"
	"github.com/textgate/textgate/internal/governance/quota"
	"github.com/textgate/textgate/internal/middleware"
	inats "github.com/textgate/textgate/internal/nats"
	"github.com/textgate/textgate/internal/users"
)

// Accounts is satisfied by *users.Service.
type Accounts interface {
	Upgrade(ctx context.Context, user *users.User) (*users.User, error)
	Downgrade(ctx context.Context, user *users.User) (*users.User, error)
	UpdateProfile(ctx context.Context, user *users.User, changes users.ProfileChanges) (*users.User, error)
	ChangePassword(ctx context.Context, user *users.User, passwordHash string) error
	Delete(ctx context.Context, user *users.User) error
}

// Passwords is satisfied by *auth.PasswordHasher.
type Passwords interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// UsageReporter is satisfied by *quota.Tracker.
type UsageReporter interface {
	Summary(ctx context.Context, user *users.User) (*quota.Summary, error)
}

type Handler struct {
	accounts  Accounts
	usage     UsageReporter
	passwords Passwords
	events    *audit.Emitter
	clock     clock.Clock
	validate  *validator.Validate
}

func NewHandler(accounts Accounts, usage UsageReporter, passwords Passwords, events *audit.Emitter, clk clock.Clock) *Handler {
	if clk == nil {
		clk = clock.System()
	}
	return &Handler{
		accounts:  accounts,
		usage:     usage,
		passwords: passwords,
		events:    events,
		clock:     clk,
		validate:  validator.New(),
	}
}

type UsageResponse struct {
	SubscriptionType users.Tier `json:"subscription_type"`
	*quota.Summary
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}
	api.JSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
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

	api.JSON(w, http.StatusOK, UsageResponse{SubscriptionType: user.Tier, Summary: summary})
}

func (h *Handler) Upgrade(w http.ResponseWriter, r *http.Request) {
	h.changeTier(w, r, h.accounts.Upgrade, "subscription upgraded to premium")
}

func (h *Handler) Downgrade(w http.ResponseWriter, r *http.Request) {
	h.changeTier(w, r, h.accounts.Downgrade, "subscription changed to free")
}

func (h *Handler) changeTier(w http.ResponseWriter, r *http.Request,
	change func(context.Context, *users.User) (*users.User, error), message string) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	updated, err := change(r.Context(), user)
	switch {
	case errors.Is(err, users.ErrAlreadyPremium):
		api.HandleError(w, api.NewBadRequestError("subscription is already premium"))
		return
	case errors.Is(err, users.ErrAlreadyFree):
		api.HandleError(w, api.NewBadRequestError("subscription is already free"))
		return
	case errors.Is(err, users.ErrNotFound):
		api.HandleError(w, api.ErrUnauthorized.WithMessage("user not found"))
		return
	case err != nil:
		slog.Error("changing subscription", "user_id", user.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer.Wrap(err))
		return
	}

	h.events.Emit(r.Context(), inats.AuditEvent{
		OwnerUserID:  &user.ID,
		EventType:    inats.EventSubscriptionChanged,
		Severity:     inats.SeverityInfo,
		ResourceType: "user",
		ResourceID:   user.ID.String(),
		Details:      map[string]any{"from": user.Tier, "to": updated.Tier},
		IPAddress:    middleware.ClientIP(r),
	})

	api.JSONDataMessage(w, http.StatusOK, message, map[string]any{"user": updated})
}
