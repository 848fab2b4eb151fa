package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/textgate/textgate/internal/api"
	"github.com/textgate/textgate/internal/metrics"
	"github.com/textgate/textgate/internal/users"
)

type contextKey string

const userKey contextKey = "user"

// Middleware rejects the request unless it carries a credential for an
// existing user, whose snapshot is then available via UserFromContext.
func Middleware(res *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := res.RequireIdentity(r.Context(), r.Header.Get("Authorization"))
			metrics.IdentityResolutionsTotal.WithLabelValues("required", outcome(err)).Inc()
			if err != nil {
				if errors.Is(err, ErrStoreFailure) {
					slog.Error("resolving identity", "error", err)
				} else {
					slog.Debug("rejecting credential", "error", err)
				}
				api.HandleError(w, toAppError(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// OptionalMiddleware attaches the user when the credential resolves and
// otherwise lets the request through as anonymous.
func OptionalMiddleware(res *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resolution := res.OptionalIdentity(r.Context(), r.Header.Get("Authorization"))
			label := outcome(resolution.Err)
			if resolution.Err == nil && resolution.Anonymous() {
				label = "anonymous"
			}
			metrics.IdentityResolutionsTotal.WithLabelValues("optional", label).Inc()
			if resolution.Err != nil {
				// Deliberately not fatal: the caller continues anonymously.
				level := slog.LevelInfo
				if errors.Is(resolution.Err, ErrStoreFailure) {
					level = slog.LevelWarn
				}
				slog.Log(r.Context(), level, "optional authentication failed, continuing anonymously", "error", resolution.Err)
			}

			if resolution.Anonymous() {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), resolution.User)))
		})
	}
}

func WithUser(ctx context.Context, user *users.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns nil for anonymous requests.
func UserFromContext(ctx context.Context) *users.User {
	user, _ := ctx.Value(userKey).(*users.User)
	return user
}

func toAppError(err error) *api.AppError {
	switch {
	case errors.Is(err, ErrCredentialMissing):
		return api.ErrUnauthorized.Wrap(err).WithMessage("authentication token required")
	case errors.Is(err, ErrCredentialExpired):
		return api.ErrUnauthorized.Wrap(err).WithMessage("authentication token expired")
	case errors.Is(err, ErrCredentialInvalid):
		return api.ErrUnauthorized.Wrap(err).WithMessage("invalid authentication token")
	case errors.Is(err, ErrIdentityNotFound):
		return api.ErrUnauthorized.Wrap(err).WithMessage("user not found")
	default:
		return api.ErrInternalServer.Wrap(err).WithMessage("authentication check failed")
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCredentialMissing):
		return "missing"
	case errors.Is(err, ErrCredentialExpired):
		return "expired"
	case errors.Is(err, ErrCredentialInvalid):
		return "invalid"
	case errors.Is(err, ErrIdentityNotFound):
		return "not_found"
	default:
		return "store_failure"
	}
}
