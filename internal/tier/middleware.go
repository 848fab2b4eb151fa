package tier

import (
	"log/slog"
	"net/http"

	"github.com/textgate/textgate/internal/api"
	"github.com/textgate/textgate/internal/auth"
	"github.com/textgate/textgate/internal/governance/audit"
	"github.com/textgate/textgate/internal/metrics"
	"github.com/textgate/textgate/internal/middleware"
	inats "github.com/textgate/textgate/internal/nats"
	"github.com/textgate/textgate/internal/users"
)

// Middleware must run after auth.Middleware. A request that reaches it
// without a user is rejected with 401.
func Middleware(required users.Tier, events *audit.Emitter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := auth.UserFromContext(r.Context())
			if user == nil {
				slog.Error("tier gate reached without a resolved identity", "path", r.URL.Path)
				api.HandleError(w, api.ErrUnauthorized)
				return
			}

			decision := Require(user, required)
			if !decision.Allowed {
				metrics.TierDenialsTotal.WithLabelValues(string(decision.Required), string(decision.Current)).Inc()
				events.Emit(r.Context(), inats.AuditEvent{
					OwnerUserID:  &user.ID,
					EventType:    inats.EventTierDenied,
					Severity:     inats.SeverityWarn,
					ResourceType: "route",
					ResourceID:   r.URL.Path,
					Details: map[string]any{
						"required_subscription": decision.Required,
						"current_subscription":  decision.Current,
					},
					IPAddress: middleware.ClientIP(r),
				})
				api.HandleError(w, api.ErrForbidden.
					WithMessage("this feature requires a "+string(decision.Required)+" subscription").
					With(map[string]any{
						"required_subscription": decision.Required,
						"current_subscription":  decision.Current,
					}))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
