package quota

import (
	"context"
	"fmt"
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

type contextKey string

const usageKey contextKey = "quota_usage"

// Enforcer runs the quota pre-check in front of metered handlers.
type Enforcer struct {
	tracker *Tracker
	locks   *KeyedMutex
	events  *audit.Emitter
}

func NewEnforcer(tracker *Tracker, events *audit.Emitter) *Enforcer {
	return &Enforcer{tracker: tracker, locks: NewKeyedMutex(), events: events}
}

// Middleware checks the daily ceiling for every caller and the monthly
// ceiling of action for authenticated ones. The caller's identity stays
// locked until the wrapped handler returns, so the check and the usage
// record written by the handler cannot interleave with another request
// from the same caller in this process.
func (e *Enforcer) Middleware(action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			usage, release, err := e.Acquire(ctx, auth.UserFromContext(ctx), middleware.ClientIP(r), action, 1)
			if err != nil {
				api.HandleError(w, err)
				return
			}
			defer release()

			next.ServeHTTP(w, r.WithContext(WithUsage(ctx, usage)))
		})
	}
}

// Acquire locks the caller's identity and admits n actions of the given
// type only if both windows have room for all of them. On success the
// returned release func must be called once the usage records are written.
// Errors are *api.AppError values ready for HandleError.
func (e *Enforcer) Acquire(ctx context.Context, user *users.User, ip string, action Action, n int) (Usage, func(), error) {
	id := userIdentity(user, ip)

	unlock, err := e.locks.Lock(ctx, id.Key())
	if err != nil {
		return Usage{}, nil, api.ErrServiceUnavailable.Wrap(err)
	}

	usage, err := e.check(ctx, user, id, action, n)
	if err != nil {
		unlock()
		return Usage{}, nil, err
	}
	return usage, unlock, nil
}

func (e *Enforcer) check(ctx context.Context, user *users.User, id Identity, action Action, n int) (Usage, error) {
	daily, err := e.tracker.CheckDaily(ctx, id)
	if err != nil {
		slog.Error("checking daily quota", "identity", id.Key(), "error", err)
		return Usage{}, api.ErrInternalServer.Wrap(err)
	}
	daily.Allowed = daily.Count+n <= daily.Ceiling
	if !daily.Allowed {
		e.deny(ctx, "daily", action, id, daily.Count, daily.Ceiling)
		return Usage{}, api.ErrTooManyRequests.
			Wrap(ErrDailyQuotaExceeded).
			WithMessage(fmt.Sprintf("daily limit of %d requests reached, try again tomorrow", daily.Ceiling)).
			With(map[string]any{
				"resetTime": daily.ResetAt,
				"usage": map[string]any{
					"current":   daily.Count,
					"limit":     daily.Ceiling,
					"requested": n,
				},
			})
	}

	usage := Usage{Action: action, Identity: id, Daily: daily}
	if user == nil {
		return usage, nil
	}

	monthly, err := e.tracker.CheckMonthly(ctx, user, action, e.tracker.Ceiling(action))
	if err != nil {
		slog.Error("checking monthly quota", "user_id", user.ID, "action", action, "error", err)
		return Usage{}, api.ErrInternalServer.Wrap(err)
	}
	monthly.Allowed = monthly.Exempt || monthly.Count+n <= monthly.Ceiling
	if !monthly.Allowed {
		e.deny(ctx, "monthly", action, id, monthly.Count, monthly.Ceiling)
		return Usage{}, api.ErrTooManyRequests.
			Wrap(ErrMonthlyQuotaExceeded).
			WithMessage(fmt.Sprintf("monthly %s limit reached, upgrade to premium for unlimited use", action)).
			With(map[string]any{
				"usage": map[string]any{
					"current":   monthly.Count,
					"limit":     monthly.Ceiling,
					"action":    action,
					"requested": n,
				},
			})
	}
	usage.Monthly = &monthly
	return usage, nil
}

func (e *Enforcer) deny(ctx context.Context, window string, action Action, id Identity, count, ceiling int) {
	metrics.QuotaDenialsTotal.WithLabelValues(window, string(action)).Inc()

	eventType := inats.EventDailyQuotaDenied
	if window == "monthly" {
		eventType = inats.EventMonthlyQuotaDenied
	}
	e.events.Emit(ctx, inats.AuditEvent{
		OwnerUserID:  id.UserID,
		EventType:    eventType,
		Severity:     inats.SeverityInfo,
		ResourceType: "quota",
		ResourceID:   string(action),
		Details:      map[string]any{"current": count, "limit": ceiling},
		IPAddress:    id.IP,
	})
}

func WithUsage(ctx context.Context, usage Usage) context.Context {
	return context.WithValue(ctx, usageKey, usage)
}

// UsageFromContext returns the pre-check snapshot set by Middleware.
func UsageFromContext(ctx context.Context) (Usage, bool) {
	usage, ok := ctx.Value(usageKey).(Usage)
	return usage, ok
}
