package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/textgate/textgate/internal/api"
	"github.com/textgate/textgate/internal/metrics"
	"github.com/textgate/textgate/internal/throttle"
)

// Throttle spends one unit of the caller's address budget per request.
// Limiter errors fail open.
func Throttle(limiter throttle.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)

			d, err := limiter.Consume(r.Context(), ip)
			if err != nil {
				metrics.ThrottleDecisionsTotal.WithLabelValues("error").Inc()
				slog.Warn("throttle: limiter error, failing open", "error", err, "ip", ip)
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				metrics.ThrottleDecisionsTotal.WithLabelValues("denied").Inc()
				h.Set("Retry-After", strconv.Itoa(int(d.RetryAfter(d.DecidedAt)/time.Second)))
				api.HandleError(w, api.ErrTooManyRequests)
				return
			}

			metrics.ThrottleDecisionsTotal.WithLabelValues("allowed").Inc()
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of RemoteAddr. Proxy headers are honoured
// only when the router rewrites RemoteAddr from them.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
