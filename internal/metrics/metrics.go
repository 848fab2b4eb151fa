package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textgate_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "textgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ThrottleDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textgate_throttle_decisions_total",
			Help: "Global throttle decisions by result (allowed, denied, error).",
		},
		[]string{"result"},
	)

	ThrottleTrackedKeys = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "textgate_throttle_tracked_keys",
			Help: "Number of network addresses held by the in-memory throttle.",
		},
	)

	IdentityResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textgate_identity_resolutions_total",
			Help: "Identity resolution outcomes by mode (required, optional).",
		},
		[]string{"mode", "outcome"},
	)

	TierDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textgate_tier_denials_total",
			Help: "Requests denied by the tier gate.",
		},
		[]string{"required", "current"},
	)

	QuotaDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textgate_quota_denials_total",
			Help: "Requests denied by a quota window (monthly, daily).",
		},
		[]string{"window", "action"},
	)

	UsageRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textgate_usage_records_total",
			Help: "Usage ledger writes by result (ok, failed).",
		},
		[]string{"action", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ThrottleDecisionsTotal,
		ThrottleTrackedKeys,
		IdentityResolutionsTotal,
		TierDenialsTotal,
		QuotaDenialsTotal,
		UsageRecordsTotal,
	)
}
